// Package lossmetrics persists per-step training loss events as loss.json.
package lossmetrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/lamim/sftprep/pkg/models"
)

// LossFilename is the file written inside the loss directory
const LossFilename = "loss.json"

// History maps a 1-based epoch index to the records logged during that epoch
type History map[int][]models.MetricRecord

// Observer is notified of every persisted record
type Observer interface {
	RecordLoss(record models.MetricRecord)
}

// Options configures a Recorder
type Options struct {
	Dir       string
	MaxSteps  int
	NumEpochs int
	Rank      int
}

// Recorder turns loss events into metric records and rewrites loss.json after
// each one. Only rank 0 records; every other rank is a no-op.
type Recorder struct {
	path          string
	stepsPerEpoch int
	rank          int
	observer      Observer
	logger        *slog.Logger

	mu      sync.Mutex
	history History
	lossSum float64
	count   int
}

// NewRecorder creates the loss directory (on rank 0) and returns a recorder
func NewRecorder(opts Options, observer Observer, logger *slog.Logger) (*Recorder, error) {
	r := &Recorder{
		path:     filepath.Join(opts.Dir, LossFilename),
		rank:     opts.Rank,
		observer: observer,
		logger:   logger,
		history:  make(History),
	}
	if opts.NumEpochs > 0 {
		r.stepsPerEpoch = opts.MaxSteps / opts.NumEpochs
	}
	if r.rank != 0 {
		return r, nil
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create loss directory: %w", err)
	}
	logger.Info("Recording loss", "path", r.path, "steps_per_epoch", r.stepsPerEpoch)
	return r, nil
}

// Path returns the loss.json location
func (r *Recorder) Path() string {
	return r.path
}

// Record converts and persists one event. It reports false when the event was
// ignored because it carries no loss or this is not rank 0.
func (r *Recorder) Record(event models.LossEvent) (bool, error) {
	if r.rank != 0 || event.Loss == nil {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lossSum += *event.Loss
	r.count++

	epoch := int(event.Epoch)
	step := event.OptimizerStep()
	record := models.MetricRecord{
		Epoch:        epoch + 1,
		Step:         step - epoch*r.stepsPerEpoch,
		GlobalStep:   step,
		Loss:         *event.Loss,
		LearningRate: event.LearningRate,
		MeanLoss:     r.lossSum / float64(r.count),
	}
	r.history[record.Epoch] = append(r.history[record.Epoch], record)

	r.logger.Info("Loss recorded",
		"epoch", record.Epoch,
		"step", record.Step,
		"global_step", record.GlobalStep,
		"loss", record.Loss,
		"lr", record.LearningRate,
		"mean_loss", record.MeanLoss)

	if r.observer != nil {
		r.observer.RecordLoss(record)
	}

	if err := r.saveLocked(); err != nil {
		return true, err
	}
	return true, nil
}

// History returns a copy of the recorded history
func (r *Recorder) History() History {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(History, len(r.history))
	for epoch, records := range r.history {
		out[epoch] = append([]models.MetricRecord(nil), records...)
	}
	return out
}

func (r *Recorder) saveLocked() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(r.history); err != nil {
		return fmt.Errorf("failed to marshal loss history: %w", err)
	}

	// Atomic write: write to temp file, then rename
	tempPath := r.path + ".tmp"
	if err := os.WriteFile(tempPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write temp loss file: %w", err)
	}
	if err := os.Rename(tempPath, r.path); err != nil {
		return fmt.Errorf("failed to rename loss file: %w", err)
	}
	return nil
}

// Load reads a loss.json file
func Load(path string) (History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read loss file: %w", err)
	}
	var history History
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to parse loss file: %w", err)
	}
	return history, nil
}
