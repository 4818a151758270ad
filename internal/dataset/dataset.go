package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lamim/sftprep/internal/encode"
	"github.com/lamim/sftprep/pkg/models"
)

// Sink receives encoded examples in order
type Sink interface {
	WriteExample(example models.EncodedExample) error
}

// Dataset serves encoded examples by index.
// An eager dataset encodes everything when it is built and holds only the
// accepted examples. A lazy dataset encodes on first access and caches the
// result; rejected conversations surface as errors from Get.
type Dataset struct {
	encoder *encode.Encoder
	logger  *slog.Logger
	lazy    bool

	conversations [][]models.Turn
	examples      []models.EncodedExample

	mu    sync.Mutex
	cache map[int]models.EncodedExample
}

// NewEager encodes all conversations up front
func NewEager(ctx context.Context, enc *encode.Encoder, conversations [][]models.Turn, logger *slog.Logger) (*Dataset, models.EncodeReport, error) {
	logger.Info("Formatting inputs", "conversations", len(conversations))
	examples, report, err := enc.EncodeBatch(ctx, conversations)
	if err != nil {
		return nil, report, err
	}
	return &Dataset{
		encoder:  enc,
		logger:   logger,
		examples: examples,
	}, report, nil
}

// NewLazy defers encoding to Get
func NewLazy(enc *encode.Encoder, conversations [][]models.Turn, logger *slog.Logger) *Dataset {
	logger.Info("Formatting inputs skipped in lazy mode", "conversations", len(conversations))
	return &Dataset{
		encoder:       enc,
		logger:        logger,
		lazy:          true,
		conversations: conversations,
		cache:         make(map[int]models.EncodedExample),
	}
}

// Lazy reports whether examples are encoded on access
func (d *Dataset) Lazy() bool {
	return d.lazy
}

// Len returns the number of addressable examples
func (d *Dataset) Len() int {
	if d.lazy {
		return len(d.conversations)
	}
	return len(d.examples)
}

// Get returns the example at index i
func (d *Dataset) Get(i int) (models.EncodedExample, error) {
	if i < 0 || i >= d.Len() {
		return models.EncodedExample{}, fmt.Errorf("index %d out of range [0, %d)", i, d.Len())
	}
	if !d.lazy {
		return d.examples[i], nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if ex, ok := d.cache[i]; ok {
		return ex, nil
	}
	ex, err := d.encoder.Encode(d.conversations[i])
	if err != nil {
		return models.EncodedExample{}, fmt.Errorf("failed to encode conversation %d: %w", i, err)
	}
	d.cache[i] = ex
	return ex, nil
}

// Cached returns how many lazy examples have been encoded so far
func (d *Dataset) Cached() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cache)
}

// Export writes every example to sink in index order. In lazy mode rejected
// conversations are reported and skipped; contract failures abort.
func (d *Dataset) Export(ctx context.Context, sink Sink) (models.EncodeReport, error) {
	report := models.EncodeReport{Total: d.Len()}

	for i := 0; i < d.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("export cancelled: %w", err)
		}

		ex, err := d.Get(i)
		if err != nil {
			if errors.Is(err, encode.ErrLengthMismatch) {
				return report, err
			}
			d.logger.Warn("Rejected conversation", "index", i, "error", err)
			report.Rejected++
			report.Rejections = append(report.Rejections, models.Rejection{Index: i, Reason: err.Error()})
			continue
		}
		if ex.Truncated {
			report.Truncated++
		}
		if err := sink.WriteExample(ex); err != nil {
			return report, fmt.Errorf("failed to write example %d: %w", i, err)
		}
		report.Encoded++
	}

	return report, nil
}
