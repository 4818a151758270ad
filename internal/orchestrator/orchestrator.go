package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lamim/sftprep/internal/config"
	"github.com/lamim/sftprep/internal/dataset"
	"github.com/lamim/sftprep/internal/encode"
	"github.com/lamim/sftprep/internal/metrics"
	"github.com/lamim/sftprep/internal/normalize"
	"github.com/lamim/sftprep/internal/writer"
	"github.com/lamim/sftprep/pkg/models"
)

// Orchestrator runs the preprocessing pipeline for one run directory
type Orchestrator struct {
	cfg       *config.Config
	runMgr    *writer.RunManager
	vocab     encode.Vocabulary
	collector *metrics.Collector
	logger    *slog.Logger
	progress  bool
	report    *models.RunReport
}

// New creates a new orchestrator. vocab may be nil when only normalizing.
func New(
	cfg *config.Config,
	runMgr *writer.RunManager,
	vocab encode.Vocabulary,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		runMgr:    runMgr,
		vocab:     vocab,
		collector: collector,
		logger:    logger,
		report: &models.RunReport{
			RunID:     uuid.New().String(),
			StartedAt: time.Now(),
		},
	}
}

// WithProgress enables progress bars
func (o *Orchestrator) WithProgress(enabled bool) *Orchestrator {
	o.progress = enabled
	return o
}

// Report returns the run report built so far
func (o *Orchestrator) Report() *models.RunReport {
	return o.report
}

// Prepare normalizes the primary dataset and encodes the result.
// With data.skip_normalize the input is treated as an already normalized array.
func (o *Orchestrator) Prepare(ctx context.Context) (err error) {
	defer func() { err = o.finish(err) }()

	normalizedPath := dataset.ResolveDataPath(o.cfg.Data.InputPath)
	if o.cfg.Data.SkipNormalize {
		o.logger.Info("Skipping normalization", "input", normalizedPath)
		if err := dataset.CheckPrimary(normalizedPath); err != nil {
			return err
		}
		o.report.InputPath = normalizedPath
	} else {
		normalizedPath, err = o.normalize(ctx)
		if err != nil {
			return err
		}
	}

	return o.encode(ctx, normalizedPath)
}

// Normalize runs only the normalization phase
func (o *Orchestrator) Normalize(ctx context.Context) (err error) {
	defer func() { err = o.finish(err) }()
	_, err = o.normalize(ctx)
	return err
}

// Encode runs only the encoding phase on a normalized JSON array
func (o *Orchestrator) Encode(ctx context.Context, normalizedPath string) (err error) {
	defer func() { err = o.finish(err) }()
	normalizedPath = dataset.ResolveDataPath(normalizedPath)
	if err := dataset.CheckPrimary(normalizedPath); err != nil {
		return err
	}
	o.report.InputPath = normalizedPath
	return o.encode(ctx, normalizedPath)
}

func (o *Orchestrator) normalize(ctx context.Context) (string, error) {
	start := time.Now()
	o.report.Phase = models.PhaseNormalize

	inputPath := o.resolve("data_path", o.cfg.Data.InputPath)
	o.report.InputPath = inputPath
	if err := dataset.CheckPrimary(inputPath); err != nil {
		return "", err
	}

	lines, err := normalize.ReadLines(inputPath)
	if err != nil {
		return "", fmt.Errorf("failed to read primary input: %w", err)
	}
	primaryCount := len(lines)
	o.logger.Info("Loaded primary dataset", "path", inputPath, "lines", primaryCount)

	if o.cfg.Data.PresetPath != "" {
		lines, err = o.augment(lines)
		if err != nil {
			return "", err
		}
	}

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("normalization cancelled: %w", err)
	}

	records, report := normalize.New(o.cfg.Roles, o.logger).
		WithProgress(o.progress).
		Normalize(lines)
	report.Augmented = len(lines) - primaryCount
	o.report.Normalize = &report

	outPath := o.cfg.Data.NormalizedOut
	if outPath == "" {
		outPath = o.runMgr.NormalizedPath()
	}
	if err := writer.WriteJSONArray(outPath, records); err != nil {
		return "", fmt.Errorf("failed to write normalized dataset: %w", err)
	}
	o.report.NormalizedPath = outPath

	o.collector.RecordNormalize(report)
	o.collector.RecordPhase(models.PhaseNormalize, time.Since(start))
	o.logger.Info("Normalization complete",
		"path", outPath,
		"kept", report.Kept,
		"skipped", report.Skipped,
		"augmented", report.Augmented,
		"warnings", len(report.Warnings))

	return outPath, nil
}

// augment appends sampled preset lines. A missing preset file is not an error.
func (o *Orchestrator) augment(lines []string) ([]string, error) {
	presetPath := o.resolve("preset_path", o.cfg.Data.PresetPath)
	if !dataset.Exists(presetPath) {
		o.logger.Warn("Preset dataset not found, continuing without augmentation", "path", presetPath)
		return lines, nil
	}
	o.report.PresetPath = presetPath

	pool, err := normalize.ReadLines(presetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset dataset: %w", err)
	}

	ratio := o.cfg.Data.PresetRatioOrDefault()
	rng := normalize.NewRand(o.cfg.Data.Seed)
	out := normalize.SamplePreset(lines, pool, ratio, rng)
	o.logger.Info("Sampled preset dataset",
		"path", presetPath,
		"pool", len(pool),
		"ratio", ratio,
		"drawn", len(out)-len(lines))
	return out, nil
}

func (o *Orchestrator) encode(ctx context.Context, normalizedPath string) error {
	if o.vocab == nil {
		return fmt.Errorf("no tokenizer configured for encoding")
	}
	start := time.Now()
	o.report.Phase = models.PhaseEncode

	report, err := o.encodeFile(ctx, normalizedPath, o.runEncodedPath())
	if err != nil {
		return err
	}
	o.report.EncodedPath = o.runEncodedPath()
	o.report.Encode = &report

	if o.cfg.Data.EvalPath != "" {
		evalPath := dataset.ResolveDataPath(o.cfg.Data.EvalPath)
		evalReport, err := o.encodeFile(ctx, evalPath, o.runMgr.EvalEncodedPath())
		if err != nil {
			return fmt.Errorf("failed to encode evaluation data: %w", err)
		}
		o.report.EvalPath = evalPath
		o.report.EvalEncoded = o.runMgr.EvalEncodedPath()
		o.report.EvalEncode = &evalReport
	}

	o.collector.RecordPhase(models.PhaseEncode, time.Since(start))
	o.report.Phase = models.PhaseComplete
	return nil
}

func (o *Orchestrator) runEncodedPath() string {
	if o.cfg.Data.EncodedOut != "" {
		return o.cfg.Data.EncodedOut
	}
	return o.runMgr.EncodedPath()
}

// encodeFile loads a normalized array, encodes it and writes JSONL to outPath
func (o *Orchestrator) encodeFile(ctx context.Context, inPath, outPath string) (models.EncodeReport, error) {
	records, err := dataset.LoadRecords(inPath)
	if err != nil {
		return models.EncodeReport{}, err
	}
	conversations, missing := dataset.Conversations(records)
	if missing > 0 {
		o.logger.Warn("Records without conversations are not encoded", "count", missing)
	}

	enc := encode.New(o.vocab, o.cfg.Encode.MaxLen, o.cfg.Encode.SystemMessage, o.logger).
		WithConcurrency(o.cfg.Encode.Concurrency).
		WithProgress(o.progress)

	var ds *dataset.Dataset
	var batchReport models.EncodeReport
	if o.cfg.Data.LazyEncode {
		ds = dataset.NewLazy(enc, conversations, o.logger)
	} else {
		ds, batchReport, err = dataset.NewEager(ctx, enc, conversations, o.logger)
		if err != nil {
			return batchReport, err
		}
	}

	w, err := writer.NewEncodedWriter(outPath, o.logger)
	if err != nil {
		return models.EncodeReport{}, err
	}
	sink := &observingSink{next: w, collector: o.collector, vocab: o.vocab, logger: o.logger}
	exportReport, err := ds.Export(ctx, sink)
	if closeErr := w.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return exportReport, err
	}

	report := exportReport
	if !ds.Lazy() {
		// Eager rejections happened before export
		report = batchReport
	}
	o.collector.RecordEncode(report)
	o.logger.Info("Wrote encoded dataset",
		"path", outPath,
		"examples", w.Count(),
		"rejected", report.Rejected,
		"truncated", report.Truncated)
	return report, nil
}

// resolve applies the directory convention and logs the mapping
func (o *Orchestrator) resolve(name, path string) string {
	resolved := dataset.ResolveDataPath(path)
	if resolved != path {
		o.logger.Info("Resolved dataset directory", "field", name, "before", path, "after", resolved)
	}
	return resolved
}

// finish persists report.json and metrics.prom. The pipeline error wins over
// write failures.
func (o *Orchestrator) finish(runErr error) error {
	o.report.FinishedAt = time.Now()
	o.report.Duration = o.report.FinishedAt.Sub(o.report.StartedAt)

	if err := writer.WriteReport(o.runMgr.ReportPath(), o.report); err != nil {
		o.logger.Error("Failed to write run report", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	if err := o.collector.WriteTextfile(o.runMgr.MetricsPath()); err != nil {
		o.logger.Warn("Failed to write metrics", "error", err)
	}
	return runErr
}

// observingSink records per-example metrics and previews the first example
type observingSink struct {
	next      writer.ExampleWriter
	collector *metrics.Collector
	vocab     encode.Vocabulary
	logger    *slog.Logger
	seen      int
}

func (s *observingSink) WriteExample(example models.EncodedExample) error {
	if s.seen == 0 {
		s.preview(example)
	}
	s.seen++
	s.collector.ObserveExample(example)
	return s.next.WriteExample(example)
}

func (s *observingSink) preview(example models.EncodedExample) {
	dec, ok := s.vocab.(encode.Decoder)
	if !ok || !s.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	trained := make([]int, 0, len(example.Labels))
	for _, l := range example.Labels {
		if l != encode.IgnoreIndex {
			trained = append(trained, l)
		}
	}
	s.logger.Debug("First encoded example",
		"input", dec.Decode(example.InputIDs),
		"trained", dec.Decode(trained),
		"source_length", example.SourceLength)
}
