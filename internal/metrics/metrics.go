package metrics

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lamim/sftprep/pkg/models"
)

var (
	// Normalization metrics
	normalizeLines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sftprep_normalize_lines_total",
			Help: "Input lines processed by the normalizer",
		},
		[]string{"status"}, // "kept" or "skipped"
	)

	normalizeWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sftprep_normalize_warnings_total",
			Help: "Normalization warnings by kind",
		},
		[]string{"kind"},
	)

	presetDrawn = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sftprep_preset_lines_drawn",
			Help: "Preset lines appended to the primary dataset in the last run",
		},
	)

	// Encoding metrics
	encodeConversations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sftprep_encode_conversations_total",
			Help: "Conversations handled by the encoder",
		},
		[]string{"status"}, // "encoded", "rejected" or "truncated"
	)

	sourceTokens = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sftprep_encode_source_tokens",
			Help:    "Sequence length before padding or truncation",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10), // 64 to 32768
		},
	)

	phaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sftprep_phase_duration_seconds",
			Help:    "Pipeline phase duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15), // 10ms to ~160s
		},
		[]string{"phase"},
	)

	// Training loss metrics
	lossEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sftprep_loss_events_total",
			Help: "Loss events recorded",
		},
	)

	trainLoss = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sftprep_train_loss",
			Help: "Most recent training loss",
		},
		[]string{"kind"}, // "last" or "mean"
	)

	learningRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sftprep_train_learning_rate",
			Help: "Most recent learning rate",
		},
	)

	globalStep = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sftprep_train_global_step",
			Help: "Most recent optimizer step",
		},
	)
)

// Collector provides convenience methods for recording metrics
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a new metrics collector
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// RecordNormalize records the counts of a normalization report
func (c *Collector) RecordNormalize(report models.NormalizeReport) {
	normalizeLines.WithLabelValues("kept").Add(float64(report.Kept))
	normalizeLines.WithLabelValues("skipped").Add(float64(report.Skipped))
	for _, w := range report.Warnings {
		normalizeWarnings.WithLabelValues(string(w.Kind)).Inc()
	}
	presetDrawn.Set(float64(report.Augmented))
}

// RecordEncode records the counts of an encode report
func (c *Collector) RecordEncode(report models.EncodeReport) {
	encodeConversations.WithLabelValues("encoded").Add(float64(report.Encoded))
	encodeConversations.WithLabelValues("rejected").Add(float64(report.Rejected))
	encodeConversations.WithLabelValues("truncated").Add(float64(report.Truncated))
}

// ObserveExample records the pre-padding length of one encoded example
func (c *Collector) ObserveExample(example models.EncodedExample) {
	sourceTokens.Observe(float64(example.SourceLength))
}

// RecordPhase records how long a pipeline phase took
func (c *Collector) RecordPhase(phase models.RunPhase, duration time.Duration) {
	phaseDuration.WithLabelValues(string(phase)).Observe(duration.Seconds())
}

// RecordLoss updates the training gauges from a persisted metric record
func (c *Collector) RecordLoss(record models.MetricRecord) {
	lossEvents.Inc()
	trainLoss.WithLabelValues("last").Set(record.Loss)
	trainLoss.WithLabelValues("mean").Set(record.MeanLoss)
	learningRate.Set(record.LearningRate)
	globalStep.Set(float64(record.GlobalStep))
}

// WriteTextfile writes the default registry in the Prometheus text format
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	c.logger.Debug("Wrote metrics", "path", path)
	return nil
}
