package metrics

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lamim/sftprep/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRecordNormalize(t *testing.T) {
	c := NewCollector(testLogger())
	keptBefore := testutil.ToFloat64(normalizeLines.WithLabelValues("kept"))
	skippedBefore := testutil.ToFloat64(normalizeLines.WithLabelValues("skipped"))
	warnBefore := testutil.ToFloat64(normalizeWarnings.WithLabelValues(string(models.WarnUnknownRole)))

	c.RecordNormalize(models.NormalizeReport{
		Kept:      5,
		Skipped:   2,
		Augmented: 3,
		Warnings: []models.NormalizeWarning{
			{Line: 1, Kind: models.WarnUnknownRole, Role: "narrator"},
			{Line: 4, Kind: models.WarnUnknownRole, Role: "bot"},
		},
	})

	if got := testutil.ToFloat64(normalizeLines.WithLabelValues("kept")) - keptBefore; got != 5 {
		t.Errorf("kept delta = %v, want 5", got)
	}
	if got := testutil.ToFloat64(normalizeLines.WithLabelValues("skipped")) - skippedBefore; got != 2 {
		t.Errorf("skipped delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(normalizeWarnings.WithLabelValues(string(models.WarnUnknownRole))) - warnBefore; got != 2 {
		t.Errorf("warning delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(presetDrawn); got != 3 {
		t.Errorf("preset drawn = %v, want 3", got)
	}
}

func TestRecordLoss(t *testing.T) {
	c := NewCollector(testLogger())
	before := testutil.ToFloat64(lossEvents)

	c.RecordLoss(models.MetricRecord{Epoch: 1, Step: 10, GlobalStep: 10, Loss: 1.25, LearningRate: 2e-5, MeanLoss: 1.5})

	if got := testutil.ToFloat64(lossEvents) - before; got != 1 {
		t.Errorf("loss events delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(trainLoss.WithLabelValues("last")); got != 1.25 {
		t.Errorf("last loss = %v", got)
	}
	if got := testutil.ToFloat64(trainLoss.WithLabelValues("mean")); got != 1.5 {
		t.Errorf("mean loss = %v", got)
	}
	if got := testutil.ToFloat64(globalStep); got != 10 {
		t.Errorf("global step = %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector(testLogger())
	c.RecordEncode(models.EncodeReport{Encoded: 3, Rejected: 1})
	c.ObserveExample(models.EncodedExample{SourceLength: 100})
	c.RecordPhase(models.PhaseEncode, 50*time.Millisecond)

	path := filepath.Join(t.TempDir(), "metrics.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{
		"sftprep_encode_conversations_total",
		"sftprep_encode_source_tokens",
		"sftprep_phase_duration_seconds",
	} {
		if !strings.Contains(string(data), name) {
			t.Errorf("metrics file missing %s", name)
		}
	}
}
