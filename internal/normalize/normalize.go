// Package normalize turns raw JSONL conversation records into the canonical
// role schema used by the encoder.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"

	"github.com/lamim/sftprep/pkg/models"
)

const (
	// sampleInterval bounds how often a before/after record dump is logged
	sampleInterval = 5 * time.Second

	// warnBurst per-line warnings are logged before throttling kicks in
	warnBurst = 20
	// warnInterval is the spacing of per-line warnings once throttled
	warnInterval = time.Second
)

// Normalizer remaps turn roles through an alias table.
// A Normalizer is safe for use by a single run at a time.
type Normalizer struct {
	aliases  models.RoleAliasTable
	logger   *slog.Logger
	progress bool
	sample   *rate.Sometimes
	warns    *rate.Sometimes

	suppressed int
}

// New creates a normalizer for the given alias table
func New(aliases models.RoleAliasTable, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		aliases: aliases,
		logger:  logger,
		sample:  &rate.Sometimes{First: 1, Interval: sampleInterval},
		warns:   &rate.Sometimes{First: warnBurst, Interval: warnInterval},
	}
}

// warn logs a per-line warning through the throttle. Suppressed warnings are
// still recorded in the report and counted in the closing summary.
func (n *Normalizer) warn(msg string, args ...any) {
	logged := false
	n.warns.Do(func() {
		logged = true
		n.logger.Warn(msg, args...)
	})
	if !logged {
		n.suppressed++
	}
}

// Suppressed returns how many per-line warnings were not logged
func (n *Normalizer) Suppressed() int {
	return n.suppressed
}

// WithProgress enables a progress bar on stdout
func (n *Normalizer) WithProgress(enabled bool) *Normalizer {
	n.progress = enabled
	return n
}

// Normalize parses every line and returns the kept records in input order
// together with a per-line report. Lines that cannot be parsed are skipped;
// they never abort the batch.
func (n *Normalizer) Normalize(lines []string) ([]models.ConversationRecord, models.NormalizeReport) {
	n.logger.Info("Normalizing records", "lines", len(lines), "aliases", n.aliases)
	n.suppressed = 0

	report := models.NormalizeReport{
		SourceLines: len(lines),
		Outcomes:    make([]models.LineOutcome, 0, len(lines)),
	}
	records := make([]models.ConversationRecord, 0, len(lines))

	var bar *progressbar.ProgressBar
	if n.progress {
		bar = progressbar.Default(int64(len(lines)), "Normalizing")
	}

	for i, line := range lines {
		lineNum := i + 1
		record, err := n.normalizeLine(lineNum, line, &report)
		if bar != nil {
			_ = bar.Add(1)
		}
		if err != nil {
			n.warn("Skipping line", "line", lineNum, "error", err)
			report.Skipped++
			report.Outcomes = append(report.Outcomes, models.LineOutcome{
				Line:   lineNum,
				Status: models.LineSkipped,
				Reason: err.Error(),
			})
			continue
		}
		report.Kept++
		report.Outcomes = append(report.Outcomes, models.LineOutcome{
			Line:   lineNum,
			Status: models.LineKept,
		})
		records = append(records, record)
	}

	n.logger.Info("Normalization finished",
		"source_lines", report.SourceLines,
		"kept", report.Kept,
		"skipped", report.Skipped,
		"warnings", len(report.Warnings),
		"suppressed_logs", n.suppressed)

	return records, report
}

func (n *Normalizer) normalizeLine(lineNum int, line string, report *models.NormalizeReport) (models.ConversationRecord, error) {
	data := bytes.TrimSpace([]byte(line))
	if len(data) == 0 {
		return models.ConversationRecord{}, fmt.Errorf("blank line")
	}
	if data[0] != '{' {
		return models.ConversationRecord{}, fmt.Errorf("record must be a JSON object")
	}

	var record models.ConversationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return models.ConversationRecord{}, fmt.Errorf("failed to parse record: %w", err)
	}

	dump := false
	n.sample.Do(func() { dump = true })
	if dump {
		n.logger.Debug("Record before normalization", "line", lineNum, "record", line)
	}

	if !record.HasConversations() {
		n.warn("Record has no conversations field", "line", lineNum)
		report.Warnings = append(report.Warnings, models.NormalizeWarning{
			Line: lineNum,
			Kind: models.WarnMissingConversations,
		})
		return record, nil
	}

	for j := range record.Conversations {
		turn := &record.Conversations[j]
		if !turn.HasRole() {
			continue
		}
		if turn.RawRole() == nil {
			if canonical, ok := n.aliases[turn.Role]; ok {
				turn.Role = canonical
				continue
			}
		}
		n.warn("Turn role not in alias table", "line", lineNum, "turn", j, "role", turn.RoleLabel())
		report.Warnings = append(report.Warnings, models.NormalizeWarning{
			Line: lineNum,
			Kind: models.WarnUnknownRole,
			Turn: j,
			Role: turn.RoleLabel(),
		})
	}

	if dump {
		if after, err := json.Marshal(record); err == nil {
			n.logger.Debug("Record after normalization", "line", lineNum, "record", string(after))
		}
	}

	return record, nil
}
