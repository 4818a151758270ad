package lossmetrics

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lamim/sftprep/pkg/models"
)

// IngestStats summarizes one IngestJSONL call
type IngestStats struct {
	Lines     int `json:"lines"`
	Recorded  int `json:"recorded"`
	Ignored   int `json:"ignored"`
	Malformed int `json:"malformed"`
}

// IngestJSONL records every loss event read from r, one JSON object per line.
// Malformed lines are logged and skipped; write failures abort.
func (r *Recorder) IngestJSONL(ctx context.Context, in io.Reader) (IngestStats, error) {
	var stats IngestStats

	scanner := bufio.NewScanner(in)
	const maxCapacity = 16 * 1024 * 1024
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxCapacity)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("ingest cancelled: %w", err)
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		stats.Lines++

		var event models.LossEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			stats.Malformed++
			r.logger.Warn("Skipping malformed loss event", "line", stats.Lines, "error", err)
			continue
		}

		recorded, err := r.Record(event)
		if err != nil {
			return stats, fmt.Errorf("failed to record loss event on line %d: %w", stats.Lines, err)
		}
		if recorded {
			stats.Recorded++
		} else {
			stats.Ignored++
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read loss events: %w", err)
	}

	return stats, nil
}
