package dataset

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lamim/sftprep/pkg/models"
)

// LoadRecords reads a normalized dataset written as a single JSON array
func LoadRecords(path string) ([]models.ConversationRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var records []models.ConversationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}
	return records, nil
}

// Conversations extracts the turn lists of records that carry one.
// The second return value counts records without a conversations field.
func Conversations(records []models.ConversationRecord) ([][]models.Turn, int) {
	out := make([][]models.Turn, 0, len(records))
	missing := 0
	for _, r := range records {
		if !r.HasConversations() {
			missing++
			continue
		}
		out = append(out, r.Conversations)
	}
	return out, missing
}
