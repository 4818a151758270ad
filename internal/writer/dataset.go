package writer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/lamim/sftprep/pkg/models"
)

// WriteJSONArray writes records as one pretty-printed JSON array with 4-space
// indentation. Non-ASCII text and markup characters are written verbatim.
func WriteJSONArray(path string, records []models.ConversationRecord) error {
	if records == nil {
		records = []models.ConversationRecord{}
	}
	return writeJSONAtomic(path, records, "    ")
}

// WriteReport writes the run report as indented JSON
func WriteReport(path string, report *models.RunReport) error {
	return writeJSONAtomic(path, report, "  ")
}

// ReadReport reads a run report
func ReadReport(path string) (*models.RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var report models.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

func writeJSONAtomic(path string, v any, indent string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", tempPath, err)
	}
	return nil
}

// EncodedWriter handles thread-safe writing of encoded examples as JSONL
type EncodedWriter struct {
	file   *os.File
	buf    *bufio.Writer
	enc    *json.Encoder
	count  int
	mu     sync.Mutex
	logger *slog.Logger
}

// NewEncodedWriter creates the file at path
func NewEncodedWriter(path string, logger *slog.Logger) (*EncodedWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoded dataset file: %w", err)
	}

	logger.Info("Created encoded dataset file", "path", path)

	buf := bufio.NewWriter(file)
	return &EncodedWriter{
		file:   file,
		buf:    buf,
		enc:    json.NewEncoder(buf),
		logger: logger,
	}, nil
}

// WriteExample writes a single example as one line
func (w *EncodedWriter) WriteExample(example models.EncodedExample) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(example); err != nil {
		return fmt.Errorf("failed to write example: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of examples written
func (w *EncodedWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes and closes the file
func (w *EncodedWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("failed to flush encoded dataset: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.logger.Warn("Failed to sync encoded dataset file", "error", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close encoded dataset file: %w", err)
	}

	w.logger.Info("Closed encoded dataset file", "examples", w.count)
	return nil
}

// ReadEncoded reads a JSONL file of encoded examples
func ReadEncoded(path string) ([]models.EncodedExample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open encoded dataset: %w", err)
	}
	defer file.Close()

	var examples []models.EncodedExample
	dec := json.NewDecoder(bufio.NewReader(file))
	for dec.More() {
		var ex models.EncodedExample
		if err := dec.Decode(&ex); err != nil {
			return nil, fmt.Errorf("failed to decode example %d: %w", len(examples)+1, err)
		}
		examples = append(examples, ex)
	}
	return examples, nil
}
