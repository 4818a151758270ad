package writer

import "github.com/lamim/sftprep/pkg/models"

// ExampleWriter is the interface for encoded example writers
type ExampleWriter interface {
	// WriteExample appends one encoded example
	WriteExample(example models.EncodedExample) error

	// Count returns the number of examples written so far
	Count() int

	// Close flushes and closes the writer
	Close() error
}
