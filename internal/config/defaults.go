package config

const (
	// DefaultOutputDir is the parent directory for run directories
	DefaultOutputDir = "output"

	// DefaultPresetRatio draws as many preset lines as there are primary lines
	DefaultPresetRatio = 1.0

	// DefaultMaxLen matches the model_max_length used for training
	DefaultMaxLen = 8192

	// DefaultSystemMessage is the system preamble encoded before every conversation
	DefaultSystemMessage = "You are a helpful assistant."

	// DefaultTiktokenEncoding is the BPE encoding used when none is configured
	DefaultTiktokenEncoding = "cl100k_base"

	// ChatML marker ids for cl100k_base
	DefaultStartID = 100264 // <|im_start|>
	DefaultEndID   = 100265 // <|im_end|>
	DefaultPadID   = 100257 // <|endoftext|>
)
