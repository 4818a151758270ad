package config

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/lamim/sftprep/pkg/models"
)

// Config represents the complete application configuration
type Config struct {
	Data      DataConfig            `toml:"data"`
	Roles     models.RoleAliasTable `toml:"roles"` // Raw role label -> canonical role (user/assistant)
	Encode    EncodeConfig          `toml:"encode"`
	Tokenizer TokenizerConfig       `toml:"tokenizer"`
	Metrics   MetricsConfig         `toml:"metrics"`
}

// DataConfig holds input/output settings for the preprocessing stage
type DataConfig struct {
	InputPath     string   `toml:"input_path"`     // Primary JSONL dataset (a directory means <dir>/result.json)
	OutputDir     string   `toml:"output_dir"`     // Parent directory for run directories (default: output)
	NormalizedOut string   `toml:"normalized_out"` // Optional explicit path for the normalized JSON array
	EncodedOut    string   `toml:"encoded_out"`    // Optional explicit path for the encoded JSONL
	PresetPath    string   `toml:"preset_path"`    // Optional auxiliary dataset blended into the primary one
	EvalPath      string   `toml:"eval_path"`      // Optional normalized JSON array encoded as the evaluation split
	PresetRatio   *float64 `toml:"preset_ratio"`   // Share of len(primary) drawn from the preset pool (default 1.0)
	Seed          uint64   `toml:"seed"`           // Seed for preset sampling (0 = random)
	SkipNormalize bool     `toml:"skip_normalize"` // Input is already a normalized JSON array
	LazyEncode    bool     `toml:"lazy_encode"`    // Encode on access instead of up front
}

// EncodeConfig holds turn encoding settings
type EncodeConfig struct {
	MaxLen        int    `toml:"max_len"`        // Fixed sequence length (default 8192)
	SystemMessage string `toml:"system_message"` // System preamble text
	Concurrency   int    `toml:"concurrency"`    // Encoding workers (default 4)
}

// TokenizerConfig selects and parameterizes the vocabulary
type TokenizerConfig struct {
	Kind      string `toml:"kind"`       // "tiktoken" or "char"
	Encoding  string `toml:"encoding"`   // tiktoken encoding name (default cl100k_base)
	VocabPath string `toml:"vocab_path"` // JSON list of single-character tokens for kind=char
	StartID   int    `toml:"start_id"`   // Start-of-turn marker id (tiktoken only)
	EndID     int    `toml:"end_id"`     // End-of-turn marker id (tiktoken only)
	PadID     int    `toml:"pad_id"`     // Pad id (tiktoken only)
}

// MetricsConfig holds loss recording settings
type MetricsConfig struct {
	LossDir   string `toml:"loss_dir"`   // Directory for loss.json (default: <run dir>/metrics)
	MaxSteps  int    `toml:"max_steps"`  // Total optimizer steps of the training run
	NumEpochs int    `toml:"num_epochs"` // Number of training epochs
	LocalRank int    `toml:"local_rank"` // Only rank 0 records and logs
}

// Tokenizer kinds
const (
	TokenizerTiktoken = "tiktoken"
	TokenizerChar     = "char"
)

const (
	// MaxConcurrency is the maximum allowed encoding concurrency
	MaxConcurrency = 256
	// MaxSequenceLength is the maximum allowed max_len
	MaxSequenceLength = 1 << 20
)

// PresetRatioOrDefault returns the configured preset ratio or 1.0
func (d DataConfig) PresetRatioOrDefault() float64 {
	if d.PresetRatio == nil {
		return DefaultPresetRatio
	}
	return *d.PresetRatio
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if r := c.Data.PresetRatio; r != nil {
		if math.IsNaN(*r) || math.IsInf(*r, 0) {
			return fmt.Errorf("data.preset_ratio must be a finite number (got %v)", *r)
		}
		if *r < 0 {
			return fmt.Errorf("data.preset_ratio must not be negative (got %.2f)", *r)
		}
	}

	if len(c.Roles) == 0 {
		return fmt.Errorf("roles must map at least one raw role")
	}
	for raw, canonical := range c.Roles {
		if raw == "" {
			return fmt.Errorf("roles: raw role name cannot be empty")
		}
		if canonical != models.RoleUser && canonical != models.RoleAssistant {
			return fmt.Errorf("roles.%s must map to %q or %q (got %q)", raw, models.RoleUser, models.RoleAssistant, canonical)
		}
	}

	if c.Encode.MaxLen < 1 {
		return fmt.Errorf("encode.max_len must be at least 1")
	}
	if c.Encode.MaxLen > MaxSequenceLength {
		return fmt.Errorf("encode.max_len must not exceed %d (got %d)", MaxSequenceLength, c.Encode.MaxLen)
	}
	if c.Encode.Concurrency < 1 {
		return fmt.Errorf("encode.concurrency must be at least 1")
	}
	if c.Encode.Concurrency > MaxConcurrency {
		return fmt.Errorf("encode.concurrency must not exceed %d (got %d)", MaxConcurrency, c.Encode.Concurrency)
	}

	switch c.Tokenizer.Kind {
	case TokenizerTiktoken:
		if c.Tokenizer.Encoding == "" {
			return fmt.Errorf("tokenizer.encoding is required for kind=%s", TokenizerTiktoken)
		}
		ids := map[string]int{"start_id": c.Tokenizer.StartID, "end_id": c.Tokenizer.EndID, "pad_id": c.Tokenizer.PadID}
		for name, id := range ids {
			if id < 0 {
				return fmt.Errorf("tokenizer.%s must not be negative (got %d)", name, id)
			}
		}
		if c.Tokenizer.StartID == c.Tokenizer.EndID {
			return fmt.Errorf("tokenizer.start_id and tokenizer.end_id must differ (both %d)", c.Tokenizer.StartID)
		}
	case TokenizerChar:
		if c.Tokenizer.VocabPath == "" {
			return fmt.Errorf("tokenizer.vocab_path is required for kind=%s", TokenizerChar)
		}
	default:
		return fmt.Errorf("tokenizer.kind must be one of: %s, %s (got %q)", TokenizerTiktoken, TokenizerChar, c.Tokenizer.Kind)
	}

	if c.Metrics.MaxSteps < 0 {
		return fmt.Errorf("metrics.max_steps must not be negative")
	}
	if c.Metrics.NumEpochs < 0 {
		return fmt.Errorf("metrics.num_epochs must not be negative")
	}
	if c.Metrics.LocalRank < 0 {
		// Single-process launches report -1; treat them as the main process
		c.Metrics.LocalRank = 0
	}

	return nil
}

// ApplyEnv overrides settings from the environment set by distributed launchers
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("LOCAL_RANK"); v != "" {
		rank, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LOCAL_RANK %q: %w", v, err)
		}
		c.Metrics.LocalRank = rank
	}
	return nil
}
