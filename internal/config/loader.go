package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/lamim/sftprep/pkg/models"
)

// Load reads and parses the configuration file and environment variables
func Load(configPath string) (*Config, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse TOML
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return finish(&cfg)
}

// Default returns a validated configuration built purely from defaults and environment
func Default() (*Config, error) {
	return finish(&Config{})
}

func finish(cfg *Config) (*Config, error) {
	applyDefaults(cfg)

	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Additional input validation
	if err := cfg.ValidateInputs(); err != nil {
		return nil, fmt.Errorf("input validation failed: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Data defaults
	if cfg.Data.OutputDir == "" {
		cfg.Data.OutputDir = DefaultOutputDir
	}

	if len(cfg.Roles) == 0 {
		cfg.Roles = models.DefaultRoleAliases()
	}

	// Encode defaults
	if cfg.Encode.MaxLen == 0 {
		cfg.Encode.MaxLen = DefaultMaxLen
	}
	if cfg.Encode.SystemMessage == "" {
		cfg.Encode.SystemMessage = DefaultSystemMessage
	}
	if cfg.Encode.Concurrency == 0 {
		cfg.Encode.Concurrency = 4
	}

	// Tokenizer defaults
	if cfg.Tokenizer.Kind == "" {
		cfg.Tokenizer.Kind = TokenizerTiktoken
	}
	if cfg.Tokenizer.Kind == TokenizerTiktoken {
		if cfg.Tokenizer.Encoding == "" {
			cfg.Tokenizer.Encoding = DefaultTiktokenEncoding
		}
		// NOTE: 0 is a real token id in most vocabularies but never a special
		// marker, so 0 is treated as unset here.
		if cfg.Tokenizer.StartID == 0 {
			cfg.Tokenizer.StartID = DefaultStartID
		}
		if cfg.Tokenizer.EndID == 0 {
			cfg.Tokenizer.EndID = DefaultEndID
		}
		if cfg.Tokenizer.PadID == 0 {
			cfg.Tokenizer.PadID = DefaultPadID
		}
	}
}
