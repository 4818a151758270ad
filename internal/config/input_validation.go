package config

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// MaxSystemMessageLength is the maximum allowed length for the system message
	MaxSystemMessageLength = 50 * 1024 // 50KB

	// MaxRoleNameLength is the maximum allowed length for a raw role label
	MaxRoleNameLength = 100

	// MaxPathLength is the maximum allowed length for configured paths
	MaxPathLength = 4096
)

// ValidateInputs performs additional validation on user-controllable fields.
func (c *Config) ValidateInputs() error {
	if err := validateSystemMessage(c.Encode.SystemMessage); err != nil {
		return fmt.Errorf("invalid encode.system_message: %w", err)
	}

	for raw := range c.Roles {
		if err := validateRoleName(raw); err != nil {
			return err
		}
	}

	paths := []struct {
		name  string
		value string
	}{
		{"data.input_path", c.Data.InputPath},
		{"data.output_dir", c.Data.OutputDir},
		{"data.normalized_out", c.Data.NormalizedOut},
		{"data.encoded_out", c.Data.EncodedOut},
		{"data.preset_path", c.Data.PresetPath},
		{"data.eval_path", c.Data.EvalPath},
		{"tokenizer.vocab_path", c.Tokenizer.VocabPath},
		{"metrics.loss_dir", c.Metrics.LossDir},
	}
	for _, p := range paths {
		if err := validatePath(p.value); err != nil {
			return fmt.Errorf("invalid %s: %w", p.name, err)
		}
	}

	return nil
}

// validateSystemMessage checks the system message for size and control characters
func validateSystemMessage(msg string) error {
	if len(msg) > MaxSystemMessageLength {
		return fmt.Errorf("exceeds maximum length of %d bytes (got %d)",
			MaxSystemMessageLength, len(msg))
	}

	// Check for control characters (except newlines and tabs)
	if containsControlChars(msg) {
		return fmt.Errorf("contains invalid control characters")
	}

	return nil
}

// validateRoleName checks a raw role label from the alias table
func validateRoleName(role string) error {
	if len(role) > MaxRoleNameLength {
		return fmt.Errorf("role '%s' exceeds maximum length of %d (got %d)",
			role, MaxRoleNameLength, len(role))
	}

	if containsControlChars(role) || strings.ContainsAny(role, "\n\t\r") {
		return fmt.Errorf("role %q contains invalid control characters", role)
	}

	return nil
}

// validatePath rejects paths that no filesystem will accept
func validatePath(path string) error {
	if len(path) > MaxPathLength {
		return fmt.Errorf("exceeds maximum length of %d (got %d)", MaxPathLength, len(path))
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("contains NUL byte")
	}
	return nil
}

// containsControlChars checks if a string contains control characters
// (excluding newlines, tabs, and carriage returns which are acceptable)
func containsControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}
