package config

import (
	"strings"
	"testing"
)

func TestValidateSystemMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string // substring of expected error, empty for valid
	}{
		{name: "default", input: DefaultSystemMessage},
		{name: "multiline", input: "You are helpful.\n\tAnswer briefly."},
		{name: "too_long", input: strings.Repeat("a", MaxSystemMessageLength+1), want: "exceeds maximum length"},
		{name: "null_byte", input: "Be\x00nice", want: "invalid control characters"},
		{name: "bell_char", input: "Be\x07nice", want: "invalid control characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSystemMessage(tt.input)
			if tt.want == "" {
				if err != nil {
					t.Errorf("validateSystemMessage() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("validateSystemMessage() error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestValidateRoleName(t *testing.T) {
	valid := []string{"question", "answer", "human", "gpt", "用户"}
	for _, role := range valid {
		if err := validateRoleName(role); err != nil {
			t.Errorf("validateRoleName(%q) unexpected error: %v", role, err)
		}
	}

	invalid := []string{strings.Repeat("r", MaxRoleNameLength+1), "user\n", "as\x00sistant"}
	for _, role := range invalid {
		if err := validateRoleName(role); err == nil {
			t.Errorf("validateRoleName(%q) expected error, got nil", role)
		}
	}
}

func TestValidateInputsRejectsNULPath(t *testing.T) {
	cfg := validConfig()
	cfg.Data.InputPath = "data/\x00result.json"

	err := cfg.ValidateInputs()
	if err == nil || !strings.Contains(err.Error(), "data.input_path") {
		t.Errorf("ValidateInputs() error = %v, want data.input_path error", err)
	}
}
