package tokenizer

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/lamim/sftprep/internal/config"
)

func writeVocab(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCharVocab(t *testing.T) {
	v, err := NewCharVocab([]string{"a", "b", "\n", "é"})
	if err != nil {
		t.Fatalf("NewCharVocab() error = %v", err)
	}

	if v.StartID() != 4 || v.EndID() != 5 || v.PadID() != 6 || v.Size() != 7 {
		t.Errorf("Unexpected marker ids: %d %d %d size %d", v.StartID(), v.EndID(), v.PadID(), v.Size())
	}

	got := v.Encode("abzé\n")
	want := []int{0, 1, 3, 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Encode() = %v, want %v", got, want)
	}
	if s := v.Decode(append([]int{v.StartID()}, got...)); s != "abé\n" {
		t.Errorf("Decode() = %q", s)
	}
}

func TestNewCharVocabErrors(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		errMsg string
	}{
		{"empty", nil, "empty"},
		{"multi rune", []string{"ab"}, "expected one rune"},
		{"duplicate", []string{"a", "a"}, "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCharVocab(tt.tokens)
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing %q, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestNewSelectsCharVocab(t *testing.T) {
	path := writeVocab(t, `["h","i","\n"]`)

	v, err := New(config.TokenizerConfig{Kind: config.TokenizerChar, VocabPath: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := v.(*CharVocab); !ok {
		t.Errorf("Expected *CharVocab, got %T", v)
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(config.TokenizerConfig{Kind: "sentencepiece"}); err == nil {
		t.Error("Expected error for unknown kind")
	}
	if _, err := New(config.TokenizerConfig{Kind: config.TokenizerChar, VocabPath: writeVocab(t, `{"a":1}`)}); err == nil {
		t.Error("Expected parse error")
	}
	if _, err := LoadCharVocab(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected read error")
	}
}

func TestTiktokenRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping tiktoken test in short mode")
	}
	tk, err := NewTiktoken(config.DefaultTiktokenEncoding, config.DefaultStartID, config.DefaultEndID, config.DefaultPadID)
	if err != nil {
		// The BPE ranks are fetched on first use
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}

	text := "How do I reset my password?"
	ids := tk.Encode(text)
	if len(ids) == 0 {
		t.Fatal("Encode() returned no ids")
	}
	for _, id := range ids {
		if id == tk.StartID() || id == tk.EndID() || id == tk.PadID() {
			t.Errorf("Ordinary text produced marker id %d", id)
		}
	}

	framed := append([]int{tk.StartID()}, ids...)
	framed = append(framed, tk.EndID(), tk.PadID())
	if got := tk.Decode(framed); got != "<|im_start|>"+text+"<|im_end|>" {
		t.Errorf("Decode() = %q", got)
	}

	// Marker text in content is not interpreted
	if ids := tk.Encode("<|im_start|>"); len(ids) == 1 && ids[0] == tk.StartID() {
		t.Error("Encode() must not emit special tokens for literal marker text")
	}
}
