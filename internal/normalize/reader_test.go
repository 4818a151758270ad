package normalize

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestReadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	content := "{\"a\":1}\n\n{\"b\":2}\r\n{\"c\":3}"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	lines, err := ReadLines(path)
	if err != nil {
		t.Fatalf("ReadLines() error = %v", err)
	}
	want := []string{`{"a":1}`, ``, `{"b":2}`, `{"c":3}`}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("ReadLines() = %q, want %q", lines, want)
	}
}

func TestReadLinesMissingFile(t *testing.T) {
	_, err := ReadLines(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil || !strings.Contains(err.Error(), "failed to open") {
		t.Errorf("Expected open error, got %v", err)
	}
}
