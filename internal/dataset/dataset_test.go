package dataset

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/lamim/sftprep/internal/encode"
	"github.com/lamim/sftprep/internal/tokenizer"
	"github.com/lamim/sftprep/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEncoder(t testing.TB, maxLen int) *encode.Encoder {
	t.Helper()
	var chars []string
	for _, r := range "abcdefghijklmnopqrstuvwxyz ?.\n" {
		chars = append(chars, string(r))
	}
	vocab, err := tokenizer.NewCharVocab(chars)
	if err != nil {
		t.Fatal(err)
	}
	return encode.New(vocab, maxLen, "you are helpful.", testLogger())
}

type sliceSink struct {
	examples []models.EncodedExample
}

func (s *sliceSink) WriteExample(ex models.EncodedExample) error {
	s.examples = append(s.examples, ex)
	return nil
}

func TestResolveDataPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"data/train.json", "data/train.json"},
		{"data/run1", filepath.Join("data/run1", "result.json")},
		{"data/train.jsonl", filepath.Join("data/train.jsonl", "result.json")},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ResolveDataPath(tt.in); got != tt.want {
			t.Errorf("ResolveDataPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCheckPrimary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result.json")

	if err := CheckPrimary(path); !errors.Is(err, ErrPrimaryInputMissing) {
		t.Errorf("Expected ErrPrimaryInputMissing, got %v", err)
	}
	if err := CheckPrimary(dir); !errors.Is(err, ErrPrimaryInputMissing) {
		t.Errorf("Expected ErrPrimaryInputMissing for directory, got %v", err)
	}

	if err := os.WriteFile(path, []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := CheckPrimary(path); err != nil {
		t.Errorf("CheckPrimary() error = %v", err)
	}
	if !Exists(path) || Exists("") || Exists(dir) {
		t.Error("Exists() returned unexpected result")
	}
}

func TestLoadRecordsAndConversations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train_data.json")
	content := `[
    {"conversations": [{"from": "user", "value": "hi"}, {"from": "assistant", "value": "hello"}], "id": 1},
    {"id": 2},
    {"conversations": []}
]`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	records, err := LoadRecords(path)
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}

	convs, missing := Conversations(records)
	if missing != 1 {
		t.Errorf("missing = %d, want 1", missing)
	}
	if len(convs) != 2 || len(convs[0]) != 2 || len(convs[1]) != 0 {
		t.Errorf("Unexpected conversations: %+v", convs)
	}
	if convs[0][1].Role != models.RoleAssistant || convs[0][1].Content != "hello" {
		t.Errorf("Unexpected turn: %+v", convs[0][1])
	}
}

func TestLoadRecordsErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadRecords(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Expected read error")
	}

	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`{"conversations": []}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRecords(path); err == nil {
		t.Error("Expected error for non-array dataset")
	}
}

func sampleConversations() [][]models.Turn {
	return [][]models.Turn{
		{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
		{{Role: "user", Content: "what?"}, {Role: "robot", Content: "beep"}},
		{{Role: "user", Content: "bye"}, {Role: "assistant", Content: "see you."}},
	}
}

func TestEagerAndLazyAgree(t *testing.T) {
	enc := testEncoder(t, 128)
	convs := sampleConversations()

	eager, report, err := NewEager(context.Background(), enc, convs, testLogger())
	if err != nil {
		t.Fatalf("NewEager() error = %v", err)
	}
	if eager.Len() != 2 || report.Rejected != 1 {
		t.Fatalf("eager Len() = %d, rejected = %d", eager.Len(), report.Rejected)
	}

	lazy := NewLazy(enc, convs, testLogger())
	if lazy.Len() != 3 || !lazy.Lazy() || eager.Lazy() {
		t.Fatalf("lazy Len() = %d", lazy.Len())
	}
	if lazy.Cached() != 0 {
		t.Error("Lazy dataset must not encode before access")
	}

	var eagerSink, lazySink sliceSink
	if _, err := eager.Export(context.Background(), &eagerSink); err != nil {
		t.Fatal(err)
	}
	lazyReport, err := lazy.Export(context.Background(), &lazySink)
	if err != nil {
		t.Fatal(err)
	}
	if lazyReport.Encoded != 2 || lazyReport.Rejected != 1 || lazyReport.Rejections[0].Index != 1 {
		t.Errorf("Unexpected lazy report: %+v", lazyReport)
	}
	if !reflect.DeepEqual(eagerSink.examples, lazySink.examples) {
		t.Error("Eager and lazy datasets produced different examples")
	}
}

func TestLazyGetCaches(t *testing.T) {
	lazy := NewLazy(testEncoder(t, 64), sampleConversations(), testLogger())

	first, err := lazy.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if lazy.Cached() != 1 {
		t.Errorf("Cached() = %d, want 1", lazy.Cached())
	}
	again, err := lazy.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, again) || lazy.Cached() != 1 {
		t.Error("Second Get should hit the cache")
	}

	if _, err := lazy.Get(1); !errors.Is(err, encode.ErrUnsupportedRole) {
		t.Errorf("Expected ErrUnsupportedRole, got %v", err)
	}
	if _, err := lazy.Get(3); err == nil {
		t.Error("Expected out of range error")
	}
}

func TestLazyGetConcurrent(t *testing.T) {
	lazy := NewLazy(testEncoder(t, 64), sampleConversations(), testLogger())

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = lazy.Get(i % 3)
			}
		}()
	}
	wg.Wait()

	if lazy.Cached() != 2 {
		t.Errorf("Cached() = %d, want 2", lazy.Cached())
	}
}

func TestExportCancelled(t *testing.T) {
	lazy := NewLazy(testEncoder(t, 64), sampleConversations(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := lazy.Export(ctx, &sliceSink{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
