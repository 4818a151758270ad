package models

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestTurnPreservesUnknownKeys(t *testing.T) {
	in := `{"from":"question","value":"a < b & c","weight":0.5,"tags":["x"]}`

	var turn Turn
	if err := json.Unmarshal([]byte(in), &turn); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if turn.Role != "question" || turn.Content != "a < b & c" || !turn.HasRole() {
		t.Errorf("Unexpected turn: %+v", turn)
	}
	if len(turn.Extra) != 2 {
		t.Errorf("Expected 2 extra keys, got %v", turn.Extra)
	}

	turn.Role = RoleUser
	out, err := json.Marshal(turn)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"from":"user","tags":["x"],"value":"a < b & c","weight":0.5}`
	if string(out) != want {
		t.Errorf("Marshal() = %s, want %s", out, want)
	}
}

func TestTurnErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not an object", `"hello"`},
		{"array", `[{"from":"user"}]`},
		{"null", `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var turn Turn
			if err := json.Unmarshal([]byte(tt.in), &turn); err == nil {
				t.Errorf("Expected error for %s", tt.in)
			}
		})
	}
}

func TestTurnKeepsNonStringFields(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantRole    string
		wantContent string
		wantLabel   string
	}{
		{"numeric role", `{"from":5,"value":"x"}`, "5", "", "5"},
		{"null role", `{"from":null,"value":"x"}`, "null", "", "null"},
		{"numeric content", `{"from":"question","value":42}`, "", "42", "question"},
		{"object content", `{"from":"user","value":{"a":1}}`, "", `{"a":1}`, "user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var turn Turn
			if err := json.Unmarshal([]byte(tt.in), &turn); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if string(turn.RawRole()) != tt.wantRole {
				t.Errorf("RawRole() = %s, want %s", turn.RawRole(), tt.wantRole)
			}
			if string(turn.RawContent()) != tt.wantContent {
				t.Errorf("RawContent() = %s, want %s", turn.RawContent(), tt.wantContent)
			}
			if turn.RoleLabel() != tt.wantLabel {
				t.Errorf("RoleLabel() = %q, want %q", turn.RoleLabel(), tt.wantLabel)
			}
			if !turn.HasRole() {
				t.Error("HasRole() should be true when from is present")
			}

			out, err := json.Marshal(turn)
			if err != nil {
				t.Fatal(err)
			}
			var before, after map[string]any
			if err := json.Unmarshal([]byte(tt.in), &before); err != nil {
				t.Fatal(err)
			}
			if err := json.Unmarshal(out, &after); err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(before, after) {
				t.Errorf("Marshal() = %s, want %s", out, tt.in)
			}
		})
	}
}

func TestTurnWithoutFields(t *testing.T) {
	var turn Turn
	if err := json.Unmarshal([]byte(`{"note":"n"}`), &turn); err != nil {
		t.Fatal(err)
	}
	if turn.HasRole() {
		t.Error("HasRole() should be false without a from field")
	}
	out, err := json.Marshal(turn)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"note":"n"}` {
		t.Errorf("Marshal() = %s", out)
	}
}

func TestConversationRecordRoundTrip(t *testing.T) {
	in := `{"conversations":[{"from":"question","value":"hi"}],"id":"7","meta":{"n":1.0}}`

	var rec ConversationRecord
	if err := json.Unmarshal([]byte(in), &rec); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !rec.HasConversations() || len(rec.Conversations) != 1 || len(rec.Fields) != 2 {
		t.Fatalf("Unexpected record: %+v", rec)
	}

	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != in {
		t.Errorf("Marshal() = %s, want %s", out, in)
	}
}

func TestConversationRecordEmptyConversations(t *testing.T) {
	var rec ConversationRecord
	if err := json.Unmarshal([]byte(`{"conversations":[]}`), &rec); err != nil {
		t.Fatal(err)
	}
	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"conversations":[]}` {
		t.Errorf("Marshal() = %s", out)
	}
}

func TestConversationRecordErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"null conversations", `{"conversations":null}`, "got null"},
		{"string conversations", `{"conversations":"x"}`, "invalid"},
		{"null turn", `{"conversations":[null]}`, "turn must be a JSON object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec ConversationRecord
			err := json.Unmarshal([]byte(tt.in), &rec)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Unmarshal(%s) error = %v, want substring %q", tt.in, err, tt.want)
			}
		})
	}
}

func TestNewConversationRecord(t *testing.T) {
	rec := NewConversationRecord(nil, nil)
	if !rec.HasConversations() {
		t.Error("NewConversationRecord must carry a conversations field")
	}
	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"conversations":[]}` {
		t.Errorf("Marshal() = %s", out)
	}
}
