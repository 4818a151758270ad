package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Canonical conversation roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Source field names used by ShareGPT-style conversation records
const (
	fieldConversations = "conversations"
	fieldFrom          = "from"
	fieldValue         = "value"
)

// RoleAliasTable maps a raw role label to its canonical name (user or assistant)
type RoleAliasTable map[string]string

// DefaultRoleAliases returns the alias table used when none is configured
func DefaultRoleAliases() RoleAliasTable {
	return RoleAliasTable{
		"question": RoleUser,
		"answer":   RoleAssistant,
	}
}

// Turn represents one utterance in a conversation.
// On the wire the role is stored under "from" and the content under "value";
// any other keys of the source object are kept in Extra and written back unchanged.
// A "from" or "value" that is not a JSON string is kept raw and written back as is.
type Turn struct {
	Role    string
	Content string
	Extra   map[string]json.RawMessage

	noRole     bool
	noContent  bool
	rawRole    json.RawMessage
	rawContent json.RawMessage
}

// HasRole reports whether the source turn carried a "from" field
func (t Turn) HasRole() bool {
	return !t.noRole
}

// RawRole returns the source "from" value when it is not a JSON string
func (t Turn) RawRole() json.RawMessage {
	return t.rawRole
}

// RawContent returns the source "value" value when it is not a JSON string
func (t Turn) RawContent() json.RawMessage {
	return t.rawContent
}

// RoleLabel returns the role for diagnostics, rendering a non-string role as JSON
func (t Turn) RoleLabel() string {
	if t.rawRole != nil {
		return string(t.rawRole)
	}
	return t.Role
}

// UnmarshalJSON decodes a turn object, keeping unknown keys
func (t *Turn) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("turn must be a JSON object")
	}

	*t = Turn{}
	if raw, ok := fields[fieldFrom]; ok {
		if isJSONString(raw) {
			if err := json.Unmarshal(raw, &t.Role); err != nil {
				return fmt.Errorf("invalid turn field %q: %w", fieldFrom, err)
			}
		} else {
			t.rawRole = raw
		}
		delete(fields, fieldFrom)
	} else {
		t.noRole = true
	}
	if raw, ok := fields[fieldValue]; ok {
		if isJSONString(raw) {
			if err := json.Unmarshal(raw, &t.Content); err != nil {
				return fmt.Errorf("invalid turn field %q: %w", fieldValue, err)
			}
		} else {
			t.rawContent = raw
		}
		delete(fields, fieldValue)
	} else {
		t.noContent = true
	}
	if len(fields) > 0 {
		t.Extra = fields
	}
	return nil
}

// MarshalJSON encodes the turn with its source field names
func (t Turn) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(t.Extra)+2)
	for k, v := range t.Extra {
		fields[k] = v
	}
	switch {
	case t.rawRole != nil:
		fields[fieldFrom] = t.rawRole
	case !t.noRole:
		fields[fieldFrom] = t.Role
	}
	switch {
	case t.rawContent != nil:
		fields[fieldValue] = t.rawContent
	case !t.noContent:
		fields[fieldValue] = t.Content
	}
	return marshalNoEscape(fields)
}

func isJSONString(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '"'
}

// ConversationRecord is one parsed line of the input dataset: an ordered list of
// turns plus arbitrary passthrough metadata
type ConversationRecord struct {
	Conversations []Turn
	Fields        map[string]json.RawMessage

	hasConversations bool
}

// NewConversationRecord builds a record that carries a conversations field
func NewConversationRecord(turns []Turn, fields map[string]json.RawMessage) ConversationRecord {
	return ConversationRecord{
		Conversations:    turns,
		Fields:           fields,
		hasConversations: true,
	}
}

// HasConversations reports whether the record carries a conversations field
func (r ConversationRecord) HasConversations() bool {
	return r.hasConversations
}

// UnmarshalJSON decodes a record object. A conversations value that is not an
// array of turn objects is an error.
func (r *ConversationRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("record must be a JSON object")
	}

	*r = ConversationRecord{}
	if raw, ok := fields[fieldConversations]; ok {
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return fmt.Errorf("field %q must be an array, got null", fieldConversations)
		}
		var turns []Turn
		if err := json.Unmarshal(raw, &turns); err != nil {
			return fmt.Errorf("invalid %q field: %w", fieldConversations, err)
		}
		if turns == nil {
			turns = []Turn{}
		}
		r.Conversations = turns
		r.hasConversations = true
		delete(fields, fieldConversations)
	}
	r.Fields = fields
	return nil
}

// MarshalJSON encodes the record with its passthrough fields
func (r ConversationRecord) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		fields[k] = v
	}
	if r.hasConversations {
		turns := r.Conversations
		if turns == nil {
			turns = []Turn{}
		}
		fields[fieldConversations] = turns
	}
	return marshalNoEscape(fields)
}

// EncodedExample is one conversation turned into fixed-length training sequences.
// Labels equal IgnoreIndex wherever the token is not trainable.
type EncodedExample struct {
	InputIDs      []int  `json:"input_ids"`
	Labels        []int  `json:"labels"`
	AttentionMask []bool `json:"attention_mask"`
	// SourceLength is the number of tokens before padding or truncation
	SourceLength int  `json:"source_length"`
	Truncated    bool `json:"truncated,omitempty"`
}

// LossEvent is a single logging event emitted by the training loop.
// Trainer log histories name the optimizer step "step"; it is used when
// global_step is absent.
type LossEvent struct {
	Epoch        float64  `json:"epoch"`
	Step         int      `json:"step,omitempty"`
	GlobalStep   int      `json:"global_step"`
	Loss         *float64 `json:"loss,omitempty"`
	LearningRate float64  `json:"learning_rate"`
}

// OptimizerStep returns global_step, falling back to step
func (e LossEvent) OptimizerStep() int {
	if e.GlobalStep == 0 {
		return e.Step
	}
	return e.GlobalStep
}

// MetricRecord is the persisted form of a loss event
type MetricRecord struct {
	Epoch        int     `json:"epoch"`
	Step         int     `json:"step"`
	GlobalStep   int     `json:"global_step"`
	Loss         float64 `json:"loss"`
	LearningRate float64 `json:"lr"`
	MeanLoss     float64 `json:"mean_loss"`
}

// marshalNoEscape marshals v without HTML escaping so chat markers such as
// <|im_start|> survive verbatim
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
