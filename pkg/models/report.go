package models

import "time"

// LineStatus is the outcome of normalizing one input line
type LineStatus string

const (
	LineKept    LineStatus = "kept"
	LineSkipped LineStatus = "skipped"
)

// WarningKind classifies a non-fatal normalization diagnostic
type WarningKind string

const (
	WarnMissingConversations WarningKind = "missing_conversations"
	WarnUnknownRole          WarningKind = "unknown_role"
)

// LineOutcome records what happened to a single input line (1-based)
type LineOutcome struct {
	Line   int        `json:"line"`
	Status LineStatus `json:"status"`
	Reason string     `json:"reason,omitempty"`
}

// NormalizeWarning is a diagnostic attached to a kept record
type NormalizeWarning struct {
	Line int         `json:"line"`
	Kind WarningKind `json:"kind"`
	Turn int         `json:"turn,omitempty"`
	Role string      `json:"role,omitempty"`
}

// NormalizeReport summarizes a normalization pass
type NormalizeReport struct {
	SourceLines int                `json:"source_lines"`
	Kept        int                `json:"kept"`
	Skipped     int                `json:"skipped"`
	Augmented   int                `json:"augmented"`
	Outcomes    []LineOutcome      `json:"outcomes"`
	Warnings    []NormalizeWarning `json:"warnings,omitempty"`
}

// SkippedOutcomes returns only the outcomes of skipped lines
func (r NormalizeReport) SkippedOutcomes() []LineOutcome {
	var out []LineOutcome
	for _, o := range r.Outcomes {
		if o.Status == LineSkipped {
			out = append(out, o)
		}
	}
	return out
}

// CountWarnings returns the number of warnings of the given kind
func (r NormalizeReport) CountWarnings(kind WarningKind) int {
	n := 0
	for _, w := range r.Warnings {
		if w.Kind == kind {
			n++
		}
	}
	return n
}

// Rejection records a conversation the encoder refused
type Rejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// EncodeReport summarizes an encoding pass
type EncodeReport struct {
	Total      int         `json:"total"`
	Encoded    int         `json:"encoded"`
	Rejected   int         `json:"rejected"`
	Truncated  int         `json:"truncated"`
	Rejections []Rejection `json:"rejections,omitempty"`
}

// RunPhase is the furthest stage a run reached
type RunPhase string

const (
	PhaseNormalize RunPhase = "normalize"
	PhaseEncode    RunPhase = "encode"
	PhaseComplete  RunPhase = "complete"
)

// RunReport is persisted as report.json in every run directory
type RunReport struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Phase      RunPhase  `json:"phase"`

	InputPath      string `json:"input_path,omitempty"`
	PresetPath     string `json:"preset_path,omitempty"`
	NormalizedPath string `json:"normalized_path,omitempty"`
	EncodedPath    string `json:"encoded_path,omitempty"`
	EvalPath       string `json:"eval_path,omitempty"`
	EvalEncoded    string `json:"eval_encoded_path,omitempty"`

	Normalize  *NormalizeReport `json:"normalize,omitempty"`
	Encode     *EncodeReport    `json:"encode,omitempty"`
	EvalEncode *EncodeReport    `json:"eval_encode,omitempty"`

	Duration time.Duration `json:"duration"`
}
