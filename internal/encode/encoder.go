// Package encode turns canonical conversations into fixed-length training
// sequences where only assistant content contributes to the loss.
package encode

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/lamim/sftprep/pkg/models"
)

// IgnoreIndex marks label positions excluded from the loss
const IgnoreIndex = -100

var (
	// ErrUnsupportedRole is returned for a turn whose role is neither user nor assistant
	ErrUnsupportedRole = errors.New("unsupported role")
	// ErrInvalidContent is returned for a turn whose content is not a string
	ErrInvalidContent = errors.New("turn content is not a string")
	// ErrLengthMismatch signals that input ids and labels diverged while building a sequence
	ErrLengthMismatch = errors.New("input ids and labels length mismatch")
)

// Vocabulary converts text to token ids and exposes the chat marker ids
type Vocabulary interface {
	Encode(text string) []int
	StartID() int
	EndID() int
	PadID() int
}

// Decoder is implemented by vocabularies that can turn ids back into text
type Decoder interface {
	Decode(ids []int) string
}

// Encoder builds EncodedExamples from conversations
type Encoder struct {
	vocab         Vocabulary
	maxLen        int
	systemMessage string
	concurrency   int
	progress      bool
	logger        *slog.Logger

	newline []int
	roleIDs map[string][]int
}

// New creates an encoder producing sequences of exactly maxLen tokens
func New(vocab Vocabulary, maxLen int, systemMessage string, logger *slog.Logger) *Encoder {
	nl := vocab.Encode("\n")
	return &Encoder{
		vocab:         vocab,
		maxLen:        maxLen,
		systemMessage: systemMessage,
		concurrency:   1,
		logger:        logger,
		newline:       nl,
		roleIDs: map[string][]int{
			models.RoleSystem:    vocab.Encode(models.RoleSystem),
			models.RoleUser:      vocab.Encode(models.RoleUser),
			models.RoleAssistant: vocab.Encode(models.RoleAssistant),
		},
	}
}

// WithConcurrency sets the number of EncodeBatch workers
func (e *Encoder) WithConcurrency(n int) *Encoder {
	if n < 1 {
		n = 1
	}
	e.concurrency = n
	return e
}

// WithProgress enables a progress bar for EncodeBatch
func (e *Encoder) WithProgress(enabled bool) *Encoder {
	e.progress = enabled
	return e
}

// sequence accumulates ids and labels block by block
type sequence struct {
	ids    []int
	labels []int
}

func (s *sequence) check(block string) error {
	if len(s.ids) != len(s.labels) {
		return fmt.Errorf("%w after %s block: %d ids, %d labels", ErrLengthMismatch, block, len(s.ids), len(s.labels))
	}
	return nil
}

// maskedBlock appends <START> role \n content <END> \n with only the markers
// and the trailing newline kept in the labels
func (e *Encoder) maskedBlock(s *sequence, role []int, content []int) {
	start, end := e.vocab.StartID(), e.vocab.EndID()

	s.ids = append(s.ids, start)
	s.ids = append(s.ids, role...)
	s.ids = append(s.ids, e.newline...)
	s.ids = append(s.ids, content...)
	s.ids = append(s.ids, end)
	s.ids = append(s.ids, e.newline...)

	s.labels = append(s.labels, start)
	s.labels = appendIgnore(s.labels, len(role)+len(e.newline)+len(content))
	s.labels = append(s.labels, end)
	s.labels = append(s.labels, e.newline...)
}

// trainedBlock appends an assistant block whose content, <END> and trailing
// newline are trained on
func (e *Encoder) trainedBlock(s *sequence, role []int, content []int) {
	start, end := e.vocab.StartID(), e.vocab.EndID()

	s.ids = append(s.ids, start)
	s.ids = append(s.ids, role...)
	s.ids = append(s.ids, e.newline...)
	s.ids = append(s.ids, content...)
	s.ids = append(s.ids, end)
	s.ids = append(s.ids, e.newline...)

	s.labels = append(s.labels, start)
	s.labels = appendIgnore(s.labels, len(role)+len(e.newline))
	s.labels = append(s.labels, content...)
	s.labels = append(s.labels, end)
	s.labels = append(s.labels, e.newline...)
}

// Encode converts one conversation. A leading turn that is not from the user
// is dropped. The result is padded or truncated to the fixed length.
func (e *Encoder) Encode(turns []models.Turn) (models.EncodedExample, error) {
	if len(turns) > 0 && turns[0].Role != models.RoleUser {
		turns = turns[1:]
	}

	var s sequence
	e.maskedBlock(&s, e.roleIDs[models.RoleSystem], e.vocab.Encode(e.systemMessage))
	if err := s.check(models.RoleSystem); err != nil {
		return models.EncodedExample{}, err
	}

	for i, turn := range turns {
		if turn.RawRole() != nil {
			return models.EncodedExample{}, fmt.Errorf("%w %s at turn %d", ErrUnsupportedRole, turn.RoleLabel(), i)
		}
		if turn.RawContent() != nil {
			return models.EncodedExample{}, fmt.Errorf("%w at turn %d: %s", ErrInvalidContent, i, turn.RawContent())
		}
		content := e.vocab.Encode(turn.Content)
		switch turn.Role {
		case models.RoleUser:
			e.maskedBlock(&s, e.roleIDs[models.RoleUser], content)
		case models.RoleAssistant:
			e.trainedBlock(&s, e.roleIDs[models.RoleAssistant], content)
		default:
			return models.EncodedExample{}, fmt.Errorf("%w %q at turn %d", ErrUnsupportedRole, turn.Role, i)
		}
		if err := s.check(fmt.Sprintf("turn %d", i)); err != nil {
			return models.EncodedExample{}, err
		}
	}

	return e.finish(s), nil
}

// finish pads with the pad id or drops the tail so both sequences are exactly maxLen
func (e *Encoder) finish(s sequence) models.EncodedExample {
	pad := e.vocab.PadID()
	example := models.EncodedExample{SourceLength: len(s.ids)}

	if len(s.ids) > e.maxLen {
		s.ids = s.ids[:e.maxLen]
		s.labels = s.labels[:e.maxLen]
		example.Truncated = true
	}
	for len(s.ids) < e.maxLen {
		s.ids = append(s.ids, pad)
		s.labels = append(s.labels, IgnoreIndex)
	}

	mask := make([]bool, e.maxLen)
	for i, id := range s.ids {
		mask[i] = id != pad
	}

	example.InputIDs = s.ids
	example.Labels = s.labels
	example.AttentionMask = mask
	return example
}

func appendIgnore(labels []int, n int) []int {
	for i := 0; i < n; i++ {
		labels = append(labels, IgnoreIndex)
	}
	return labels
}
