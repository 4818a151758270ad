package tokenizer

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Tiktoken wraps a BPE encoding. Chat markers are never produced by Encode;
// they are inserted by id.
type Tiktoken struct {
	name    string
	bpe     *tiktoken.Tiktoken
	startID int
	endID   int
	padID   int
}

// NewTiktoken loads the named encoding (e.g. cl100k_base)
func NewTiktoken(encoding string, startID, endID, padID int) (*Tiktoken, error) {
	bpe, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encoding, err)
	}
	return &Tiktoken{
		name:    encoding,
		bpe:     bpe,
		startID: startID,
		endID:   endID,
		padID:   padID,
	}, nil
}

// Name returns the encoding name
func (t *Tiktoken) Name() string {
	return t.name
}

// Encode tokenizes text without interpreting special tokens
func (t *Tiktoken) Encode(text string) []int {
	return t.bpe.EncodeOrdinary(text)
}

// Decode renders ids back to text. Marker ids are rendered as ChatML tags
// and padding is dropped.
func (t *Tiktoken) Decode(ids []int) string {
	var out []byte
	run := make([]int, 0, len(ids))
	flush := func() {
		if len(run) > 0 {
			out = append(out, t.bpe.Decode(run)...)
			run = run[:0]
		}
	}
	for _, id := range ids {
		switch id {
		case t.startID:
			flush()
			out = append(out, "<|im_start|>"...)
		case t.endID:
			flush()
			out = append(out, "<|im_end|>"...)
		case t.padID:
			flush()
		default:
			run = append(run, id)
		}
	}
	flush()
	return string(out)
}

func (t *Tiktoken) StartID() int { return t.startID }
func (t *Tiktoken) EndID() int   { return t.endID }
func (t *Tiktoken) PadID() int   { return t.padID }
