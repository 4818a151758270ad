package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
)

// CharVocab is a character-level vocabulary. Ids 0..n-1 are the characters in
// file order; start, end and pad follow at n, n+1 and n+2.
type CharVocab struct {
	charToID map[rune]int
	idToChar []rune
}

// LoadCharVocab reads a JSON array of single-character strings
func LoadCharVocab(path string) (*CharVocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocab file: %w", err)
	}
	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse vocab file: %w", err)
	}
	return NewCharVocab(tokens)
}

// NewCharVocab builds a vocabulary from single-rune tokens
func NewCharVocab(tokens []string) (*CharVocab, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("character vocab is empty")
	}
	v := &CharVocab{
		charToID: make(map[rune]int, len(tokens)),
		idToChar: make([]rune, 0, len(tokens)),
	}
	for _, s := range tokens {
		r := []rune(s)
		if len(r) != 1 {
			return nil, fmt.Errorf("invalid vocab token %q: expected one rune", s)
		}
		if _, dup := v.charToID[r[0]]; dup {
			return nil, fmt.Errorf("duplicate vocab token %q", s)
		}
		v.charToID[r[0]] = len(v.idToChar)
		v.idToChar = append(v.idToChar, r[0])
	}
	return v, nil
}

// Size returns the number of ids including the three markers
func (v *CharVocab) Size() int {
	return len(v.idToChar) + 3
}

// Encode maps each known rune to its id; unknown runes are dropped
func (v *CharVocab) Encode(text string) []int {
	out := make([]int, 0, len(text))
	for _, r := range text {
		if id, ok := v.charToID[r]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Decode maps ids back to runes, skipping marker and out-of-range ids
func (v *CharVocab) Decode(ids []int) string {
	out := make([]rune, 0, len(ids))
	for _, id := range ids {
		if id >= 0 && id < len(v.idToChar) {
			out = append(out, v.idToChar[id])
		}
	}
	return string(out)
}

func (v *CharVocab) StartID() int { return len(v.idToChar) }
func (v *CharVocab) EndID() int   { return len(v.idToChar) + 1 }
func (v *CharVocab) PadID() int   { return len(v.idToChar) + 2 }
