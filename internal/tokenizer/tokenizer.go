// Package tokenizer provides the vocabularies used by the turn encoder.
package tokenizer

import (
	"fmt"

	"github.com/lamim/sftprep/internal/config"
	"github.com/lamim/sftprep/internal/encode"
)

// Vocabulary is an encoder vocabulary that can also decode ids for previews
type Vocabulary interface {
	encode.Vocabulary
	encode.Decoder
}

// New builds the vocabulary selected by cfg.Kind
func New(cfg config.TokenizerConfig) (Vocabulary, error) {
	switch cfg.Kind {
	case config.TokenizerTiktoken:
		return NewTiktoken(cfg.Encoding, cfg.StartID, cfg.EndID, cfg.PadID)
	case config.TokenizerChar:
		return LoadCharVocab(cfg.VocabPath)
	default:
		return nil, fmt.Errorf("unknown tokenizer kind %q", cfg.Kind)
	}
}
