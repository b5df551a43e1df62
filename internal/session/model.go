// Package session turns a declarative prompt into a live decode session
// bound to a single KV-cache instance, and keeps the token-buffer and
// logits-buffer bookkeeping honest across it.
package session

import (
	"fmt"

	"github.com/samcharles93/loom/internal/engine"
	"github.com/samcharles93/loom/internal/logger"
	"github.com/samcharles93/loom/internal/tokenizer"
)

// Config holds the static properties of a loaded model.
type Config struct {
	VocabSize        int
	MaxContextTokens int
	EOSTokenID       int
}

// Model is the handle to a loaded model: static properties, the tokenizer
// adapter, and the factory for decode sessions. It is immutable after
// construction.
type Model struct {
	cfg  Config
	pipe engine.Pipeline
	tok  *tokenizer.Adapter
	log  logger.Logger
}

// NewModel validates the configuration and binds the pipeline and codec.
func NewModel(cfg Config, pipe engine.Pipeline, codec tokenizer.Codec, log logger.Logger) (*Model, error) {
	if pipe == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if codec == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if cfg.VocabSize <= 0 {
		return nil, fmt.Errorf("vocab size %d: model not loaded", cfg.VocabSize)
	}
	if cfg.VocabSize != codec.VocabSize() {
		return nil, fmt.Errorf("vocab size %d does not match codec vocab %d", cfg.VocabSize, codec.VocabSize())
	}
	if cfg.MaxContextTokens <= 0 {
		return nil, fmt.Errorf("max context %d: model not loaded", cfg.MaxContextTokens)
	}
	if cfg.EOSTokenID < 0 || cfg.EOSTokenID >= cfg.VocabSize {
		return nil, fmt.Errorf("eos token %d outside vocabulary", cfg.EOSTokenID)
	}
	if log == nil {
		log = logger.Default()
	}
	return &Model{
		cfg:  cfg,
		pipe: pipe,
		tok:  tokenizer.NewAdapter(codec),
		log:  log.With("component", "model"),
	}, nil
}

func (m *Model) VocabSize() int        { return m.cfg.VocabSize }
func (m *Model) MaxContextTokens() int { return m.cfg.MaxContextTokens }
func (m *Model) EOSTokenID() int       { return m.cfg.EOSTokenID }

// TokenBytes returns the byte-exact text of a single token.
func (m *Model) TokenBytes(id int) ([]byte, error) { return m.tok.TokenBytes(id) }

// TokenName returns the tokenizer's display name for a token.
func (m *Model) TokenName(id int) (string, error) { return m.tok.TokenName(id) }

// TokenizeExact encodes text with no implicit prefix or BOS insertion.
func (m *Model) TokenizeExact(text string, allowSpecial bool) ([]int, error) {
	return m.tok.TokenizeExact(text, allowSpecial)
}

// TokenMetadata serializes the bulk per-token metadata blob for the whole
// vocabulary.
func (m *Model) TokenMetadata() ([]byte, error) {
	return tokenizer.EncodeMetadata(m.tok)
}
