package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/samcharles93/loom/internal/engine"
	"github.com/samcharles93/loom/internal/logger"
	"github.com/samcharles93/loom/internal/logits"
)

type state int

const (
	stateUnprimed state = iota
	stateActive
	stateDestroyed
)

// SampleOptions selects the sampling policy for one draw. The zero value
// is deterministic argmax over the full vocabulary.
type SampleOptions struct {
	Temperature float32
	TopK        int
	Seed        int64
	// Mask restricts candidates to the set bits; nil allows everything.
	Mask *logits.Bitset
}

// Session is one decode context bound to at most one KV-cache claim. It
// owns the current logits buffer and the generated-token history.
//
// A mutex serializes all operations: a Logits or Sample call issued while
// an Advance is in flight blocks until that Advance completes, so readers
// never observe a half-updated buffer. Two concurrent Advance calls are
// serialized in arrival order.
type Session struct {
	id    uuid.UUID
	model *Model
	log   logger.Logger

	mu           sync.Mutex
	st           state
	messages     []engine.Message
	promptTokens int // -1 until the first prefill
	generated    []int
	buf          *engine.LogitsBuffer
}

// NewSequence allocates a session in its pre-prefill state. No engine
// work happens until the first advance, logits or sample call, so
// discarding an unused session is free.
func (m *Model) NewSequence(messages []engine.Message) *Session {
	id := uuid.New()
	return &Session{
		id:           id,
		model:        m,
		log:          m.log.With("session", id.String()),
		messages:     append([]engine.Message(nil), messages...),
		promptTokens: -1,
	}
}

// ID returns the session's identity, which is also its KV-cache claim
// key.
func (s *Session) ID() uuid.UUID { return s.id }

// Advance appends tokens to the session and refreshes the logits buffer.
// An empty append with zero backtrack is the documented no-op used to
// ensure logits are fresh (priming an Unprimed session). Backtracking is
// rejected explicitly rather than leaving token history and logits in
// disagreement.
func (s *Session) Advance(ctx context.Context, appendTokens []int, backtrack int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st == stateDestroyed {
		return ErrSessionDestroyed
	}
	if backtrack < 0 {
		return fmt.Errorf("negative backtrack %d", backtrack)
	}
	if backtrack > 0 {
		return ErrUnsupportedBacktrack
	}

	if s.st == stateActive && !s.model.pipe.Claim().Holds(s.id) {
		return ErrConflictingSession
	}
	if err := s.ensurePrimed(ctx); err != nil {
		return err
	}
	if len(appendTokens) == 0 {
		return nil
	}

	newBuf, err := s.model.pipe.ForwardTokens(ctx, appendTokens)
	if err != nil {
		// The previous buffer and token history stay valid.
		return fmt.Errorf("forward tokens: %w", err)
	}

	s.generated = append(s.generated, appendTokens...)
	old := s.buf
	s.buf = newBuf
	if old != nil {
		old.Release()
	}
	return nil
}

// Logits primes the session if needed and returns a copy of the current
// logits vector.
func (s *Session) Logits(ctx context.Context) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logitsLocked(ctx)
}

// Sample primes if needed and draws one token id under opts. The sampled
// token is not committed; call Advance to append it.
func (s *Session) Sample(ctx context.Context, opts SampleOptions) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vals, err := s.logitsLocked(ctx)
	if err != nil {
		return 0, err
	}
	if opts.Mask != nil && opts.Mask.Len() != s.model.cfg.VocabSize {
		return 0, fmt.Errorf("mask covers %d tokens, vocabulary is %d", opts.Mask.Len(), s.model.cfg.VocabSize)
	}

	smp := logits.NewSampler(logits.SamplerConfig{
		Seed:        opts.Seed,
		Temperature: opts.Temperature,
		TopK:        opts.TopK,
	})
	return smp.Sample(vals, opts.Mask)
}

// Clone is declared for API symmetry but duplicating the KV cache is not
// implemented. It never returns a session aliasing this one's cache.
func (s *Session) Clone() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == stateDestroyed {
		return nil, ErrSessionDestroyed
	}
	return nil, ErrCloneUnsupported
}

// Destroy releases the logits buffer and the KV-cache claim if held. It
// is idempotent; every other operation fails afterwards.
func (s *Session) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st == stateDestroyed {
		return nil
	}
	if s.buf != nil {
		s.buf.Release()
		s.buf = nil
	}
	s.model.pipe.Claim().ReleaseIfHeld(s.id)
	s.st = stateDestroyed
	s.log.Debug("session destroyed", "generated", len(s.generated))
	return nil
}

// Tokens returns a snapshot of the generated-token history.
func (s *Session) Tokens() ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == stateDestroyed {
		return nil, ErrSessionDestroyed
	}
	return append([]int(nil), s.generated...), nil
}

// PromptTokenCount returns the engine-reported prefill length. It fails
// until the first advance.
func (s *Session) PromptTokenCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == stateDestroyed {
		return 0, ErrSessionDestroyed
	}
	if s.promptTokens < 0 {
		return 0, ErrNotPrimed
	}
	return s.promptTokens, nil
}

// TokensLeft recomputes the remaining context budget on every call.
func (s *Session) TokensLeft() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == stateDestroyed {
		return 0, ErrSessionDestroyed
	}
	if s.promptTokens < 0 {
		return 0, ErrNotPrimed
	}
	return s.model.cfg.MaxContextTokens - s.promptTokens - len(s.generated), nil
}

// logitsLocked primes if needed, waits for the device, and copies the
// current buffer. Callers hold s.mu.
func (s *Session) logitsLocked(ctx context.Context) ([]float32, error) {
	if s.st == stateDestroyed {
		return nil, ErrSessionDestroyed
	}
	if err := s.ensurePrimed(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoLogits, err)
	}
	if s.buf == nil {
		return nil, ErrNoLogits
	}
	if err := s.model.pipe.Synchronize(ctx); err != nil {
		return nil, fmt.Errorf("synchronize: %w", err)
	}
	return s.buf.Clone()
}

// ensurePrimed runs the one-time prefill: it takes the KV-cache claim
// (displacing the previous holder), records the prompt token count, and
// stores the first logits buffer. Callers hold s.mu.
func (s *Session) ensurePrimed(ctx context.Context) error {
	switch s.st {
	case stateDestroyed:
		return ErrSessionDestroyed
	case stateActive:
		return nil
	}

	s.model.pipe.Claim().Acquire(s.id)
	buf, filled, err := s.model.pipe.Prefill(ctx, s.messages)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPrefillFailed, err)
	}
	if buf == nil {
		return ErrPrefillFailed
	}

	s.promptTokens = filled
	s.buf = buf
	s.st = stateActive
	s.log.Debug("session primed", "prompt_tokens", filled)
	return nil
}
