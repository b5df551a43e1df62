package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/samcharles93/loom/internal/engine"
	"github.com/samcharles93/loom/internal/logits"
)

// fakeCodec is just enough codec for model construction.
type fakeCodec struct{ vocab int }

func (f fakeCodec) VocabSize() int               { return f.vocab }
func (f fakeCodec) TokenString(id int) string    { return fmt.Sprintf("tok%d", id) }
func (f fakeCodec) Encode(string) ([]int, error) { return []int{0}, nil }
func (f fakeCodec) Decode([]int) (string, error) { return "", nil }

// fakePipeline is a scriptable execution pipeline. Each buffer it hands
// out carries logits derived from a monotonically increasing step
// counter, so distinct forward passes are distinguishable.
type fakePipeline struct {
	vocab      int
	prefillLen int

	prefillErr error
	forwardErr error

	// forwardHook runs inside ForwardTokens, before returning. Used to
	// gate the call from tests.
	forwardHook func()

	claim engine.CacheClaim

	mu          sync.Mutex
	step        int
	outstanding int
}

func (p *fakePipeline) Claim() *engine.CacheClaim { return &p.claim }

func (p *fakePipeline) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

func (p *fakePipeline) newBuffer() *engine.LogitsBuffer {
	p.mu.Lock()
	p.step++
	vals := make([]float32, p.vocab)
	for i := range vals {
		vals[i] = float32(p.step) + float32(i)*0.001
	}
	p.outstanding++
	p.mu.Unlock()
	return engine.NewLogitsBuffer(vals, func() {
		p.mu.Lock()
		p.outstanding--
		p.mu.Unlock()
	})
}

func (p *fakePipeline) Prefill(ctx context.Context, _ []engine.Message) (*engine.LogitsBuffer, int, error) {
	if p.prefillErr != nil {
		return nil, 0, p.prefillErr
	}
	return p.newBuffer(), p.prefillLen, nil
}

func (p *fakePipeline) ForwardTokens(ctx context.Context, tokens []int) (*engine.LogitsBuffer, error) {
	if p.forwardHook != nil {
		p.forwardHook()
	}
	if p.forwardErr != nil {
		return nil, p.forwardErr
	}
	for _, id := range tokens {
		if id < 0 || id >= p.vocab {
			return nil, fmt.Errorf("token id out of range: %d", id)
		}
	}
	return p.newBuffer(), nil
}

func (p *fakePipeline) Synchronize(ctx context.Context) error { return ctx.Err() }

func newTestModel(t *testing.T, p *fakePipeline, maxContext int) *Model {
	t.Helper()
	m, err := NewModel(Config{
		VocabSize:        p.vocab,
		MaxContextTokens: maxContext,
		EOSTokenID:       p.vocab - 1,
	}, p, fakeCodec{vocab: p.vocab}, nil)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	return m
}

func TestSessionBookkeeping(t *testing.T) {
	p := &fakePipeline{vocab: 5, prefillLen: 3}
	m := newTestModel(t, p, 100)
	s := m.NewSequence(nil)

	if _, err := s.PromptTokenCount(); !errors.Is(err, ErrNotPrimed) {
		t.Fatalf("PromptTokenCount before prime: %v", err)
	}

	// Priming no-op advance.
	if err := s.Advance(context.Background(), nil, 0); err != nil {
		t.Fatalf("prime: %v", err)
	}
	if n, err := s.PromptTokenCount(); err != nil || n != 3 {
		t.Fatalf("PromptTokenCount = %d, %v; want 3", n, err)
	}
	if left, err := s.TokensLeft(); err != nil || left != 97 {
		t.Fatalf("TokensLeft = %d, %v; want 97", left, err)
	}

	if err := s.Advance(context.Background(), []int{0, 1}, 0); err != nil {
		t.Fatalf("advance: %v", err)
	}
	toks, err := s.Tokens()
	if err != nil || len(toks) != 2 || toks[0] != 0 || toks[1] != 1 {
		t.Fatalf("Tokens = %v, %v; want [0 1]", toks, err)
	}
	if left, _ := s.TokensLeft(); left != 95 {
		t.Fatalf("TokensLeft = %d, want 95", left)
	}

	if err := s.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if p.Outstanding() != 0 {
		t.Fatalf("%d logits buffers leaked", p.Outstanding())
	}
}

func TestSessionNoOpAdvanceKeepsLogits(t *testing.T) {
	p := &fakePipeline{vocab: 4, prefillLen: 1}
	m := newTestModel(t, p, 50)
	s := m.NewSequence(nil)
	defer s.Destroy()

	if err := s.Advance(context.Background(), []int{1, 2}, 0); err != nil {
		t.Fatalf("advance: %v", err)
	}
	before, err := s.Logits(context.Background())
	if err != nil {
		t.Fatalf("logits: %v", err)
	}

	if err := s.Advance(context.Background(), nil, 0); err != nil {
		t.Fatalf("no-op advance: %v", err)
	}
	after, err := s.Logits(context.Background())
	if err != nil {
		t.Fatalf("logits: %v", err)
	}

	toks, _ := s.Tokens()
	if len(toks) != 2 || toks[0] != 1 || toks[1] != 2 {
		t.Fatalf("Tokens = %v, want [1 2]", toks)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("no-op advance changed logits at %d: %v vs %v", i, before[i], after[i])
		}
	}
}

func TestSessionDisplacement(t *testing.T) {
	p := &fakePipeline{vocab: 5, prefillLen: 2}
	m := newTestModel(t, p, 100)

	a := m.NewSequence(nil)
	b := m.NewSequence(nil)
	defer a.Destroy()
	defer b.Destroy()

	if err := a.Advance(context.Background(), nil, 0); err != nil {
		t.Fatalf("prime a: %v", err)
	}
	if err := b.Advance(context.Background(), nil, 0); err != nil {
		t.Fatalf("prime b: %v", err)
	}

	if err := a.Advance(context.Background(), []int{1}, 0); !errors.Is(err, ErrConflictingSession) {
		t.Fatalf("displaced advance: %v, want ErrConflictingSession", err)
	}
	if err := b.Advance(context.Background(), []int{1}, 0); err != nil {
		t.Fatalf("holder advance: %v", err)
	}

	// Displaced session keeps its committed state readable.
	if _, err := a.Tokens(); err != nil {
		t.Fatalf("displaced Tokens: %v", err)
	}
	if _, err := a.Logits(context.Background()); err != nil {
		t.Fatalf("displaced Logits: %v", err)
	}
}

func TestSessionDestroyIdempotentAndTerminal(t *testing.T) {
	p := &fakePipeline{vocab: 5, prefillLen: 1}
	m := newTestModel(t, p, 10)
	s := m.NewSequence(nil)

	if err := s.Advance(context.Background(), nil, 0); err != nil {
		t.Fatalf("prime: %v", err)
	}
	if err := s.Destroy(); err != nil {
		t.Fatalf("first destroy: %v", err)
	}
	if err := s.Destroy(); err != nil {
		t.Fatalf("second destroy: %v", err)
	}

	if err := s.Advance(context.Background(), []int{1}, 0); !errors.Is(err, ErrSessionDestroyed) {
		t.Fatalf("advance after destroy: %v", err)
	}
	if _, err := s.Logits(context.Background()); !errors.Is(err, ErrSessionDestroyed) {
		t.Fatalf("logits after destroy: %v", err)
	}
	if _, err := s.Tokens(); !errors.Is(err, ErrSessionDestroyed) {
		t.Fatalf("tokens after destroy: %v", err)
	}

	// A later session claims the cache without contention.
	next := m.NewSequence(nil)
	defer next.Destroy()
	if err := next.Advance(context.Background(), []int{2}, 0); err != nil {
		t.Fatalf("post-destroy claim: %v", err)
	}
}

func TestSessionBacktrackAndClone(t *testing.T) {
	p := &fakePipeline{vocab: 5, prefillLen: 1}
	m := newTestModel(t, p, 10)
	s := m.NewSequence(nil)
	defer s.Destroy()

	if err := s.Advance(context.Background(), nil, 1); !errors.Is(err, ErrUnsupportedBacktrack) {
		t.Fatalf("unprimed backtrack: %v", err)
	}
	if err := s.Advance(context.Background(), []int{1}, 0); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := s.Advance(context.Background(), nil, 1); !errors.Is(err, ErrUnsupportedBacktrack) {
		t.Fatalf("active backtrack: %v", err)
	}
	// Token history untouched by the rejected backtrack.
	toks, _ := s.Tokens()
	if len(toks) != 1 || toks[0] != 1 {
		t.Fatalf("Tokens = %v, want [1]", toks)
	}

	if _, err := s.Clone(); !errors.Is(err, ErrCloneUnsupported) {
		t.Fatalf("clone: %v", err)
	}
}

func TestSessionPrefillFailure(t *testing.T) {
	p := &fakePipeline{vocab: 5, prefillLen: 1, prefillErr: errors.New("device fault")}
	m := newTestModel(t, p, 10)
	s := m.NewSequence(nil)
	defer s.Destroy()

	if err := s.Advance(context.Background(), nil, 0); !errors.Is(err, ErrPrefillFailed) {
		t.Fatalf("advance: %v, want ErrPrefillFailed", err)
	}
	if _, err := s.Sample(context.Background(), SampleOptions{}); !errors.Is(err, ErrNoLogits) {
		t.Fatalf("sample after failed priming: %v, want ErrNoLogits", err)
	}

	// Clearing the fault lets the same session prime on retry.
	p.prefillErr = nil
	if err := s.Advance(context.Background(), nil, 0); err != nil {
		t.Fatalf("retry prime: %v", err)
	}
}

func TestSessionForwardFailureKeepsState(t *testing.T) {
	p := &fakePipeline{vocab: 5, prefillLen: 1}
	m := newTestModel(t, p, 10)
	s := m.NewSequence(nil)
	defer s.Destroy()

	if err := s.Advance(context.Background(), []int{1}, 0); err != nil {
		t.Fatalf("advance: %v", err)
	}
	before, _ := s.Logits(context.Background())

	p.forwardErr = errors.New("device fault")
	if err := s.Advance(context.Background(), []int{2}, 0); err == nil {
		t.Fatal("advance should propagate forward failure")
	}

	toks, _ := s.Tokens()
	if len(toks) != 1 || toks[0] != 1 {
		t.Fatalf("failed advance mutated tokens: %v", toks)
	}
	after, _ := s.Logits(context.Background())
	for i := range before {
		if before[i] != after[i] {
			t.Fatal("failed advance replaced logits")
		}
	}
}

func TestSessionSampleDoesNotCommit(t *testing.T) {
	p := &fakePipeline{vocab: 5, prefillLen: 1}
	m := newTestModel(t, p, 10)
	s := m.NewSequence(nil)
	defer s.Destroy()

	// Argmax of the fake logits is always the last id.
	id, err := s.Sample(context.Background(), SampleOptions{})
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if id != 4 {
		t.Fatalf("sample = %d, want 4", id)
	}

	// Repeated sampling from the same state is stable and commits
	// nothing.
	again, err := s.Sample(context.Background(), SampleOptions{})
	if err != nil || again != id {
		t.Fatalf("repeat sample = %d, %v", again, err)
	}
	toks, _ := s.Tokens()
	if len(toks) != 0 {
		t.Fatalf("sample committed tokens: %v", toks)
	}
}

func TestSessionSampleMask(t *testing.T) {
	p := &fakePipeline{vocab: 5, prefillLen: 1}
	m := newTestModel(t, p, 10)
	s := m.NewSequence(nil)
	defer s.Destroy()

	mask := logits.NewBitset(5)
	mask.Set(2)
	id, err := s.Sample(context.Background(), SampleOptions{Mask: mask})
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if id != 2 {
		t.Fatalf("masked sample = %d, want 2", id)
	}

	short := logits.NewBitset(3)
	if _, err := s.Sample(context.Background(), SampleOptions{Mask: short}); err == nil {
		t.Fatal("mask of wrong width should fail")
	}
}

func TestSessionOrderingUnderConcurrency(t *testing.T) {
	p := &fakePipeline{vocab: 5, prefillLen: 1}
	m := newTestModel(t, p, 10)
	s := m.NewSequence(nil)
	defer s.Destroy()

	if err := s.Advance(context.Background(), nil, 0); err != nil {
		t.Fatalf("prime: %v", err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	p.forwardHook = func() {
		close(entered)
		<-release
	}

	advDone := make(chan error, 1)
	go func() {
		advDone <- s.Advance(context.Background(), []int{1}, 0)
	}()
	<-entered

	logitsDone := make(chan []float32, 1)
	go func() {
		v, err := s.Logits(context.Background())
		if err != nil {
			t.Errorf("logits: %v", err)
		}
		logitsDone <- v
	}()

	select {
	case <-logitsDone:
		t.Fatal("logits returned while advance was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-advDone; err != nil {
		t.Fatalf("advance: %v", err)
	}
	got := <-logitsDone

	p.forwardHook = nil
	want, err := s.Logits(context.Background())
	if err != nil {
		t.Fatalf("logits: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatal("concurrent logits read saw a stale buffer")
		}
	}
}
