package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
)

// Toy is a deterministic in-process pipeline used by the CLI and the
// tests. It is a one-layer recurrent scorer: each token folds its
// embedding into a decayed hidden state which is projected back to vocab
// logits. It is deliberately tiny; the point is a pipeline with a real
// position counter, a real claim slot and real buffer ownership, not a
// useful language model.
type Toy struct {
	vocab      int
	hidden     int
	maxContext int

	emb  []float32 // vocab x hidden
	w    []float32 // hidden x vocab
	bias []float32 // vocab

	mu    sync.Mutex
	state []float32 // hidden
	pos   int

	claim       CacheClaim
	outstanding atomic.Int32
}

// NewToy builds a toy pipeline with weights derived deterministically from
// seed.
func NewToy(vocab, hidden, maxContext int, seed int64) *Toy {
	t := &Toy{
		vocab:      vocab,
		hidden:     hidden,
		maxContext: maxContext,
		emb:        make([]float32, vocab*hidden),
		w:          make([]float32, hidden*vocab),
		bias:       make([]float32, vocab),
		state:      make([]float32, hidden),
	}
	rng := rand.New(rand.NewSource(seed))
	for i := range t.emb {
		t.emb[i] = rng.Float32()*2 - 1
	}
	for i := range t.w {
		t.w[i] = rng.Float32()*2 - 1
	}
	return t
}

func (t *Toy) Claim() *CacheClaim { return &t.claim }

// MaxContext returns the toy's context window.
func (t *Toy) MaxContext() int { return t.maxContext }

// Outstanding reports how many logits buffers have been handed out and not
// yet released. Zero after every session is destroyed.
func (t *Toy) Outstanding() int { return int(t.outstanding.Load()) }

func (t *Toy) Prefill(ctx context.Context, messages []Message) (*LogitsBuffer, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pos = 0
	for i := range t.state {
		t.state[i] = 0
	}

	toks := renderPromptTokens(messages, t.vocab)
	if len(toks) == 0 {
		toks = []int{0}
	}

	var logits []float32
	for _, id := range toks {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		var err error
		logits, err = t.step(id)
		if err != nil {
			return nil, 0, fmt.Errorf("prefill token %d: %w", id, err)
		}
	}
	return t.newBuffer(logits), t.pos, nil
}

func (t *Toy) ForwardTokens(ctx context.Context, tokens []int) (*LogitsBuffer, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("forward: empty token batch")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var logits []float32
	for _, id := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		logits, err = t.step(id)
		if err != nil {
			return nil, err
		}
	}
	return t.newBuffer(logits), nil
}

// Synchronize is a no-op: toy buffers are host memory.
func (t *Toy) Synchronize(ctx context.Context) error { return ctx.Err() }

// step folds one token into the hidden state and scores the vocabulary.
func (t *Toy) step(tok int) ([]float32, error) {
	if tok < 0 || tok >= t.vocab {
		return nil, fmt.Errorf("token id out of range: %d", tok)
	}
	if t.pos >= t.maxContext {
		return nil, fmt.Errorf("context length exceeded: %d >= %d", t.pos, t.maxContext)
	}

	row := t.emb[tok*t.hidden : (tok+1)*t.hidden]
	for i := range t.state {
		t.state[i] = t.state[i]*0.9 + row[i]
	}

	logits := make([]float32, t.vocab)
	for j := 0; j < t.vocab; j++ {
		var sum float32
		for i := 0; i < t.hidden; i++ {
			sum += t.state[i] * t.w[i*t.vocab+j]
		}
		logits[j] = sum + t.bias[j]
	}
	t.pos++
	return logits, nil
}

func (t *Toy) newBuffer(logits []float32) *LogitsBuffer {
	t.outstanding.Add(1)
	return NewLogitsBuffer(logits, func() {
		t.outstanding.Add(-1)
	})
}

// renderPromptTokens flattens prompt messages into byte-level token ids,
// wrapping into the vocabulary when it is smaller than 256.
func renderPromptTokens(messages []Message, vocab int) []int {
	var toks []int
	for _, m := range messages {
		for _, b := range []byte(m.Role + ": " + m.Content + "\n") {
			toks = append(toks, int(b)%vocab)
		}
	}
	return toks
}
