package engine

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestCacheClaimDisplacement(t *testing.T) {
	var claim CacheClaim
	a := uuid.New()
	b := uuid.New()

	claim.Acquire(a)
	if !claim.Holds(a) {
		t.Fatal("a should hold the claim after Acquire")
	}

	claim.Acquire(b)
	if claim.Holds(a) {
		t.Fatal("a should be displaced after b acquires")
	}
	if !claim.Holds(b) {
		t.Fatal("b should hold the claim")
	}

	// Releasing a displaced identity must not disturb the holder.
	claim.ReleaseIfHeld(a)
	if !claim.Holds(b) {
		t.Fatal("b lost the claim to a stale release")
	}

	claim.ReleaseIfHeld(b)
	if claim.Holds(b) {
		t.Fatal("claim should be clear after holder releases")
	}
}

func TestLogitsBufferReleaseIdempotent(t *testing.T) {
	frees := 0
	buf := NewLogitsBuffer([]float32{1, 2, 3}, func() { frees++ })

	if buf.Len() != 3 {
		t.Fatalf("Len = %d, want 3", buf.Len())
	}
	vals, err := buf.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if len(vals) != 3 || vals[1] != 2 {
		t.Fatalf("unexpected clone %v", vals)
	}

	buf.Release()
	buf.Release()
	if frees != 1 {
		t.Fatalf("free invoked %d times, want 1", frees)
	}
	if _, err := buf.Clone(); err != ErrBufferReleased {
		t.Fatalf("Clone after release: %v, want ErrBufferReleased", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("Len after release = %d, want 0", buf.Len())
	}
}

func TestToyDeterministicPrefill(t *testing.T) {
	msgs := []Message{{Role: "user", Content: "hi"}}

	p1 := NewToy(64, 8, 128, 42)
	p2 := NewToy(64, 8, 128, 42)

	b1, n1, err := p1.Prefill(context.Background(), msgs)
	if err != nil {
		t.Fatalf("prefill: %v", err)
	}
	b2, n2, err := p2.Prefill(context.Background(), msgs)
	if err != nil {
		t.Fatalf("prefill: %v", err)
	}
	if n1 != n2 {
		t.Fatalf("prefill lengths diverge: %d vs %d", n1, n2)
	}
	if want := len("user: hi\n"); n1 != want {
		t.Fatalf("prefill length = %d, want %d", n1, want)
	}

	v1, _ := b1.Clone()
	v2, _ := b2.Clone()
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("logit %d diverges: %v vs %v", i, v1[i], v2[i])
		}
	}
	b1.Release()
	b2.Release()
	if p1.Outstanding() != 0 {
		t.Fatalf("outstanding buffers: %d, want 0", p1.Outstanding())
	}
}

func TestToyForwardTracksOutstandingBuffers(t *testing.T) {
	p := NewToy(32, 4, 16, 1)
	buf, _, err := p.Prefill(context.Background(), nil)
	if err != nil {
		t.Fatalf("prefill: %v", err)
	}

	next, err := p.ForwardTokens(context.Background(), []int{1, 2})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if p.Outstanding() != 2 {
		t.Fatalf("outstanding = %d, want 2", p.Outstanding())
	}
	buf.Release()
	next.Release()
	if p.Outstanding() != 0 {
		t.Fatalf("outstanding after release = %d, want 0", p.Outstanding())
	}

	if _, err := p.ForwardTokens(context.Background(), nil); err == nil {
		t.Fatal("empty forward batch should fail")
	}
	if _, err := p.ForwardTokens(context.Background(), []int{99}); err == nil {
		t.Fatal("out-of-range token should fail")
	}
}

func TestToyContextLimit(t *testing.T) {
	p := NewToy(16, 4, 2, 7)
	buf, _, err := p.Prefill(context.Background(), nil)
	if err != nil {
		t.Fatalf("prefill: %v", err)
	}
	defer buf.Release()

	b2, err := p.ForwardTokens(context.Background(), []int{1})
	if err != nil {
		t.Fatalf("forward within limit: %v", err)
	}
	b2.Release()

	if _, err := p.ForwardTokens(context.Background(), []int{1}); err == nil {
		t.Fatal("forward past max context should fail")
	}
}
