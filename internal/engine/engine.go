// Package engine defines the boundary to the execution pipeline: the
// component that owns the KV cache, runs prefill and per-token forward
// passes, and hands out logits buffers. The session layer consumes this
// interface and never reaches into pipeline internals.
package engine

import "context"

// Message is a single prompt message handed to Prefill.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Pipeline is implemented by an execution backend. Prefill and
// ForwardTokens are the only suspending operations; both return a fresh
// logits buffer the caller takes ownership of.
type Pipeline interface {
	// Prefill resets the KV cache, runs a forward pass over the prompt
	// messages and returns the resulting logits buffer together with the
	// filled KV-cache length.
	Prefill(ctx context.Context, messages []Message) (*LogitsBuffer, int, error)

	// ForwardTokens pushes the given tokens through the KV cache and
	// returns the logits for the next position.
	ForwardTokens(ctx context.Context, tokens []int) (*LogitsBuffer, error)

	// Synchronize blocks until pending device work has completed and any
	// previously returned logits buffer is host-readable.
	Synchronize(ctx context.Context) error

	// Claim returns the single-slot KV-cache ownership token for this
	// pipeline.
	Claim() *CacheClaim
}
