package session

import "errors"

var (
	// ErrPrefillFailed wraps an engine prefill that produced no logits.
	ErrPrefillFailed = errors.New("prefill failed")

	// ErrConflictingSession marks an advance on a session whose KV-cache
	// claim was taken over by another session.
	ErrConflictingSession = errors.New("conflicting session holds the KV cache")

	// ErrNoLogits marks a sample or logits request with nothing computed
	// and no way to prime.
	ErrNoLogits = errors.New("no logits available")

	// ErrUnsupportedBacktrack marks a backtracking advance; rolling the
	// KV cache back is not implemented, and truncating token history
	// while leaving logits stale would be worse than failing.
	ErrUnsupportedBacktrack = errors.New("backtracking not supported")

	// ErrCloneUnsupported marks a Clone call; duplicating a KV cache is
	// not implemented, and handing back a session that aliases the
	// source's cache is not an option.
	ErrCloneUnsupported = errors.New("clone not implemented")

	// ErrSessionDestroyed marks any operation on a destroyed session.
	ErrSessionDestroyed = errors.New("session destroyed")

	// ErrNotPrimed marks a read of prefill-derived state before the
	// first advance.
	ErrNotPrimed = errors.New("session not primed")
)
