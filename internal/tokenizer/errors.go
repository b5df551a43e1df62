package tokenizer

import "errors"

var (
	// ErrInvalidToken marks a token id outside [0, vocabSize).
	ErrInvalidToken = errors.New("invalid token id")

	// ErrPrefixMismatch marks an exact tokenization whose synthetic
	// prefix did not survive encoding intact.
	ErrPrefixMismatch = errors.New("tokenizer prefix mismatch")

	// ErrTokenTooLong marks a token whose byte length does not fit the
	// one-byte length field of the bulk metadata encoding.
	ErrTokenTooLong = errors.New("token text exceeds 255 bytes")

	// ErrInconsistentState marks a replacement-character decode that can
	// be resolved neither to a raw byte nor to literal text.
	ErrInconsistentState = errors.New("inconsistent tokenizer state")
)
