// Package tokenizer wraps an external subword tokenizer behind a
// byte-exact, prefix-stable adapter. The underlying codec is free to
// normalize whitespace and fuse bytes when decoding short sequences; the
// adapter neutralizes those artifacts so callers get the exact bytes a
// token contributes to a stream.
package tokenizer

// Codec is the minimal surface the adapter needs from the underlying
// tokenizer implementation.
type Codec interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	// TokenString returns the canonical display name for a token id.
	TokenString(id int) string
	VocabSize() int
}

// SpecialEncoder is optionally implemented by codecs that can recognize
// literal special-token spellings during encoding.
type SpecialEncoder interface {
	EncodeWithSpecials(text string) ([]int, error)
}
