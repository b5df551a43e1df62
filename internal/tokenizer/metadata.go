package tokenizer

import "fmt"

// flagSpecial marks a special token in the bulk metadata encoding.
const flagSpecial = 0x40

// EncodeMetadata serializes per-token metadata for the whole vocabulary:
// for each id in order, one flags byte, one byte giving the UTF-8 length
// of the token's text, then that many raw bytes. Tokens longer than 255
// bytes are a hard error.
func EncodeMetadata(a *Adapter) ([]byte, error) {
	n := a.VocabSize()
	out := make([]byte, 0, n*4)
	for id := 0; id < n; id++ {
		text, err := a.TokenBytes(id)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", id, err)
		}
		if len(text) > 255 {
			return nil, fmt.Errorf("token %d is %d bytes: %w", id, len(text), ErrTokenTooLong)
		}
		var flags byte
		if len(text) == 0 {
			flags |= flagSpecial
		}
		out = append(out, flags, byte(len(text)))
		out = append(out, text...)
	}
	return out, nil
}
