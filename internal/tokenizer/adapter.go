package tokenizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

// syntheticPrefix is prepended before encoding or decoding a fragment so
// the codec cannot apply its leading-token normalization (space insertion,
// byte fusion) to the fragment itself.
const syntheticPrefix = "\n"

var (
	fixedSpecials = map[string]struct{}{
		"<s>":   {},
		"</s>":  {},
		"<pad>": {},
		"<unk>": {},
	}
	markerSpecial = regexp.MustCompile(`^<\|.*\|>$`)
	byteTokenName = regexp.MustCompile(`^<0x[0-9A-Fa-f]{2}>$`)
)

// Adapter provides byte-exact detokenization and prefix-stable exact
// encoding over a Codec. All methods are synchronous; the only hidden work
// is the one-time encoding of the synthetic prefix.
type Adapter struct {
	codec Codec

	prefixOnce    sync.Once
	prefixTokens  []int
	prefixDecoded string
	prefixErr     error
}

// NewAdapter wraps codec. The codec is treated as read-only.
func NewAdapter(codec Codec) *Adapter {
	return &Adapter{codec: codec}
}

// VocabSize returns the codec's vocabulary size.
func (a *Adapter) VocabSize() int { return a.codec.VocabSize() }

// TokenName returns the codec's canonical display name for id.
func (a *Adapter) TokenName(id int) (string, error) {
	if err := a.checkID(id); err != nil {
		return "", err
	}
	return a.codec.TokenString(id), nil
}

// TokenBytes returns the exact UTF-8 bytes token id contributes to a
// decoded stream, or an empty slice for a recognized special token.
func (a *Adapter) TokenBytes(id int) ([]byte, error) {
	if err := a.checkID(id); err != nil {
		return nil, err
	}
	if err := a.ensurePrefix(); err != nil {
		return nil, err
	}

	decoded, err := a.codec.Decode(append(append([]int(nil), a.prefixTokens...), id))
	if err != nil {
		return nil, fmt.Errorf("decode token %d: %w", id, err)
	}
	text := decoded
	if rest, ok := strings.CutPrefix(decoded, a.prefixDecoded); ok {
		text = rest
	}

	if isSpecialText(text) {
		return nil, nil
	}

	if !utf8.ValidString(text) || strings.ContainsRune(text, utf8.RuneError) {
		// Raw-byte token: the decoded text lost information, so resolve
		// it through the token's display name instead.
		name := a.codec.TokenString(id)
		if byteTokenName.MatchString(name) {
			v, err := strconv.ParseUint(name[3:5], 16, 8)
			if err != nil {
				return nil, fmt.Errorf("token %d name %q: %w", id, name, ErrInconsistentState)
			}
			return []byte{byte(v)}, nil
		}
		if name == text {
			return []byte(text), nil
		}
		return nil, fmt.Errorf("token %d decodes to %q but is named %q: %w", id, text, name, ErrInconsistentState)
	}

	return []byte(text), nil
}

// TokenizeExact encodes text with no implicit prefix, whitespace or BOS
// insertion. With allowSpecial set, literal special-token spellings in
// text become the corresponding single token when the codec supports it;
// otherwise they tokenize as ordinary text.
func (a *Adapter) TokenizeExact(text string, allowSpecial bool) ([]int, error) {
	if err := a.ensurePrefix(); err != nil {
		return nil, err
	}

	var (
		enc []int
		err error
	)
	if se, ok := a.codec.(SpecialEncoder); ok && allowSpecial {
		enc, err = se.EncodeWithSpecials(syntheticPrefix + text)
	} else {
		enc, err = a.codec.Encode(syntheticPrefix + text)
	}
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	if len(enc) < len(a.prefixTokens) {
		return nil, fmt.Errorf("got %d tokens for prefixed text: %w", len(enc), ErrPrefixMismatch)
	}
	for i, id := range a.prefixTokens {
		if enc[i] != id {
			return nil, fmt.Errorf("prefix token %d is %d, expected %d: %w", i, enc[i], id, ErrPrefixMismatch)
		}
	}
	return append([]int(nil), enc[len(a.prefixTokens):]...), nil
}

func (a *Adapter) checkID(id int) error {
	if id < 0 || id >= a.codec.VocabSize() {
		return fmt.Errorf("token %d outside [0, %d): %w", id, a.codec.VocabSize(), ErrInvalidToken)
	}
	return nil
}

func (a *Adapter) ensurePrefix() error {
	a.prefixOnce.Do(func() {
		toks, err := a.codec.Encode(syntheticPrefix)
		if err != nil {
			a.prefixErr = fmt.Errorf("encode synthetic prefix: %w", err)
			return
		}
		if len(toks) == 0 {
			a.prefixErr = fmt.Errorf("synthetic prefix encoded to no tokens: %w", ErrPrefixMismatch)
			return
		}
		decoded, err := a.codec.Decode(toks)
		if err != nil {
			a.prefixErr = fmt.Errorf("decode synthetic prefix: %w", err)
			return
		}
		a.prefixTokens = toks
		a.prefixDecoded = decoded
	})
	return a.prefixErr
}

func isSpecialText(text string) bool {
	if _, ok := fixedSpecials[text]; ok {
		return true
	}
	return markerSpecial.MatchString(text)
}
