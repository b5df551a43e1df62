package tokenizer

import (
	"fmt"
	"strings"
)

// byteVocab is the number of raw byte tokens in a ByteCodec.
const byteVocab = 256

// byteSpecials are appended to the byte vocabulary, in id order.
var byteSpecials = []string{"<s>", "</s>", "<pad>", "<unk>"}

// ByteCodec is a trivial byte-level Codec: ids 0-255 are raw bytes named
// "<0xHH>", followed by the standard special tokens. It exists so the CLI,
// the HTTP server and the tests can run the full stack without an external
// tokenizer model.
type ByteCodec struct{}

// NewByteCodec returns the byte-level codec.
func NewByteCodec() *ByteCodec { return &ByteCodec{} }

func (ByteCodec) VocabSize() int { return byteVocab + len(byteSpecials) }

// BOS/EOS ids for the byte codec.
func (ByteCodec) BOSTokenID() int { return byteVocab }
func (ByteCodec) EOSTokenID() int { return byteVocab + 1 }

func (ByteCodec) Encode(text string) ([]int, error) {
	ids := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		ids[i] = int(text[i])
	}
	return ids, nil
}

// EncodeWithSpecials recognizes literal special-token spellings and emits
// the single special token for each.
func (c ByteCodec) EncodeWithSpecials(text string) ([]int, error) {
	var ids []int
	for i := 0; i < len(text); {
		matched := false
		for si, spelling := range byteSpecials {
			if strings.HasPrefix(text[i:], spelling) {
				ids = append(ids, byteVocab+si)
				i += len(spelling)
				matched = true
				break
			}
		}
		if !matched {
			ids = append(ids, int(text[i]))
			i++
		}
	}
	return ids, nil
}

func (c ByteCodec) Decode(ids []int) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		switch {
		case id >= 0 && id < byteVocab:
			sb.WriteByte(byte(id))
		case id >= byteVocab && id < c.VocabSize():
			sb.WriteString(byteSpecials[id-byteVocab])
		default:
			return "", fmt.Errorf("decode: token id out of range: %d", id)
		}
	}
	return sb.String(), nil
}

func (c ByteCodec) TokenString(id int) string {
	switch {
	case id >= 0 && id < byteVocab:
		return fmt.Sprintf("<0x%02X>", id)
	case id >= byteVocab && id < c.VocabSize():
		return byteSpecials[id-byteVocab]
	default:
		return ""
	}
}
