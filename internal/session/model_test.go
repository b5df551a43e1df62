package session

import (
	"strings"
	"testing"

	"github.com/samcharles93/loom/internal/tokenizer"
)

func TestNewModelValidation(t *testing.T) {
	p := &fakePipeline{vocab: 5}

	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"zero-vocab", Config{MaxContextTokens: 10, EOSTokenID: 0}, "vocab"},
		{"vocab-codec-mismatch", Config{VocabSize: 9, MaxContextTokens: 10, EOSTokenID: 0}, "codec"},
		{"zero-context", Config{VocabSize: 5, EOSTokenID: 0}, "context"},
		{"eos-out-of-range", Config{VocabSize: 5, MaxContextTokens: 10, EOSTokenID: 5}, "eos"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewModel(tc.cfg, p, fakeCodec{vocab: 5}, nil)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("got %v, want error mentioning %q", err, tc.want)
			}
		})
	}
}

func TestModelAccessorsAndDelegation(t *testing.T) {
	p := &fakePipeline{vocab: 260, prefillLen: 1}
	m, err := NewModel(Config{
		VocabSize:        260,
		MaxContextTokens: 64,
		EOSTokenID:       tokenizer.NewByteCodec().EOSTokenID(),
	}, p, tokenizer.NewByteCodec(), nil)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}

	if m.VocabSize() != 260 || m.MaxContextTokens() != 64 {
		t.Fatalf("accessors: vocab=%d ctx=%d", m.VocabSize(), m.MaxContextTokens())
	}

	b, err := m.TokenBytes('x')
	if err != nil || string(b) != "x" {
		t.Fatalf("TokenBytes = %q, %v", b, err)
	}
	name, err := m.TokenName(m.EOSTokenID())
	if err != nil || name != "</s>" {
		t.Fatalf("TokenName = %q, %v", name, err)
	}
	ids, err := m.TokenizeExact("ab", false)
	if err != nil || len(ids) != 2 {
		t.Fatalf("TokenizeExact = %v, %v", ids, err)
	}

	blob, err := m.TokenMetadata()
	if err != nil {
		t.Fatalf("TokenMetadata: %v", err)
	}
	if len(blob) == 0 {
		t.Fatal("empty metadata blob")
	}
}
