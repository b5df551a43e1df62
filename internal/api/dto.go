package api

import (
	"io"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/loom/internal/engine"
)

// ModelInfo describes the loaded model's static properties.
type ModelInfo struct {
	VocabSize        int `json:"vocab_size"`
	MaxContextTokens int `json:"max_context_tokens"`
	EOSTokenID       int `json:"eos_token_id"`
}

// TokenInfo is the lookup result for a single token id.
type TokenInfo struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Text    string `json:"text"`
	Special bool   `json:"special"`
}

type TokenizeRequest struct {
	Text         string `json:"text"`
	AllowSpecial bool   `json:"allow_special"`
}

type TokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

type CreateSequenceRequest struct {
	Messages []engine.Message `json:"messages"`
}

// SequenceState is the canonical snapshot of a sequence returned by most
// sequence endpoints. PromptTokenCount and TokensLeft are omitted until
// the sequence has primed.
type SequenceState struct {
	ID               string `json:"id"`
	Tokens           []int  `json:"tokens"`
	PromptTokenCount *int   `json:"prompt_token_count,omitempty"`
	TokensLeft       *int   `json:"tokens_left,omitempty"`
}

type AdvanceRequest struct {
	Append    []int `json:"append"`
	Backtrack int   `json:"backtrack"`
}

type LogitsResponse struct {
	Logits []float32 `json:"logits"`
}

type SampleRequest struct {
	Temperature float32  `json:"temperature"`
	TopK        int      `json:"top_k"`
	Seed        int64    `json:"seed"`
	Mask        []uint32 `json:"mask,omitempty"`
}

type SampleResponse struct {
	Token int `json:"token"`
}

type SurpriseRequest struct {
	Mask []uint32 `json:"mask"`
}

type SurpriseResponse struct {
	// JSON has no +Inf; an infinite ratio is reported through the flag
	// with Surprise zeroed.
	Surprise float64 `json:"surprise"`
	Infinite bool    `json:"infinite"`
}

// ResponseError is the error payload envelope.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
