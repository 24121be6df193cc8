// Package tokenizer counts and trims text by model tokens.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/entrhq/inreach/pkg/types"
)

// DefaultEncoding is the gpt-4 encoding. Counts for other OpenAI-compatible
// models are estimates.
const DefaultEncoding = "cl100k_base"

// per-message framing overhead in chat requests
const tokensPerMessage = 4

// Tokenizer wraps a tiktoken encoding.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// New loads the default encoding. The encoding file may be downloaded on first
// use, so callers should tolerate an error and fall back to no budgeting.
func New() (*Tokenizer, error) {
	return NewWithEncoding(DefaultEncoding)
}

// NewWithEncoding loads the named encoding.
func NewWithEncoding(name string) (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", name, err)
	}
	return &Tokenizer{encoding: enc}, nil
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// CountMessagesTokens estimates the prompt size of a chat request.
func (t *Tokenizer) CountMessagesTokens(messages []*types.Message) int {
	total := 0
	for _, msg := range messages {
		total += tokensPerMessage + t.CountTokens(string(msg.Role)) + t.CountTokens(msg.Content)
	}
	return total
}

// Truncate returns text cut to at most maxTokens tokens. The second return
// value reports whether anything was removed. maxTokens <= 0 disables the cut.
func (t *Tokenizer) Truncate(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || text == "" {
		return text, false
	}
	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, false
	}
	return t.encoding.Decode(tokens[:maxTokens]), true
}
