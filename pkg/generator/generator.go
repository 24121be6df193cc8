// Package generator turns extracted profile text into an outreach draft.
//
// Generation runs in three LLM calls: the raw page text is condensed into a
// profile summary, the summary and the sender's instructions produce the body,
// and the body produces a subject line. A configured fixed subject skips the
// last call.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/inreach/pkg/llm"
	"github.com/entrhq/inreach/pkg/llm/tokenizer"
	"github.com/entrhq/inreach/pkg/logging"
	"github.com/entrhq/inreach/pkg/types"
)

// ErrEmptyResponse is returned when the model replies with no usable text.
var ErrEmptyResponse = errors.New("empty model response")

// Generator produces drafts with an LLM provider.
type Generator struct {
	provider       llm.Provider
	tokenizer      *tokenizer.Tokenizer
	maxInputTokens int
	fixedSubject   string
	logger         *logging.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithTokenizer enables input truncation to maxTokens tokens.
func WithTokenizer(tok *tokenizer.Tokenizer, maxTokens int) Option {
	return func(g *Generator) {
		g.tokenizer = tok
		g.maxInputTokens = maxTokens
	}
}

// WithFixedSubject uses subject for every draft instead of generating one.
func WithFixedSubject(subject string) Option {
	return func(g *Generator) {
		g.fixedSubject = strings.TrimSpace(subject)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// New creates a Generator backed by provider.
func New(provider llm.Provider, opts ...Option) *Generator {
	g := &Generator{
		provider: provider,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate writes a draft for the profile text. Empty text is allowed; the
// model then works from the instructions alone.
func (g *Generator) Generate(ctx context.Context, rawText, instructions string) (types.Draft, error) {
	if strings.TrimSpace(instructions) == "" {
		instructions = DefaultInstructions
	}

	text := g.budget(rawText)

	summary, err := g.ask(ctx, "summary", summaryPrompt, text)
	if err != nil {
		return types.Draft{}, err
	}

	body, err := g.ask(ctx, "body", fmt.Sprintf(bodyPrompt, instructions), "Profile summary:\n"+summary)
	if err != nil {
		return types.Draft{}, err
	}

	draft := types.Draft{Body: body, Subject: g.fixedSubject}
	if draft.Subject != "" {
		return draft, nil
	}

	subject, err := g.ask(ctx, "subject", subjectPrompt, body)
	if err != nil {
		return types.Draft{}, err
	}
	draft.Subject = cleanSubject(subject)
	return draft, nil
}

func (g *Generator) budget(text string) string {
	if g.tokenizer == nil || g.maxInputTokens <= 0 {
		return text
	}
	cut, truncated := g.tokenizer.Truncate(text, g.maxInputTokens)
	if truncated {
		g.logger.Debugf("profile text truncated to %d tokens", g.maxInputTokens)
	}
	return cut
}

func (g *Generator) ask(ctx context.Context, stage, system, user string) (string, error) {
	messages := []*types.Message{
		types.NewSystemMessage(system),
		types.NewUserMessage(user),
	}
	if g.tokenizer != nil {
		g.logger.Debugf("%s stage prompt is %d tokens", stage, g.tokenizer.CountMessagesTokens(messages))
	}

	reply, err := g.provider.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%s stage: %w", stage, err)
	}

	content := strings.TrimSpace(reply.Content)
	if content == "" {
		return "", fmt.Errorf("%s stage: %w", stage, ErrEmptyResponse)
	}
	g.logger.Debugf("%s stage produced %d characters", stage, len(content))
	return content, nil
}

// cleanSubject strips a "Subject:" label and surrounding quotes models like to add
func cleanSubject(s string) string {
	s = strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
	if len(s) >= 8 && strings.EqualFold(s[:8], "subject:") {
		s = strings.TrimSpace(s[8:])
	}
	return strings.Trim(s, `"'`)
}
