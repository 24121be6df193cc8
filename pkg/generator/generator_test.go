package generator

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/inreach/pkg/llm"
	"github.com/entrhq/inreach/pkg/llm/tokenizer"
	"github.com/entrhq/inreach/pkg/logging"
	"github.com/entrhq/inreach/pkg/types"
)

// scriptedProvider returns canned replies in order and records every request
type scriptedProvider struct {
	replies []string
	err     error
	calls   [][]*types.Message
}

func (p *scriptedProvider) StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *llm.StreamChunk, error) {
	return nil, errors.New("not used")
}

func (p *scriptedProvider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	p.calls = append(p.calls, messages)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.replies) == 0 {
		return &types.Message{Role: types.RoleAssistant}, nil
	}
	reply := p.replies[0]
	p.replies = p.replies[1:]
	return &types.Message{Role: types.RoleAssistant, Content: reply}, nil
}

func (p *scriptedProvider) GetModel() string { return "test" }

func TestGenerate_ThreeStages(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		"Jane leads talent at Acme.",
		"Hi Jane, I noticed your work at Acme...",
		`Subject: "Hiring at Acme"`,
	}}
	g := New(provider)

	draft, err := g.Generate(context.Background(), "Jane Doe\nHead of Talent at Acme", "Be concise.")
	require.NoError(t, err)

	assert.Equal(t, "Hi Jane, I noticed your work at Acme...", draft.Body)
	assert.Equal(t, "Hiring at Acme", draft.Subject)
	require.Len(t, provider.calls, 3)

	// stage inputs chain into each other
	assert.Equal(t, "Jane Doe\nHead of Talent at Acme", provider.calls[0][1].Content)
	assert.Contains(t, provider.calls[1][0].Content, "Be concise.")
	assert.Contains(t, provider.calls[1][1].Content, "Jane leads talent at Acme.")
	assert.Equal(t, draft.Body, provider.calls[2][1].Content)
}

func TestGenerate_FixedSubjectSkipsSubjectStage(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"summary", "body"}}
	g := New(provider, WithFixedSubject("  Staffing Partner "))

	draft, err := g.Generate(context.Background(), "text", "")
	require.NoError(t, err)

	assert.Equal(t, "Staffing Partner", draft.Subject)
	assert.Equal(t, "body", draft.Body)
	assert.Len(t, provider.calls, 2)
}

func TestGenerate_DefaultInstructions(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"summary", "body", "subject"}}
	_, err := New(provider).Generate(context.Background(), "", "   ")
	require.NoError(t, err)
	assert.Contains(t, provider.calls[1][0].Content, DefaultInstructions)
}

func TestGenerate_Errors(t *testing.T) {
	t.Run("provider failure", func(t *testing.T) {
		provider := &scriptedProvider{err: errors.New("upstream 500")}
		_, err := New(provider).Generate(context.Background(), "text", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "summary stage")
		assert.Contains(t, err.Error(), "upstream 500")
	})

	t.Run("empty body", func(t *testing.T) {
		provider := &scriptedProvider{replies: []string{"summary", "   "}}
		_, err := New(provider).Generate(context.Background(), "text", "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrEmptyResponse))
		assert.True(t, strings.HasPrefix(err.Error(), "body stage"))
	})
}

func TestGenerate_TokenBudget(t *testing.T) {
	tok, err := tokenizer.New()
	if err != nil {
		t.Skipf("tokenizer unavailable: %v", err)
	}

	var logs bytes.Buffer
	logger := logging.NewLoggerWithWriter("generator", &logs)
	logger.SetLevel(logging.LevelDebug)

	provider := &scriptedProvider{replies: []string{"summary", "body", "subject"}}
	g := New(provider, WithTokenizer(tok, 20), WithLogger(logger))

	long := strings.Repeat("staffing lead at a growing agency ", 100)
	_, err = g.Generate(context.Background(), long, "")
	require.NoError(t, err)

	require.Len(t, provider.calls, 3)
	sent := provider.calls[0][1].Content
	assert.LessOrEqual(t, tok.CountTokens(sent), 20)
	assert.True(t, strings.HasPrefix(long, sent))

	out := logs.String()
	assert.Contains(t, out, "truncated to 20 tokens")
	for _, stage := range []string{"summary", "body", "subject"} {
		assert.Contains(t, out, stage+" stage prompt is ")
	}
}

func TestCleanSubject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Quick question", "Quick question"},
		{`"Quick question"`, "Quick question"},
		{"Subject: Quick question", "Quick question"},
		{"SUBJECT:Quick question\nextra line", "Quick question"},
		{"  'Hello'  ", "Hello"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanSubject(tt.in))
		})
	}
}
