package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/entrhq/inreach/pkg/config"
	"github.com/entrhq/inreach/pkg/types"
)

func TestNewProvider_AppliesLLMConfig(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		body = string(raw)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\",\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	tests := []struct {
		name            string
		temperature     *float64
		wantTemperature bool
	}{
		{name: "provider default temperature"},
		{name: "configured temperature", temperature: ptr(0.3), wantTemperature: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.LLM.APIKey = "sk-test"
			cfg.LLM.BaseURL = srv.URL + "/"
			cfg.LLM.Model = "gpt-4o"
			cfg.LLM.Temperature = tt.temperature

			p, err := newProvider(cfg)
			require.NoError(t, err)
			assert.Equal(t, srv.URL, p.GetBaseURL())
			assert.Equal(t, "gpt-4o", p.GetModel())

			msg, err := p.Complete(context.Background(), []*types.Message{types.NewUserMessage("hi")})
			require.NoError(t, err)
			assert.Equal(t, "ok", msg.Content)

			assert.Equal(t, "gpt-4o", gjson.Get(body, "model").String())
			temp := gjson.Get(body, "temperature")
			assert.Equal(t, tt.wantTemperature, temp.Exists())
			if tt.wantTemperature {
				assert.InDelta(t, 0.3, temp.Float(), 1e-9)
			}
		})
	}
}

func TestNewProvider_RequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "sk-test"
	cfg.LLM.BaseURL = srv.URL
	cfg.LLM.Timeout = 50 * time.Millisecond

	p, err := newProvider(cfg)
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Complete(context.Background(), []*types.Message{types.NewUserMessage("hi")})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewProvider_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := config.DefaultConfig()

	_, err := newProvider(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create LLM provider")
}

func ptr[T any](v T) *T {
	return &v
}
