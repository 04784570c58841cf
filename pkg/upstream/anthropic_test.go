package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/martinmaurice/llmgate/pkg/chat"
	"github/martinmaurice/llmgate/pkg/enum"
)

func TestAnthropicClient_Complete(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = io.WriteString(w, `{
			"id": "msg_01",
			"model": "test-model",
			"content": [{"type": "text", "text": "Hello"}, {"type": "text", "text": " there"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 3}
		}`)
	}))
	t.Cleanup(srv.Close)

	client := New(Options{Provider: enum.Anthropic, BaseURL: srv.URL, APIKey: "secret"})
	resp, err := client.Complete(context.Background(), validRequest(t,
		chat.Message{Role: chat.RoleSystem, Content: "be brief"},
		chat.Message{Role: chat.RoleUser, Content: "hi"},
		chat.Message{Role: chat.RoleAssistant, Content: "hello"},
		chat.Message{Role: chat.RoleSystem, Content: "answer in english"},
		chat.Message{Role: chat.RoleUser, Content: "how are you"},
	))
	require.NoError(t, err)

	assert.Equal(t, chat.Response{
		ID:         "msg_01",
		Model:      "test-model",
		Text:       "Hello there",
		StopReason: "end_turn",
		Usage:      chat.Usage{PromptTokens: 12, CompletionTokens: 3},
	}, resp)

	assert.Equal(t, anthropicRequest{
		Model:     "test-model",
		MaxTokens: 256,
		System:    "be brief\n\nanswer in english",
		Messages: []anthropicMessage{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
			{Role: "user", Content: "how are you"},
		},
	}, got)
}
