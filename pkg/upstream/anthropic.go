package upstream

import (
	"context"
	"strings"

	"github/martinmaurice/llmgate/pkg/chat"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicMessagesPath   = "/v1/messages"
	anthropicVersion        = "2023-06-01"
)

// AnthropicClient speaks the Messages API.
type AnthropicClient struct {
	baseURL    string
	apiKey     string
	httpClient httpDoer
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// toAnthropicRequest lifts system messages into the top level system field,
// the Messages API only accepts user and assistant turns.
func toAnthropicRequest(req chat.ValidatedRequest) anthropicRequest {
	var (
		system   []string
		messages []anthropicMessage
	)
	for _, m := range req.Messages() {
		if m.Role == chat.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		messages = append(messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}

	return anthropicRequest{
		Model:     req.Model(),
		MaxTokens: req.MaxTokens(),
		System:    strings.Join(system, "\n\n"),
		Messages:  messages,
	}
}

func (c *AnthropicClient) Complete(ctx context.Context, req chat.ValidatedRequest) (chat.Response, error) {
	var parsed anthropicResponse
	err := postJSON(ctx, c.httpClient, c.baseURL+anthropicMessagesPath, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}, toAnthropicRequest(req), &parsed)
	if err != nil {
		return chat.Response{}, err
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return chat.Response{
		ID:         parsed.ID,
		Model:      parsed.Model,
		Text:       text.String(),
		StopReason: parsed.StopReason,
		Usage: chat.Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
		},
	}, nil
}
