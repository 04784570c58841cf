package upstream

import (
	"context"
	"fmt"

	"github/martinmaurice/llmgate/pkg/chat"
)

const (
	defaultOpenAIBaseURL  = "https://api.openai.com"
	openAICompletionsPath = "/v1/chat/completions"
)

// OpenAIClient speaks the Chat Completions API.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	httpClient httpDoer
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *OpenAIClient) Complete(ctx context.Context, req chat.ValidatedRequest) (chat.Response, error) {
	msgs := req.Messages()
	payload := openAIRequest{
		Model:     req.Model(),
		Messages:  make([]openAIMessage, 0, len(msgs)),
		MaxTokens: req.MaxTokens(),
	}
	for _, m := range msgs {
		payload.Messages = append(payload.Messages, openAIMessage{Role: string(m.Role), Content: m.Content})
	}

	var parsed openAIResponse
	err := postJSON(ctx, c.httpClient, c.baseURL+openAICompletionsPath, map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}, payload, &parsed)
	if err != nil {
		return chat.Response{}, err
	}
	if len(parsed.Choices) == 0 {
		return chat.Response{}, fmt.Errorf("%w: response has no choices", ErrInvalidResponse)
	}

	return chat.Response{
		ID:         parsed.ID,
		Model:      parsed.Model,
		Text:       parsed.Choices[0].Message.Content,
		StopReason: parsed.Choices[0].FinishReason,
		Usage: chat.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
		},
	}, nil
}
