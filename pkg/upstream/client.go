package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github/martinmaurice/llmgate/pkg/chat"
	"github/martinmaurice/llmgate/pkg/enum"
)

const maxErrorBodyBytes = 4 << 10

var (
	ErrTimeout         = errors.New("upstream request timed out")
	ErrNetwork         = errors.New("upstream network failure")
	ErrInvalidResponse = errors.New("invalid upstream response")
)

// HTTPError is a non 2xx answer from the provider. Body is the provider's
// response body, truncated.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream responded with status %d", e.Status)
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client interface {
	Complete(ctx context.Context, req chat.ValidatedRequest) (chat.Response, error)
}

type Options struct {
	Provider   enum.Provider
	BaseURL    string // provider default when empty
	APIKey     string
	HTTPClient *http.Client
}

// New returns the client of the configured provider. Deadlines come from the
// caller's context.
func New(opts Options) Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	switch opts.Provider {
	case enum.OpenAI:
		return &OpenAIClient{
			baseURL:    baseURLOrDefault(opts.BaseURL, defaultOpenAIBaseURL),
			apiKey:     opts.APIKey,
			httpClient: httpClient,
		}
	default:
		return &AnthropicClient{
			baseURL:    baseURLOrDefault(opts.BaseURL, defaultAnthropicBaseURL),
			apiKey:     opts.APIKey,
			httpClient: httpClient,
		}
	}
}

func baseURLOrDefault(baseURL, fallback string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = fallback
	}
	return strings.TrimRight(baseURL, "/")
}

// postJSON sends payload and decodes a 2xx answer into out. Transport
// failures are classified as ErrTimeout or ErrNetwork.
func postJSON(ctx context.Context, httpClient httpDoer, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(respBody) > maxErrorBodyBytes {
			respBody = respBody[:maxErrorBodyBytes]
		}
		return &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
