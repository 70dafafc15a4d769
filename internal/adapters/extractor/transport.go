package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"concierge/internal/domain"
)

const maxBody = 1 << 20

// Request is the extractor wire request.
type Request struct {
	UserText       string                     `json:"userText"`
	Context        domain.ConversationContext `json:"context"`
	CatalogContext domain.CatalogData         `json:"catalogContext"`
	Rules          string                     `json:"rules"`
	Today          string                     `json:"today"`
}

// Transport performs one attempt. A non-nil error means no response was
// received; any HTTP status, including failures, is returned as status.
type Transport interface {
	Name() string
	Send(ctx context.Context, req Request) (status int, body []byte, err error)
}

// HTTPTransport posts the request to a hosted extractor.
type HTTPTransport struct {
	url string
	key string
	hc  *http.Client
}

// NewHTTPTransport has no client-level timeout; Client bounds every attempt by context.
func NewHTTPTransport(url, key string) *HTTPTransport {
	return &HTTPTransport{url: url, key: key, hc: &http.Client{}}
}

func (t *HTTPTransport) Name() string { return "extractor" }

func (t *HTTPTransport) Send(ctx context.Context, req Request) (int, []byte, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return 0, nil, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	if t.key != "" {
		hreq.Header.Set("X-API-Key", t.key)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")
	hreq.Header.Set("User-Agent", "concierge/1.0")

	resp, err := t.hc.Do(hreq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return 0, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// OpenAITransport asks a chat model to act as the extractor, in JSON mode.
type OpenAITransport struct {
	client *openai.Client
	model  string
}

func NewOpenAITransport(key, baseURL, model string) *OpenAITransport {
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAITransport{client: openai.NewClientWithConfig(cfg), model: model}
}

func (t *OpenAITransport) Name() string { return "openai" }

func (t *OpenAITransport) Send(ctx context.Context, req Request) (int, []byte, error) {
	catalogJSON, err := json.Marshal(req.CatalogContext)
	if err != nil {
		return 0, nil, err
	}
	convJSON, err := json.Marshal(req.Context)
	if err != nil {
		return 0, nil, err
	}

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       t.model,
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.Rules + "\nCATALOG:\n" + string(catalogJSON)},
			{Role: openai.ChatMessageRoleSystem, Content: "CONVERSATION CONTEXT:\n" + string(convJSON)},
			{Role: openai.ChatMessageRoleUser, Content: req.UserText},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
			return apiErr.HTTPStatusCode, nil, nil
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
			return reqErr.HTTPStatusCode, nil, nil
		}
		return 0, nil, err
	}
	if len(resp.Choices) == 0 {
		return http.StatusOK, nil, nil
	}
	return http.StatusOK, []byte(resp.Choices[0].Message.Content), nil
}
