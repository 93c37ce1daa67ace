package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrMissingAPIKey means the upstream credential is not configured. No
	// request is attempted.
	ErrMissingAPIKey = errors.New("llm: api key not configured")

	ErrRateLimited     = errors.New("llm: rate limited by upstream")
	ErrPaymentRequired = errors.New("llm: upstream payment required")
)

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	client *resty.Client
	model  string
	apiKey string
}

func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		client: resty.New().SetBaseURL(baseURL),
		model:  model,
		apiKey: apiKey,
	}
}

// StreamChat opens one streaming session with the given history and tool
// catalog. The returned reader is the raw response body; the caller owns
// decoding and must close it. Non-success statuses are mapped to the error
// taxonomy before any frame is read.
func (c *Client) StreamChat(ctx context.Context, messages []Message, tools []Tool) (io.ReadCloser, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "text/event-stream").
		SetBody(chatRequest{Model: c.model, Messages: messages, Tools: tools, Stream: true}).
		SetDoNotParseResponse(true).
		Post("/v1/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("llm: request failed: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.RawBody(), 4096))
		resp.RawBody().Close()

		switch resp.StatusCode() {
		case http.StatusTooManyRequests:
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, body)
		case http.StatusPaymentRequired:
			return nil, fmt.Errorf("%w: %s", ErrPaymentRequired, body)
		default:
			return nil, fmt.Errorf("llm: upstream returned status %d: %s", resp.StatusCode(), body)
		}
	}

	return resp.RawBody(), nil
}
