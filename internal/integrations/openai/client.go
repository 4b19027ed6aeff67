package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	sdk "github.com/sashabaranov/go-openai"

	"summarize-gateway/internal/domain"
)

const defaultBaseURL = "https://api.openai.com/v1"

// defaultTimeout applies when the caller sets neither WithTimeout nor
// WithHTTPClient.
var defaultTimeout = 10 * time.Second

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	Type       string
	Message    string
	Err        error
}

func (e *HTTPStatusError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("openai: unexpected status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("openai: unexpected status %d (%s): %s", e.StatusCode, e.Type, e.Message)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *HTTPStatusError) Unwrap() error {
	return e.Err
}

// Client is a focused chat-completions client implementing domain.Completer.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	api        *sdk.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

// WithTimeout bounds a whole request, response body included. It is
// ignored when WithHTTPClient supplies a client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client bound to apiKey. The underlying SDK client is
// built once here and shared by every request.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	c := &Client{
		baseURL: defaultBaseURL,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}

	cfg := sdk.DefaultConfig(apiKey)
	cfg.BaseURL = apiBaseURL(c.baseURL)
	cfg.HTTPClient = withBodyCapture(c.httpClient)
	c.api = sdk.NewClientWithConfig(cfg)
	return c, nil
}

// apiBaseURL normalizes baseURL so that the SDK resolves
// "<base>/v1/chat/completions".
func apiBaseURL(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

// Complete sends one chat completion request. It never retries.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error) {
	if strings.TrimSpace(req.Model) == "" {
		return domain.CompletionResponse{}, errors.New("openai: model must not be empty")
	}
	if len(req.Messages) == 0 {
		return domain.CompletionResponse{}, errors.New("openai: at least one message is required")
	}

	messages := make([]sdk.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, sdk.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	body := &capturedBody{}
	resp, err := c.api.CreateChatCompletion(context.WithValue(ctx, capturedBodyKey{}, body), sdk.ChatCompletionRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Messages:  messages,
	})
	if err != nil {
		return domain.CompletionResponse{}, fmt.Errorf("openai: request failed: %w", classify(err))
	}

	raw, err := rawContents(body.data)
	if err != nil {
		return domain.CompletionResponse{}, fmt.Errorf("openai: decode choices: %w", err)
	}

	out := domain.CompletionResponse{Choices: make([]domain.Choice, 0, len(resp.Choices))}
	for i, ch := range resp.Choices {
		var content json.RawMessage
		if i < len(raw) {
			content = raw[i]
		}
		out.Choices = append(out.Choices, domain.Choice{
			Index:   ch.Index,
			Content: messageText(ch.Message, content),
		})
	}
	return out, nil
}

// chatResponse keeps each choice's content undecoded. The SDK turns a null
// content into "", which would hide the difference between an empty
// summary and a missing one.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func rawContents(body []byte) ([]json.RawMessage, error) {
	if len(body) == 0 {
		return nil, errors.New("response body was not captured")
	}
	var r chatResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, len(r.Choices))
	for i, ch := range r.Choices {
		out[i] = ch.Message.Content
	}
	return out, nil
}

// messageText returns the text carried by msg, or nil when the content field
// is null or missing. An empty string is text.
func messageText(msg sdk.ChatCompletionMessage, raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		text := msg.Content
		return &text
	}

	var b strings.Builder
	found := false
	for _, part := range msg.MultiContent {
		if part.Type == sdk.ChatMessagePartTypeText {
			b.WriteString(part.Text)
			found = true
		}
	}
	if !found {
		return nil
	}
	text := b.String()
	return &text
}

type capturedBodyKey struct{}

type capturedBody struct {
	data []byte
}

// captureTransport keeps a copy of every 2xx response body whose request
// context carries a *capturedBody.
type captureTransport struct {
	base http.RoundTripper
}

func (t captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	dst, ok := req.Context().Value(capturedBodyKey{}).(*capturedBody)
	if !ok || resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp, nil
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	dst.data = data
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}

// withBodyCapture returns a copy of hc whose transport records response
// bodies for Complete. hc itself is left untouched.
func withBodyCapture(hc *http.Client) *http.Client {
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	clone := *hc
	clone.Transport = captureTransport{base: base}
	return &clone
}

// classify turns SDK status errors into *HTTPStatusError so callers can
// inspect the upstream status without depending on the SDK.
func classify(err error) error {
	var apiErr *sdk.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &HTTPStatusError{
			StatusCode: apiErr.HTTPStatusCode,
			Type:       apiErr.Type,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	var reqErr *sdk.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &HTTPStatusError{
			StatusCode: reqErr.HTTPStatusCode,
			Message:    http.StatusText(reqErr.HTTPStatusCode),
			Err:        err,
		}
	}
	return err
}
