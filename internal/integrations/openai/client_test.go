package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"summarize-gateway/internal/domain"
)

// ---------------------------------------------------------------------------
// apiBaseURL helper
// ---------------------------------------------------------------------------

func TestAPIBaseURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.openai.com/v1", "https://api.openai.com/v1"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1"},
		{"http://localhost:8080", "http://localhost:8080/v1"},
		{" ", "https://api.openai.com/v1"},
		{"", "https://api.openai.com/v1"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, apiBaseURL(tc.base), "base=%q", tc.base)
	}
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_EmptyKey(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient("sk-test")
	require.NoError(t, err)
	require.Equal(t, defaultBaseURL, c.baseURL)
	require.Equal(t, defaultTimeout, c.httpClient.Timeout)
	require.NotNil(t, c.api)
}

func TestNewClient_NilHTTPClientFallsBack(t *testing.T) {
	c, err := NewClient("sk-test", WithHTTPClient(nil))
	require.NoError(t, err)
	require.NotNil(t, c.httpClient)
}

// ---------------------------------------------------------------------------
// Client.Complete
// ---------------------------------------------------------------------------

type recordedRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(
		"sk-test",
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	)
	require.NoError(t, err)
	return c
}

func userRequest(text string) domain.CompletionRequest {
	return domain.CompletionRequest{
		Model:     "gpt-mock",
		MaxTokens: 512,
		Messages:  []domain.ChatMessage{{Role: domain.RoleUser, Content: text}},
	}
}

func TestClient_Complete_HappyPath(t *testing.T) {
	var got recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-123",
			"object": "chat.completion",
			"created": 1670000000,
			"choices": [{
				"index": 0,
				"message": { "role": "assistant", "content": "A fox runs." },
				"finish_reason": "stop"
			}]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.Complete(context.Background(), userRequest("Summarize the following text:\n\nThe quick brown fox..."))
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	require.NotNil(t, resp.Choices[0].Content)
	require.Equal(t, "A fox runs.", *resp.Choices[0].Content)

	require.Equal(t, "gpt-mock", got.Model)
	require.Equal(t, 512, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	require.Equal(t, "user", got.Messages[0].Role)
	require.Equal(t, "Summarize the following text:\n\nThe quick brown fox...", got.Messages[0].Content)
}

func TestClient_Complete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.Complete(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	require.Empty(t, resp.Choices)
}

func TestClient_Complete_ContentPresence(t *testing.T) {
	empty, text, multi := "", "A fox runs.", "part one part two"
	cases := []struct {
		name string
		body string
		want *string
	}{
		{name: "empty string is content", body: `{"choices":[{"index":0,"message":{"role":"assistant","content":""}}]}`, want: &empty},
		{name: "text", body: `{"choices":[{"index":0,"message":{"role":"assistant","content":"A fox runs."}}]}`, want: &text},
		{name: "null content", body: `{"choices":[{"index":0,"message":{"role":"assistant","content":null}}]}`, want: nil},
		{name: "missing content", body: `{"choices":[{"index":0,"message":{"role":"assistant"}}]}`, want: nil},
		{name: "text parts", body: `{"choices":[{"index":0,"message":{"role":"assistant","content":[{"type":"text","text":"part one "},{"type":"text","text":"part two"}]}}]}`, want: &multi},
		{name: "no text parts", body: `{"choices":[{"index":0,"message":{"role":"assistant","content":[{"type":"image_url","image_url":{"url":"https://example.com/a.png"}}]}}]}`, want: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := newTestClient(t, srv)
			resp, err := c.Complete(context.Background(), userRequest("hi"))
			require.NoError(t, err)
			require.Len(t, resp.Choices, 1)
			if tc.want == nil {
				require.Nil(t, resp.Choices[0].Content)
				return
			}
			require.NotNil(t, resp.Choices[0].Content)
			require.Equal(t, *tc.want, *resp.Choices[0].Content)
		})
	}
}

func TestClient_Complete_ContentPerChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[
			{"index":0,"message":{"role":"assistant","content":null}},
			{"index":1,"message":{"role":"assistant","content":"second"}}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.Complete(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	require.Len(t, resp.Choices, 2)
	require.Nil(t, resp.Choices[0].Content)
	require.Equal(t, "second", *resp.Choices[1].Content)
}

func TestClient_Complete_StatusErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":{"message":"bad request","type":"invalid_request_error"}}`},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":{"message":"Rate limit reached","type":"rate_limit_error"}}`},
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":{"message":"Internal server error","type":"server_error"}}`},
		{name: "non-json body", status: http.StatusBadGateway, body: `upstream unavailable`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := newTestClient(t, srv)
			_, err := c.Complete(context.Background(), userRequest("hi"))
			require.Error(t, err)
			require.Contains(t, err.Error(), "request failed")

			var statusErr *HTTPStatusError
			require.ErrorAs(t, err, &statusErr)
			require.Equal(t, tc.status, statusErr.HTTPStatusCode())
			require.NotContains(t, err.Error(), "sk-test")
		})
	}
}

func TestClient_Complete_DoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Complete(context.Background(), userRequest("hi"))
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestClient_Complete_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`not-a-json`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Complete(context.Background(), userRequest("hi"))
	require.Error(t, err)
}

func TestClient_Complete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient("sk-test", WithBaseURL(srv.URL), WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), userRequest("hi"))
	require.Error(t, err)
}

func TestClient_Complete_TimeoutLongerThanDefault(t *testing.T) {
	prev := defaultTimeout
	defaultTimeout = 50 * time.Millisecond
	t.Cleanup(func() { defaultTimeout = prev })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"late but fine"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient("sk-test", WithBaseURL(srv.URL), WithTimeout(2*time.Second))
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, c.httpClient.Timeout)

	resp, err := c.Complete(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	require.Equal(t, "late but fine", *resp.Choices[0].Content)

	c, err = NewClient("sk-test", WithBaseURL(srv.URL))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), userRequest("hi"))
	require.Error(t, err)
}

func TestNewClient_WithTimeout(t *testing.T) {
	c, err := NewClient("sk-test", WithTimeout(45*time.Second))
	require.NoError(t, err)
	require.Equal(t, 45*time.Second, c.httpClient.Timeout)

	c, err = NewClient("sk-test", WithTimeout(0))
	require.NoError(t, err)
	require.Equal(t, defaultTimeout, c.httpClient.Timeout)
}

func TestClient_Complete_NetworkError(t *testing.T) {
	c, err := NewClient("sk-test", WithBaseURL("http://127.0.0.1:1"), WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), userRequest("hi"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "request failed")

	var statusErr *HTTPStatusError
	require.False(t, errors.As(err, &statusErr))
}

func TestClient_Complete_Validation(t *testing.T) {
	c, err := NewClient("sk-test")
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), domain.CompletionRequest{Messages: []domain.ChatMessage{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "model")

	_, err = c.Complete(context.Background(), domain.CompletionRequest{Model: "gpt-mock"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "message")
}

// ---------------------------------------------------------------------------
// HTTPStatusError
// ---------------------------------------------------------------------------

func TestHTTPStatusError_Message(t *testing.T) {
	err := &HTTPStatusError{StatusCode: 429, Type: "rate_limit_error", Message: "slow down"}
	require.Equal(t, "openai: unexpected status 429 (rate_limit_error): slow down", err.Error())

	err = &HTTPStatusError{StatusCode: 502, Message: "Bad Gateway"}
	require.Equal(t, "openai: unexpected status 502: Bad Gateway", err.Error())
}
