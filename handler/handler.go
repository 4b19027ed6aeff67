package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"summarize-gateway/internal/observability/logging"
	"summarize-gateway/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	htmlContentType   = "text/html; charset=utf-8"
	textContentType   = "text/plain; charset=utf-8"
)

type Summarizer interface {
	Summarize(ctx context.Context, in usecase.SummarizeInput) (usecase.SummarizeOutput, error)
}

type PageLoader interface {
	Load() ([]byte, error)
}

// Handler serves the summarizer behind API Gateway proxy events.
type Handler struct {
	summarizer Summarizer
	page       PageLoader
	logger     *slog.Logger
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHandler(summarizer Summarizer, page PageLoader, opts ...Option) (*Handler, error) {
	if summarizer == nil {
		return nil, errors.New("handler: summarizer must not be nil")
	}
	if page == nil {
		return nil, errors.New("handler: page loader must not be nil")
	}
	h := &Handler{summarizer: summarizer, page: page, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx = logging.WithRequestID(ctx, correlationID)
	logger := logging.FromContext(ctx, h.logger)

	var resp events.APIGatewayProxyResponse
	switch routePath(event) {
	case "/":
		if event.HTTPMethod != http.MethodGet {
			resp = plain(http.StatusMethodNotAllowed)
			break
		}
		resp = h.index(ctx, logger)
	case "/summarize":
		if event.HTTPMethod != http.MethodPost {
			resp = plain(http.StatusMethodNotAllowed)
			break
		}
		resp = h.summarize(ctx, event)
	default:
		resp = plain(http.StatusNotFound)
	}

	resp.Headers[correlationHeader] = correlationID
	logger.InfoContext(ctx, "request", "method", event.HTTPMethod, "path", event.Path, "status", resp.StatusCode)
	return resp, nil
}

func (h *Handler) index(ctx context.Context, logger *slog.Logger) events.APIGatewayProxyResponse {
	body, err := h.page.Load()
	if err != nil {
		logger.ErrorContext(ctx, "failed to load front page", "err", err)
		return plain(http.StatusInternalServerError)
	}
	return html(http.StatusOK, string(body))
}

func (h *Handler) summarize(ctx context.Context, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	form, err := parseForm(event)
	if err != nil {
		return text(http.StatusBadRequest, "invalid form body")
	}
	values, ok := form["text"]
	if !ok || len(values) == 0 {
		return text(http.StatusBadRequest, "missing form field: text")
	}

	out, err := h.summarizer.Summarize(ctx, usecase.SummarizeInput{Text: values[0]})
	if err != nil {
		return plain(usecase.StatusOf(err))
	}
	return html(http.StatusOK, out.Summary)
}

// parseForm decodes an application/x-www-form-urlencoded body. API Gateway
// may deliver it base64-encoded.
func parseForm(event events.APIGatewayProxyRequest) (url.Values, error) {
	if ct := headerValue(event.Headers, "Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, err
		}
		if mediaType != "application/x-www-form-urlencoded" {
			return nil, errors.New("unsupported content type " + mediaType)
		}
	}
	body := event.Body
	if event.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, err
		}
		body = string(raw)
	}
	return url.ParseQuery(body)
}

func routePath(event events.APIGatewayProxyRequest) string {
	p := event.Path
	if p == "" {
		p = "/"
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func html(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": htmlContentType},
		Body:       body,
	}
}

func text(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": textContentType},
		Body:       body,
	}
}

func plain(status int) events.APIGatewayProxyResponse {
	return text(status, http.StatusText(status))
}
