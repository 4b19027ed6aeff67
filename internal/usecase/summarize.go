package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"summarize-gateway/internal/domain"
	"summarize-gateway/internal/observability/logging"
	"summarize-gateway/internal/observability/tracing"
)

const (
	DefaultModel           = "gpt-3.5-turbo"
	DefaultMaxTokens       = 512
	DefaultUpstreamTimeout = 30 * time.Second

	outcomeSuccess = "success"
)

type MetricsRecorder interface {
	RecordSummary(outcome string, upstream time.Duration)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type SummarizeInput struct {
	Text string
}

type SummarizeOutput struct {
	Summary string
}

// SummarizeService turns submitted text into exactly one completion request
// and validates the response. It holds no per-request state.
type SummarizeService struct {
	llm       domain.Completer
	model     string
	maxTokens int
	timeout   time.Duration
	metrics   MetricsRecorder
	logger    *slog.Logger
}

type Option func(*SummarizeService)

func WithModel(model string) Option {
	return func(s *SummarizeService) {
		if model = strings.TrimSpace(model); model != "" {
			s.model = model
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(s *SummarizeService) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithUpstreamTimeout bounds each completion call.
func WithUpstreamTimeout(d time.Duration) Option {
	return func(s *SummarizeService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithMetrics(m MetricsRecorder) Option {
	return func(s *SummarizeService) {
		s.metrics = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *SummarizeService) {
		s.logger = l
	}
}

func NewSummarizeService(llm domain.Completer, opts ...Option) (*SummarizeService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	s := &SummarizeService{
		llm:       llm,
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
		timeout:   DefaultUpstreamTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

func (s *SummarizeService) Summarize(ctx context.Context, in SummarizeInput) (SummarizeOutput, error) {
	ctx, span := tracing.Tracer().Start(ctx, "summarize",
		trace.WithAttributes(
			attribute.String("llm.model", s.model),
			attribute.Int("llm.max_tokens", s.maxTokens),
			attribute.Int("input_length", len(in.Text)),
		),
	)
	defer span.End()
	logger := logging.FromContext(ctx, s.logger)

	// Whitespace is still text and goes upstream verbatim; only a field
	// with nothing in it is rejected.
	if in.Text == "" {
		return SummarizeOutput{}, s.fail(ctx, span, logger, 0, newError(ErrorInvalidInput, "empty_text", nil))
	}

	logger.InfoContext(ctx, "summarize started",
		slog.String("model", s.model),
		slog.Int("input_length", len(in.Text)))

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.llm.Complete(callCtx, domain.CompletionRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		Messages:  buildSummaryMessages(in.Text),
	})
	elapsed := time.Since(start)
	if err != nil {
		return SummarizeOutput{}, s.fail(ctx, span, logger, elapsed, newError(ErrorUpstream, upstreamReason(callCtx, err), err))
	}
	if len(resp.Choices) == 0 {
		return SummarizeOutput{}, s.fail(ctx, span, logger, elapsed, newError(ErrorUpstream, "empty_choices", nil))
	}
	content := resp.Choices[0].Content
	if content == nil {
		return SummarizeOutput{}, s.fail(ctx, span, logger, elapsed, newError(ErrorUpstream, "missing_content", nil))
	}

	logger.InfoContext(ctx, "summarize completed",
		slog.Int("summary_length", len(*content)),
		slog.Duration("duration", elapsed))
	span.SetAttributes(attribute.String("outcome", outcomeSuccess))
	s.record(outcomeSuccess, elapsed)

	return SummarizeOutput{Summary: *content}, nil
}

func (s *SummarizeService) fail(ctx context.Context, span trace.Span, logger *slog.Logger, elapsed time.Duration, ucErr *Error) error {
	attrs := []slog.Attr{
		slog.String("code", string(ucErr.Code)),
		slog.String("reason", ucErr.Reason),
	}
	if elapsed > 0 {
		attrs = append(attrs, slog.Duration("duration", elapsed))
	}
	if ucErr.Err != nil {
		attrs = append(attrs, slog.String("error", ucErr.Err.Error()))
	}

	level := slog.LevelError
	if ucErr.Code == ErrorInvalidInput {
		level = slog.LevelWarn
	}
	logger.LogAttrs(ctx, level, "summarize failed", attrs...)

	span.SetAttributes(attribute.String("outcome", ucErr.Reason))
	if ucErr.Err != nil {
		span.RecordError(ucErr.Err)
	}
	span.SetStatus(codes.Error, ucErr.Reason)
	s.record(ucErr.Reason, elapsed)
	return ucErr
}

func (s *SummarizeService) record(outcome string, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordSummary(outcome, elapsed)
	}
}

func upstreamReason(ctx context.Context, err error) string {
	if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
		return "openai_rate_limited"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "openai_timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "request_canceled"
	}
	return "openai_error"
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
