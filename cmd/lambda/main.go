package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"summarize-gateway/handler"
	"summarize-gateway/internal/assets"
	"summarize-gateway/internal/credentials"
	"summarize-gateway/internal/integrations/openai"
	"summarize-gateway/internal/integrations/paramstore"
	"summarize-gateway/internal/observability/logging"
	"summarize-gateway/internal/observability/metrics"
	"summarize-gateway/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	apiKeyParam := mustEnv("OPENAI_PARAM")
	model := envString("OPENAI_MODEL", usecase.DefaultModel)
	maxTokens := envInt("OPENAI_MAX_TOKENS", usecase.DefaultMaxTokens)
	upstreamTimeout := envDuration("OPENAI_UPSTREAM_TIMEOUT", usecase.DefaultUpstreamTimeout)

	level, err := logging.ParseLevel(envString("LOG_LEVEL", "info"))
	if err != nil {
		slog.Error("invalid log level", "err", err)
		os.Exit(1)
	}
	logger, err := logging.New(os.Stdout, logging.FormatJSON, level)
	if err != nil {
		slog.Error("failed to create logger", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}

	apiKey, err := credentials.Resolve(ctx, credentials.ParamStore(ssmClient, apiKeyParam))
	if err != nil {
		slog.Error("failed to resolve OpenAI API key", "param", apiKeyParam, "err", err)
		os.Exit(1)
	}

	clientOpts := []openai.Option{openai.WithTimeout(upstreamTimeout)}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(baseURL))
	}
	openaiClient, err := openai.NewClient(apiKey, clientOpts...)
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	summarizeService, err := usecase.NewSummarizeService(openaiClient,
		usecase.WithModel(model),
		usecase.WithMaxTokens(maxTokens),
		usecase.WithUpstreamTimeout(upstreamTimeout),
		usecase.WithMetrics(metrics.NewRecorder()),
		usecase.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to create summarize service", "err", err)
		os.Exit(1)
	}

	page := assets.Index()
	if _, err := page.Load(); err != nil {
		slog.Error("failed to load front page", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(summarizeService, page, handler.WithLogger(logger))
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
