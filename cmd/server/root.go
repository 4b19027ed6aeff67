package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"summarize-gateway/internal/assets"
	"summarize-gateway/internal/config"
	"summarize-gateway/internal/credentials"
	"summarize-gateway/internal/integrations/openai"
	"summarize-gateway/internal/integrations/paramstore"
	"summarize-gateway/internal/observability/logging"
	"summarize-gateway/internal/observability/metrics"
	"summarize-gateway/internal/observability/tracing"
	"summarize-gateway/internal/server"
	"summarize-gateway/internal/usecase"
)

const serviceName = "summarize-gateway"

// envBindings maps config keys to the environment variables read for them.
var envBindings = map[string]string{
	"addr":             "ADDR",
	"port":             "PORT",
	"openai-api-key":   "OPENAI_API_KEY",
	"openai-param":     "OPENAI_PARAM",
	"openai-base-url":  "OPENAI_BASE_URL",
	"model":            "OPENAI_MODEL",
	"max-tokens":       "OPENAI_MAX_TOKENS",
	"upstream-timeout": "OPENAI_UPSTREAM_TIMEOUT",
	"log-format":       "LOG_FORMAT",
	"log-level":        "LOG_LEVEL",
	"tracing":          "TRACING",
}

func newRootCommand() *cobra.Command {
	return newCommand(viper.New())
}

// newCommand builds the root command around v, which collects flags,
// environment and the optional config file.
func newCommand(v *viper.Viper) *cobra.Command {
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Serve a web page that summarizes pasted text with a chat-completion model.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			// A missing .env file is fine.
			_ = godotenv.Load()

			if path := v.GetString("config"); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config file %s: %w", path, err)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig(v)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, cmd.ErrOrStderr())
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "optional config file (yaml, toml or json)")
	flags.String("addr", defaults.Server.Addr, "address to listen on")
	flags.Int("port", defaults.Server.Port, "port to listen on")
	flags.String("openai-api-key", "", "API key for the completion service")
	flags.String("openai-param", "", "SSM parameter holding the API key, used when no key is given")
	flags.String("openai-base-url", "", "override the completion service base URL")
	flags.String("model", defaults.OpenAI.Model, "chat model used for summaries")
	flags.Int("max-tokens", defaults.OpenAI.MaxTokens, "maximum tokens in a summary")
	flags.Duration("upstream-timeout", defaults.OpenAI.UpstreamTimeout, "deadline for one completion call")
	flags.String("log-format", defaults.Log.Format, `log format, "json" or "text"`)
	flags.String("log-level", defaults.Log.Level, "log level")
	flags.Bool("tracing", defaults.Tracing, "enable OpenTelemetry tracing")

	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			panic(err)
		}
	}

	return cmd
}

func loadConfig(v *viper.Viper) config.Config {
	return config.Config{
		Server: config.ServerConfig{
			Addr: v.GetString("addr"),
			Port: v.GetInt("port"),
		},
		OpenAI: config.OpenAIConfig{
			APIKey:          v.GetString("openai-api-key"),
			Param:           v.GetString("openai-param"),
			BaseURL:         v.GetString("openai-base-url"),
			Model:           v.GetString("model"),
			MaxTokens:       v.GetInt("max-tokens"),
			UpstreamTimeout: v.GetDuration("upstream-timeout"),
		},
		Log: config.LogConfig{
			Format: v.GetString("log-format"),
			Level:  v.GetString("log-level"),
		},
		Tracing: v.GetBool("tracing"),
	}
}

// run wires the process and blocks until ctx is cancelled. Every startup
// failure is returned before the listener opens.
func run(ctx context.Context, cfg config.Config, logOut io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger, err := logging.New(logOut, cfg.Log.Format, level)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if cfg.Tracing {
		shutdown, err := tracing.Init(serviceName, logOut)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("tracer shutdown failed", "err", err)
			}
		}()
	}

	var getter credentials.Getter
	if strings.TrimSpace(cfg.OpenAI.APIKey) == "" && strings.TrimSpace(cfg.OpenAI.Param) != "" {
		getter, err = newParamStore(ctx)
		if err != nil {
			return err
		}
	}
	apiKey, err := credentials.Resolve(ctx, cfg.OpenAI.CredentialSource(getter))
	if err != nil {
		return fmt.Errorf("resolve api key: %w", err)
	}

	clientOpts := []openai.Option{openai.WithTimeout(cfg.OpenAI.UpstreamTimeout)}
	if cfg.OpenAI.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	llm, err := openai.NewClient(apiKey, clientOpts...)
	if err != nil {
		return err
	}

	summarizer, err := usecase.NewSummarizeService(llm,
		usecase.WithModel(cfg.OpenAI.Model),
		usecase.WithMaxTokens(cfg.OpenAI.MaxTokens),
		usecase.WithUpstreamTimeout(cfg.OpenAI.UpstreamTimeout),
		usecase.WithMetrics(metrics.NewRecorder()),
		usecase.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	page := assets.Index()
	if _, err := page.Load(); err != nil {
		return fmt.Errorf("load front page: %w", err)
	}

	srv, err := server.New(cfg, summarizer, page, logger)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func newParamStore(ctx context.Context) (*paramstore.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("create SSM client: %w", err)
	}
	return client, nil
}
