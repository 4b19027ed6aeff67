// Package config holds the process configuration shared by both binaries.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"summarize-gateway/internal/credentials"
	"summarize-gateway/internal/observability/logging"
	"summarize-gateway/internal/usecase"
)

const (
	DefaultAddr = "127.0.0.1"
	DefaultPort = 8080
)

// Config is built once in main and passed by value to constructors.
type Config struct {
	Server ServerConfig
	OpenAI OpenAIConfig
	Log    LogConfig

	// Tracing enables the OpenTelemetry tracer provider.
	Tracing bool
}

type ServerConfig struct {
	Addr string
	Port int
}

type OpenAIConfig struct {
	// APIKey takes precedence over Param when both are set.
	APIKey string
	// Param names an SSM parameter holding the key.
	Param           string
	BaseURL         string
	Model           string
	MaxTokens       int
	UpstreamTimeout time.Duration
}

type LogConfig struct {
	Format string
	Level  string
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: DefaultAddr, Port: DefaultPort},
		OpenAI: OpenAIConfig{
			Model:           usecase.DefaultModel,
			MaxTokens:       usecase.DefaultMaxTokens,
			UpstreamTimeout: usecase.DefaultUpstreamTimeout,
		},
		Log: LogConfig{Format: logging.FormatJSON, Level: "info"},
	}
}

// Address is the listen address in host:port form.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Addr, strconv.Itoa(s.Port))
}

// Validate reports the first configuration defect. A missing credential
// wraps credentials.ErrMissing.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: port must be a valid TCP port, got %d", c.Server.Port)
	}
	if strings.TrimSpace(c.OpenAI.APIKey) == "" && strings.TrimSpace(c.OpenAI.Param) == "" {
		return fmt.Errorf("config: set OPENAI_API_KEY or OPENAI_PARAM: %w", credentials.ErrMissing)
	}
	if strings.TrimSpace(c.OpenAI.Model) == "" {
		return errors.New("config: model must not be empty")
	}
	if c.OpenAI.MaxTokens <= 0 {
		return fmt.Errorf("config: max tokens must be positive, got %d", c.OpenAI.MaxTokens)
	}
	if c.OpenAI.UpstreamTimeout <= 0 {
		return fmt.Errorf("config: upstream timeout must be positive, got %v", c.OpenAI.UpstreamTimeout)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case logging.FormatJSON, logging.FormatText:
	default:
		return fmt.Errorf("config: log format must be %q or %q, got %q", logging.FormatJSON, logging.FormatText, c.Log.Format)
	}
	return nil
}

// CredentialSource picks the static key when present, otherwise the SSM
// parameter read through getter.
func (c OpenAIConfig) CredentialSource(getter credentials.Getter) credentials.Source {
	if strings.TrimSpace(c.APIKey) != "" || strings.TrimSpace(c.Param) == "" {
		return credentials.Static(c.APIKey)
	}
	return credentials.ParamStore(getter, c.Param)
}
