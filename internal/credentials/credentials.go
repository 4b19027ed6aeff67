// Package credentials resolves the completion API key once at startup.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"summarize-gateway/internal/integrations/paramstore"
)

// ErrMissing reports that no usable API key was configured.
var ErrMissing = errors.New("credentials: api key is not configured")

// Source yields the raw credential value.
type Source interface {
	Lookup(ctx context.Context) (string, error)
}

// Getter is satisfied by *paramstore.Client.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Resolve returns a non-empty API key from src.
func Resolve(ctx context.Context, src Source) (string, error) {
	if src == nil {
		return "", ErrMissing
	}
	key, err := src.Lookup(ctx)
	if err != nil {
		return "", err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrMissing
	}
	return key, nil
}

type staticSource string

// Static wraps a value taken from the environment or a flag.
func Static(value string) Source {
	return staticSource(value)
}

func (s staticSource) Lookup(context.Context) (string, error) {
	return string(s), nil
}

type paramStoreSource struct {
	getter Getter
	name   string
}

// ParamStore reads the key from a managed parameter. The stored value is
// either the raw token or a JSON document of the form {"token": "..."}.
func ParamStore(getter Getter, name string) Source {
	return &paramStoreSource{getter: getter, name: strings.TrimSpace(name)}
}

func (s *paramStoreSource) Lookup(ctx context.Context) (string, error) {
	if s.getter == nil {
		return "", errors.New("credentials: paramstore getter is nil")
	}
	if s.name == "" {
		return "", errors.New("credentials: parameter name is empty")
	}
	raw, err := s.getter.GetParameter(ctx, s.name)
	if errors.Is(err, paramstore.ErrNotFound) {
		return "", fmt.Errorf("%w: %w", ErrMissing, err)
	}
	if err != nil {
		return "", fmt.Errorf("credentials: fetch api key: %w", err)
	}
	return parseToken(raw)
}

type tokenPayload struct {
	Token string `json:"token"`
}

func parseToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") {
		return raw, nil
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("credentials: unmarshal parameter value as JSON: %w", err)
	}
	return tp.Token, nil
}
