package factory

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"openai-llm-bridge/internal/config"
	"openai-llm-bridge/internal/provider"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// NewOllamaProvider constructs a provider that talks to the Ollama server named in cfg.
func NewOllamaProvider(cfg config.ProviderConfig, logger *slog.Logger) (*provider.Provider, error) {
	client, err := NewOllamaClient(cfg)
	if err != nil {
		return nil, err
	}

	p, err := provider.New(client, logger)
	if err != nil {
		return nil, fmt.Errorf("initialise ollama provider: %w", err)
	}
	return p, nil
}

// NewOllamaClient builds an Ollama API client for cfg.OllamaURL.
func NewOllamaClient(cfg config.ProviderConfig) (*api.Client, error) {
	if cfg.OllamaURL == "" {
		return nil, errors.New("ollama url must not be empty")
	}
	base, err := url.Parse(cfg.OllamaURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}
	return api.NewClient(base, newHTTPClient(cfg.RequestTimeout)), nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
