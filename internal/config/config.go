package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RPC modes.
const (
	RPCModeGRPC  = "grpc"
	RPCModeLocal = "local"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Tracing exporters.
const (
	TracingExporterNone   = "none"
	TracingExporterStdout = "stdout"
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	RPC      RPCConfig      `yaml:"rpc"`
	Provider ProviderConfig `yaml:"provider"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ServerConfig defines the OpenAI-compatible listener.
type ServerConfig struct {
	Port         int   `yaml:"port"`
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// RPCConfig describes how backend procedures are reached.
//
// In "grpc" mode calls go to a provider process at Address. In "local" mode the
// provider runs in-process and talks to Ollama directly.
type RPCConfig struct {
	Mode            string        `yaml:"mode"`
	Address         string        `yaml:"address"`
	CallTimeout     time.Duration `yaml:"call_timeout"`
	MaxMessageBytes int           `yaml:"max_message_bytes"`
}

// ProviderConfig configures the provider that serves the procedures from Ollama.
type ProviderConfig struct {
	Listen         string        `yaml:"listen"`
	OllamaURL      string        `yaml:"ollama_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	Exporter string `yaml:"exporter"`
	File     string `yaml:"file"`
}

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			MaxBodyBytes: 1 << 20,
		},
		RPC: RPCConfig{
			Mode:            RPCModeGRPC,
			Address:         "127.0.0.1:7070",
			CallTimeout:     5 * time.Minute,
			MaxMessageBytes: 16 << 20,
		},
		Provider: ProviderConfig{
			Listen:         ":7070",
			OllamaURL:      "http://127.0.0.1:11434",
			RequestTimeout: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: LogFormatText,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Address:   ":9090",
			Namespace: "llm_bridge",
		},
		Tracing: TracingConfig{
			Exporter: TracingExporterNone,
		},
	}
}

// Load reads YAML configuration from disk on top of Default and validates the result.
// An empty path yields the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, cfg.Validate()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}

	if err := c.RPC.validate(); err != nil {
		return err
	}
	if err := c.Provider.validate(); err != nil {
		return err
	}

	switch strings.ToLower(c.Log.Format) {
	case "", LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("log.format %q must be one of %q or %q", c.Log.Format, LogFormatText, LogFormatJSON)
	}

	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Address) == "" {
		return errors.New("metrics.address must be provided when metrics are enabled")
	}

	switch strings.ToLower(c.Tracing.Exporter) {
	case "", TracingExporterNone, TracingExporterStdout:
	default:
		return fmt.Errorf("tracing.exporter %q must be one of %q or %q", c.Tracing.Exporter, TracingExporterNone, TracingExporterStdout)
	}

	return nil
}

func (r RPCConfig) validate() error {
	switch r.Mode {
	case RPCModeGRPC:
		if strings.TrimSpace(r.Address) == "" {
			return errors.New("rpc.address must be provided in grpc mode")
		}
	case RPCModeLocal:
	default:
		return fmt.Errorf("rpc.mode %q must be one of %q or %q", r.Mode, RPCModeGRPC, RPCModeLocal)
	}
	if r.CallTimeout < 0 {
		return fmt.Errorf("rpc.call_timeout must not be negative, got %s", r.CallTimeout)
	}
	if r.MaxMessageBytes <= 0 {
		return fmt.Errorf("rpc.max_message_bytes must be positive, got %d", r.MaxMessageBytes)
	}
	return nil
}

func (p ProviderConfig) validate() error {
	if strings.TrimSpace(p.Listen) == "" {
		return errors.New("provider.listen must be provided")
	}
	u, err := url.Parse(p.OllamaURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("provider.ollama_url %q must be an absolute URL", p.OllamaURL)
	}
	if p.RequestTimeout < 0 {
		return fmt.Errorf("provider.request_timeout must not be negative, got %s", p.RequestTimeout)
	}
	return nil
}
