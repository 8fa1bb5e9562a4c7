package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"openai-llm-bridge/internal/config"
	"openai-llm-bridge/internal/telemetry"
)

const (
	serviceName = "openai-llm-bridge"
	version     = "0.1.0"
)

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:   serviceName,
		Short: "OpenAI-compatible chat/completions bridge to an LLM RPC backend",
		Long: `openai-llm-bridge exposes an OpenAI-compatible HTTP surface and forwards
each call to an LLM backend reached over RPC.

Examples:
  # Start the HTTP bridge against a remote provider
  openai-llm-bridge serve --config config.yaml

  # Start the provider that serves the RPC procedures from Ollama
  openai-llm-bridge provider --config config.yaml`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML configuration file (defaults are used when empty)")

	root.AddCommand(newServeCmd(&cfgPath), newProviderCmd(&cfgPath))
	return root
}

// process holds process-wide collaborators shared by every subcommand.
type process struct {
	cfg    config.Config
	logger *slog.Logger

	closeLog      io.Closer
	shutdownTrace telemetry.ShutdownFunc
}

func setup(ctx context.Context, cfgPath string, override func(*config.Config) error) (*process, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if override != nil {
		if err := override(&cfg); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger, closeLog, err := telemetry.NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	slog.SetDefault(logger)

	shutdownTrace, err := telemetry.InitTracing(ctx, cfg.Tracing, serviceName, version)
	if err != nil {
		_ = closeLog.Close()
		return nil, fmt.Errorf("configure tracing: %w", err)
	}

	return &process{
		cfg:           cfg,
		logger:        logger,
		closeLog:      closeLog,
		shutdownTrace: shutdownTrace,
	}, nil
}

func (p *process) close() {
	if err := p.shutdownTrace(context.Background()); err != nil {
		p.logger.Warn("tracing shutdown failed", "err", err)
	}
	_ = p.closeLog.Close()
}
