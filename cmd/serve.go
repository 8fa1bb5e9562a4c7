package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"openai-llm-bridge/internal/config"
	"openai-llm-bridge/internal/llm"
	providerfactory "openai-llm-bridge/internal/provider/factory"
	"openai-llm-bridge/internal/router"
	"openai-llm-bridge/internal/rpc"
	"openai-llm-bridge/internal/server"
	"openai-llm-bridge/internal/telemetry"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	var overridePort int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the OpenAI-compatible HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *cfgPath, overridePort)
		},
	}
	cmd.Flags().IntVar(&overridePort, "port", 0, "override server port")
	return cmd
}

func serve(ctx context.Context, cfgPath string, overridePort int) error {
	proc, err := setup(ctx, cfgPath, func(cfg *config.Config) error {
		if overridePort != 0 {
			if overridePort < 0 || overridePort > 65535 {
				return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
			}
			cfg.Server.Port = overridePort
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer proc.close()
	cfg := proc.cfg

	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics = telemetry.NewMetrics(cfg.Metrics.Namespace, prometheus.NewRegistry())
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Address); err != nil {
				proc.logger.Error("metrics server stopped", "err", err)
			}
		}()
	}

	invoker, closeInvoker, err := newInvoker(cfg, proc)
	if err != nil {
		return err
	}
	defer closeInvoker()

	dispatcher, err := router.New(llm.NewClient(invoker, llm.WithMetrics(metrics)), cfg.RPC.CallTimeout, proc.logger)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, dispatcher, metrics)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

// newInvoker returns the transport selected by rpc.mode and a func releasing it.
func newInvoker(cfg config.Config, proc *process) (rpc.Invoker, func(), error) {
	switch cfg.RPC.Mode {
	case config.RPCModeLocal:
		p, err := providerfactory.NewOllamaProvider(cfg.Provider, proc.logger)
		if err != nil {
			return nil, nil, err
		}
		proc.logger.Info("using in-process provider", "ollama_url", cfg.Provider.OllamaURL)
		return p, func() {}, nil
	default:
		client, err := rpc.Dial(cfg.RPC.Address, cfg.RPC.MaxMessageBytes)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to provider: %w", err)
		}
		proc.logger.Info("using remote provider", "address", cfg.RPC.Address)
		return client, func() {
			if err := client.Close(); err != nil {
				proc.logger.Warn("close rpc client", "err", err)
			}
		}, nil
	}
}
