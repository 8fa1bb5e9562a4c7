package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"openai-llm-bridge/internal/config"
	providerfactory "openai-llm-bridge/internal/provider/factory"
	"openai-llm-bridge/internal/rpc"
)

func newProviderCmd(cfgPath *string) *cobra.Command {
	var overrideListen string

	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Serve the LLM procedures over gRPC from an Ollama server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProvider(cmd.Context(), *cfgPath, overrideListen)
		},
	}
	cmd.Flags().StringVar(&overrideListen, "listen", "", "override provider listen address")
	return cmd
}

func runProvider(ctx context.Context, cfgPath, overrideListen string) error {
	proc, err := setup(ctx, cfgPath, func(cfg *config.Config) error {
		if overrideListen != "" {
			cfg.Provider.Listen = overrideListen
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer proc.close()
	cfg := proc.cfg

	p, err := providerfactory.NewOllamaProvider(cfg.Provider, proc.logger)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.Provider.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Provider.Listen, err)
	}

	srv := rpc.NewServer(p, cfg.RPC.MaxMessageBytes)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
		close(errCh)
	}()
	proc.logger.Info("provider listening", "addr", lis.Addr().String(), "ollama_url", cfg.Provider.OllamaURL)

	select {
	case <-ctx.Done():
		srv.GracefulStop()
		proc.logger.Info("provider shutdown complete")
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("provider server: %w", err)
	}
}
