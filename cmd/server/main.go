package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lexiqai/interpreter/internal/config"
	"github.com/lexiqai/interpreter/internal/observability"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "server",
		Short: "Live interpreter gateway",
		Long: `Live interpreter gateway.

Translates incoming speech or meeting transcripts segment by segment,
synthesizes the translation and schedules the audio gaplessly.

Configuration is read from the environment (and .env when present).`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newRenderCmd())
	return root
}

// setup loads configuration and initializes the global logger
func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return nil, zerolog.Nop(), err
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	return cfg, observability.GetLogger(), nil
}
