package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lewisedginton/memory_engine/internal/server"
	"github.com/lewisedginton/memory_engine/pkg/logger"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Serve the memory engine over HTTP with health endpoints, the rollover event stream and optional Prometheus metrics.",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := cfg.NewLogger()
	cfg.LogConfig(log)

	s, err := server.New(context.WithoutCancel(cmd.Context()), cfg, log)
	if err != nil {
		log.Error("Failed to initialize server", logger.ErrorField(err))
		return err
	}
	return s.Run()
}
