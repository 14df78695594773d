package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Configuration operations",
	}
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfigValidate,
	}
	cfg.AddCommand(validate)
	RootCmd.AddCommand(cfg)
}

type validateOutput struct {
	Valid bool `json:"valid"`
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := cfg.NewLoggerTo(cmd.ErrOrStderr())
	cfg.LogConfig(log)
	return output(cmd.OutOrStdout(), validateOutput{Valid: true}, "Configuration is valid")
}
