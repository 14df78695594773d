package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rollover := &cobra.Command{
		Use:   "rollover",
		Short: "Conversation rollover",
	}
	check := &cobra.Command{
		Use:   "check",
		Short: "Archive the live conversation if it has gone idle or the day has changed",
		Long:  "Run the rollover check. A started summary is waited for before the command exits.",
		Args:  cobra.NoArgs,
		RunE:  runRolloverCheck,
	}
	rollover.AddCommand(check)
	RootCmd.AddCommand(rollover)
}

func runRolloverCheck(cmd *cobra.Command, _ []string) error {
	s, closeFn, err := openServer(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	decision, err := s.Engine().Rollover().Check(cmd.Context())
	if err != nil {
		return err
	}
	if decision.Task != nil {
		select {
		case <-decision.Task.Done():
			if err := decision.Task.Err(); err != nil {
				return fmt.Errorf("summary for %s: %w", decision.Task.ArchiveKey, err)
			}
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}
	}
	return output(cmd.OutOrStdout(), decision, decision.Header)
}
