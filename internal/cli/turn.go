package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/lewisedginton/memory_engine/internal/engine"
	"github.com/lewisedginton/memory_engine/internal/knowledgebase"
)

func init() {
	turn := &cobra.Command{
		Use:   "turn [message]",
		Short: "Record a message from the other speaker and build the reply context",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTurn(true),
	}
	ctxCmd := &cobra.Command{
		Use:   "context [message]",
		Short: "Build the reply context without recording anything",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTurn(false),
	}
	for _, cmd := range []*cobra.Command{turn, ctxCmd} {
		cmd.Flags().String("window", "", "Recent context matched against knowledge base keys (default: the message)")
		cmd.Flags().Int("causal-k", engine.DefaultCausalK, "Max causal exchanges")
		cmd.Flags().Int("summary-k", engine.DefaultSummaryK, "Max summaries")
		cmd.Flags().Bool("exclude-hidden", false, "Leave out hidden knowledge base entries")
	}
	RootCmd.AddCommand(turn, ctxCmd)
}

type turnOutput struct {
	ID      int64               `json:"id,omitempty"`
	Context *engine.TurnContext `json:"context"`
}

// promptText lays the context out in the order it is read back to the agent.
func promptText(tc *engine.TurnContext) string {
	var b strings.Builder
	for _, part := range []string{
		tc.Rollover.Header, tc.Constant, tc.EarlierToday, tc.Summaries,
		tc.KnowledgeBase, tc.Causal, tc.Transcript,
	} {
		if strings.TrimSpace(part) == "" {
			continue
		}
		b.WriteString(strings.TrimRight(part, "\n"))
		b.WriteString("\n\n")
	}
	return b.String()
}

func runTurn(record bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		window, _ := cmd.Flags().GetString("window")
		causalK, _ := cmd.Flags().GetInt("causal-k")
		summaryK, _ := cmd.Flags().GetInt("summary-k")
		excludeHidden, _ := cmd.Flags().GetBool("exclude-hidden")

		s, closeFn, err := openServer(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		req := engine.TurnRequest{
			Query:     joinArgs(args),
			Window:    window,
			CausalK:   causalK,
			SummaryK:  summaryK,
			KBOptions: knowledgebase.RetrieveOptions{ExcludeHidden: excludeHidden},
		}
		out := turnOutput{}
		if record {
			out.ID, out.Context, err = s.Engine().Turn(cmd.Context(), req)
		} else {
			out.Context, err = s.Engine().BuildTurnContext(cmd.Context(), req)
		}
		if err != nil {
			return err
		}
		return output(cmd.OutOrStdout(), out, promptText(out.Context))
	}
}
