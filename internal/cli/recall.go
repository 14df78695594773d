package cli

import (
	"github.com/spf13/cobra"

	"github.com/lewisedginton/memory_engine/internal/engine"
)

func init() {
	recall := &cobra.Command{
		Use:   "recall [query]",
		Short: "Recall similar utterances",
		Long:  "Find past utterances similar to the query, newest first.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRecall,
	}
	recall.Flags().IntP("k", "k", 3, "Max results")

	causal := &cobra.Command{
		Use:   "causal [query]",
		Short: "Recall exchanges opened by the other speaker",
		Long:  "Find statements by the other speaker similar to the query, with the reply and their reaction.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCausal,
	}
	causal.Flags().IntP("k", "k", engine.DefaultCausalK, "Max exchanges")

	summaries := &cobra.Command{
		Use:   "summaries [query]",
		Short: "Recall conversation summaries",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSummaries,
	}
	summaries.Flags().IntP("k", "k", engine.DefaultSummaryK, "Max summaries")

	RootCmd.AddCommand(recall, causal, summaries)
}

type textResult struct {
	Text  string `json:"text"`
	Items any    `json:"items"`
}

func runRecall(cmd *cobra.Command, args []string) error {
	k, _ := cmd.Flags().GetInt("k")
	s, closeFn, err := openServer(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	text, recs := s.Engine().RecentMemory(cmd.Context(), joinArgs(args), k)
	return output(cmd.OutOrStdout(), textResult{Text: text, Items: recs}, text)
}

func runCausal(cmd *cobra.Command, args []string) error {
	k, _ := cmd.Flags().GetInt("k")
	s, closeFn, err := openServer(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	text, exchanges := s.Engine().RecentCausalMemory(cmd.Context(), joinArgs(args), k)
	return output(cmd.OutOrStdout(), textResult{Text: text, Items: exchanges}, text)
}

func runSummaries(cmd *cobra.Command, args []string) error {
	k, _ := cmd.Flags().GetInt("k")
	s, closeFn, err := openServer(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	text, recs := s.Engine().SummaryMemory(cmd.Context(), joinArgs(args), k)
	return output(cmd.OutOrStdout(), textResult{Text: text, Items: recs}, text)
}
