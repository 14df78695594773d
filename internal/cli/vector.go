package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lewisedginton/memory_engine/internal/vector_index"
)

func init() {
	vector := &cobra.Command{
		Use:   "vector",
		Short: "Work with a vector namespace directly",
	}

	upsert := &cobra.Command{
		Use:   "upsert [id] [text]",
		Short: "Embed text and store it under a numeric id",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runVectorUpsert,
	}
	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Nearest ids to the query",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runVectorSearch,
	}
	search.Flags().IntP("k", "k", 3, "Max hits")
	del := &cobra.Command{
		Use:   "rm [id]",
		Short: "Remove an id",
		Args:  cobra.ExactArgs(1),
		RunE:  runVectorDelete,
	}

	for _, cmd := range []*cobra.Command{upsert, search, del} {
		cmd.Flags().StringP("ns", "n", vector_index.NamespaceNotes, "Namespace")
		vector.AddCommand(cmd)
	}
	RootCmd.AddCommand(vector)
}

type vectorOutput struct {
	OK bool `json:"ok"`
}

func runVectorUpsert(cmd *cobra.Command, args []string) error {
	ns, _ := cmd.Flags().GetString("ns")
	if _, err := vector_index.ParseID(args[0]); err != nil {
		return err
	}
	s, closeFn, err := openServer(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	ok := s.Vectors().Upsert(cmd.Context(), ns, joinArgs(args[1:]), args[0])
	if !ok {
		return fmt.Errorf("upsert %s into %s failed, see logs", args[0], ns)
	}
	return output(cmd.OutOrStdout(), vectorOutput{OK: true}, "ok")
}

func runVectorSearch(cmd *cobra.Command, args []string) error {
	ns, _ := cmd.Flags().GetString("ns")
	k, _ := cmd.Flags().GetInt("k")
	s, closeFn, err := openServer(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	hits := s.Vectors().Nearest(cmd.Context(), ns, joinArgs(args), k)
	return output(cmd.OutOrStdout(), hits, "")
}

func runVectorDelete(cmd *cobra.Command, args []string) error {
	ns, _ := cmd.Flags().GetString("ns")
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("id %q is not an integer", args[0])
	}
	s, closeFn, err := openServer(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	ok := s.Vectors().Delete(cmd.Context(), ns, id)
	if !ok {
		return fmt.Errorf("id %d not found in %s", id, ns)
	}
	return output(cmd.OutOrStdout(), vectorOutput{OK: true}, "ok")
}
