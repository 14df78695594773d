package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "record [text]",
		Short: "Record an utterance",
		Long:  "Append an utterance to the conversation and index it. Text can be a positional arg or piped via stdin.",
		RunE:  runRecord,
	}
	cmd.Flags().StringP("speaker", "s", "", "Who said it (required)")
	_ = cmd.MarkFlagRequired("speaker")
	RootCmd.AddCommand(cmd)
}

type recordOutput struct {
	ID int64 `json:"id"`
}

func runRecord(cmd *cobra.Command, args []string) error {
	speaker, _ := cmd.Flags().GetString("speaker")
	text, err := readContent(cmd, args)
	if err != nil {
		return err
	}
	if text == "" {
		return fmt.Errorf("text is required (positional arg or stdin)")
	}

	s, closeFn, err := openServer(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	id, err := s.Engine().RecordUtterance(cmd.Context(), speaker, text)
	if err != nil {
		return err
	}
	return output(cmd.OutOrStdout(), recordOutput{ID: id}, strconv.FormatInt(id, 10))
}
