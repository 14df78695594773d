// Package cli implements the memoryd commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	appconfig "github.com/lewisedginton/memory_engine/internal/config"
	"github.com/lewisedginton/memory_engine/internal/server"
)

const closeTimeout = 30 * time.Second

var (
	configPath string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "memoryd",
	Short:         "Long-term memory for a conversational agent",
	Long:          "Records a conversation, recalls what was said and how it went, rolls conversations over into summaries and serves a knowledge base.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: environment only, or $MEMORYD_CONFIG)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("MEMORYD_CONFIG")
}

func loadConfig() (*appconfig.AppConfig, error) {
	cfg, err := appconfig.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openServer wires the engine for a one-shot command. Logs go to stderr so
// stdout carries only the result. The returned func releases everything and
// waits for background summaries.
func openServer(cmd *cobra.Command) (*server.Server, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := cfg.NewLoggerTo(cmd.ErrOrStderr())
	s, err := server.New(cmd.Context(), cfg, log)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), closeTimeout)
		defer cancel()
		_ = s.Shutdown(ctx)
	}
	return s, closeFn, nil
}

// output writes v as indented JSON, or text when --format text is set and
// text is not empty.
func output(w io.Writer, v any, text string) error {
	if strings.EqualFold(formatFlag, "text") && text != "" {
		_, err := fmt.Fprintln(w, strings.TrimRight(text, "\n"))
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// readContent takes the positional args, or stdin when it is piped.
func readContent(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return joinArgs(args), nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
