package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/readwise/internal/config"
	"github.com/kirillkom/readwise/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "bookctl", cfg.LogLevel))

	if err := newRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "bookctl",
		Short:         "Segment and analyse books locally, without the API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(segmentCmd())
	root.AddCommand(analyzeCmd(cfg))
	return root
}
