package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/born-ml/mrdiff/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mrdiff",
		Short: "Measurement-guided diffusion sampling for MRI",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cmd.SilenceUsage = true
		},
	}
	root.PersistentFlags().StringP("config", "c", "", "YAML run configuration")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(newGenerateCmd(), newSimulateCmd(), newVersionCmd())
	return root
}

// loadConfig reads --config, or the defaults without one, and applies --log-level.
func loadConfig(cmd *cobra.Command) (config.Run, error) {
	cfg := config.Default()
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg config.Run) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.Level()}))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mrdiff %s\n", version)
		},
	}
}
