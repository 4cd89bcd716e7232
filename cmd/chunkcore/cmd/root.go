// Package cmd provides the CLI commands for chunkcore.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/chunkcore/internal/coreconfig"
	"github.com/aman-cerp/chunkcore/internal/corelog"
	"github.com/aman-cerp/chunkcore/pkg/version"
)

var (
	configPath string
	debugMode  bool

	cfg            *coreconfig.Config
	loggingCleanup func()
)

// NewRootCmd creates the root command for the chunkcore CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunkcore",
		Short: "Chunk & Versioning Core for a memory-augmented conversational AI backend",
		Long: `chunkcore tracks which base model is currently active, which data
chunks have been trained into an adapter against it, and which adapters and
preserved documents need re-validation after a model switch.

Run 'chunkcore serve' to expose it over MCP and, optionally, HTTP.`,
		Version:           version.Version,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfigAndLogging,
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if loggingCleanup != nil {
				loggingCleanup()
			}
			return nil
		},
	}

	cmd.SetVersionTemplate("chunkcore version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults to built-in defaults)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug-level logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newOverviewCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func loadConfigAndLogging(_ *cobra.Command, _ []string) error {
	loaded, err := coreconfig.Load(configPath)
	if err != nil {
		return err
	}
	if debugMode {
		loaded.Log.Level = "debug"
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded

	logger, cleanup, err := corelog.Setup(corelog.Config{
		Level:         cfg.Log.Level,
		FilePath:      cfg.Log.FilePath,
		MaxSizeMB:     cfg.Log.MaxSizeMB,
		MaxFiles:      cfg.Log.MaxFiles,
		WriteToStderr: cfg.Log.WriteToStderr,
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	loggingCleanup = cleanup
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
