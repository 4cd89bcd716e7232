package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/chunkcore/internal/fingerprint"
	"github.com/aman-cerp/chunkcore/internal/switchcoordinator"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the most recent operations recorded against a data directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fp, err := fingerprint.New(fingerprintCacheSize)
			if err != nil {
				return err
			}
			coordinator := switchcoordinator.New(switchcoordinator.Config{
				DataDir:     cfg.DataDir,
				Fingerprint: fp,
				LoraIDWidth: cfg.ChunkIDWidth,
				Now:         time.Now,
			})

			entries, err := coordinator.OperationHistory(limit)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries to print, newest first")
	return cmd
}
