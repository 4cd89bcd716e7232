package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/chunkcore/internal/fingerprint"
	"github.com/aman-cerp/chunkcore/internal/switchcoordinator"
)

func newOverviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Print current model, chunk/adapter counts, and drift against a data directory",
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

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(coordinator.Overview())
		},
	}
	return cmd
}
