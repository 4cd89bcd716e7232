package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/chunkcore/internal/corelock"
	"github.com/aman-cerp/chunkcore/internal/fingerprint"
	"github.com/aman-cerp/chunkcore/internal/httptransport"
	"github.com/aman-cerp/chunkcore/internal/mcptransport"
	"github.com/aman-cerp/chunkcore/internal/switchcoordinator"
)

const fingerprintCacheSize = 256

func newServeCmd() *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (and, unless disabled, the HTTP operator shim)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr := httpAddr
			if !cmd.Flags().Changed("http-addr") {
				addr = cfg.Server.HTTPAddr
			}
			return runServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "listen address for the HTTP operator shim (overrides config); empty disables it")

	return cmd
}

func runServe(ctx context.Context, httpAddr string) error {
	dataLock := corelock.NewDataDirLock(cfg.DataDir)
	acquired, err := dataLock.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		return errors.New("another chunkcore process already holds the data directory lock")
	}
	defer dataLock.Unlock()

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

	mcpServer, err := mcptransport.NewServer(coordinator, slog.Default())
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- mcpServer.Serve(ctx)
	}()

	var httpServer *http.Server
	if httpAddr != "" {
		httpServer = &http.Server{
			Addr:    httpAddr,
			Handler: httptransport.NewServer(coordinator, slog.Default()),
		}
		go func() {
			slog.Info("starting HTTP operator shim", slog.String("addr", httpAddr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
				return
			}
			errCh <- nil
		}()
	}

	select {
	case <-ctx.Done():
		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
