package mcptransport

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aman-cerp/chunkcore/internal/switchcoordinator"
	"github.com/aman-cerp/chunkcore/pkg/version"
)

// Server bridges MCP clients (the training driver, an operator console, an
// assistant orchestrator) with the Switch Coordinator.
type Server struct {
	mcp         *mcp.Server
	coordinator *switchcoordinator.Coordinator
	logger      *slog.Logger
}

// NewServer validates its dependencies, builds the underlying MCP server,
// and registers every tool.
func NewServer(coordinator *switchcoordinator.Coordinator, logger *slog.Logger) (*Server, error) {
	if coordinator == nil {
		return nil, errors.New("coordinator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		coordinator: coordinator,
		logger:      logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "chunkcore",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Underlying returns the wrapped *mcp.Server so a transport-specific driver
// (stdio, SSE) can run it.
func (s *Server) Underlying() *mcp.Server {
	return s.mcp
}

// Serve runs the server over stdio, the only transport a local training
// driver needs today.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped gracefully")
	return nil
}
