package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aman-cerp/chunkcore/internal/switchcoordinator"
)

// Server is the thin HTTP front for the four operations an operator is
// expected to script against directly: handle_model_switch, overview,
// restore_chunks, operation_history. Everything else is MCP-only.
type Server struct {
	router      chi.Router
	coordinator *switchcoordinator.Coordinator
	logger      *slog.Logger
}

// NewServer builds the chi router and registers routes under /v1.
func NewServer(coordinator *switchcoordinator.Coordinator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:      chi.NewRouter(),
		coordinator: coordinator,
		logger:      logger,
	}
	s.router.Use(s.requestID)
	s.routes()
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/model-switch", s.handleModelSwitch)
		r.Get("/overview", s.overview)
		r.Post("/chunks/restore", s.restoreChunks)
		r.Get("/history", s.operationHistory)
	})
}

// requestID stamps every response with X-Request-Id and logs the
// method/path/id triple.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		s.logger.Info("http request", slog.String("request_id", id), slog.String("method", r.Method), slog.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}

type modelSwitchRequest struct {
	ModelPath    string `json:"model_path"`
	FriendlyName string `json:"friendly_name,omitempty"`
}

func (s *Server) handleModelSwitch(w http.ResponseWriter, r *http.Request) {
	var req modelSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}
	if req.ModelPath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "model_path is required"})
		return
	}

	summary, err := s.coordinator.HandleModelSwitch(r.Context(), req.ModelPath, req.FriendlyName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) overview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.Overview())
}

type restoreChunksRequest struct {
	ChunkIDs []string `json:"chunk_ids,omitempty"`
}

func (s *Server) restoreChunks(w http.ResponseWriter, r *http.Request) {
	var req restoreChunksRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
			return
		}
	}

	result, err := s.coordinator.RestoreChunks(req.ChunkIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) operationHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	entries, err := s.coordinator.OperationHistory(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
