package mcptransport

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aman-cerp/chunkcore/internal/coremodel"
	"github.com/aman-cerp/chunkcore/internal/regstore"
	"github.com/aman-cerp/chunkcore/internal/switchcoordinator"
)

// --- detect_model_change -----------------------------------------------

type DetectModelChangeInput struct {
	ModelPath string `json:"model_path" jsonschema:"filesystem path to the candidate model directory or weight file"`
}

type DetectModelChangeOutput struct {
	Changed     bool   `json:"changed" jsonschema:"whether the candidate model differs from current_model"`
	Known       bool   `json:"known" jsonschema:"whether the candidate model's identity hash is already registered"`
	CurrentHash string `json:"current_hash,omitempty" jsonschema:"identity hash of the currently active model, if any"`
	NewHash     string `json:"new_hash" jsonschema:"identity hash computed for the candidate model"`
	NewName     string `json:"new_name,omitempty" jsonschema:"base name of the candidate model path"`
}

// --- register_model ------------------------------------------------------

type RegisterModelInput struct {
	ModelPath    string `json:"model_path" jsonschema:"filesystem path to the model directory or weight file"`
	FriendlyName string `json:"friendly_name,omitempty" jsonschema:"operator-facing name to attach to this model"`
}

type RegisterModelOutput struct {
	IdentityHash  string  `json:"identity_hash"`
	IsNew         bool    `json:"is_new"`
	ModelChanged  bool    `json:"model_changed"`
	PreviousModel *string `json:"previous_model,omitempty"`
	FriendlyName  string  `json:"friendly_name"`
}

// --- handle_model_switch --------------------------------------------------

type HandleModelSwitchInput struct {
	ModelPath    string `json:"model_path" jsonschema:"filesystem path to the model directory or weight file becoming current"`
	FriendlyName string `json:"friendly_name,omitempty" jsonschema:"operator-facing name to attach to this model"`
}

type HandleModelSwitchOutput struct {
	Changed                 bool     `json:"changed"`
	Message                 string   `json:"message,omitempty"`
	NewModel                string   `json:"new_model,omitempty"`
	PreviousModel           *string  `json:"previous_model,omitempty"`
	UnusableLoras           []string `json:"unusable_loras,omitempty"`
	UnusableLoraCount       int      `json:"unusable_lora_count,omitempty"`
	RestorableChunks        []string `json:"restorable_chunks,omitempty"`
	RestorableChunkCount    int      `json:"restorable_chunk_count,omitempty"`
	RestorableDocumentCount int      `json:"restorable_document_count,omitempty"`
	CompatibleLoras         []string `json:"compatible_loras,omitempty"`
	CompatibleLoraCount     int      `json:"compatible_lora_count,omitempty"`
	ActionNeeded            bool     `json:"action_needed,omitempty"`
}

// --- list_known_models -----------------------------------------------------

type ListKnownModelsInput struct{}

type ListKnownModelsOutput struct {
	Models []switchcoordinator.KnownModelView `json:"models"`
}

// --- list_compatible_adapters ----------------------------------------------

type ListCompatibleAdaptersInput struct {
	ModelIdentityHash string `json:"model_identity_hash,omitempty" jsonschema:"identity hash to filter by; defaults to current_model"`
}

type ListCompatibleAdaptersOutput struct {
	Loras []coremodel.AdapterRecord `json:"loras"`
}

// --- create_chunk ------------------------------------------------------

type CreateChunkInput struct {
	Documents []map[string]any `json:"documents" jsonschema:"documents to preserve in this chunk, non-empty"`
	Character string            `json:"character,omitempty" jsonschema:"character or persona this chunk trains towards, if applicable"`
	Metadata  map[string]any    `json:"metadata,omitempty" jsonschema:"free-form metadata recorded alongside the chunk"`
}

type CreateChunkOutput struct {
	Chunk coremodel.DataChunk `json:"chunk"`
}

// --- transition_chunk -------------------------------------------------

type TransitionChunkInput struct {
	ChunkID string         `json:"chunk_id" jsonschema:"chunk identifier, e.g. chunk_0001"`
	Status  string         `json:"status" jsonschema:"target lifecycle status: training, trained, failed, restored, or archived"`
	Details map[string]any `json:"details,omitempty" jsonschema:"extra context recorded in the chunk's history entry"`
}

type TransitionChunkOutput struct {
	OK bool `json:"ok"`
}

// --- get_chunk / get_chunk_documents ------------------------------------

type GetChunkInput struct {
	ChunkID string `json:"chunk_id" jsonschema:"chunk identifier, e.g. chunk_0001"`
}

type GetChunkOutput struct {
	Found bool                 `json:"found"`
	Chunk coremodel.DataChunk `json:"chunk,omitempty"`
}

type GetChunkDocumentsOutput struct {
	Documents []map[string]any `json:"documents"`
}

// --- list_chunks / list_untrained / list_restorable ------------------------

type ListChunksInput struct {
	Status            string `json:"status,omitempty" jsonschema:"filter by lifecycle status"`
	ModelIdentityHash string `json:"model_identity_hash,omitempty" jsonschema:"filter by model identity hash"`
}

type ListChunksOutput struct {
	Chunks []coremodel.DataChunk `json:"chunks"`
}

type ListUntrainedInput struct {
	ModelIdentityHash string `json:"model_identity_hash,omitempty" jsonschema:"filter by model identity hash; when omitted, chunks of every model are listed"`
}

type ListRestorableInput struct {
	ModelIdentityHash string `json:"model_identity_hash,omitempty" jsonschema:"defaults to current_model when omitted"`
}

// --- restore_chunks -----------------------------------------------------

type RestoreChunksInput struct {
	ChunkIDs []string `json:"chunk_ids,omitempty" jsonschema:"chunk ids to restore; defaults to every restorable chunk against current_model"`
}

type RestoreChunksOutput struct {
	Restored       []string         `json:"restored_chunks"`
	Failed         []string         `json:"failed_chunks"`
	TotalDocuments int              `json:"total_documents"`
	Documents      []map[string]any `json:"documents"`
}

// --- register_adapter --------------------------------------------------

type RegisterAdapterInput struct {
	ChunkIDs       []string       `json:"chunk_ids,omitempty" jsonschema:"chunks this adapter was trained from"`
	SourcePath     string         `json:"source_path" jsonschema:"filesystem path to the trained adapter artifact, file or directory"`
	TrainingConfig map[string]any `json:"training_config,omitempty" jsonschema:"hyperparameters and other training configuration to record"`
	Metrics        map[string]any `json:"metrics,omitempty" jsonschema:"evaluation metrics to record"`
}

type RegisterAdapterOutput struct {
	Lora coremodel.AdapterRecord `json:"lora"`
}

// --- select_adapter -----------------------------------------------------

type SelectAdapterInput struct {
	LoraID string `json:"lora_id" jsonschema:"adapter identifier, e.g. lora_0001"`
}

type SelectAdapterOutput struct {
	Found      bool                    `json:"found" jsonschema:"false when lora_id is unknown or deleted"`
	Compatible bool                    `json:"compatible,omitempty"`
	Lora       coremodel.AdapterRecord `json:"lora,omitempty"`
	Path       string                  `json:"path,omitempty"`
	Reason     string                  `json:"reason,omitempty"`
}

// --- mark_adapter_unusable / delete_adapter --------------------------------

type MarkAdapterUnusableInput struct {
	LoraID string `json:"lora_id" jsonschema:"adapter identifier"`
	Reason string `json:"reason,omitempty" jsonschema:"why the adapter is being marked unusable"`
}

type DeleteAdapterInput struct {
	LoraID      string `json:"lora_id" jsonschema:"adapter identifier"`
	DeleteFiles bool   `json:"delete_files,omitempty" jsonschema:"also remove the adapter's artifact files from disk"`
}

type OKOutput struct {
	OK bool `json:"ok"`
}

// --- overview / operation_history -------------------------------------

type OverviewInput struct{}

type OperationHistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of entries to return, newest first"`
}

type OperationHistoryOutput struct {
	Entries []regstore.OperationEntry `json:"entries"`
}

// registerTools wires every coordinator operation to an MCP tool.
func (s *Server) registerTools() {
	s.logger.Debug("registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "detect_model_change",
		Description: "Report whether a candidate model differs from the currently active model, without registering or switching anything.",
	}, s.detectModelChange)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "register_model",
		Description: "Compute a model's identity, record it in the known-models registry, and make it the current model, without invalidating any adapters.",
	}, s.registerModel)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "handle_model_switch",
		Description: "Make a model current. Invalidates adapters bound to the previous model, reports restorable chunks, and leaves restoration to a follow-up restore_chunks call.",
	}, s.handleModelSwitch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_known_models",
		Description: "List every model ever registered, most recently used first.",
	}, s.listKnownModels)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_compatible_adapters",
		Description: "List non-deleted adapters (active or unusable) bound to a model identity hash (defaults to the current model).",
	}, s.listCompatibleAdapters)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "create_chunk",
		Description: "Create a new data chunk from a batch of documents, pending training.",
	}, s.createChunk)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "transition_chunk",
		Description: "Move a chunk to a new lifecycle status (training, trained, failed, restored, archived).",
	}, s.transitionChunk)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_chunk",
		Description: "Fetch a chunk's current record by id.",
	}, s.getChunk)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_chunk_documents",
		Description: "Fetch the preserved documents a chunk was created from.",
	}, s.getChunkDocuments)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_chunks",
		Description: "List chunks, optionally filtered by status and/or model identity hash.",
	}, s.listChunks)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_untrained",
		Description: "List chunks that are pending, failed, or restored, optionally filtered by model identity hash (no model filter when omitted).",
	}, s.listUntrained)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_restorable",
		Description: "List chunks eligible for restoration to the retrieval store against a model (defaults to current_model).",
	}, s.listRestorable)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "restore_chunks",
		Description: "Mark chunks restored and return their preserved documents for re-ingestion into the retrieval store.",
	}, s.restoreChunks)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "register_adapter",
		Description: "Record a trained adapter, copy its artifact under the core's data directory, and mark its source chunks trained.",
	}, s.registerAdapter)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "select_adapter",
		Description: "Resolve an adapter id to its on-disk path if it is compatible with the current model.",
	}, s.selectAdapter)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "mark_adapter_unusable",
		Description: "Mark an adapter unusable, e.g. after a failed load or a bad evaluation.",
	}, s.markAdapterUnusable)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_adapter",
		Description: "Delete an adapter record, optionally removing its artifact files.",
	}, s.deleteAdapter)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "overview",
		Description: "Summarize current model, chunk counts by status, adapter counts by status, and drift between active adapters and the current model.",
	}, s.overview)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "operation_history",
		Description: "Return the most recent mutating operations recorded against the core, newest first.",
	}, s.operationHistory)

	s.logger.Info("MCP tools registered", slog.Int("count", 19))
}

func (s *Server) detectModelChange(ctx context.Context, req *mcp.CallToolRequest, in DetectModelChangeInput) (*mcp.CallToolResult, DetectModelChangeOutput, error) {
	if in.ModelPath == "" {
		return nil, DetectModelChangeOutput{}, NewInvalidParamsError("model_path is required")
	}
	res, err := s.coordinator.DetectModelChange(ctx, in.ModelPath)
	if err != nil {
		return nil, DetectModelChangeOutput{}, mapError(err)
	}
	return nil, DetectModelChangeOutput{
		Changed:     res.Changed,
		Known:       res.Known,
		CurrentHash: res.CurrentHash,
		NewHash:     res.NewHash,
		NewName:     res.NewName,
	}, nil
}

func (s *Server) registerModel(ctx context.Context, req *mcp.CallToolRequest, in RegisterModelInput) (*mcp.CallToolResult, RegisterModelOutput, error) {
	if in.ModelPath == "" {
		return nil, RegisterModelOutput{}, NewInvalidParamsError("model_path is required")
	}
	res, err := s.coordinator.RegisterModel(ctx, in.ModelPath, in.FriendlyName)
	if err != nil {
		return nil, RegisterModelOutput{}, mapError(err)
	}
	return nil, RegisterModelOutput{
		IdentityHash:  res.IdentityHash,
		IsNew:         res.IsNew,
		ModelChanged:  res.ModelChanged,
		PreviousModel: res.PreviousModel,
		FriendlyName:  res.FriendlyName,
	}, nil
}

func (s *Server) handleModelSwitch(ctx context.Context, req *mcp.CallToolRequest, in HandleModelSwitchInput) (*mcp.CallToolResult, HandleModelSwitchOutput, error) {
	if in.ModelPath == "" {
		return nil, HandleModelSwitchOutput{}, NewInvalidParamsError("model_path is required")
	}
	summary, err := s.coordinator.HandleModelSwitch(ctx, in.ModelPath, in.FriendlyName)
	if err != nil {
		return nil, HandleModelSwitchOutput{}, mapError(err)
	}
	return nil, HandleModelSwitchOutput{
		Changed:                 summary.Changed,
		Message:                 summary.Message,
		NewModel:                summary.NewModel,
		PreviousModel:           summary.PreviousModel,
		UnusableLoras:           summary.UnusableLoras,
		UnusableLoraCount:       summary.UnusableLoraCount,
		RestorableChunks:        summary.RestorableChunks,
		RestorableChunkCount:    summary.RestorableChunkCount,
		RestorableDocumentCount: summary.RestorableDocumentCount,
		CompatibleLoras:         summary.CompatibleLoras,
		CompatibleLoraCount:     summary.CompatibleLoraCount,
		ActionNeeded:            summary.ActionNeeded,
	}, nil
}

func (s *Server) listKnownModels(ctx context.Context, req *mcp.CallToolRequest, in ListKnownModelsInput) (*mcp.CallToolResult, ListKnownModelsOutput, error) {
	return nil, ListKnownModelsOutput{Models: s.coordinator.ListKnownModels()}, nil
}

func (s *Server) listCompatibleAdapters(ctx context.Context, req *mcp.CallToolRequest, in ListCompatibleAdaptersInput) (*mcp.CallToolResult, ListCompatibleAdaptersOutput, error) {
	var hash *string
	if in.ModelIdentityHash != "" {
		hash = &in.ModelIdentityHash
	}
	return nil, ListCompatibleAdaptersOutput{Loras: s.coordinator.ListCompatibleAdapters(hash)}, nil
}

func (s *Server) createChunk(ctx context.Context, req *mcp.CallToolRequest, in CreateChunkInput) (*mcp.CallToolResult, CreateChunkOutput, error) {
	var character *string
	if in.Character != "" {
		character = &in.Character
	}
	chunk, err := s.coordinator.CreateChunk(in.Documents, character, in.Metadata)
	if err != nil {
		return nil, CreateChunkOutput{}, mapError(err)
	}
	return nil, CreateChunkOutput{Chunk: chunk}, nil
}

func (s *Server) transitionChunk(ctx context.Context, req *mcp.CallToolRequest, in TransitionChunkInput) (*mcp.CallToolResult, TransitionChunkOutput, error) {
	if in.ChunkID == "" || in.Status == "" {
		return nil, TransitionChunkOutput{}, NewInvalidParamsError("chunk_id and status are required")
	}
	if err := s.coordinator.TransitionChunk(in.ChunkID, coremodel.Status(in.Status), in.Details); err != nil {
		return nil, TransitionChunkOutput{}, mapError(err)
	}
	return nil, TransitionChunkOutput{OK: true}, nil
}

func (s *Server) getChunk(ctx context.Context, req *mcp.CallToolRequest, in GetChunkInput) (*mcp.CallToolResult, GetChunkOutput, error) {
	chunk, ok := s.coordinator.GetChunk(in.ChunkID)
	if !ok {
		return nil, GetChunkOutput{Found: false}, nil
	}
	return nil, GetChunkOutput{Found: true, Chunk: chunk}, nil
}

func (s *Server) getChunkDocuments(ctx context.Context, req *mcp.CallToolRequest, in GetChunkInput) (*mcp.CallToolResult, GetChunkDocumentsOutput, error) {
	docs, err := s.coordinator.GetChunkDocuments(in.ChunkID)
	if err != nil {
		return nil, GetChunkDocumentsOutput{}, mapError(err)
	}
	return nil, GetChunkDocumentsOutput{Documents: docs}, nil
}

func (s *Server) listChunks(ctx context.Context, req *mcp.CallToolRequest, in ListChunksInput) (*mcp.CallToolResult, ListChunksOutput, error) {
	var status *coremodel.Status
	if in.Status != "" {
		st := coremodel.Status(in.Status)
		status = &st
	}
	var model *string
	if in.ModelIdentityHash != "" {
		model = &in.ModelIdentityHash
	}
	return nil, ListChunksOutput{Chunks: s.coordinator.ListChunks(status, model)}, nil
}

func (s *Server) listUntrained(ctx context.Context, req *mcp.CallToolRequest, in ListUntrainedInput) (*mcp.CallToolResult, ListChunksOutput, error) {
	var model *string
	if in.ModelIdentityHash != "" {
		model = &in.ModelIdentityHash
	}
	return nil, ListChunksOutput{Chunks: s.coordinator.ListUntrained(model)}, nil
}

func (s *Server) listRestorable(ctx context.Context, req *mcp.CallToolRequest, in ListRestorableInput) (*mcp.CallToolResult, ListChunksOutput, error) {
	var model *string
	if in.ModelIdentityHash != "" {
		model = &in.ModelIdentityHash
	}
	return nil, ListChunksOutput{Chunks: s.coordinator.ListRestorable(model)}, nil
}

func (s *Server) restoreChunks(ctx context.Context, req *mcp.CallToolRequest, in RestoreChunksInput) (*mcp.CallToolResult, RestoreChunksOutput, error) {
	result, err := s.coordinator.RestoreChunks(in.ChunkIDs)
	if err != nil {
		return nil, RestoreChunksOutput{}, mapError(err)
	}
	return nil, RestoreChunksOutput{
		Restored:       result.Restored,
		Failed:         result.Failed,
		TotalDocuments: result.TotalDocuments,
		Documents:      result.Documents,
	}, nil
}

func (s *Server) registerAdapter(ctx context.Context, req *mcp.CallToolRequest, in RegisterAdapterInput) (*mcp.CallToolResult, RegisterAdapterOutput, error) {
	if in.SourcePath == "" {
		return nil, RegisterAdapterOutput{}, NewInvalidParamsError("source_path is required")
	}
	record, err := s.coordinator.RegisterAdapter(ctx, in.ChunkIDs, in.SourcePath, in.TrainingConfig, in.Metrics)
	if err != nil {
		return nil, RegisterAdapterOutput{}, mapError(err)
	}
	return nil, RegisterAdapterOutput{Lora: record}, nil
}

func (s *Server) selectAdapter(ctx context.Context, req *mcp.CallToolRequest, in SelectAdapterInput) (*mcp.CallToolResult, SelectAdapterOutput, error) {
	if in.LoraID == "" {
		return nil, SelectAdapterOutput{}, NewInvalidParamsError("lora_id is required")
	}
	sel, err := s.coordinator.SelectAdapter(in.LoraID)
	if err != nil {
		return nil, SelectAdapterOutput{}, mapError(err)
	}
	if sel == nil {
		return nil, SelectAdapterOutput{Found: false}, nil
	}
	out := SelectAdapterOutput{
		Found:      true,
		Compatible: sel.Compatible,
		Lora:       sel.Adapter,
		Reason:     sel.Reason,
	}
	if sel.Path != nil {
		out.Path = *sel.Path
	}
	return nil, out, nil
}

func (s *Server) markAdapterUnusable(ctx context.Context, req *mcp.CallToolRequest, in MarkAdapterUnusableInput) (*mcp.CallToolResult, OKOutput, error) {
	if in.LoraID == "" {
		return nil, OKOutput{}, NewInvalidParamsError("lora_id is required")
	}
	if err := s.coordinator.MarkAdapterUnusable(in.LoraID, in.Reason); err != nil {
		return nil, OKOutput{}, mapError(err)
	}
	return nil, OKOutput{OK: true}, nil
}

func (s *Server) deleteAdapter(ctx context.Context, req *mcp.CallToolRequest, in DeleteAdapterInput) (*mcp.CallToolResult, OKOutput, error) {
	if in.LoraID == "" {
		return nil, OKOutput{}, NewInvalidParamsError("lora_id is required")
	}
	if err := s.coordinator.DeleteAdapter(in.LoraID, in.DeleteFiles); err != nil {
		return nil, OKOutput{}, mapError(err)
	}
	return nil, OKOutput{OK: true}, nil
}

func (s *Server) overview(ctx context.Context, req *mcp.CallToolRequest, in OverviewInput) (*mcp.CallToolResult, switchcoordinator.Overview, error) {
	return nil, s.coordinator.Overview(), nil
}

func (s *Server) operationHistory(ctx context.Context, req *mcp.CallToolRequest, in OperationHistoryInput) (*mcp.CallToolResult, OperationHistoryOutput, error) {
	entries, err := s.coordinator.OperationHistory(in.Limit)
	if err != nil {
		return nil, OperationHistoryOutput{}, mapError(err)
	}
	return nil, OperationHistoryOutput{Entries: entries}, nil
}
