package switchcoordinator

import "github.com/aman-cerp/chunkcore/internal/coremodel"

// RegisterModelResult is register_model's return envelope.
type RegisterModelResult struct {
	IdentityHash  string                `json:"identity_hash"`
	Identity      coremodel.ModelIdentity `json:"identity"`
	IsNew         bool                  `json:"is_new"`
	ModelChanged  bool                  `json:"model_changed"`
	PreviousModel *string               `json:"previous_model"`
	FriendlyName  string                `json:"friendly_name"`
}

// DetectModelChangeResult is detect_model_change's return envelope. It
// performs no mutation.
type DetectModelChangeResult struct {
	Changed     bool   `json:"changed"`
	Known       bool   `json:"known"`
	CurrentHash string `json:"current_hash"`
	NewHash     string `json:"new_hash"`
	NewName     string `json:"new_name"`
}

// SwitchSummary is handle_model_switch's return envelope.
type SwitchSummary struct {
	Changed                 bool                 `json:"changed"`
	Message                 string               `json:"message,omitempty"`
	Model                   RegisterModelResult  `json:"model"`
	PreviousModel           *string              `json:"previous_model,omitempty"`
	NewModel                string               `json:"new_model,omitempty"`
	UnusableLoras           []string             `json:"unusable_loras,omitempty"`
	UnusableLoraCount       int                  `json:"unusable_lora_count,omitempty"`
	RestorableChunks        []string             `json:"restorable_chunks,omitempty"`
	RestorableChunkCount    int                  `json:"restorable_chunk_count,omitempty"`
	RestorableDocumentCount int                  `json:"restorable_document_count,omitempty"`
	CompatibleLoras         []string             `json:"compatible_loras,omitempty"`
	CompatibleLoraCount     int                  `json:"compatible_lora_count,omitempty"`
	ActionNeeded            bool                 `json:"action_needed,omitempty"`
}

// RestoreResult is restore_chunks' return envelope.
type RestoreResult struct {
	Restored       []string         `json:"restored_chunks"`
	Failed         []string         `json:"failed_chunks"`
	TotalDocuments int              `json:"total_documents"`
	Documents      []map[string]any `json:"documents"`
}

// SelectAdapterResult is select_adapter's return envelope. A nil pointer
// means unknown or deleted, preserving the source's None-vs-structured
// asymmetry (see DESIGN.md Open Question decisions).
type SelectAdapterResult struct {
	Compatible bool                  `json:"compatible"`
	Adapter    coremodel.AdapterRecord `json:"lora"`
	Path       *string               `json:"path,omitempty"`
	Reason     string                `json:"reason,omitempty"`
}

// KnownModelView is one row of list_known_models' return list.
type KnownModelView struct {
	IdentityHash string    `json:"identity_hash"`
	Name         string    `json:"name"`
	ModelType    string    `json:"model_type"`
	FirstSeen    string    `json:"first_seen"`
	LastSeen     string    `json:"last_seen"`
	TimesUsed    int       `json:"times_used"`
	LoraCount    int       `json:"lora_count"`
	IsCurrent    bool      `json:"is_current"`
}

// Overview is the overview operation's return envelope, extended with
// ActiveAdaptersStale.
type Overview struct {
	CurrentModel      *string        `json:"current_model"`
	CurrentModelName  string         `json:"current_model_name"`
	KnownModels       int            `json:"known_models"`
	TotalChunks       int            `json:"total_chunks"`
	ChunksByStatus    map[string]int `json:"chunks_by_status"`
	TotalLoras        int            `json:"total_loras"`
	LorasByStatus     map[string]int `json:"loras_by_status"`
	CompatibleLoras   int            `json:"compatible_loras"`
	RestorableChunks  int            `json:"restorable_chunks"`
	UntrainedChunks   int            `json:"untrained_chunks"`

	// ActiveAdaptersStale counts active adapters whose model_identity_hash
	// no longer equals current_model, surfacing drift the source has no
	// field for.
	ActiveAdaptersStale int `json:"active_adapters_stale"`
}
