// Package coremodel holds the data model shared by the Registry Store,
// Chunk Lifecycle Manager, and Switch Coordinator: ModelIdentity, KnownModel,
// DataChunk, AdapterRecord, and PreservedDocuments. JSON tags match the
// source's snake_case field names so persisted documents are byte-compatible
// with the Python original's registries.
package coremodel

import "time"

// Status is a DataChunk's position in the lifecycle state machine.
type Status string

const (
	StatusPending  Status = "pending"
	StatusTraining Status = "training"
	StatusTrained  Status = "trained"
	StatusFailed   Status = "failed"
	StatusRestored Status = "restored"
	StatusArchived Status = "archived"
)

// AdapterStatus is an AdapterRecord's lifecycle state.
type AdapterStatus string

const (
	AdapterActive   AdapterStatus = "active"
	AdapterUnusable AdapterStatus = "unusable"
	AdapterDeleted  AdapterStatus = "deleted"
)

// ModelIdentity is derived data describing one base model as observed on disk.
// path is informational only; identity_hash is the primary key used everywhere.
type ModelIdentity struct {
	Path              string  `json:"path"`
	Name              string  `json:"name"`
	FileChecksum      *string `json:"file_checksum"`
	ConfigFingerprint *string `json:"config_fingerprint"`
	FileSize          *int64  `json:"file_size"`
	ModelType         *string `json:"model_type"`
	Architecture      *string `json:"architecture"`
	IdentityHash      string  `json:"identity_hash"`
}

// KnownModel is the persistent record for one ModelIdentity, keyed by its
// identity_hash in the model registry's known_models map.
type KnownModel struct {
	Identity     ModelIdentity `json:"identity"`
	FriendlyName string        `json:"friendly_name"`
	FirstSeen    time.Time     `json:"first_seen"`
	LastSeen     time.Time     `json:"last_seen"`
	TimesUsed    int           `json:"times_used"`
	LoraIDs      []string      `json:"lora_ids"`

	// CompatibleLoraIDs mirrors the source's record.compatible_lora_ids.
	// No code in this repository computes or populates it, so it stays
	// empty and is omitted from JSON unless a caller sets it.
	CompatibleLoraIDs []string `json:"compatible_lora_ids,omitempty"`
}

// HistoryEntry is one append-only row of a DataChunk's history.
type HistoryEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
}

// DataChunk is a batch of documents that entered the training pipeline.
type DataChunk struct {
	ChunkID           string         `json:"chunk_id"`
	CreatedAt         time.Time      `json:"created_at"`
	Status            Status         `json:"status"`
	ModelIdentityHash *string        `json:"model_identity_hash"`
	LoraID            *string        `json:"lora_id"`
	DocumentIDs       []string       `json:"document_ids"`
	DocumentCount     int            `json:"document_count"`
	Character         *string        `json:"character"`
	Metadata          map[string]any `json:"metadata"`
	History           []HistoryEntry `json:"history"`
}

// NewDataChunk returns a fresh PENDING chunk with the given id, documents,
// and optional character/metadata, matching the source's DataChunk.__init__.
func NewDataChunk(chunkID string, createdAt time.Time, documentIDs []string, character *string, metadata map[string]any) DataChunk {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return DataChunk{
		ChunkID:       chunkID,
		CreatedAt:     createdAt,
		Status:        StatusPending,
		DocumentIDs:   documentIDs,
		DocumentCount: len(documentIDs),
		Character:     character,
		Metadata:      metadata,
		History:       []HistoryEntry{},
	}
}

// AddHistory appends a history entry and returns the updated chunk, mirroring
// DataChunk.add_history. Chunks are treated as immutable values throughout
// this repository; mutators return a modified copy.
func (c DataChunk) AddHistory(timestamp time.Time, action string, details map[string]any) DataChunk {
	c.History = append(append([]HistoryEntry{}, c.History...), HistoryEntry{
		Timestamp: timestamp,
		Action:    action,
		Details:   details,
	})
	return c
}

// AdapterRecord is a trained adapter targeting one base model.
type AdapterRecord struct {
	LoraID            string         `json:"lora_id"`
	CreatedAt         time.Time      `json:"created_at"`
	ModelIdentityHash *string        `json:"model_identity_hash"`
	ModelName         *string        `json:"model_name"`
	ModelType         *string        `json:"model_type"`
	ChunkIDs          []string       `json:"chunk_ids"`
	Path              *string        `json:"path"`
	Status            AdapterStatus  `json:"status"`
	TrainingConfig    map[string]any `json:"training_config"`
	Metrics           map[string]any `json:"metrics"`

	// Notes is a free-text operator annotation, restored from the source's
	// record.notes.
	Notes string `json:"notes"`

	MarkedUnusableAt *time.Time `json:"marked_unusable_at,omitempty"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`

	// UnusableReason is the reason string attached when the adapter was
	// marked unusable, so callers can see it without parsing operation
	// history.
	UnusableReason *string `json:"unusable_reason,omitempty"`
}

// NewAdapterRecord returns a fresh active AdapterRecord, mirroring the
// source's LoRARecord.__init__.
func NewAdapterRecord(loraID string, createdAt time.Time) AdapterRecord {
	return AdapterRecord{
		LoraID:         loraID,
		CreatedAt:      createdAt,
		ChunkIDs:       []string{},
		Status:         AdapterActive,
		TrainingConfig: map[string]any{},
		Metrics:        map[string]any{},
	}
}

// PreservedDocuments is the literal document payload a chunk was created
// with, stored alongside the chunk manifest (documents.json) so it can be
// re-ingested on restoration.
type PreservedDocuments struct {
	ChunkID   string           `json:"chunk_id"`
	Documents []map[string]any `json:"documents"`
}
