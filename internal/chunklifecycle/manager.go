// Package chunklifecycle implements the state machine over data chunks,
// document preservation, and the status-transition queries the Switch
// Coordinator delegates to.
package chunklifecycle

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/aman-cerp/chunkcore/internal/coreerrors"
	"github.com/aman-cerp/chunkcore/internal/coremodel"
	"github.com/aman-cerp/chunkcore/internal/regstore"
)

// Clock abstracts wall-clock time so tests can supply a fixed one.
type Clock func() time.Time

// Manager owns the chunks registry, the per-chunk manifest/documents files,
// and the striped per-chunk locks serializing transitions against the same
// chunk id.
type Manager struct {
	registry  *regstore.IDRegistry[coremodel.DataChunk]
	oplog     *regstore.OperationLog
	chunksDir string
	idWidth   int
	now       Clock

	locks sync.Map // chunk id -> *sync.Mutex
}

// New returns a Manager rooted at chunksDir, with its registry loaded from
// <chunksDir>/chunk_registry.json.
func New(chunksDir string, oplog *regstore.OperationLog, idWidth int, now Clock) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		registry:  regstore.OpenIDRegistry[coremodel.DataChunk](filepath.Join(chunksDir, "chunk_registry.json")),
		oplog:     oplog,
		chunksDir: chunksDir,
		idWidth:   idWidth,
		now:       now,
	}
}

func (m *Manager) lockFor(chunkID string) *sync.Mutex {
	v, _ := m.locks.LoadOrStore(chunkID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Create allocates the next chunk id, writes the per-chunk manifest and
// documents files, and registers the chunk as PENDING under currentModel.
func (m *Manager) Create(documents []map[string]any, character *string, metadata map[string]any, currentModel *string) (coremodel.DataChunk, error) {
	if len(documents) == 0 {
		return coremodel.DataChunk{}, coreerrors.InputErrorf(coreerrors.ErrCodeEmptyDocuments, "documents must not be empty")
	}

	chunkID, err := m.registry.NextID("chunk", m.idWidth)
	if err != nil {
		return coremodel.DataChunk{}, err
	}

	docIDs := make([]string, 0, len(documents))
	for _, d := range documents {
		if id, ok := d["id"].(string); ok {
			docIDs = append(docIDs, id)
		}
	}

	chunk := coremodel.NewDataChunk(chunkID, m.now(), docIDs, character, metadata)
	chunk.ModelIdentityHash = currentModel

	if err := m.putDocuments(chunkID, documents); err != nil {
		return coremodel.DataChunk{}, err
	}
	if err := m.registry.Put(chunkID, chunk); err != nil {
		return coremodel.DataChunk{}, err
	}
	if err := m.writeManifest(chunk); err != nil {
		return coremodel.DataChunk{}, err
	}

	m.logOp("chunk_created", map[string]any{"chunk_id": chunkID, "model": currentModel})
	return chunk, nil
}

// Transition validates and applies new_status, appending a history entry,
// rewriting the registry and manifest, and emitting an operation-log entry.
// An unknown chunk id is logged at warning level and otherwise ignored; a
// known chunk id with an illegal target returns a StateError.
func (m *Manager) Transition(chunkID string, newStatus coremodel.Status, details map[string]any) error {
	lock := m.lockFor(chunkID)
	lock.Lock()
	defer lock.Unlock()

	cur, ok := m.registry.Get(chunkID)
	if !ok {
		slog.Warn("transition requested for unknown chunk id, ignoring", "chunk_id", chunkID, "target_status", newStatus)
		return nil
	}

	if !isLegalTransition(cur.Status, newStatus) {
		return coreerrors.StateErrorf(coreerrors.ErrCodeIllegalTransition,
			"cannot transition chunk %s from %s to %s", chunkID, cur.Status, newStatus).
			WithDetail("chunk_id", chunkID).WithDetail("from", string(cur.Status)).WithDetail("to", string(newStatus))
	}

	return m.applyTransition(chunkID, newStatus, details, func(c coremodel.DataChunk) coremodel.DataChunk { return c })
}

// applyTransition runs extra against the current record, sets status,
// appends history, and persists registry + manifest atomically under the
// caller's per-chunk lock.
func (m *Manager) applyTransition(chunkID string, newStatus coremodel.Status, details map[string]any, extra func(coremodel.DataChunk) coremodel.DataChunk) error {
	var updated coremodel.DataChunk
	changed, err := m.registry.Mutate(chunkID, func(c coremodel.DataChunk) coremodel.DataChunk {
		c = extra(c)
		c.Status = newStatus
		c = c.AddHistory(m.now(), string(newStatus), details)
		updated = c
		return c
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if err := m.writeManifest(updated); err != nil {
		return err
	}

	m.logOp("chunk_status_changed", map[string]any{"chunk_id": chunkID, "status": newStatus, "details": details})
	return nil
}

// MarkTraining transitions a chunk to TRAINING.
func (m *Manager) MarkTraining(chunkID string) error {
	return m.Transition(chunkID, coremodel.StatusTraining, map[string]any{"message": "Training started"})
}

// MarkTrained writes loraID into the chunk record and transitions it to
// TRAINED in the same Mutate call, so no intermediate state with a set
// lora_id but a non-TRAINED status is ever persisted from this path.
func (m *Manager) MarkTrained(chunkID, loraID string) error {
	lock := m.lockFor(chunkID)
	lock.Lock()
	defer lock.Unlock()

	cur, ok := m.registry.Get(chunkID)
	if !ok {
		slog.Warn("mark_trained requested for unknown chunk id, ignoring", "chunk_id", chunkID)
		return nil
	}
	if !isLegalTransition(cur.Status, coremodel.StatusTrained) {
		return coreerrors.StateErrorf(coreerrors.ErrCodeIllegalTransition,
			"cannot transition chunk %s from %s to %s", chunkID, cur.Status, coremodel.StatusTrained).
			WithDetail("chunk_id", chunkID).WithDetail("from", string(cur.Status)).WithDetail("to", string(coremodel.StatusTrained))
	}

	details := map[string]any{"message": fmt.Sprintf("Trained into LoRA %s", loraID)}
	return m.applyTransition(chunkID, coremodel.StatusTrained, details, func(c coremodel.DataChunk) coremodel.DataChunk {
		c.LoraID = &loraID
		return c
	})
}

// MarkFailed transitions a chunk to FAILED, recording errMsg.
func (m *Manager) MarkFailed(chunkID, errMsg string) error {
	return m.Transition(chunkID, coremodel.StatusFailed, map[string]any{"message": fmt.Sprintf("Training failed: %s", errMsg)})
}

// MarkRestored transitions a chunk to RESTORED.
func (m *Manager) MarkRestored(chunkID string) error {
	return m.Transition(chunkID, coremodel.StatusRestored, map[string]any{"message": "Data restored to RAG"})
}

// Get returns the chunk record for chunkID.
func (m *Manager) Get(chunkID string) (coremodel.DataChunk, bool) {
	return m.registry.Get(chunkID)
}

// GetDocuments returns the PreservedDocuments payload for chunkID.
func (m *Manager) GetDocuments(chunkID string) ([]map[string]any, error) {
	path := m.documentsPath(chunkID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, coreerrors.NotFoundErrorf(coreerrors.ErrCodeChunkNotFound,
				"no preserved documents for chunk %s", chunkID).WithDetail("chunk_id", chunkID)
		}
		return nil, coreerrors.IOError(coreerrors.ErrCodeWriteFailed, fmt.Sprintf("failed to read documents for chunk %s", chunkID), err)
	}

	var preserved coremodel.PreservedDocuments
	if err := json.Unmarshal(data, &preserved); err != nil {
		return nil, coreerrors.RegistryError(fmt.Sprintf("documents file for chunk %s is corrupt", chunkID), err)
	}
	return preserved.Documents, nil
}

// DocumentsExist reports whether chunkID's PreservedDocuments file is present.
func (m *Manager) DocumentsExist(chunkID string) bool {
	_, err := os.Stat(m.documentsPath(chunkID))
	return err == nil
}

// ByStatusAndModel returns chunks filtered on status and/or model when
// supplied, sorted by created_at descending.
func (m *Manager) ByStatusAndModel(status *coremodel.Status, model *string) []coremodel.DataChunk {
	filtered := m.registry.Filter(func(_ string, c coremodel.DataChunk) bool {
		if status != nil && c.Status != *status {
			return false
		}
		if model != nil {
			if c.ModelIdentityHash == nil || *c.ModelIdentityHash != *model {
				return false
			}
		}
		return true
	})
	return sortedByCreatedAt(filtered)
}

// Untrained returns chunks in {PENDING, FAILED, RESTORED}, optionally
// filtered by model, sorted by created_at descending.
func (m *Manager) Untrained(model *string) []coremodel.DataChunk {
	filtered := m.registry.Filter(func(_ string, c coremodel.DataChunk) bool {
		if !isUntrained(c.Status) {
			return false
		}
		if model != nil && (c.ModelIdentityHash == nil || *c.ModelIdentityHash != *model) {
			return false
		}
		return true
	})
	return sortedByCreatedAt(filtered)
}

// Restorable returns chunks that qualify as restorable against
// targetModel: FAILED, RESTORED, or (TRAINED with a different model hash),
// AND whose PreservedDocuments file actually exists on disk.
func (m *Manager) Restorable(targetModel string) []coremodel.DataChunk {
	filtered := m.registry.Filter(func(id string, c coremodel.DataChunk) bool {
		if !isRestorable(c.Status, c.ModelIdentityHash, targetModel) {
			return false
		}
		return m.DocumentsExist(id)
	})
	return sortedByCreatedAt(filtered)
}

func sortedByCreatedAt(entries map[string]coremodel.DataChunk) []coremodel.DataChunk {
	out := make([]coremodel.DataChunk, 0, len(entries))
	for _, c := range entries {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *Manager) chunkDir(chunkID string) string {
	return filepath.Join(m.chunksDir, chunkID)
}

func (m *Manager) documentsPath(chunkID string) string {
	return filepath.Join(m.chunkDir(chunkID), "documents.json")
}

func (m *Manager) manifestPath(chunkID string) string {
	return filepath.Join(m.chunkDir(chunkID), "manifest.json")
}

func (m *Manager) putDocuments(chunkID string, documents []map[string]any) error {
	return regstore.SaveFile(m.documentsPath(chunkID), coremodel.PreservedDocuments{ChunkID: chunkID, Documents: documents})
}

// writeManifest overwrites the per-chunk manifest.json with chunk; the
// registry is authoritative, the manifest is simply overwritten on every
// transition and never merged.
func (m *Manager) writeManifest(chunk coremodel.DataChunk) error {
	return regstore.SaveFile(m.manifestPath(chunk.ChunkID), chunk)
}

func (m *Manager) logOp(operation string, details map[string]any) {
	if m.oplog == nil {
		return
	}
	_ = m.oplog.Append(m.now(), operation, details)
}
