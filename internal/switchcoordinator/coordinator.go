// Package switchcoordinator binds the Fingerprinter, Registry Store, and
// Chunk Lifecycle Manager into the system's user-visible operations.
package switchcoordinator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/aman-cerp/chunkcore/internal/asynctask"
	"github.com/aman-cerp/chunkcore/internal/chunklifecycle"
	"github.com/aman-cerp/chunkcore/internal/coreerrors"
	"github.com/aman-cerp/chunkcore/internal/corelock"
	"github.com/aman-cerp/chunkcore/internal/coremodel"
	"github.com/aman-cerp/chunkcore/internal/fingerprint"
	"github.com/aman-cerp/chunkcore/internal/regstore"
)

// Clock abstracts wall-clock time so tests can supply a fixed one.
type Clock func() time.Time

// Coordinator holds the three registries and delegates fingerprinting and
// chunk-state transitions to its collaborators. Fingerprinting and adapter
// artifact copies run through asynctask.Run on their own goroutine and
// complete before RegistryMutex is ever taken, so a slow weight-file hash
// or a large artifact copy never blocks other coordinator calls. The mutex
// itself is held only for the registry read-modify-write sequence in
// RegisterModel and HandleModelSwitch.
type Coordinator struct {
	dataDir string

	models   *regstore.ModelRegistry[coremodel.KnownModel]
	adapters *regstore.IDRegistry[coremodel.AdapterRecord]
	chunks   *chunklifecycle.Manager
	oplog    *regstore.OperationLog

	fp  *fingerprint.Fingerprinter
	mu  corelock.RegistryMutex
	now Clock

	loraIDWidth int
}

// Config configures a new Coordinator.
type Config struct {
	DataDir     string
	Fingerprint *fingerprint.Fingerprinter
	LoraIDWidth int
	Now         Clock
}

// New constructs a Coordinator, loading the three registries under dataDir
// and wiring a fresh operation log and chunk lifecycle manager.
func New(cfg Config) *Coordinator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	width := cfg.LoraIDWidth
	if width == 0 {
		width = 4
	}

	chunksDir := filepath.Join(cfg.DataDir, "chunks")
	lorasDir := filepath.Join(cfg.DataDir, "loras")
	modelsDir := filepath.Join(cfg.DataDir, "models")
	historyDir := filepath.Join(cfg.DataDir, "history")

	oplog := regstore.NewOperationLog(filepath.Join(historyDir, "operations.jsonl"))

	return &Coordinator{
		dataDir:     cfg.DataDir,
		models:      regstore.OpenModelRegistry[coremodel.KnownModel](filepath.Join(modelsDir, "model_registry.json")),
		adapters:    regstore.OpenIDRegistry[coremodel.AdapterRecord](filepath.Join(lorasDir, "lora_registry.json")),
		chunks:      chunklifecycle.New(chunksDir, oplog, width, now),
		oplog:       oplog,
		fp:          cfg.Fingerprint,
		now:         now,
		loraIDWidth: width,
	}
}

func (c *Coordinator) lorasDir() string  { return filepath.Join(c.dataDir, "loras") }
func (c *Coordinator) modelsDir() string { return filepath.Join(c.dataDir, "models") }

func (c *Coordinator) logOp(operation string, details map[string]any) {
	_ = c.oplog.Append(c.now(), operation, details)
}

// RegisterModel identifies modelPath and updates the model registry. If the
// identity hash is new, inserts a KnownModel with times_used=1; otherwise
// bumps last_seen and times_used. current_model is always set to the
// observed identity_hash.
func (c *Coordinator) RegisterModel(ctx context.Context, modelPath string, friendlyName string) (RegisterModelResult, error) {
	if modelPath == "" {
		return RegisterModelResult{}, coreerrors.InputErrorf(coreerrors.ErrCodeEmptyPath, "model path must not be empty")
	}

	identified := <-asynctask.Run(ctx, func() (coremodel.ModelIdentity, error) {
		return c.fp.Identify(modelPath)
	})
	if identified.Err != nil {
		return RegisterModelResult{}, identified.Err
	}
	identity := identified.Value

	c.mu.Lock()
	defer c.mu.Unlock()

	previousModel := c.models.CurrentModel()
	var previousModelPtr *string
	if previousModel != "" {
		previousModelPtr = &previousModel
	}

	isNew := false
	var resultFriendlyName string

	err := c.models.SetCurrentAndUpsert(identity.IdentityHash, func(existing coremodel.KnownModel, had bool) coremodel.KnownModel {
		if !had {
			isNew = true
			name := friendlyName
			if name == "" {
				name = identity.Name
			}
			resultFriendlyName = name
			return coremodel.KnownModel{
				Identity:     identity,
				FriendlyName: name,
				FirstSeen:    c.now(),
				LastSeen:     c.now(),
				TimesUsed:    1,
				LoraIDs:      []string{},
			}
		}
		existing.LastSeen = c.now()
		existing.TimesUsed++
		resultFriendlyName = existing.FriendlyName
		return existing
	})
	if err != nil {
		return RegisterModelResult{}, err
	}

	modelChanged := previousModel != "" && previousModel != identity.IdentityHash

	c.logOp("model_registered", map[string]any{
		"identity_hash":  identity.IdentityHash,
		"name":           identity.Name,
		"is_new":         isNew,
		"model_changed":  modelChanged,
		"previous_model": previousModelPtr,
	})

	if isNew {
		slog.Info("new model registered", "name", identity.Name, "identity_hash", identity.IdentityHash)
	}

	return RegisterModelResult{
		IdentityHash:  identity.IdentityHash,
		Identity:      identity,
		IsNew:         isNew,
		ModelChanged:  modelChanged,
		PreviousModel: previousModelPtr,
		FriendlyName:  resultFriendlyName,
	}, nil
}

// DetectModelChange reports whether modelPath differs from current_model
// without mutating any registry.
func (c *Coordinator) DetectModelChange(ctx context.Context, modelPath string) (DetectModelChangeResult, error) {
	if modelPath == "" {
		return DetectModelChangeResult{}, coreerrors.InputErrorf(coreerrors.ErrCodeEmptyPath, "model path must not be empty")
	}

	identified := <-asynctask.Run(ctx, func() (coremodel.ModelIdentity, error) {
		return c.fp.Identify(modelPath)
	})
	if identified.Err != nil {
		return DetectModelChangeResult{}, identified.Err
	}
	identity := identified.Value

	current := c.models.CurrentModel()
	_, known := c.models.Get(identity.IdentityHash)

	return DetectModelChangeResult{
		Changed:     current != "" && current != identity.IdentityHash,
		Known:       known,
		CurrentHash: current,
		NewHash:     identity.IdentityHash,
		NewName:     identity.Name,
	}, nil
}

// HandleModelSwitch is the central protocol: registers the model, and if it
// changed, invalidates stale adapters and reports restorable chunks and
// compatible adapters for the new model.
func (c *Coordinator) HandleModelSwitch(ctx context.Context, modelPath string, friendlyName string) (SwitchSummary, error) {
	previous := c.models.CurrentModel()

	reg, err := c.RegisterModel(ctx, modelPath, friendlyName)
	if err != nil {
		return SwitchSummary{}, err
	}

	if !reg.ModelChanged {
		return SwitchSummary{
			Changed: false,
			Message: "Same model detected, no changes needed",
			Model:   reg,
		}, nil
	}

	newModel := reg.IdentityHash

	var unusableLoras []string
	if previous != "" {
		for id, rec := range c.adapters.All() {
			if rec.ModelIdentityHash != nil && *rec.ModelIdentityHash == previous && rec.Status == coremodel.AdapterActive {
				reason := fmt.Sprintf("Model changed from %s to %s", previous, newModel)
				if err := c.markAdapterUnusableLocked(id, reason); err != nil {
					slog.Warn("failed to mark adapter unusable during switch", "lora_id", id, "error", err)
					continue
				}
				unusableLoras = append(unusableLoras, id)
			}
		}
	}

	restorable := c.chunks.Restorable(newModel)
	restorableIDs := make([]string, len(restorable))
	restorableDocCount := 0
	for i, chunk := range restorable {
		restorableIDs[i] = chunk.ChunkID
		restorableDocCount += chunk.DocumentCount
	}

	compatible := c.compatibleAdapters(newModel)
	compatibleIDs := make([]string, len(compatible))
	for i, rec := range compatible {
		compatibleIDs[i] = rec.LoraID
	}

	summary := SwitchSummary{
		Changed:                 true,
		PreviousModel:           reg.PreviousModel,
		NewModel:                newModel,
		Model:                   reg,
		UnusableLoras:           unusableLoras,
		UnusableLoraCount:       len(unusableLoras),
		RestorableChunks:        restorableIDs,
		RestorableChunkCount:    len(restorableIDs),
		RestorableDocumentCount: restorableDocCount,
		CompatibleLoras:         compatibleIDs,
		CompatibleLoraCount:     len(compatibleIDs),
		ActionNeeded:            len(restorableIDs) > 0,
	}

	c.logOp("model_switch", map[string]any{
		"previous_model":            summary.PreviousModel,
		"new_model":                 summary.NewModel,
		"unusable_lora_count":       summary.UnusableLoraCount,
		"restorable_chunk_count":    summary.RestorableChunkCount,
		"restorable_document_count": summary.RestorableDocumentCount,
		"compatible_lora_count":     summary.CompatibleLoraCount,
	})

	return summary, nil
}

// RestoreChunks restores the given chunk ids (or every currently restorable
// chunk when chunkIDs is nil), concatenating their PreservedDocuments and
// transitioning each to RESTORED. A failure to restore one chunk never
// aborts the others.
func (c *Coordinator) RestoreChunks(chunkIDs []string) (RestoreResult, error) {
	if chunkIDs == nil {
		current := c.models.CurrentModel()
		for _, chunk := range c.chunks.Restorable(current) {
			chunkIDs = append(chunkIDs, chunk.ChunkID)
		}
	}

	var documents []map[string]any
	var restored, failed []string

	for _, chunkID := range chunkIDs {
		docs, err := c.chunks.GetDocuments(chunkID)
		if err != nil {
			failed = append(failed, chunkID)
			slog.Warn("could not restore chunk, documents not found", "chunk_id", chunkID, "error", err)
			continue
		}
		documents = append(documents, docs...)
		if err := c.chunks.MarkRestored(chunkID); err != nil {
			failed = append(failed, chunkID)
			continue
		}
		restored = append(restored, chunkID)
	}

	c.logOp("chunks_restored", map[string]any{
		"restored":       restored,
		"failed":         failed,
		"document_count": len(documents),
	})

	return RestoreResult{
		Restored:       restored,
		Failed:         failed,
		TotalDocuments: len(documents),
		Documents:      documents,
	}, nil
}

// CreateChunk delegates to the chunk lifecycle manager, stamping the chunk
// with the currently registered model.
func (c *Coordinator) CreateChunk(documents []map[string]any, character *string, metadata map[string]any) (coremodel.DataChunk, error) {
	current := c.models.CurrentModel()
	var currentPtr *string
	if current != "" {
		currentPtr = &current
	}
	return c.chunks.Create(documents, character, metadata, currentPtr)
}

// GetChunk returns a chunk record by id.
func (c *Coordinator) GetChunk(chunkID string) (coremodel.DataChunk, bool) {
	return c.chunks.Get(chunkID)
}

// GetChunkDocuments returns the preserved documents for a chunk.
func (c *Coordinator) GetChunkDocuments(chunkID string) ([]map[string]any, error) {
	return c.chunks.GetDocuments(chunkID)
}

// ListChunks returns chunks filtered by status/model, newest first.
func (c *Coordinator) ListChunks(status *coremodel.Status, model *string) []coremodel.DataChunk {
	return c.chunks.ByStatusAndModel(status, model)
}

// ListUntrained returns untrained chunks, optionally filtered by model.
func (c *Coordinator) ListUntrained(model *string) []coremodel.DataChunk {
	return c.chunks.Untrained(model)
}

// ListRestorable returns restorable chunks against model, defaulting to
// current_model.
func (c *Coordinator) ListRestorable(model *string) []coremodel.DataChunk {
	target := c.models.CurrentModel()
	if model != nil {
		target = *model
	}
	return c.chunks.Restorable(target)
}

// TransitionChunk applies a raw lifecycle transition.
func (c *Coordinator) TransitionChunk(chunkID string, target coremodel.Status, details map[string]any) error {
	return c.chunks.Transition(chunkID, target, details)
}

// MarkChunkTraining marks chunkID TRAINING.
func (c *Coordinator) MarkChunkTraining(chunkID string) error { return c.chunks.MarkTraining(chunkID) }

// MarkChunkFailed marks chunkID FAILED with errMsg.
func (c *Coordinator) MarkChunkFailed(chunkID, errMsg string) error {
	return c.chunks.MarkFailed(chunkID, errMsg)
}

// RegisterAdapter allocates a new adapter id, copies the artifact tree from
// sourcePath into <loras_dir>/model_<current_model>/<lora_id>/, and on
// success inserts the AdapterRecord, appends it to the current model's
// lora_ids, and marks each listed chunk TRAINED. On copy failure the
// partially-written destination is removed and no AdapterRecord is written;
// the adapter id counter has already been advanced and persisted by NextID
// at that point, so the allocated id is not reused.
func (c *Coordinator) RegisterAdapter(ctx context.Context, chunkIDs []string, sourcePath string, trainingConfig, metrics map[string]any) (coremodel.AdapterRecord, error) {
	if sourcePath == "" {
		return coremodel.AdapterRecord{}, coreerrors.InputErrorf(coreerrors.ErrCodeEmptyPath, "adapter source path must not be empty")
	}

	current := c.models.CurrentModel()
	loraID, err := c.adapters.NextID("lora", c.loraIDWidth)
	if err != nil {
		return coremodel.AdapterRecord{}, err
	}

	record := coremodel.NewAdapterRecord(loraID, c.now())
	record.ChunkIDs = chunkIDs
	if trainingConfig != nil {
		record.TrainingConfig = trainingConfig
	}
	if metrics != nil {
		record.Metrics = metrics
	}
	if current != "" {
		record.ModelIdentityHash = &current
		if known, ok := c.models.Get(current); ok {
			record.ModelName = &known.FriendlyName
			if known.Identity.ModelType != nil {
				record.ModelType = known.Identity.ModelType
			}
		}
	}

	destDir := filepath.Join(c.lorasDir(), fmt.Sprintf("model_%s", current), loraID)
	copied := <-asynctask.Run(ctx, func() (struct{}, error) {
		return struct{}{}, copyPath(sourcePath, destDir)
	})
	if copied.Err != nil {
		_ = removeAll(destDir)
		return coremodel.AdapterRecord{}, coreerrors.New(coreerrors.ErrCodeCopyFailed,
			fmt.Sprintf("failed to copy adapter artifacts from %s", sourcePath), copied.Err)
	}
	record.Path = &destDir

	if err := c.adapters.Put(loraID, record); err != nil {
		_ = removeAll(destDir)
		return coremodel.AdapterRecord{}, err
	}

	if current != "" {
		if _, err := c.models.MutateKnown(current, func(m coremodel.KnownModel) coremodel.KnownModel {
			for _, id := range m.LoraIDs {
				if id == loraID {
					return m
				}
			}
			m.LoraIDs = append(m.LoraIDs, loraID)
			return m
		}); err != nil {
			return coremodel.AdapterRecord{}, err
		}
	}

	for _, chunkID := range chunkIDs {
		if err := c.chunks.MarkTrained(chunkID, loraID); err != nil {
			slog.Warn("failed to mark chunk trained after adapter registration", "chunk_id", chunkID, "lora_id", loraID, "error", err)
		}
	}

	c.logOp("lora_registered", map[string]any{
		"lora_id":   loraID,
		"model":     current,
		"chunk_ids": chunkIDs,
		"path":      destDir,
	})

	slog.Info("registered adapter", "lora_id", loraID, "model", current)
	return record, nil
}

// SelectAdapter validates loraID's compatibility with current_model. Returns
// nil when unknown or deleted, preserving the source's asymmetry between
// "not found" (nil) and "found but incompatible" (a structured envelope).
func (c *Coordinator) SelectAdapter(loraID string) (*SelectAdapterResult, error) {
	record, ok := c.adapters.Get(loraID)
	if !ok || record.Status == coremodel.AdapterDeleted {
		return nil, nil
	}

	current := c.models.CurrentModel()
	if record.ModelIdentityHash != nil && *record.ModelIdentityHash != current {
		modelName := "unknown"
		if record.ModelName != nil {
			modelName = *record.ModelName
		}
		slog.Warn("adapter trained for a different model than current", "lora_id", loraID, "trained_for", *record.ModelIdentityHash, "current", current)
		return &SelectAdapterResult{
			Compatible: false,
			Adapter:    record,
			Reason:     fmt.Sprintf("LoRA trained for different model (trained: %s, current: %s)", modelName, current),
		}, nil
	}

	return &SelectAdapterResult{
		Compatible: true,
		Adapter:    record,
		Path:       record.Path,
	}, nil
}

// MarkAdapterUnusable marks loraID unusable with reason.
func (c *Coordinator) MarkAdapterUnusable(loraID, reason string) error {
	return c.markAdapterUnusableLocked(loraID, reason)
}

func (c *Coordinator) markAdapterUnusableLocked(loraID, reason string) error {
	now := c.now()
	changed, err := c.adapters.Mutate(loraID, func(r coremodel.AdapterRecord) coremodel.AdapterRecord {
		r.Status = coremodel.AdapterUnusable
		r.UnusableReason = &reason
		r.MarkedUnusableAt = &now
		return r
	})
	if err != nil {
		return err
	}
	if !changed {
		return coreerrors.NotFoundErrorf(coreerrors.ErrCodeAdapterNotFound, "unknown adapter id %s", loraID)
	}
	c.logOp("lora_marked_unusable", map[string]any{"lora_id": loraID, "reason": reason})
	return nil
}

// DeleteAdapter marks loraID deleted, optionally removing its artifact
// files on disk.
func (c *Coordinator) DeleteAdapter(loraID string, deleteFiles bool) error {
	record, ok := c.adapters.Get(loraID)
	if !ok {
		return coreerrors.NotFoundErrorf(coreerrors.ErrCodeAdapterNotFound, "unknown adapter id %s", loraID)
	}

	if deleteFiles && record.Path != nil {
		if err := removeAll(*record.Path); err != nil {
			return coreerrors.New(coreerrors.ErrCodeDiskFull, fmt.Sprintf("failed to delete adapter files at %s", *record.Path), err)
		}
	}

	now := c.now()
	if _, err := c.adapters.Mutate(loraID, func(r coremodel.AdapterRecord) coremodel.AdapterRecord {
		r.Status = coremodel.AdapterDeleted
		r.DeletedAt = &now
		return r
	}); err != nil {
		return err
	}

	c.logOp("lora_deleted", map[string]any{"lora_id": loraID, "files_deleted": deleteFiles})
	return nil
}

// ListKnownModels returns all KnownModels, newest last_seen first.
func (c *Coordinator) ListKnownModels() []KnownModelView {
	current := c.models.CurrentModel()
	all := c.models.All()
	views := make([]KnownModelView, 0, len(all))
	for hash, m := range all {
		modelType := "unknown"
		if m.Identity.ModelType != nil {
			modelType = *m.Identity.ModelType
		}
		name := m.FriendlyName
		if name == "" {
			name = m.Identity.Name
		}
		views = append(views, KnownModelView{
			IdentityHash: hash,
			Name:         name,
			ModelType:    modelType,
			FirstSeen:    m.FirstSeen.Format(time.RFC3339),
			LastSeen:     m.LastSeen.Format(time.RFC3339),
			TimesUsed:    m.TimesUsed,
			LoraCount:    len(m.LoraIDs),
			IsCurrent:    hash == current,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].LastSeen > views[j].LastSeen })
	return views
}

// compatibleAdapters returns every non-deleted adapter (active or unusable)
// bound to target, newest created_at first.
func (c *Coordinator) compatibleAdapters(target string) []coremodel.AdapterRecord {
	if target == "" {
		return nil
	}
	filtered := c.adapters.Filter(func(_ string, r coremodel.AdapterRecord) bool {
		return r.ModelIdentityHash != nil && *r.ModelIdentityHash == target && r.Status != coremodel.AdapterDeleted
	})
	return regstore.SortedByField(filtered, func(r coremodel.AdapterRecord) string { return r.CreatedAt.Format(time.RFC3339) })
}

// ListCompatibleAdapters returns adapters compatible with modelHash,
// defaulting to current_model.
func (c *Coordinator) ListCompatibleAdapters(modelHash *string) []coremodel.AdapterRecord {
	target := c.models.CurrentModel()
	if modelHash != nil {
		target = *modelHash
	}
	return c.compatibleAdapters(target)
}

// Overview returns counts per status per entity plus drift visibility.
func (c *Coordinator) Overview() Overview {
	current := c.models.CurrentModel()
	var currentPtr *string
	if current != "" {
		currentPtr = &current
	}

	chunksByStatus := map[string]int{}
	totalChunks := 0
	for _, chunk := range c.chunks.ByStatusAndModel(nil, nil) {
		totalChunks++
		chunksByStatus[string(chunk.Status)]++
	}

	adapters := c.adapters.All()
	lorasByStatus := map[string]int{}
	staleActive := 0
	for _, rec := range adapters {
		lorasByStatus[string(rec.Status)]++
		if rec.Status == coremodel.AdapterActive && (rec.ModelIdentityHash == nil || *rec.ModelIdentityHash != current) {
			staleActive++
		}
	}

	return Overview{
		CurrentModel:        currentPtr,
		CurrentModelName:    c.modelName(current),
		KnownModels:         len(c.models.All()),
		TotalChunks:         totalChunks,
		ChunksByStatus:      chunksByStatus,
		TotalLoras:          len(adapters),
		LorasByStatus:       lorasByStatus,
		CompatibleLoras:     len(c.compatibleAdapters(current)),
		RestorableChunks:    len(c.chunks.Restorable(current)),
		UntrainedChunks:     len(c.chunks.Untrained(nil)),
		ActiveAdaptersStale: staleActive,
	}
}

func (c *Coordinator) modelName(hash string) string {
	if hash == "" {
		return "None"
	}
	if m, ok := c.models.Get(hash); ok {
		if m.FriendlyName != "" {
			return m.FriendlyName
		}
		return truncate(hash, 8)
	}
	return truncate(hash, 8)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// OperationHistory returns the last limit operation log entries, newest first.
func (c *Coordinator) OperationHistory(limit int) ([]regstore.OperationEntry, error) {
	return c.oplog.Recent(limit)
}
