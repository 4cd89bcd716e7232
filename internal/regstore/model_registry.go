package regstore

import (
	"fmt"
	"sync"

	"github.com/aman-cerp/chunkcore/internal/coreerrors"
)

// ModelRegistryDoc is the on-disk shape of models/model_registry.json: a
// mapping of known models plus the current-model pointer, not a flat
// id-keyed map like the chunk/adapter registries.
type ModelRegistryDoc[T any] struct {
	KnownModels  map[string]T `json:"known_models"`
	CurrentModel *string      `json:"current_model"`
}

// ModelRegistry persists KnownModel records plus the single current_model pointer.
type ModelRegistry[T any] struct {
	mu      sync.RWMutex
	path    string
	doc     ModelRegistryDoc[T]
	corrupt bool
}

// OpenModelRegistry loads path into a new ModelRegistry, or starts empty if
// the file is missing or unparseable.
func OpenModelRegistry[T any](path string) *ModelRegistry[T] {
	r := &ModelRegistry[T]{
		path: path,
		doc:  ModelRegistryDoc[T]{KnownModels: make(map[string]T)},
	}

	exists, corrupt := LoadFile(path, &r.doc)
	if !exists {
		return r
	}
	if corrupt {
		r.corrupt = true
		r.doc = ModelRegistryDoc[T]{KnownModels: make(map[string]T)}
		return r
	}
	if r.doc.KnownModels == nil {
		r.doc.KnownModels = make(map[string]T)
	}
	return r
}

// Corrupt reports whether the on-disk file existed but failed to parse.
func (r *ModelRegistry[T]) Corrupt() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.corrupt
}

// Get returns the known-model record for hash and whether it is present.
func (r *ModelRegistry[T]) Get(hash string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.doc.KnownModels[hash]
	return v, ok
}

// All returns a copy of every known model keyed by identity hash.
func (r *ModelRegistry[T]) All() map[string]T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]T, len(r.doc.KnownModels))
	for k, v := range r.doc.KnownModels {
		out[k] = v
	}
	return out
}

// CurrentModel returns the current model's identity hash, or "" if none is set.
func (r *ModelRegistry[T]) CurrentModel() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.doc.CurrentModel == nil {
		return ""
	}
	return *r.doc.CurrentModel
}

// SetCurrentAndUpsert atomically sets current_model to hash and inserts or
// mutates the known-model record for hash in the same write, so a restart
// between updating last_seen and switching current_model can never happen.
func (r *ModelRegistry[T]) SetCurrentAndUpsert(hash string, upsert func(existing T, had bool) T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.corrupt {
		return r.saveLocked()
	}

	existing, had := r.doc.KnownModels[hash]
	r.doc.KnownModels[hash] = upsert(existing, had)
	r.doc.CurrentModel = &hash
	return r.saveLocked()
}

// MutateKnown applies fn to the known-model record for hash, if present.
func (r *ModelRegistry[T]) MutateKnown(hash string, fn func(rec T) T) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.corrupt {
		return false, r.saveLocked()
	}

	cur, ok := r.doc.KnownModels[hash]
	if !ok {
		return false, nil
	}
	r.doc.KnownModels[hash] = fn(cur)
	return true, r.saveLocked()
}

func (r *ModelRegistry[T]) saveLocked() error {
	if r.corrupt {
		return coreerrors.New(coreerrors.ErrCodeRegistryWriteGated,
			fmt.Sprintf("registry %s is corrupt on disk; writes are gated until it is repaired or removed", r.path), nil)
	}
	return SaveFile(r.path, r.doc)
}
