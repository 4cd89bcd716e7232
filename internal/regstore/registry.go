// Package regstore implements persistent key-value documents, one per
// registry (chunks, adapters, models), with atomic replacement and an
// append-only operation log.
package regstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/aman-cerp/chunkcore/internal/coreerrors"
)

// counterKey is the bookkeeping key holding the monotonic id counter.
const counterKey = "_counter"

// IDRegistry is a mapping from entity id to entity record T, plus a
// monotonic counter, persisted as a single flat JSON document: record keys
// sit alongside the "_counter" bookkeeping key at the top level, matching
// the source's chunk_registry.json / lora_registry.json shape exactly.
type IDRegistry[T any] struct {
	mu      sync.RWMutex
	path    string
	entries map[string]T
	counter int64
	corrupt bool
}

// OpenIDRegistry loads path into a new IDRegistry, or starts empty if the
// file is missing or unparseable (corrupt files are left on disk; see
// regstore.LoadFile).
func OpenIDRegistry[T any](path string) *IDRegistry[T] {
	r := &IDRegistry[T]{
		path:    path,
		entries: make(map[string]T),
	}

	var raw map[string]json.RawMessage
	exists, corrupt := LoadFile(path, &raw)
	if !exists || corrupt {
		r.corrupt = corrupt
		return r
	}

	for key, data := range raw {
		if key == counterKey {
			_ = json.Unmarshal(data, &r.counter)
			continue
		}
		var rec T
		if err := json.Unmarshal(data, &rec); err != nil {
			// A single malformed record degrades to being skipped, not a
			// whole-registry failure; entity ids are independent.
			continue
		}
		r.entries[key] = rec
	}

	return r
}

// Corrupt reports whether the on-disk file existed but failed to parse on load.
func (r *IDRegistry[T]) Corrupt() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.corrupt
}

// Get returns the record for id and whether it was present.
func (r *IDRegistry[T]) Get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[id]
	return v, ok
}

// All returns a copy of every record keyed by id.
func (r *IDRegistry[T]) All() map[string]T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]T, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

// Filter returns records (and their ids) for which keep returns true.
// "_"-prefixed bookkeeping keys never enter entries in the first place, so
// callers never need to filter them out themselves.
func (r *IDRegistry[T]) Filter(keep func(id string, rec T) bool) map[string]T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]T)
	for id, rec := range r.entries {
		if keep(id, rec) {
			out[id] = rec
		}
	}
	return out
}

// Put inserts or replaces the record for id and persists the registry.
func (r *IDRegistry[T]) Put(id string, rec T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.corrupt {
		return r.saveLocked()
	}
	r.entries[id] = rec
	return r.saveLocked()
}

// Mutate applies fn to the current record for id (if present) under the
// registry's lock and persists the result in the same write, so a
// multi-field update (e.g. writing lora_id and status together) never
// produces an intermediate on-disk state. Returns false if id is unknown.
func (r *IDRegistry[T]) Mutate(id string, fn func(rec T) T) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.corrupt {
		return false, r.saveLocked()
	}

	cur, ok := r.entries[id]
	if !ok {
		return false, nil
	}
	r.entries[id] = fn(cur)
	return true, r.saveLocked()
}

// NextID increments the counter and formats "<prefix>_%0<width>d", then
// persists the registry so the counter survives a restart.
func (r *IDRegistry[T]) NextID(prefix string, width int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.corrupt {
		return "", r.saveLocked()
	}
	r.counter++
	id := fmt.Sprintf("%s_%0*d", prefix, width, r.counter)
	return id, r.saveLocked()
}

// Count returns the number of records held.
func (r *IDRegistry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// SortedByField is a small helper for queries that need entries sorted by a
// derived string key (typically created_at) in descending order.
func SortedByField[T any](entries map[string]T, key func(T) string) []T {
	type pair struct {
		k string
		v T
	}
	pairs := make([]pair, 0, len(entries))
	for _, v := range entries {
		pairs = append(pairs, pair{k: key(v), v: v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].k > pairs[j].k })
	out := make([]T, len(pairs))
	for i, p := range pairs {
		out[i] = p.v
	}
	return out
}

func (r *IDRegistry[T]) saveLocked() error {
	if r.corrupt {
		return coreerrors.New(coreerrors.ErrCodeRegistryWriteGated,
			fmt.Sprintf("registry %s is corrupt on disk; writes are gated until it is repaired or removed", r.path), nil)
	}

	doc := make(map[string]any, len(r.entries)+1)
	for id, rec := range r.entries {
		doc[id] = rec
	}
	doc[counterKey] = r.counter
	return SaveFile(r.path, doc)
}
