package regstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

func TestIDRegistry_PutAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	reg := OpenIDRegistry[testRecord](path)

	require.NoError(t, reg.Put("chunk_0001", testRecord{Name: "first"}))

	got, ok := reg.Get("chunk_0001")
	require.True(t, ok)
	assert.Equal(t, "first", got.Name)

	reloaded := OpenIDRegistry[testRecord](path)
	got, ok = reloaded.Get("chunk_0001")
	require.True(t, ok)
	assert.Equal(t, "first", got.Name)
}

func TestIDRegistry_NextID_Monotonic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	reg := OpenIDRegistry[testRecord](path)

	id1, err := reg.NextID("chunk", 4)
	require.NoError(t, err)
	id2, err := reg.NextID("chunk", 4)
	require.NoError(t, err)

	assert.Equal(t, "chunk_0001", id1)
	assert.Equal(t, "chunk_0002", id2)

	reloaded := OpenIDRegistry[testRecord](path)
	id3, err := reloaded.NextID("chunk", 4)
	require.NoError(t, err)
	assert.Equal(t, "chunk_0003", id3, "counter must survive a reload")
}

func TestIDRegistry_Mutate_UnknownIDIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	reg := OpenIDRegistry[testRecord](path)

	changed, err := reg.Mutate("chunk_9999", func(r testRecord) testRecord {
		r.Name = "changed"
		return r
	})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestIDRegistry_Mutate_AppliesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loras.json")
	reg := OpenIDRegistry[testRecord](path)
	require.NoError(t, reg.Put("lora_0001", testRecord{Name: "base"}))

	changed, err := reg.Mutate("lora_0001", func(r testRecord) testRecord {
		r.Name = "trained"
		return r
	})
	require.NoError(t, err)
	assert.True(t, changed)

	got, _ := reg.Get("lora_0001")
	assert.Equal(t, "trained", got.Name)
}

func TestIDRegistry_CorruptFile_GatesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chunks.json")

	writeRaw(t, path, "{not valid json")

	reg := OpenIDRegistry[testRecord](path)
	assert.True(t, reg.Corrupt())
	assert.Equal(t, 0, reg.Count(), "corrupt load degrades to an empty in-memory registry")

	err := reg.Put("chunk_0001", testRecord{Name: "x"})
	assert.Error(t, err, "writes must be gated while the on-disk file is corrupt")

	_, ok := reg.Get("chunk_0001")
	assert.False(t, ok, "a gated write must not pollute in-memory state either")

	raw := readRaw(t, path)
	assert.Equal(t, "{not valid json", raw, "the corrupt file on disk must be left untouched")
}

func TestIDRegistry_Filter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	reg := OpenIDRegistry[testRecord](path)
	require.NoError(t, reg.Put("chunk_0001", testRecord{Name: "a"}))
	require.NoError(t, reg.Put("chunk_0002", testRecord{Name: "b"}))

	out := reg.Filter(func(id string, rec testRecord) bool { return rec.Name == "b" })
	assert.Len(t, out, 1)
	_, ok := out["chunk_0002"]
	assert.True(t, ok)
}

func TestSortedByField_DescendingOrder(t *testing.T) {
	entries := map[string]testRecord{
		"a": {Name: "a", CreatedAt: "2024-01-01"},
		"b": {Name: "b", CreatedAt: "2024-06-01"},
		"c": {Name: "c", CreatedAt: "2024-03-01"},
	}
	sorted := SortedByField(entries, func(r testRecord) string { return r.CreatedAt })
	require.Len(t, sorted, 3)
	assert.Equal(t, "b", sorted[0].Name)
	assert.Equal(t, "c", sorted[1].Name)
	assert.Equal(t, "a", sorted[2].Name)
}

func TestModelRegistry_SetCurrentAndUpsert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	reg := OpenModelRegistry[testRecord](path)

	err := reg.SetCurrentAndUpsert("abc123", func(existing testRecord, had bool) testRecord {
		assert.False(t, had)
		return testRecord{Name: "llama"}
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", reg.CurrentModel())

	got, ok := reg.Get("abc123")
	require.True(t, ok)
	assert.Equal(t, "llama", got.Name)

	reloaded := OpenModelRegistry[testRecord](path)
	assert.Equal(t, "abc123", reloaded.CurrentModel())
}

func TestModelRegistry_MutateKnown_UnknownIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	reg := OpenModelRegistry[testRecord](path)

	changed, err := reg.MutateKnown("missing", func(r testRecord) testRecord { return r })
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestOperationLog_AppendAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "operations.jsonl")
	log := NewOperationLog(path)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, log.Append(base, "create_chunk", map[string]any{"chunk_id": "chunk_0001"}))
	require.NoError(t, log.Append(base.Add(time.Minute), "mark_chunk_trained", map[string]any{"chunk_id": "chunk_0001"}))

	entries, err := log.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "mark_chunk_trained", entries[0].Operation, "Recent returns newest first")
	assert.Equal(t, "create_chunk", entries[1].Operation)
}

func TestOperationLog_Recent_MissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "operations.jsonl")
	log := NewOperationLog(path)

	entries, err := log.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
