package switchcoordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/chunkcore/internal/coremodel"
)

// TestEndToEnd_FreshInstallThroughSwitchBack walks a single Coordinator
// through fresh install, first chunk, training, a model switch that
// invalidates and restores that chunk, and a switch back to the original
// model, finishing with a corrupt registry file on a freshly opened
// Coordinator.
//
// The switch-back's compatible_loras expectation follows compatibleAdapters
// as written: it excludes only status=deleted adapters, never unusable
// ones, matching both the formal "adapters(current_model, not deleted)"
// rule and get_compatible_loras in the source this was distilled from.
// Under that rule lora_0001 (status=unusable, bound to model A) is
// compatible again once current_model is A; see DESIGN.md's Open question
// decisions for why this reading was chosen over a stricter one.
func TestEndToEnd_FreshInstallThroughSwitchBack(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(t)

	// Fresh install.
	ov := c.Overview()
	assert.Nil(t, ov.CurrentModel)
	assert.Equal(t, 0, ov.TotalChunks)
	assert.Equal(t, 0, ov.TotalLoras)

	// Register the first model and create the first chunk under it.
	dirA := modelDir(t, `{"model_type":"llama"}`)
	regA, err := c.RegisterModel(ctx, dirA, "")
	require.NoError(t, err)
	assert.True(t, regA.IsNew)
	assert.False(t, regA.ModelChanged)
	hashA := regA.IdentityHash

	chunk, err := c.CreateChunk([]map[string]any{{"id": "d1", "text": "x"}}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "chunk_0001", chunk.ChunkID)
	assert.Equal(t, coremodel.StatusPending, chunk.Status)
	require.NotNil(t, chunk.ModelIdentityHash)
	assert.Equal(t, hashA, *chunk.ModelIdentityHash)
	assert.Equal(t, 1, chunk.DocumentCount)

	untrained := c.ListUntrained(nil)
	require.Len(t, untrained, 1)
	assert.Equal(t, "chunk_0001", untrained[0].ChunkID)

	// Training round-trip.
	require.NoError(t, c.MarkChunkTraining("chunk_0001"))
	adapterSource := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(adapterSource, "ad.bin"), []byte("weights"), 0o644))
	adapter, err := c.RegisterAdapter(ctx, []string{"chunk_0001"}, adapterSource, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "lora_0001", adapter.LoraID)

	got, ok := c.GetChunk("chunk_0001")
	require.True(t, ok)
	assert.Equal(t, coremodel.StatusTrained, got.Status)
	require.NotNil(t, got.LoraID)
	assert.Equal(t, "lora_0001", *got.LoraID)

	compat := c.ListCompatibleAdapters(nil)
	require.Len(t, compat, 1)
	assert.Equal(t, "lora_0001", compat[0].LoraID)

	// Model switch invalidates the trained chunk's adapter and reports it
	// as restorable under the new model.
	dirB := modelDir(t, `{"model_type":"mistral"}`)
	switched, err := c.HandleModelSwitch(ctx, dirB, "")
	require.NoError(t, err)
	assert.True(t, switched.Changed)
	assert.Equal(t, []string{"lora_0001"}, switched.UnusableLoras)
	assert.Equal(t, []string{"chunk_0001"}, switched.RestorableChunks)
	assert.Equal(t, 1, switched.RestorableDocumentCount)
	assert.Empty(t, switched.CompatibleLoras)

	restoreResult, err := c.RestoreChunks(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk_0001"}, restoreResult.Restored)
	assert.Empty(t, restoreResult.Failed)
	assert.Equal(t, []map[string]any{{"id": "d1", "text": "x"}}, restoreResult.Documents)

	got, ok = c.GetChunk("chunk_0001")
	require.True(t, ok)
	assert.Equal(t, coremodel.StatusRestored, got.Status)

	// Switch back to the original model: a genuine change, not a repeat of
	// the same path.
	switchedBack, err := c.HandleModelSwitch(ctx, dirA, "")
	require.NoError(t, err)
	assert.True(t, switchedBack.Changed)
	assert.Equal(t, hashA, switchedBack.NewModel)
	assert.Empty(t, switchedBack.UnusableLoras, "lora_0001 was already unusable, marking it again is a no-op")
	assert.Equal(t, []string{"lora_0001"}, switchedBack.CompatibleLoras,
		"adapters(current_model, ¬deleted) includes unusable adapters bound to current_model")
	assert.Equal(t, []string{"chunk_0001"}, switchedBack.RestorableChunks,
		"a RESTORED chunk with its documents still on disk remains restorable")

	// Calling handle_model_switch twice with the same path is changed:true
	// then changed:false, with no further adapter mutation.
	switchedBackAgain, err := c.HandleModelSwitch(ctx, dirA, "")
	require.NoError(t, err)
	assert.False(t, switchedBackAgain.Changed)

	// A fresh Coordinator over a data dir whose chunk registry file is
	// corrupt tolerates it: empty in-memory state, file left untouched.
	dataDir := t.TempDir()
	chunksDir := filepath.Join(dataDir, "chunks")
	require.NoError(t, os.MkdirAll(chunksDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(chunksDir, "chunk_registry.json"), []byte("{"), 0o644))

	reopened := New(Config{DataDir: dataDir, Fingerprint: c.fp, LoraIDWidth: 4})
	assert.Empty(t, reopened.ListChunks(nil, nil))

	raw, err := os.ReadFile(filepath.Join(chunksDir, "chunk_registry.json"))
	require.NoError(t, err)
	assert.Equal(t, "{", string(raw), "a corrupt registry file must not be rewritten until a write is attempted")
}
