package mcptransport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/chunkcore/internal/fingerprint"
	"github.com/aman-cerp/chunkcore/internal/switchcoordinator"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	fp, err := fingerprint.New(16)
	require.NoError(t, err)

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	coord := switchcoordinator.New(switchcoordinator.Config{
		DataDir:     t.TempDir(),
		Fingerprint: fp,
		LoraIDWidth: 4,
		Now:         func() time.Time { return clock },
	})

	srv, err := NewServer(coord, nil)
	require.NoError(t, err)
	return srv
}

func modelDir(t *testing.T, config string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(config), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.safetensors"), []byte("weights"), 0o644))
	return dir
}

func TestRegisterModel_RejectsEmptyPath(t *testing.T) {
	srv := newTestServer(t)
	_, _, err := srv.registerModel(context.Background(), nil, RegisterModelInput{})
	require.Error(t, err)
	mcpErr, ok := err.(*MCPError)
	require.True(t, ok)
	require.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestRegisterModel_ThenCreateChunk(t *testing.T) {
	srv := newTestServer(t)
	dir := modelDir(t, `{"model_type":"llama"}`)

	_, reg, err := srv.registerModel(context.Background(), nil, RegisterModelInput{ModelPath: dir})
	require.NoError(t, err)
	require.True(t, reg.IsNew)

	_, chunkOut, err := srv.createChunk(context.Background(), nil, CreateChunkInput{
		Documents: []map[string]any{{"id": "d1"}},
	})
	require.NoError(t, err)
	require.Equal(t, "chunk_0001", chunkOut.Chunk.ChunkID)

	_, listOut, err := srv.listUntrained(context.Background(), nil, ListUntrainedInput{})
	require.NoError(t, err)
	require.Len(t, listOut.Chunks, 1)
}

func TestGetChunk_UnknownIDReportsNotFound(t *testing.T) {
	srv := newTestServer(t)
	_, out, err := srv.getChunk(context.Background(), nil, GetChunkInput{ChunkID: "chunk_9999"})
	require.NoError(t, err)
	require.False(t, out.Found)
}

func TestSelectAdapter_UnknownReportsNotFound(t *testing.T) {
	srv := newTestServer(t)
	_, out, err := srv.selectAdapter(context.Background(), nil, SelectAdapterInput{LoraID: "lora_9999"})
	require.NoError(t, err)
	require.False(t, out.Found)
}

func TestHandleModelSwitch_ReportsRestorableChunksAfterInvalidation(t *testing.T) {
	srv := newTestServer(t)
	dirA := modelDir(t, `{"model_type":"llama"}`)
	dirB := modelDir(t, `{"model_type":"mistral"}`)

	_, _, err := srv.registerModel(context.Background(), nil, RegisterModelInput{ModelPath: dirA})
	require.NoError(t, err)

	_, chunkOut, err := srv.createChunk(context.Background(), nil, CreateChunkInput{
		Documents: []map[string]any{{"id": "d1"}},
	})
	require.NoError(t, err)

	_, _, err = srv.transitionChunk(context.Background(), nil, TransitionChunkInput{
		ChunkID: chunkOut.Chunk.ChunkID,
		Status:  "training",
	})
	require.NoError(t, err)

	adapterSrc := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(adapterSrc, "a.bin"), []byte("x"), 0o644))
	_, adapterOut, err := srv.registerAdapter(context.Background(), nil, RegisterAdapterInput{
		ChunkIDs:   []string{chunkOut.Chunk.ChunkID},
		SourcePath: adapterSrc,
	})
	require.NoError(t, err)

	_, switchOut, err := srv.handleModelSwitch(context.Background(), nil, HandleModelSwitchInput{ModelPath: dirB})
	require.NoError(t, err)
	require.True(t, switchOut.Changed)
	require.Contains(t, switchOut.UnusableLoras, adapterOut.Lora.LoraID)
	require.Equal(t, []string{chunkOut.Chunk.ChunkID}, switchOut.RestorableChunks)

	_, restoreOut, err := srv.restoreChunks(context.Background(), nil, RestoreChunksInput{})
	require.NoError(t, err)
	require.Equal(t, []string{chunkOut.Chunk.ChunkID}, restoreOut.Restored)
	require.Empty(t, restoreOut.Failed)
}

func TestOverview_ReflectsEmptyCore(t *testing.T) {
	srv := newTestServer(t)
	_, ov, err := srv.overview(context.Background(), nil, OverviewInput{})
	require.NoError(t, err)
	require.Nil(t, ov.CurrentModel)
	require.Equal(t, 0, ov.TotalChunks)
}

func TestOperationHistory_RecordsRegisterModel(t *testing.T) {
	srv := newTestServer(t)
	dir := modelDir(t, `{"model_type":"llama"}`)
	_, _, err := srv.registerModel(context.Background(), nil, RegisterModelInput{ModelPath: dir})
	require.NoError(t, err)

	_, out, err := srv.operationHistory(context.Background(), nil, OperationHistoryInput{Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, out.Entries)
	require.Equal(t, "model_registered", out.Entries[0].Operation)
}
