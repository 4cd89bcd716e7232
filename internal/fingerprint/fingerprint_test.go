package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModelDir(t *testing.T, config string, weightContent string) string {
	t.Helper()
	dir := t.TempDir()
	if config != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(config), 0o644))
	}
	if weightContent != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "model.safetensors"), []byte(weightContent), 0o644))
	}
	return dir
}

func TestIdentify_StableAcrossCalls(t *testing.T) {
	dir := writeModelDir(t, `{"model_type":"llama","hidden_size":4096}`, "weights-content")

	fp, err := New(16)
	require.NoError(t, err)

	id1, err := fp.Identify(dir)
	require.NoError(t, err)
	id2, err := fp.Identify(dir)
	require.NoError(t, err)

	assert.Equal(t, id1.IdentityHash, id2.IdentityHash)
	assert.Len(t, id1.IdentityHash, 16)
}

func TestIdentify_DiscriminatesOnConfig(t *testing.T) {
	dirA := writeModelDir(t, `{"model_type":"llama","hidden_size":4096}`, "weights-content")
	dirB := writeModelDir(t, `{"model_type":"llama","hidden_size":8192}`, "weights-content")

	fp, err := New(16)
	require.NoError(t, err)

	idA, err := fp.Identify(dirA)
	require.NoError(t, err)
	idB, err := fp.Identify(dirB)
	require.NoError(t, err)

	assert.NotEqual(t, idA.IdentityHash, idB.IdentityHash)
	assert.NotEqual(t, *idA.ConfigFingerprint, *idB.ConfigFingerprint)
}

func TestIdentify_EmptyDirHasNoConfigOrChecksum(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "empty-model-dir")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	fp, err := New(16)
	require.NoError(t, err)

	id, err := fp.Identify(sub)
	require.NoError(t, err)
	assert.Len(t, id.IdentityHash, 16)
	assert.Nil(t, id.ConfigFingerprint)
	assert.Nil(t, id.FileChecksum)
}

func TestIdentify_PicksLargestWeightFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "small.bin"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.safetensors"), []byte("xxxxxxxxxxxxxxxxxxxx"), 0o644))

	fp, err := New(16)
	require.NoError(t, err)

	id, err := fp.Identify(dir)
	require.NoError(t, err)
	require.NotNil(t, id.FileSize)
	assert.Equal(t, int64(20), *id.FileSize)
}

func TestConfigFingerprint_IgnoresUnrecognizedKeys(t *testing.T) {
	dirA := writeModelDir(t, `{"model_type":"llama","unrelated_field":"a"}`, "")
	dirB := writeModelDir(t, `{"model_type":"llama","unrelated_field":"b"}`, "")

	fp, err := New(16)
	require.NoError(t, err)

	idA, err := fp.Identify(dirA)
	require.NoError(t, err)
	idB, err := fp.Identify(dirB)
	require.NoError(t, err)

	require.NotNil(t, idA.ConfigFingerprint)
	require.NotNil(t, idB.ConfigFingerprint)
	assert.Equal(t, *idA.ConfigFingerprint, *idB.ConfigFingerprint, "unrecognized fields must not affect the fingerprint")
}

func TestIdentify_FileChecksumIsCached(t *testing.T) {
	dir := writeModelDir(t, "", "weights-content")

	fp, err := New(16)
	require.NoError(t, err)

	id1, err := fp.Identify(dir)
	require.NoError(t, err)

	assert.Equal(t, 1, fp.cache.Len())

	id2, err := fp.Identify(dir)
	require.NoError(t, err)
	assert.Equal(t, *id1.FileChecksum, *id2.FileChecksum)
	assert.Equal(t, 1, fp.cache.Len(), "a repeated identify against an unchanged file must not grow the cache")
}
