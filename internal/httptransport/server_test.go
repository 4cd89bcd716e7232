package httptransport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
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
	return NewServer(coord, nil)
}

func modelDir(t *testing.T, config string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(config), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.safetensors"), []byte("weights"), 0o644))
	return dir
}

func TestOverview_ReturnsOKAndRequestID(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/overview", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestHandleModelSwitch_MissingPathReturns400(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/model-switch", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleModelSwitch_SameModelIsNoopOK(t *testing.T) {
	srv := newTestServer(t)
	dir := modelDir(t, `{"model_type":"llama"}`)

	body := `{"model_path":"` + dir + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/model-switch", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var first map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.Equal(t, false, first["changed"])

	req2 := httptest.NewRequest(http.MethodPost, "/v1/model-switch", strings.NewReader(body))
	rec2 := httptest.NewRecorder()
	srv.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)

	var second map[string]any
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &second))
	require.Equal(t, false, second["changed"])
}

func TestRestoreChunks_EmptyBodyDefaultsToAllRestorable(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/chunks/restore", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOperationHistory_RejectsNegativeLimit(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/history?limit=-1", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOperationHistory_ReturnsEntriesAfterRegisterModel(t *testing.T) {
	srv := newTestServer(t)
	dir := modelDir(t, `{"model_type":"llama"}`)

	body := `{"model_path":"` + dir + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/model-switch", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	histReq := httptest.NewRequest(http.MethodGet, "/v1/history?limit=5", nil)
	histRec := httptest.NewRecorder()
	srv.ServeHTTP(histRec, histReq)

	require.Equal(t, http.StatusOK, histRec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(histRec.Body.Bytes(), &out))
	entries, ok := out["entries"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, entries)
}
