package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efficios/go-debuginfofilter/pkg/ctfir"
)

const testConfig = `
app:
  name: "test-filter"
  version: "v1.0.0"
  log_level: "info"
  log_format: "json"

server:
  enabled: false

metrics:
  enabled: false

tracing:
  enabled: false
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewLoadsAndValidatesConfig(t *testing.T) {
	a, err := New(writeConfig(t, testConfig))
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "test-filter", a.config.App.Name)
	assert.Equal(t, "v1.0.0", a.config.App.Version)
}

func TestNewRejectsMissingConfigFile(t *testing.T) {
	a, err := New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.Nil(t, a)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	a, err := New(writeConfig(t, "app:\n  log_level: \"verbose\"\n"))
	assert.Error(t, err)
	assert.Nil(t, a)
}

// noopUpstream never produces messages; it exists only to exercise
// NewIterator's wiring.
type noopUpstream struct{}

func (noopUpstream) Next(capacity int) ([]ctfir.Message, ctfir.Status) {
	return nil, ctfir.StatusEnd
}
func (noopUpstream) SeekToBeginning() ctfir.Status { return ctfir.StatusOK }
func (noopUpstream) CanSeekToBeginning() bool      { return true }

func TestNewIteratorSharesFDCacheAcrossIterators(t *testing.T) {
	a, err := New(writeConfig(t, testConfig))
	require.NoError(t, err)

	it1 := a.NewIterator(noopUpstream{})
	it2 := a.NewIterator(noopUpstream{})
	require.NotNil(t, it1)
	require.NotNil(t, it2)

	a.itersMu.Lock()
	n := len(a.iters)
	a.itersMu.Unlock()
	assert.Equal(t, 2, n)
}

func TestHealthzHandlerReportsOK(t *testing.T) {
	a, err := New(writeConfig(t, testConfig))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	a.healthzHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestDebugCacheHandlerAggregatesEveryIterator(t *testing.T) {
	a, err := New(writeConfig(t, testConfig))
	require.NoError(t, err)
	a.NewIterator(noopUpstream{})
	a.NewIterator(noopUpstream{})

	req := httptest.NewRequest(http.MethodGet, "/debug/cache", nil)
	w := httptest.NewRecorder()
	a.debugCacheHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Iterators int `json:"iterators"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Iterators)
}

func TestStopClosesEveryIteratorAndFDCache(t *testing.T) {
	a, err := New(writeConfig(t, testConfig))
	require.NoError(t, err)
	a.NewIterator(noopUpstream{})

	require.NoError(t, a.Start())
	assert.NoError(t, a.Stop())
}
