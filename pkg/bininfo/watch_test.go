package bininfo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efficios/go-debuginfofilter/pkg/fdcache"
)

func TestWatcherWaitForCreateObservesNewFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, nil)
	require.NoError(t, err)
	defer w.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "foo.debug"), []byte{1}, 0644))
	}()

	assert.True(t, w.WaitForCreate(time.Second))
}

func TestWatcherWaitForCreateTimesOutWithNoActivity(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, nil)
	require.NoError(t, err)
	defer w.Close()

	assert.False(t, w.WaitForCreate(50 * time.Millisecond))
}

func TestEnsureDWARFRetriesOnceAfterWatchedFileAppears(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, nil)
	require.NoError(t, err)
	defer w.Close()

	b := &BinaryInfo{path: filepath.Join(dir, "nonexistent-binary"), isPIC: false, fdc: fdcache.New()}
	b.SetWatcher(w)

	go func() {
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "trigger"), []byte{1}, 0644))
	}()

	start := time.Now()
	b.ensureDWARF()
	elapsed := time.Since(start)

	assert.True(t, b.isELFOnly, "still no usable DWARF, since the created file is not a real debug companion")
	assert.True(t, b.waitedOnce)
	assert.Less(t, elapsed, watchRetryTimeout, "should return as soon as the watched event fires, not wait out the full timeout")
}
