package fdcache

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGetReusesHandleForSamePath(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "fdcache")
	require.NoError(t, err)
	tmp.Close()

	c := New()
	h1, err := c.Get(tmp.Name())
	require.NoError(t, err)
	h2, err := c.Get(tmp.Name())
	require.NoError(t, err)

	assert.Same(t, h1.File(), h2.File())
	assert.Equal(t, 1, c.Len())

	c.Put(h1)
	assert.Equal(t, 1, c.Len(), "file stays open while a reference remains")
	c.Put(h2)
	assert.Equal(t, 0, c.Len())
}

func TestGetMissingFileReturnsError(t *testing.T) {
	c := New()
	_, err := c.Get("/nonexistent/path/for/fdcache/test")
	assert.Error(t, err)
}

func TestCloseReleasesAllHandles(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "fdcache")
	require.NoError(t, err)
	tmp.Close()

	c := New()
	_, err = c.Get(tmp.Name())
	require.NoError(t, err)
	c.Close()
	assert.Equal(t, 0, c.Len())
}
