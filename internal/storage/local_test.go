package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreLifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "documents")
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	path, size, err := store.Save(context.Background(), strings.NewReader("%PDF-1.4 body"), ".pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(13), size)
	assert.Equal(t, ".pdf", filepath.Ext(path))
	assert.True(t, store.Exists(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))

	require.NoError(t, store.Remove(path))
	assert.False(t, store.Exists(path))
	assert.NoError(t, store.Remove(path))
}

func TestLocalStoreSaveHonoursCancel(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = store.Save(ctx, strings.NewReader("x"), ".pdf")
	assert.ErrorIs(t, err, context.Canceled)
}
