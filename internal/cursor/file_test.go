package cursor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoint.yaml")
	s := NewFileStore(path)

	_, found, err := s.Load(ctx, "Account")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Save(ctx, "Account", 15))
	require.NoError(t, s.Save(ctx, "Contract", 3))
	require.NoError(t, s.Save(ctx, "Account", 42))

	c, found, err := s.Load(ctx, "Account")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(42), c)

	// A fresh store sees what the previous one wrote.
	all, err := NewFileStore(path).All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Account": 42, "Contract": 3}, all)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Account: [not, a, number"), 0o644))

	_, _, err := NewFileStore(path).Load(context.Background(), "Account")
	assert.Error(t, err)
}

func TestFileStoreMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "checkpoint.yaml")
	err := NewFileStore(path).Save(context.Background(), "Account", 1)
	assert.Error(t, err)
}
