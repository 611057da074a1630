package friendsly

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path)
	ctx := context.Background()

	_, err := store.Get(ctx, KeyToken)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, store.Set(ctx, KeyToken, "abc"))
	require.NoError(t, store.Set(ctx, KeyWalletConnected, "true"))

	value, err := store.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "abc", value)

	// A new store over the same file sees the persisted entries.
	reopened := NewFileStore(path)
	value, err = reopened.Get(ctx, KeyWalletConnected)
	require.NoError(t, err)
	assert.Equal(t, "true", value)

	require.NoError(t, reopened.Delete(ctx, KeyToken))
	_, err = reopened.Get(ctx, KeyToken)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// Deleting a missing key is a no-op.
	require.NoError(t, reopened.Delete(ctx, KeyToken))
}

func TestFileStorePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileStore(path)

	require.NoError(t, store.Set(context.Background(), KeyToken, "abc"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	store := NewFileStore(path)
	_, err := store.Get(context.Background(), KeyToken)
	assert.Error(t, err)
}
