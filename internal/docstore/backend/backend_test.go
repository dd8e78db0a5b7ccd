package backend

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMemoryWithSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"clients":{"c1":{"nombre":"Ana"}}}`), 0o600))

	store, closer, err := Open(context.Background(), Options{Backend: Memory, SnapshotFile: path}, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	defer closer()

	count, err := store.Count(context.Background(), "clients")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestOpenMissingSnapshot(t *testing.T) {
	_, _, err := Open(context.Background(), Options{Backend: Memory, SnapshotFile: filepath.Join(t.TempDir(), "nope.json")}, nil)
	require.Error(t, err)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, _, err := Open(context.Background(), Options{Backend: "redis"}, nil)
	require.Error(t, err)
}
