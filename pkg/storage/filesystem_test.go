package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../escape.csv", []byte("x"))
	require.Error(t, err)
	_, err = store.Open("/etc/passwd")
	require.Error(t, err)
}

func TestLocalStorageSaveOpenCleanup(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save("scores-job-1.csv", []byte("id,name\n"))
	require.NoError(t, err)
	require.Equal(t, "scores-job-1.csv", name)

	file, err := store.Open(name)
	require.NoError(t, err)
	require.NoError(t, file.Close())

	// Everything is younger than the TTL, so nothing is removed.
	removed, err := store.CleanupOlderThan(time.Hour)
	require.NoError(t, err)
	require.Empty(t, removed)

	// A zero TTL treats every artifact as expired.
	removed, err = store.CleanupOlderThan(0)
	require.NoError(t, err)
	require.Equal(t, []string{"scores-job-1.csv"}, removed)

	_, err = store.Open(name)
	require.Error(t, err)
}
