package crawlexec

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := newStateStore(dir)

	require.NoError(t, store.recordSuccess("https://example.com/a"))
	require.NoError(t, store.recordFailure("https://example.com/b"))

	reloaded := newStateStore(dir)
	state, ok := reloaded.load()
	require.True(t, ok)
	require.Equal(t, []string{"https://example.com/a"}, state.Succeeded)
	require.Equal(t, []string{"https://example.com/b"}, state.Failed)

	require.FileExists(t, filepath.Join(dir, stateFileName))
}

func TestStateStoreLoadMissingFile(t *testing.T) {
	store := newStateStore(t.TempDir())
	_, ok := store.load()
	require.False(t, ok)
}
