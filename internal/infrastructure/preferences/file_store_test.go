package preferences

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visualmatch/console/internal/domain"
)

func TestFileStore_GetUnset(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "prefs.yaml"))

	_, err := store.Get("theme")
	assert.ErrorIs(t, err, domain.ErrPreferenceNotSet)
}

func TestFileStore_SetPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")

	store := NewFileStore(path)
	require.NoError(t, store.Set("theme", "dark"))
	require.NoError(t, store.Set("layout", "grid"))

	value, err := store.Get("theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", value)

	reopened := NewFileStore(path)
	value, err = reopened.Get("layout")
	require.NoError(t, err)
	assert.Equal(t, "grid", value)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "theme: dark")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("theme: [unterminated"), 0o644))

	store := NewFileStore(path)
	_, err := store.Get("theme")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrPreferenceNotSet)
}
