package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// TestAccountStore_CreatePersists checks created accounts land in the log,
// one per line, and survive a reopen in creation order.
func TestAccountStore_CreatePersists(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenAccountStore(dir, 1)
	require.NoError(t, err)
	require.NoError(t, s.Create("alice"))
	require.NoError(t, s.Create("bob"))

	assert.Equal(t, "alice\nbob\n", readLog(t, filepath.Join(dir, "account_list_1.log")))

	reopened, err := OpenAccountStore(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, reopened.All())
	assert.True(t, reopened.Contains("alice"))
	assert.False(t, reopened.Contains("carol"))
}

// TestAccountStore_RemoveRewritesLog checks removal drops the name from both
// memory and the log while preserving the order of the rest.
func TestAccountStore_RemoveRewritesLog(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenAccountStore(dir, 2)
	require.NoError(t, err)
	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, s.Create(name))
	}

	require.NoError(t, s.Remove("bob"))

	assert.Equal(t, []string{"alice", "carol"}, s.All())
	assert.False(t, s.Contains("bob"))
	assert.Equal(t, "alice\ncarol\n", readLog(t, filepath.Join(dir, "account_list_2.log")))

	// Removing an unregistered name changes nothing.
	require.NoError(t, s.Remove("bob"))
	assert.Equal(t, []string{"alice", "carol"}, s.All())
}

// TestAccountStore_Search checks prefix matching is case-insensitive,
// anchored at the start, and returns names in creation order.
func TestAccountStore_Search(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenAccountStore(dir, 1)
	require.NoError(t, err)
	for _, name := range []string{"Alice", "albert", "bob", "ALINA", "hal"} {
		require.NoError(t, s.Create(name))
	}

	t.Run("CaseInsensitivePrefix", func(t *testing.T) {
		got, err := s.Search("al")
		require.NoError(t, err)
		assert.Equal(t, []string{"Alice", "albert", "ALINA"}, got)
	})

	t.Run("PrefixDoesNotMatchMiddle", func(t *testing.T) {
		got, err := s.Search("l")
		require.NoError(t, err)
		assert.Empty(t, got, `"hal" contains but does not start with "l"`)
	})

	t.Run("WildcardMatchesAllInOrder", func(t *testing.T) {
		got, err := s.Search(".*")
		require.NoError(t, err)
		assert.Equal(t, []string{"Alice", "albert", "bob", "ALINA", "hal"}, got)
	})

	t.Run("AlternationIsAnchoredAsAWhole", func(t *testing.T) {
		got, err := s.Search("bob|hal")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob", "hal"}, got)
	})

	t.Run("MalformedPatternIsAnError", func(t *testing.T) {
		_, err := s.Search("[")
		assert.Error(t, err)
	})
}

// TestAccountStore_Clear checks clearing empties memory and the log.
func TestAccountStore_Clear(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenAccountStore(dir, 1)
	require.NoError(t, err)
	require.NoError(t, s.Create("alice"))
	require.NoError(t, s.Clear())

	assert.Empty(t, s.All())
	assert.False(t, s.Contains("alice"))
	assert.Equal(t, "", readLog(t, filepath.Join(dir, "account_list_1.log")))
}

// TestAccountStore_MissingFileIsEmptyStore checks a replica starting with no
// log begins with zero accounts instead of failing.
func TestAccountStore_MissingFileIsEmptyStore(t *testing.T) {
	s, err := OpenAccountStore(t.TempDir(), 3)
	require.NoError(t, err)
	assert.Empty(t, s.All())
}
