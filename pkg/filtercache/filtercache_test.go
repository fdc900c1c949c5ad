package filtercache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "filters"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEmptyStore(t *testing.T) {
	s := openStore(t)

	names, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, names)

	writtenAt, err := s.WrittenAt()
	require.NoError(t, err)
	assert.True(t, writtenAt.IsZero())
}

func TestSaveReplacesDeviceSet(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Save([]string{"/dev/a", "/dev/b"}))
	names, err := s.Load()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/dev/a", "/dev/b"}, names)

	// A later save fully replaces the set, stale entries included.
	require.NoError(t, s.Save([]string{"/dev/c"}))
	names, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/c"}, names)

	writtenAt, err := s.WrittenAt()
	require.NoError(t, err)
	assert.False(t, writtenAt.IsZero())
}

func TestSaveEmptySetClears(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Save([]string{"/dev/a"}))
	require.NoError(t, s.Save(nil))

	names, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, names)
}
