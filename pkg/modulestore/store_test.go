package modulestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	digest, err := s.Put([]byte("syscall 0 0\nexit 1\n"), "local")
	require.NoError(t, err)
	assert.Equal(t, Digest([]byte("syscall 0 0\nexit 1\n")), digest)

	data, err := s.Get(digest)
	require.NoError(t, err)
	assert.Equal(t, "syscall 0 0\nexit 1\n", string(data))
}

func TestStore_PutIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	d1, err := s.Put([]byte("exit 0\n"), "local")
	require.NoError(t, err)
	d2, err := s.Put([]byte("exit 0\n"), "local")
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	mods, err := s.List()
	require.NoError(t, err)
	assert.Len(t, mods, 1)
}

func TestStore_Stat(t *testing.T) {
	s := openTestStore(t)

	digest, err := s.Put([]byte("exit 7\n"), "registry.example/guest:latest")
	require.NoError(t, err)

	meta, err := s.Stat(digest)
	require.NoError(t, err)
	assert.Equal(t, digest, meta.Digest)
	assert.Equal(t, int64(len("exit 7\n")), meta.Size)
	assert.Equal(t, "registry.example/guest:latest", meta.Origin)
}

func TestStore_GetUnknownDigestFails(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get("deadbeef")
	assert.ErrorIs(t, err, ErrReadModule)
}

func TestStore_StatUnknownDigestFails(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Stat("deadbeef")
	assert.ErrorIs(t, err, ErrQuery)
}

func TestStore_List(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Put([]byte("exit 1\n"), "local")
	require.NoError(t, err)
	_, err = s.Put([]byte("exit 2\n"), "local")
	require.NoError(t, err)

	mods, err := s.List()
	require.NoError(t, err)
	assert.Len(t, mods, 2)
}
