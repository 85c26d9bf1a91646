package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MicrohexHQ/libbitcoin-database/store"
)

func TestBeginEndWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.BeginWrite(map[string]uint64{"block_table": 100}))
	_, err = os.Stat(filepath.Join(dir, "flush_lock"))
	require.NoError(t, err)

	require.NoError(t, s.EndWrite())
	_, err = os.Stat(filepath.Join(dir, "flush_lock"))
	require.True(t, os.IsNotExist(err))
}

func TestSecondOpenIsRejected(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = store.Open(dir)
	require.ErrorIs(t, err, store.ErrAlreadyOpen)
}

func TestDanglingFlushLockBlocksReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.BeginWrite(nil))
	require.NoError(t, s.Close())

	_, err = store.Open(dir)
	require.ErrorIs(t, err, store.ErrDirtyShutdown)
}
