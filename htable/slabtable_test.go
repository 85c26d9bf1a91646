package htable_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MicrohexHQ/libbitcoin-database/htable"
	"github.com/MicrohexHQ/libbitcoin-database/mmfile"
	"github.com/MicrohexHQ/libbitcoin-database/slab"
)

func newSlabTable(t *testing.T, buckets uint64, keyLen int) *htable.SlabTable {
	t.Helper()
	f, err := mmfile.Open(filepath.Join(t.TempDir(), "data"), 1.5)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	h, err := htable.OpenHeader(f, mmfile.HeaderSize, buckets, htable.SlabEntry, htable.EmptySlab)
	require.NoError(t, err)

	sm, err := slab.Open(f, h.EndOffset())
	require.NoError(t, err)

	return htable.NewSlabTable(h, sm, keyLen)
}

func key(b byte) []byte {
	k := make([]byte, 4)
	k[0] = b
	return k
}

func TestSlabTableStoreFind(t *testing.T) {
	tbl := newSlabTable(t, 8, 4)

	off, err := tbl.StoreBytes(key(1), []byte("hello"))
	require.NoError(t, err)
	require.NotZero(t, off)

	payload, gotOff, found := tbl.Find(key(1))
	require.True(t, found)
	require.Equal(t, off, gotOff)
	require.Equal(t, "hello", string(payload[:5]))
}

func TestSlabTableChainHeadConsistency(t *testing.T) {
	tbl := newSlabTable(t, 4, 4)

	_, err := tbl.StoreBytes(key(9), []byte("first"))
	require.NoError(t, err)
	payload, _, found := tbl.Find(key(9))
	require.True(t, found)
	require.Equal(t, "first", string(payload[:5]))

	_, err = tbl.StoreBytes(key(9), []byte("second"))
	require.NoError(t, err)
	payload, _, found = tbl.Find(key(9))
	require.True(t, found)
	require.Equal(t, "second", string(payload[:6]))
}

func TestSlabTableDuplicateToleranceAndUnlink(t *testing.T) {
	tbl := newSlabTable(t, 4, 4)

	_, err := tbl.StoreBytes(key(3), []byte("old"))
	require.NoError(t, err)
	_, err = tbl.StoreBytes(key(3), []byte("new"))
	require.NoError(t, err)

	payload, _, found := tbl.Find(key(3))
	require.True(t, found)
	require.Equal(t, "new", string(payload[:3]))

	require.True(t, tbl.Unlink(key(3)))

	payload, _, found = tbl.Find(key(3))
	require.True(t, found)
	require.Equal(t, "old", string(payload[:3]))

	require.True(t, tbl.Unlink(key(3)))
	_, _, found = tbl.Find(key(3))
	require.False(t, found)
}

func TestSlabTableUpdate(t *testing.T) {
	tbl := newSlabTable(t, 4, 4)

	_, err := tbl.StoreBytes(key(5), []byte("abcde"))
	require.NoError(t, err)

	_, ok := tbl.Update(key(5), func(payload []byte) {
		payload[0] = 'X'
	})
	require.True(t, ok)

	payload, _, found := tbl.Find(key(5))
	require.True(t, found)
	require.Equal(t, "Xbcde", string(payload[:5]))
}

func TestSlabTableFindMissing(t *testing.T) {
	tbl := newSlabTable(t, 4, 4)
	_, _, found := tbl.Find(key(0xAA))
	require.False(t, found)
	require.False(t, tbl.Unlink(key(0xAA)))
}
