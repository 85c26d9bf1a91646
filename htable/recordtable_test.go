package htable_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MicrohexHQ/libbitcoin-database/htable"
	"github.com/MicrohexHQ/libbitcoin-database/mmfile"
	"github.com/MicrohexHQ/libbitcoin-database/record"
)

func newRecordTable(t *testing.T, buckets uint64, keyLen int, recordSize uint64) *htable.RecordTable {
	t.Helper()
	f, err := mmfile.Open(filepath.Join(t.TempDir(), "data"), 1.5)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	h, err := htable.OpenHeader(f, mmfile.HeaderSize, buckets, htable.RecordEntry, htable.EmptyRecord)
	require.NoError(t, err)

	rm, err := record.Open(f, h.EndOffset(), recordSize)
	require.NoError(t, err)

	tbl, err := htable.NewRecordTable(h, rm, keyLen)
	require.NoError(t, err)
	return tbl
}

func TestRecordTableStoreFindUnlink(t *testing.T) {
	tbl := newRecordTable(t, 8, 4, 4+4+8)

	idx, err := tbl.Store(key(7), func(payload []byte) {
		copy(payload, "payload1")
	})
	require.NoError(t, err)

	payload, gotIdx, found := tbl.Find(key(7))
	require.True(t, found)
	require.Equal(t, idx, gotIdx)
	require.Equal(t, "payload1", string(payload[:8]))

	require.True(t, tbl.Unlink(key(7)))
	_, _, found = tbl.Find(key(7))
	require.False(t, found)
}

func TestRecordTableGetByIndex(t *testing.T) {
	tbl := newRecordTable(t, 4, 4, 4+4+8)

	idx, err := tbl.Store(key(1), func(payload []byte) {
		copy(payload, "abcdefgh")
	})
	require.NoError(t, err)

	require.Equal(t, "abcdefgh", string(tbl.GetByIndex(idx)[:8]))
}
