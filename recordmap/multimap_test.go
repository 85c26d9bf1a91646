package recordmap_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MicrohexHQ/libbitcoin-database/htable"
	"github.com/MicrohexHQ/libbitcoin-database/mmfile"
	"github.com/MicrohexHQ/libbitcoin-database/record"
	"github.com/MicrohexHQ/libbitcoin-database/recordmap"
)

func newMultimap(t *testing.T, valueSize uint64) *recordmap.Multimap {
	t.Helper()
	f, err := mmfile.Open(filepath.Join(t.TempDir(), "data"), 1.5)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	h, err := htable.OpenHeader(f, mmfile.HeaderSize, 8, htable.RecordEntry, htable.EmptyRecord)
	require.NoError(t, err)

	primaryRecords, err := record.Open(f, h.EndOffset(), 4+4+4)
	require.NoError(t, err)
	primary, err := htable.NewRecordTable(h, primaryRecords, 4)
	require.NoError(t, err)

	listRecords, err := record.Open(f, primaryRecords.RecordSize()*1000+h.EndOffset(), valueSize+4)
	require.NoError(t, err)

	mm, err := recordmap.New(primary, listRecords, valueSize)
	require.NoError(t, err)
	return mm
}

func k4(b byte) []byte {
	return []byte{b, 0, 0, 0}
}

func TestAddRowAndValuesOrder(t *testing.T) {
	mm := newMultimap(t, 8)

	require.NoError(t, mm.AddRow(k4(1), func(v []byte) { copy(v, "aaaaaaaa") }))
	require.NoError(t, mm.AddRow(k4(1), func(v []byte) { copy(v, "bbbbbbbb") }))
	require.NoError(t, mm.AddRow(k4(1), func(v []byte) { copy(v, "cccccccc") }))

	values := mm.Values(k4(1))
	require.Len(t, values, 3)
	require.Equal(t, "cccccccc", string(values[0]))
	require.Equal(t, "bbbbbbbb", string(values[1]))
	require.Equal(t, "aaaaaaaa", string(values[2]))
}

func TestDeleteLastRowIsAddRowInverse(t *testing.T) {
	mm := newMultimap(t, 8)

	require.NoError(t, mm.AddRow(k4(2), func(v []byte) { copy(v, "11111111") }))
	require.NoError(t, mm.AddRow(k4(2), func(v []byte) { copy(v, "22222222") }))

	require.True(t, mm.DeleteLastRow(k4(2)))
	values := mm.Values(k4(2))
	require.Len(t, values, 1)
	require.Equal(t, "11111111", string(values[0]))

	require.True(t, mm.DeleteLastRow(k4(2)))
	require.Empty(t, mm.Values(k4(2)))

	require.False(t, mm.DeleteLastRow(k4(2)))
}

func TestLookupMissingKey(t *testing.T) {
	mm := newMultimap(t, 8)
	_, found := mm.Lookup(k4(99))
	require.False(t, found)
}
