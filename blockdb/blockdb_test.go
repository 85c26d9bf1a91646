package blockdb_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MicrohexHQ/libbitcoin-database/blockdb"
	"github.com/MicrohexHQ/libbitcoin-database/domain"
	"github.com/MicrohexHQ/libbitcoin-database/htable"
	"github.com/MicrohexHQ/libbitcoin-database/mmfile"
	"github.com/MicrohexHQ/libbitcoin-database/slab"
)

func newDB(t *testing.T) *blockdb.DB {
	t.Helper()
	f, err := mmfile.Open(filepath.Join(t.TempDir(), "data"), 1.5)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	h, err := htable.OpenHeader(f, mmfile.HeaderSize, 16, htable.SlabEntry, htable.EmptySlab)
	require.NoError(t, err)
	sm, err := slab.Open(f, h.EndOffset())
	require.NoError(t, err)
	table := htable.NewSlabTable(h, sm, domain.HashSize)

	headersFile, err := mmfile.Open(filepath.Join(t.TempDir(), "headers"), 1.5)
	require.NoError(t, err)
	t.Cleanup(func() { headersFile.Close() })
	headers, err := blockdb.OpenChain(headersFile, mmfile.HeaderSize)
	require.NoError(t, err)

	blocksFile, err := mmfile.Open(filepath.Join(t.TempDir(), "blocks"), 1.5)
	require.NoError(t, err)
	t.Cleanup(func() { blocksFile.Close() })
	blocks, err := blockdb.OpenChain(blocksFile, mmfile.HeaderSize)
	require.NoError(t, err)

	return blockdb.Open(table, headers, blocks)
}

func hashOf(b byte) domain.Hash {
	var h domain.Hash
	h[0] = b
	return h
}

func TestPushHeaderThenPushBlockUpgradesRecord(t *testing.T) {
	db := newDB(t)
	hash := hashOf(1)
	header := domain.Header{Version: 1}

	require.NoError(t, db.PushHeader(hash, header, 0))
	height, h, _, found := db.Get(hash)
	require.True(t, found)
	require.Equal(t, uint32(0), height)
	require.Empty(t, h.PreviousBlock)

	refs := []blockdb.TxRef{
		{Hash: hashOf(10), Offset: 100},
		{Hash: hashOf(11), Offset: 200},
		{Hash: hashOf(12), Offset: 300},
	}
	require.NoError(t, db.PushBlock(hash, header, 0, refs))
	_, _, gotRefs, found := db.Get(hash)
	require.True(t, found)
	require.Equal(t, refs, gotRefs)

	topHeight, topHash, ok := db.TopHeader()
	require.True(t, ok)
	require.Equal(t, uint32(0), topHeight)
	require.Equal(t, hash, topHash)
}

func TestPopRewindsChainAndAppendReusesSlot(t *testing.T) {
	db := newDB(t)

	require.NoError(t, db.PushBlock(hashOf(1), domain.Header{}, 0, nil))
	require.NoError(t, db.PushBlock(hashOf(2), domain.Header{}, 1, nil))
	require.NoError(t, db.PushBlock(hashOf(3), domain.Header{}, 2, nil))

	height, hash, ok := db.PopBlock()
	require.True(t, ok)
	require.Equal(t, uint32(2), height)
	require.Equal(t, hashOf(3), hash)

	topHeight, topHash, ok := db.TopBlock()
	require.True(t, ok)
	require.Equal(t, uint32(1), topHeight)
	require.Equal(t, hashOf(2), topHash)

	require.NoError(t, db.PushBlock(hashOf(4), domain.Header{}, 2, nil))
	topHeight, topHash, ok = db.TopBlock()
	require.True(t, ok)
	require.Equal(t, uint32(2), topHeight)
	require.Equal(t, hashOf(4), topHash)
}

func TestTopOnEmptyChainReportsNotFound(t *testing.T) {
	db := newDB(t)
	_, _, ok := db.TopHeader()
	require.False(t, ok)
	_, _, ok = db.TopBlock()
	require.False(t, ok)
}
