package txdb_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MicrohexHQ/libbitcoin-database/domain"
	"github.com/MicrohexHQ/libbitcoin-database/htable"
	"github.com/MicrohexHQ/libbitcoin-database/mmfile"
	"github.com/MicrohexHQ/libbitcoin-database/slab"
	"github.com/MicrohexHQ/libbitcoin-database/txdb"
)

func newDB(t *testing.T) *txdb.DB {
	t.Helper()
	f, err := mmfile.Open(filepath.Join(t.TempDir(), "data"), 1.5)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	h, err := htable.OpenHeader(f, mmfile.HeaderSize, 16, htable.SlabEntry, htable.EmptySlab)
	require.NoError(t, err)

	sm, err := slab.Open(f, h.EndOffset())
	require.NoError(t, err)

	table := htable.NewSlabTable(h, sm, domain.HashSize)

	db, err := txdb.Open(table, 64)
	require.NoError(t, err)
	return db
}

func hashOf(b byte) domain.Hash {
	var h domain.Hash
	h[0] = b
	return h
}

func coinbaseTx(hash byte, value uint64) *domain.Transaction {
	return &domain.Transaction{
		Hash:    hashOf(hash),
		Version: 1,
		Inputs: []domain.TxIn{{
			PreviousOutPoint: domain.OutPoint{Index: 0xffff},
		}},
		Outputs: []domain.TxOut{{Value: value, Script: []byte("p2pkh")}},
	}
}

func TestStoreAndGetPooled(t *testing.T) {
	db := newDB(t)
	tx := coinbaseTx(1, 5000)

	require.NoError(t, db.Store(tx, 0, txdb.Unconfirmed, txdb.StatePooled))
	require.True(t, db.Exists(tx.Hash))

	r, found := db.Get(tx.Hash)
	require.True(t, found)
	height, position, state := r.Triple()
	require.Equal(t, uint32(0), height)
	require.Equal(t, txdb.Unconfirmed, position)
	require.Equal(t, txdb.StatePooled, state)

	decoded, err := r.Transaction()
	require.NoError(t, err)
	require.Equal(t, tx.Outputs[0].Value, decoded.Outputs[0].Value)
}

func TestConfirmThenSpendThenGetOutput(t *testing.T) {
	db := newDB(t)
	prevout := coinbaseTx(2, 1000)
	require.NoError(t, db.Store(prevout, 10, 0, txdb.StateConfirmed))

	spender := &domain.Transaction{
		Hash: hashOf(3),
		Inputs: []domain.TxIn{{
			PreviousOutPoint: domain.OutPoint{Hash: prevout.Hash, Index: 0},
		}},
		Outputs: []domain.TxOut{{Value: 900, Script: []byte("out")}},
	}

	out, found := db.GetOutput(domain.OutPoint{Hash: prevout.Hash, Index: 0}, 10)
	require.True(t, found)
	require.False(t, out.Spent)
	require.Equal(t, uint64(1000), out.Value)

	require.NoError(t, db.Store(spender, 11, 1, txdb.StateConfirmed))

	out, found = db.GetOutput(domain.OutPoint{Hash: prevout.Hash, Index: 0}, 11)
	require.True(t, found)
	require.True(t, out.Spent)

	out, found = db.GetOutput(domain.OutPoint{Hash: prevout.Hash, Index: 0}, 10)
	require.True(t, found)
	require.False(t, out.Spent, "spend at height 11 must not be visible to a fork_height of 10")
}

func TestPoolIsConfirmInverseForItsOwnInputs(t *testing.T) {
	db := newDB(t)
	prevout := coinbaseTx(4, 2000)
	require.NoError(t, db.Store(prevout, 5, 0, txdb.StateConfirmed))

	spender := &domain.Transaction{
		Hash:    hashOf(5),
		Inputs:  []domain.TxIn{{PreviousOutPoint: domain.OutPoint{Hash: prevout.Hash, Index: 0}}},
		Outputs: []domain.TxOut{{Value: 1900, Script: []byte("x")}},
	}
	require.NoError(t, db.Store(spender, 6, 0, txdb.StateConfirmed))

	out, found := db.GetOutput(domain.OutPoint{Hash: prevout.Hash, Index: 0}, txdb.MaxForkHeight)
	require.True(t, found)
	require.True(t, out.Spent)

	require.True(t, db.Pool(spender))

	r, found := db.Get(spender.Hash)
	require.True(t, found)
	height, position, state := r.Triple()
	require.Equal(t, uint32(0), height)
	require.Equal(t, txdb.Unconfirmed, position)
	require.Equal(t, txdb.StatePooled, state)

	out, found = db.GetOutput(domain.OutPoint{Hash: prevout.Hash, Index: 0}, txdb.MaxForkHeight)
	require.True(t, found)
	require.False(t, out.Spent, "pool must unspend the prevouts its own inputs had spent")
}

func TestPoolEvictsCacheEntriesForItsOwnOutputs(t *testing.T) {
	db := newDB(t)
	tx := coinbaseTx(19, 1234)
	require.NoError(t, db.Store(tx, 10, 0, txdb.StateConfirmed))

	out, found := db.GetOutput(domain.OutPoint{Hash: tx.Hash, Index: 0}, txdb.MaxForkHeight)
	require.True(t, found)
	require.True(t, out.Confirmed)
	require.False(t, out.Spent)

	require.True(t, db.Pool(tx))

	out, found = db.GetOutput(domain.OutPoint{Hash: tx.Hash, Index: 0}, txdb.MaxForkHeight)
	require.True(t, found, "pooled transaction's output still decodes from the record")
	require.False(t, out.Confirmed, "a stale cache entry must not report a pooled output as confirmed")
}

func TestGenesisOutputsAreImmuneToSpendBookkeeping(t *testing.T) {
	db := newDB(t)
	genesis := coinbaseTx(6, 5_000_000_000)
	require.NoError(t, db.Store(genesis, 0, 0, txdb.StateConfirmed))

	_, found := db.GetOutput(domain.OutPoint{Hash: genesis.Hash, Index: 0}, txdb.MaxForkHeight)
	require.False(t, found)
}

func TestIsInvalidReadsErrorCodeFromHeightField(t *testing.T) {
	db := newDB(t)
	rejected := coinbaseTx(7, 0)
	require.NoError(t, db.Store(rejected, 42, txdb.Unconfirmed, txdb.StateInvalid))

	code, invalid := db.IsInvalid(rejected.Hash)
	require.True(t, invalid)
	require.Equal(t, uint32(42), code)
}

func TestResultErrorReadsCodeOnlyForInvalidRecords(t *testing.T) {
	db := newDB(t)
	rejected := coinbaseTx(20, 0)
	require.NoError(t, db.Store(rejected, 99, txdb.Unconfirmed, txdb.StateInvalid))

	r, found := db.Get(rejected.Hash)
	require.True(t, found)
	code, ok := r.Error()
	require.True(t, ok)
	require.Equal(t, uint32(99), code)

	confirmed := coinbaseTx(21, 1)
	require.NoError(t, db.Store(confirmed, 1, 0, txdb.StateConfirmed))
	r, found = db.Get(confirmed.Hash)
	require.True(t, found)
	_, ok = r.Error()
	require.False(t, ok)
}

func TestTransactionRoundTripsAddressAndStealthFields(t *testing.T) {
	db := newDB(t)

	var inputAddr, outputAddr [20]byte
	inputAddr[0] = 1
	outputAddr[0] = 2
	stealth := &domain.StealthAnnouncement{Prefix: 0xdeadbeef}
	stealth.EphemeralKey[0] = 3

	tx := &domain.Transaction{
		Hash: hashOf(8),
		Inputs: []domain.TxIn{
			{PreviousOutPoint: domain.OutPoint{Hash: hashOf(9), Index: 0}, Address: &inputAddr},
		},
		Outputs: []domain.TxOut{
			{Value: 1, Stealth: stealth},
			{Value: 2, Address: &outputAddr},
		},
	}
	require.NoError(t, db.Store(coinbaseTx(9, 1), 0, 0, txdb.StateConfirmed))
	require.NoError(t, db.Store(tx, 1, 0, txdb.StateConfirmed))

	r, found := db.Get(tx.Hash)
	require.True(t, found)
	decoded, err := r.Transaction()
	require.NoError(t, err)

	require.NotNil(t, decoded.Inputs[0].Address)
	require.Equal(t, inputAddr, *decoded.Inputs[0].Address)

	require.Nil(t, decoded.Outputs[0].Address)
	require.NotNil(t, decoded.Outputs[0].Stealth)
	require.Equal(t, *stealth, *decoded.Outputs[0].Stealth)

	require.NotNil(t, decoded.Outputs[1].Address)
	require.Equal(t, outputAddr, *decoded.Outputs[1].Address)
	require.Nil(t, decoded.Outputs[1].Stealth)
}

func TestStoreNeverOverwritesADuplicateHashRecordInPlace(t *testing.T) {
	db := newDB(t)
	first := coinbaseTx(9, 100)
	require.NoError(t, db.Store(first, 10, 0, txdb.StateConfirmed))

	r, found := db.Get(first.Hash)
	require.True(t, found)
	firstOffset := r.Offset()

	second := &domain.Transaction{
		Hash:    first.Hash,
		Inputs:  first.Inputs,
		Outputs: []domain.TxOut{{Value: 200, Script: []byte("different-script")}},
	}
	require.NoError(t, db.Store(second, 20, 0, txdb.StateConfirmed))

	r, found = db.Get(first.Hash)
	require.True(t, found)
	height, _, _ := r.Triple()
	require.Equal(t, uint32(20), height, "a hash lookup now reaches the most recently stored row")
	decoded, err := r.Transaction()
	require.NoError(t, err)
	require.Equal(t, uint64(200), decoded.Outputs[0].Value)

	firstResult := db.GetAt(first.Hash, firstOffset)
	firstHeight, _, _ := firstResult.Triple()
	require.Equal(t, uint32(10), firstHeight, "the first row must survive untouched at its own offset")
	firstDecoded, err := firstResult.Transaction()
	require.NoError(t, err)
	require.Equal(t, uint64(100), firstDecoded.Outputs[0].Value)
}

func TestConfirmPromotesAPooledRecordInPlace(t *testing.T) {
	db := newDB(t)
	prevout := coinbaseTx(10, 1000)
	require.NoError(t, db.Store(prevout, 1, 0, txdb.StateConfirmed))

	tx := &domain.Transaction{
		Hash:    hashOf(11),
		Inputs:  []domain.TxIn{{PreviousOutPoint: domain.OutPoint{Hash: prevout.Hash, Index: 0}}},
		Outputs: []domain.TxOut{{Value: 900, Script: []byte("x")}},
	}
	require.NoError(t, db.Store(tx, 0, txdb.Unconfirmed, txdb.StatePooled))

	r, found := db.Get(tx.Hash)
	require.True(t, found)
	offsetBefore := r.Offset()

	require.NoError(t, db.Confirm(r, tx, 5, 2))

	r, found = db.Get(tx.Hash)
	require.True(t, found)
	require.Equal(t, offsetBefore, r.Offset(), "Confirm must rewrite the pooled record in place, not write a new one")
	height, position, state := r.Triple()
	require.Equal(t, uint32(5), height)
	require.Equal(t, uint16(2), position)
	require.Equal(t, txdb.StateConfirmed, state)

	out, found := db.GetOutput(domain.OutPoint{Hash: prevout.Hash, Index: 0}, txdb.MaxForkHeight)
	require.True(t, found)
	require.True(t, out.Spent, "Confirm must spend the prevouts tx references")
}

func TestGetOutputMissesOnNullOutpoint(t *testing.T) {
	db := newDB(t)
	_, found := db.GetOutput(domain.OutPoint{Index: 0xffff}, txdb.MaxForkHeight)
	require.False(t, found)
}
