package coordinator

import (
	"github.com/MicrohexHQ/libbitcoin-database/domain"
	"github.com/MicrohexHQ/libbitcoin-database/historydb"
	"github.com/MicrohexHQ/libbitcoin-database/txdb"
)

// TransactionStatus is the decoded lifecycle status of a stored
// transaction, copied out of the record rather than holding a live
// handle into it, so it remains valid past the read lock that produced
// it.
type TransactionStatus struct {
	Height   uint32
	Position uint16
	State    txdb.State
}

// TopHeader returns the height and hash of the last pushed header.
func (db *DB) TopHeader() (height uint32, hash domain.Hash, ok bool) {
	db.withRead(func() {
		height, hash, ok = db.blockdb.TopHeader()
	})
	return height, hash, ok
}

// TopBlock returns the height and hash of the last confirmed block.
func (db *DB) TopBlock() (height uint32, hash domain.Hash, ok bool) {
	db.withRead(func() {
		height, hash, ok = db.blockdb.TopBlock()
	})
	return height, hash, ok
}

// HeaderAt returns the hash at height in the header chain.
func (db *DB) HeaderAt(height uint32) (hash domain.Hash, ok bool) {
	db.withRead(func() {
		hash, ok = db.blockdb.HeaderAt(height)
	})
	return hash, ok
}

// BlockAt returns the hash at height in the confirmed-block chain.
func (db *DB) BlockAt(height uint32) (hash domain.Hash, ok bool) {
	db.withRead(func() {
		hash, ok = db.blockdb.BlockAt(height)
	})
	return hash, ok
}

// GetTransaction reports the lifecycle status of hash's transaction
// record, if any.
func (db *DB) GetTransaction(hash domain.Hash) (status TransactionStatus, found bool) {
	db.withRead(func() {
		result, ok := db.tx.Get(hash)
		if !ok {
			return
		}
		height, position, state := result.Triple()
		status = TransactionStatus{Height: height, Position: position, State: state}
		found = true
	})
	return status, found
}

// Transactions returns a handle for querying the transaction database's
// reject cache, consulted before a peer is asked to re-validate a
// known-bad transaction.
func (db *DB) Transactions() Transactions {
	return Transactions{db: db}
}

// Transactions is a read-only handle onto the coordinator's transaction
// database, kept distinct from DB's own methods so the reject-cache
// surface can grow without crowding DB's method set.
type Transactions struct {
	db *DB
}

// IsInvalid reports whether hash is retained as a reject-cache entry,
// and if so the error code it was rejected with.
func (t Transactions) IsInvalid(hash domain.Hash) (code uint32, invalid bool) {
	t.db.withRead(func() {
		code, invalid = t.db.tx.IsInvalid(hash)
	})
	return code, invalid
}

// GetHistory returns, most recently added first, up to limit payment
// rows touching address at or above fromHeight. Returns nil if address
// indexing is disabled.
func (db *DB) GetHistory(address [20]byte, limit int, fromHeight uint32) (rows []historydb.Payment) {
	db.withRead(func() {
		if db.history != nil {
			rows = db.history.Get(address, limit, fromHeight)
		}
	})
	return rows
}

// GetSpend reports the outpoint that spent outpoint, if any. Returns
// found=false if address indexing is disabled.
func (db *DB) GetSpend(outpoint domain.OutPoint) (spend domain.OutPoint, found bool) {
	db.withRead(func() {
		if db.spend != nil {
			spend, found = db.spend.Get(outpoint)
		}
	})
	return spend, found
}

// GetOutput resolves outpoint against forkHeight. The returned query's
// Script is a private copy, safe to retain past this call even though
// the underlying record lives in memory this package may remap on a
// later write.
func (db *DB) GetOutput(outpoint domain.OutPoint, forkHeight uint32) (query txdb.OutputQuery, found bool) {
	db.withRead(func() {
		query, found = db.tx.GetOutput(outpoint, forkHeight)
		if found && query.Script != nil {
			cp := make([]byte, len(query.Script))
			copy(cp, query.Script)
			query.Script = cp
		}
	})
	return query, found
}
