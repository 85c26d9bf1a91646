// Package blockdb implements the block database: the header chain and
// confirmed-block chain (each an append-only sequence of hashes keyed
// by height) plus the block table that stores, per hash, the block's
// header and the slab offsets of its transactions in the transaction
// database.
//
// Takes the find/store-over-a-hashed-key shape from htable.SlabTable,
// and the append-only sequential-index shape for the two chains from
// record.Manager, generalized with a logical length that can rewind
// on pop without physically shrinking the file.
package blockdb

import (
	"github.com/pkg/errors"

	"github.com/MicrohexHQ/libbitcoin-database/domain"
	"github.com/MicrohexHQ/libbitcoin-database/htable"
)

// DB is the block database.
type DB struct {
	table   *htable.SlabTable
	headers *Chain
	blocks  *Chain
}

// Open constructs a block database over table (keyed by block hash)
// and the header/block chains.
func Open(table *htable.SlabTable, headers, blocks *Chain) *DB {
	return &DB{table: table, headers: headers, blocks: blocks}
}

// TopHeader returns the height and hash of the last pushed header.
func (db *DB) TopHeader() (height uint32, hash domain.Hash, ok bool) {
	return db.headers.Top()
}

// TopBlock returns the height and hash of the last pushed confirmed
// block.
func (db *DB) TopBlock() (height uint32, hash domain.Hash, ok bool) {
	return db.blocks.Top()
}

// HeaderAt returns the hash at height in the header chain.
func (db *DB) HeaderAt(height uint32) (domain.Hash, bool) {
	return db.headers.Get(height)
}

// BlockAt returns the hash at height in the confirmed-block chain.
func (db *DB) BlockAt(height uint32) (domain.Hash, bool) {
	return db.blocks.Get(height)
}

// Get returns the stored height, header and transaction refs for hash,
// from whichever of the header-only or confirmed form was last stored.
func (db *DB) Get(hash domain.Hash) (height uint32, header domain.Header, refs []TxRef, found bool) {
	payload, _, ok := db.table.Find(hash[:])
	if !ok {
		return 0, domain.Header{}, nil, false
	}
	height, header, refs, err := DecodeBlockPayload(payload)
	if err != nil {
		return 0, domain.Header{}, nil, false
	}
	return height, header, refs, true
}

// PushHeader appends hash to the header chain at height. If hash has
// no existing block_table row (neither header-only nor confirmed), a
// header-only row is stored for it.
func (db *DB) PushHeader(hash domain.Hash, header domain.Header, height uint32) error {
	if _, _, _, found := db.Get(hash); !found {
		payload := EncodeBlockPayload(height, &header, nil)
		if _, err := db.table.StoreBytes(hash[:], payload); err != nil {
			return errors.Wrap(err, "storing header-only block record")
		}
	}
	if _, err := db.headers.Append(hash); err != nil {
		return errors.Wrap(err, "appending header chain")
	}
	return nil
}

// PushBlock stores the confirmed form of hash (header plus a
// (hash, slab offset) ref for each of its transactions) and appends it
// to the confirmed-block chain at height. It overwrites any prior
// header-only row for the same hash.
func (db *DB) PushBlock(hash domain.Hash, header domain.Header, height uint32, refs []TxRef) error {
	payload := EncodeBlockPayload(height, &header, refs)

	if _, _, _, found := db.Get(hash); found {
		db.table.Unlink(hash[:])
	}
	if _, err := db.table.StoreBytes(hash[:], payload); err != nil {
		return errors.Wrap(err, "storing confirmed block record")
	}
	if _, err := db.blocks.Append(hash); err != nil {
		return errors.Wrap(err, "appending block chain")
	}
	return nil
}

// PopHeader removes and returns the top header chain entry.
func (db *DB) PopHeader() (height uint32, hash domain.Hash, ok bool) {
	return db.headers.Pop()
}

// PopBlock removes and returns the top confirmed-block chain entry.
// The block_table row for hash is left in place (with its
// transaction offsets) so the caller can still rehydrate the block
// from it before it is overwritten by a future push.
func (db *DB) PopBlock() (height uint32, hash domain.Hash, ok bool) {
	return db.blocks.Pop()
}
