// Package spenddb implements the spend index: a fixed-size record
// table mapping a spent output point to the input point that spent
// it. Entries are optional — most outputs are never looked up this
// way — so callers must not assume presence.
//
// Takes the fixed [key|payload] record-row shape directly from
// htable.RecordTable; grounded on spend_database's get/store/unlink
// over a hash table keyed by output_point with an input_point value.
package spenddb

import (
	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/MicrohexHQ/libbitcoin-database/domain"
	"github.com/MicrohexHQ/libbitcoin-database/htable"
)

// KeySize is the byte width of an output point key: a 32-byte hash
// plus a 2-byte index.
const KeySize = domain.HashSize + 2

// ValueSize is the byte width of an input point value, same shape as
// an output point.
const ValueSize = domain.HashSize + 2

// DB is the spend index.
type DB struct {
	table *htable.RecordTable
}

// Open constructs a spend index over table.
func Open(table *htable.RecordTable) *DB {
	return &DB{table: table}
}

func encode(op domain.OutPoint) []byte {
	buf := make([]byte, KeySize)
	copy(buf[0:domain.HashSize], op.Hash[:])
	*photon.FromBytes[uint16](buf[domain.HashSize:KeySize]) = op.Index
	return buf
}

func decode(b []byte) domain.OutPoint {
	var op domain.OutPoint
	copy(op.Hash[:], b[0:domain.HashSize])
	op.Index = *photon.FromBytes[uint16](b[domain.HashSize:KeySize])
	return op
}

// Get returns the input point that spends outpoint, if recorded.
func (db *DB) Get(outpoint domain.OutPoint) (domain.OutPoint, bool) {
	payload, _, found := db.table.Find(encode(outpoint))
	if !found {
		return domain.OutPoint{}, false
	}
	return decode(payload[:ValueSize]), true
}

// Store records that spend spends outpoint.
func (db *DB) Store(outpoint, spend domain.OutPoint) error {
	value := encode(spend)
	_, err := db.table.Store(encode(outpoint), func(payload []byte) {
		copy(payload, value)
	})
	return errors.Wrap(err, "storing spend entry")
}

// Unlink removes the spend entry for outpoint, if any.
func (db *DB) Unlink(outpoint domain.OutPoint) bool {
	return db.table.Unlink(encode(outpoint))
}
