// Package historydb implements the address-history index: for each
// short address hash, an append-ordered list of payment rows (one per
// input or output that touched that address), each carrying the
// owning point, the height it was seen at, and a caller-supplied
// checksum used to correlate the row back to its source output or
// input without a second lookup.
//
// Takes the multimap shape directly from recordmap.Multimap; grounded
// on history_database's store/get/unlink_last_row over a record
// multimap keyed by short_hash with a payment_record value.
package historydb

import (
	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/MicrohexHQ/libbitcoin-database/domain"
	"github.com/MicrohexHQ/libbitcoin-database/recordmap"
)

// Kind distinguishes whether a payment row records a spent input or a
// created output.
type Kind uint8

const (
	KindOutput Kind = 0
	KindInput  Kind = 1
)

// ValueSize is the byte width of one payment row:
// [kind:1 | point-hash:32 | point-index:2 | height:4 | checksum:8].
const ValueSize = 1 + domain.HashSize + 2 + 4 + 8

// Payment is one address-history row.
type Payment struct {
	Kind     Kind
	Point    domain.OutPoint
	Height   uint32
	Checksum uint64
}

// DB is the address-history index.
type DB struct {
	mm *recordmap.Multimap
}

// Open constructs a history index over mm. mm's value size must equal
// ValueSize.
func Open(mm *recordmap.Multimap) *DB {
	return &DB{mm: mm}
}

func encode(p Payment) []byte {
	buf := make([]byte, ValueSize)
	buf[0] = byte(p.Kind)
	copy(buf[1:1+domain.HashSize], p.Point.Hash[:])
	*photon.FromBytes[uint16](buf[1+domain.HashSize : 1+domain.HashSize+2]) = p.Point.Index
	*photon.FromBytes[uint32](buf[1+domain.HashSize+2 : 1+domain.HashSize+6]) = p.Height
	*photon.FromBytes[uint64](buf[1+domain.HashSize+6 : 1+domain.HashSize+14]) = p.Checksum
	return buf
}

func decode(b []byte) Payment {
	var p Payment
	p.Kind = Kind(b[0])
	copy(p.Point.Hash[:], b[1:1+domain.HashSize])
	p.Point.Index = *photon.FromBytes[uint16](b[1+domain.HashSize : 1+domain.HashSize+2])
	p.Height = *photon.FromBytes[uint32](b[1+domain.HashSize+2 : 1+domain.HashSize+6])
	p.Checksum = *photon.FromBytes[uint64](b[1+domain.HashSize+6 : 1+domain.HashSize+14])
	return p
}

// Store appends a payment row to address's history.
func (db *DB) Store(address [20]byte, payment Payment) error {
	row := encode(payment)
	return errors.Wrap(db.mm.AddRow(address[:], func(v []byte) { copy(v, row) }), "storing history row")
}

// UnlinkLastRow removes the most recently stored row for address, the
// exact inverse of the Store call that added it — used to undo
// history append order during a pop/reorg.
func (db *DB) UnlinkLastRow(address [20]byte) bool {
	return db.mm.DeleteLastRow(address[:])
}

// Get returns address's payment rows at height >= fromHeight, most
// recently added first, capped at limit rows (0 means unlimited).
func (db *DB) Get(address [20]byte, limit int, fromHeight uint32) []Payment {
	values := db.mm.Values(address[:])
	var result []Payment
	for _, v := range values {
		if limit > 0 && len(result) >= limit {
			break
		}
		p := decode(v)
		if p.Height < fromHeight {
			continue
		}
		result = append(result, p)
	}
	return result
}
