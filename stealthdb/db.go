// Package stealthdb implements the stealth index: an unindexed,
// append-only array of ephemeral-key/address/tx-hash rows. The stealth
// output prefix is a variable-length bit filter (0-32 bits), so rows
// cannot be hash-indexed on it; lookups are a linear scan of the whole
// array. There is no pop-side inverse — stealth rows are descriptive
// metadata about an output that has already been indexed elsewhere,
// not a structure reorg needs to unwind (see DESIGN.md's Open
// Question decisions).
//
// Takes the flat fixed-size-record array shape from record.Manager;
// grounded on stealth_database's linear store/get over an unindexed
// record array.
package stealthdb

import (
	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/MicrohexHQ/libbitcoin-database/domain"
	"github.com/MicrohexHQ/libbitcoin-database/record"
)

// EphemeralKeySize and AddressSize are the on-disk sizes of a stealth
// row's ephemeral key (sign byte stripped) and address (version byte
// stripped).
const (
	EphemeralKeySize = 32
	AddressSize      = 20
)

// RowSize is the byte width of one stealth row:
// [prefix:4 | height:4 | ephemkey:32 | address:20 | tx-hash:32].
const RowSize = 4 + 4 + EphemeralKeySize + AddressSize + domain.HashSize

// Row is one decoded stealth output announcement.
type Row struct {
	Prefix       uint32
	Height       uint32
	EphemeralKey [EphemeralKeySize]byte
	Address      [AddressSize]byte
	TxHash       domain.Hash
}

// Filter is a variable-length bit prefix filter: only the high bits
// bits count of Value (as a 32-bit big-endian-ordered prefix) are
// compared.
type Filter struct {
	Value uint32
	Bits  uint8
}

// Matches reports whether prefix's high f.Bits bits equal f.Value's.
func (f Filter) Matches(prefix uint32) bool {
	if f.Bits == 0 {
		return true
	}
	shift := 32 - uint(f.Bits)
	return prefix>>shift == f.Value>>shift
}

// DB is the stealth index.
type DB struct {
	records *record.Manager
}

// Open constructs a stealth index over records. records.RecordSize()
// must equal RowSize.
func Open(records *record.Manager) *DB {
	return &DB{records: records}
}

func encode(r Row) []byte {
	buf := make([]byte, RowSize)
	*photon.FromBytes[uint32](buf[0:4]) = r.Prefix
	*photon.FromBytes[uint32](buf[4:8]) = r.Height
	copy(buf[8:8+EphemeralKeySize], r.EphemeralKey[:])
	copy(buf[8+EphemeralKeySize:8+EphemeralKeySize+AddressSize], r.Address[:])
	copy(buf[8+EphemeralKeySize+AddressSize:], r.TxHash[:])
	return buf
}

func decode(b []byte) Row {
	var r Row
	r.Prefix = *photon.FromBytes[uint32](b[0:4])
	r.Height = *photon.FromBytes[uint32](b[4:8])
	copy(r.EphemeralKey[:], b[8:8+EphemeralKeySize])
	copy(r.Address[:], b[8+EphemeralKeySize:8+EphemeralKeySize+AddressSize])
	copy(r.TxHash[:], b[8+EphemeralKeySize+AddressSize:])
	return r
}

// Store appends row to the array.
func (db *DB) Store(row Row) error {
	idx, err := db.records.New(1)
	if err != nil {
		return errors.Wrap(err, "allocating stealth row")
	}
	copy(db.records.Get(idx), encode(row))
	return nil
}

// Scan returns every row whose prefix matches filter and whose
// height is at least fromHeight, in storage order.
func (db *DB) Scan(filter Filter, fromHeight uint32) []Row {
	var result []Row
	count := db.records.Count()
	for i := uint32(0); i < count; i++ {
		row := decode(db.records.Get(i))
		if row.Height < fromHeight {
			continue
		}
		if !filter.Matches(row.Prefix) {
			continue
		}
		result = append(result, row)
	}
	return result
}
