// Package recordmap implements a record multimap: a primary hash table
// mapping K to the head of a per-key singly linked list of fixed-size
// value records, used by the address-history index.
//
// Takes the add/iterate-over-a-chain-of-fixed-size-nodes-addressed-by-
// index shape from list.List, stripped of its copy-on-write revision
// counters, side-lists and volatile/persistent address split — this
// multimap's list is a plain mutable singly linked list, never
// copy-on-write, so AddRow/DeleteLastRow mutate nodes in place instead
// of allocating new node generations.
package recordmap

import (
	"sync"

	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/MicrohexHQ/libbitcoin-database/htable"
	"github.com/MicrohexHQ/libbitcoin-database/record"
)

// Multimap maps fixed-width keys to a per-key singly linked list of
// fixed-size value records. AddRow and DeleteLastRow each read the
// primary table's head entry and then rewrite it, which is not safe
// under the primary table's own bucket-head mutex alone (that mutex
// only covers RecordTable.Store's pointer swap, not a read-modify-write
// spanning two calls); mu covers the whole critical section instead,
// the single-mutex-for-all-heads shape the design notes call out as
// sufficient.
type Multimap struct {
	mu        sync.Mutex
	primary   *htable.RecordTable
	list      *record.Manager
	valueSize uint64
}

// New constructs a Multimap. primary is the K -> list-head hash table
// (its payload is a single 4-byte record index); list stores the
// per-key list nodes, each [value(valueSize) | next:4].
func New(primary *htable.RecordTable, list *record.Manager, valueSize uint64) (*Multimap, error) {
	if list.RecordSize() < valueSize+4 {
		return nil, errors.New("list record size too small for value and next pointer")
	}
	return &Multimap{primary: primary, list: list, valueSize: valueSize}, nil
}

func (m *Multimap) nextOffset() uint64 {
	return m.valueSize
}

// AddRow prepends a new value record to key's list, writing the value
// via write, and atomically either creates the primary head entry for
// key or rewrites it to point at the new node.
func (m *Multimap) AddRow(key []byte, write func(value []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	headPayload, _, found := m.primary.Find(key)

	prevHead := uint32(htable.EmptyRecord)
	if found {
		prevHead = *photon.FromBytes[uint32](headPayload)
	}

	idx, err := m.list.New(1)
	if err != nil {
		return errors.Wrap(err, "allocating list node")
	}
	row := m.list.Get(idx)
	write(row[:m.valueSize])
	*photon.FromBytes[uint32](row[m.nextOffset() : m.nextOffset()+4]) = prevHead

	if found {
		*photon.FromBytes[uint32](headPayload) = idx
		return nil
	}

	_, err = m.primary.Store(key, func(payload []byte) {
		*photon.FromBytes[uint32](payload) = idx
	})
	return errors.Wrap(err, "storing primary head")
}

// DeleteLastRow removes the most recently added record from key's list,
// the exact inverse of AddRow, used by reorg to undo history append
// order in LIFO sequence. It logically unlinks the list head rather
// than deallocating the record: nodes are never freed, only unlinked.
func (m *Multimap) DeleteLastRow(key []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	headPayload, _, found := m.primary.Find(key)
	if !found {
		return false
	}

	head := *photon.FromBytes[uint32](headPayload)
	if head == uint32(htable.EmptyRecord) {
		return false
	}

	row := m.list.Get(head)
	next := *photon.FromBytes[uint32](row[m.nextOffset() : m.nextOffset()+4])
	*photon.FromBytes[uint32](headPayload) = next
	return true
}

// Lookup returns the head list-record index for key, or
// htable.EmptyRecord if key has no entries.
func (m *Multimap) Lookup(key []byte) (uint32, bool) {
	headPayload, _, found := m.primary.Find(key)
	if !found {
		return uint32(htable.EmptyRecord), false
	}
	return *photon.FromBytes[uint32](headPayload), true
}

// Values returns, most-recently-added first, the value bytes of every
// record in key's list.
func (m *Multimap) Values(key []byte) [][]byte {
	head, found := m.Lookup(key)
	if !found {
		return nil
	}

	var values [][]byte
	for head != uint32(htable.EmptyRecord) {
		row := m.list.Get(head)
		values = append(values, row[:m.valueSize])
		head = *photon.FromBytes[uint32](row[m.nextOffset() : m.nextOffset()+4])
	}
	return values
}
