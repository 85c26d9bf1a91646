// Package record implements a fixed-size-record sub-allocator: records
// are addressed by a 32-bit index rather than a byte offset, and the
// manager persists a 4-byte record count so the next index to hand out
// survives a restart.
//
// alloc.Allocator / types.NodeAllocator cast a flat byte buffer into
// fixed-size "nodes" via an index; this package narrows that to a flat
// record shape (no states/items split — each record row carries its
// own key/next fields) and backs it with mmfile instead of an
// in-memory buffer.
package record

import (
	"math"
	"sync"

	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/MicrohexHQ/libbitcoin-database/mmfile"
)

// Null is the empty-sentinel record index: the maximum uint32 value,
// reserved so it can never collide with a real record index.
const Null uint32 = math.MaxUint32

const counterSize = 4

// Manager is a fixed-size-record allocator over a region of an
// mmfile.File starting at baseOffset. The manager owns
// [baseOffset, baseOffset+4) for its record count and hands out
// recordSize-byte records after that, indexed from zero.
type Manager struct {
	mu         sync.Mutex
	file       *mmfile.File
	baseOffset uint64
	recordSize uint64
}

// Open attaches a record Manager to the region of file starting at
// baseOffset, with the given fixed record size.
func Open(file *mmfile.File, baseOffset, recordSize uint64) (*Manager, error) {
	if err := file.Reserve(baseOffset + counterSize); err != nil {
		return nil, errors.Wrap(err, "reserving record manager header")
	}
	return &Manager{file: file, baseOffset: baseOffset, recordSize: recordSize}, nil
}

func (m *Manager) count() uint32 {
	return *photon.FromBytes[uint32](m.file.Data()[m.baseOffset : m.baseOffset+counterSize])
}

func (m *Manager) setCount(v uint32) {
	*photon.FromBytes[uint32](m.file.Data()[m.baseOffset:m.baseOffset+counterSize]) = v
}

func (m *Manager) dataOffset(i uint32) uint64 {
	return m.baseOffset + counterSize + uint64(i)*m.recordSize
}

// New atomically reserves n consecutive records and returns the index of
// the first one.
func (m *Manager) New(n uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	first := m.count()
	if uint64(first)+uint64(n) >= uint64(Null) {
		return 0, errors.New("record index space exhausted")
	}

	end := m.dataOffset(first + n)
	if err := m.file.Reserve(end); err != nil {
		return 0, errors.Wrap(err, "reserving record storage")
	}
	m.setCount(first + n)
	return first, nil
}

// Get returns the byte slice for record i. The slice is only valid until
// the next call that may grow (and so remap) the underlying file.
func (m *Manager) Get(i uint32) []byte {
	off := m.dataOffset(i)
	return m.file.Data()[off : off+m.recordSize]
}

// Count returns the number of records allocated so far.
func (m *Manager) Count() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count()
}

// RecordSize returns the fixed size of each record in bytes.
func (m *Manager) RecordSize() uint64 {
	return m.recordSize
}

// Sync publishes the manager's end offset into the file's own
// payload-size header, mirroring slab.Manager.Sync.
func (m *Manager) Sync() {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := m.dataOffset(m.count())
	if end > m.file.PayloadSize() {
		m.file.SetPayloadSize(end)
	}
}
