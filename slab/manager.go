// Package slab implements a byte-granular sub-allocator: it hands out
// variable-length regions of an mmfile.File, addressed by 64-bit file
// offset, and persists its own high-water mark so growth survives a
// restart.
//
// Takes the bump-allocation-over-a-flat-buffer-via-a-monotonic-counter
// shape from alloc.Allocator.Allocate, generalized from a fixed node
// size to arbitrary per-call sizes and from an in-memory buffer to an
// mmfile.File that can grow.
package slab

import (
	"sync"

	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/MicrohexHQ/libbitcoin-database/mmfile"
)

// counterSize is the width of the manager's own persisted high-water mark.
const counterSize = 8

// Manager is a byte-granular allocator over a region of an mmfile.File
// starting at baseOffset. The manager owns [baseOffset, baseOffset+8) for
// its own high-water mark and hands out everything after that.
type Manager struct {
	mu         sync.Mutex
	file       *mmfile.File
	baseOffset uint64
}

// Open attaches a slab Manager to the region of file starting at
// baseOffset. If the high-water mark stored there is zero (a freshly
// created file) it is initialized to point just past the manager's own
// counter.
func Open(file *mmfile.File, baseOffset uint64) (*Manager, error) {
	if err := file.Reserve(baseOffset + counterSize); err != nil {
		return nil, errors.Wrap(err, "reserving slab manager header")
	}

	m := &Manager{file: file, baseOffset: baseOffset}
	if m.highWaterMark() == 0 {
		m.setHighWaterMark(baseOffset + counterSize)
	}
	return m, nil
}

func (m *Manager) highWaterMark() uint64 {
	return *photon.FromBytes[uint64](m.file.Data()[m.baseOffset : m.baseOffset+counterSize])
}

func (m *Manager) setHighWaterMark(v uint64) {
	*photon.FromBytes[uint64](m.file.Data()[m.baseOffset:m.baseOffset+counterSize]) = v
}

// New reserves a new slab of the given size and returns its file offset.
// The allocation and the reservation of backing storage happen here,
// not under any table-level lock: the payload must be fully written
// before the hash table links the new row into its chain.
func (m *Manager) New(size uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	offset := m.highWaterMark()
	next := offset + size
	if err := m.file.Reserve(next); err != nil {
		return 0, errors.Wrap(err, "reserving slab storage")
	}
	m.setHighWaterMark(next)
	return offset, nil
}

// Get returns the byte slice of the slab of the given size starting at
// offset. The slice is only valid until the next call that may grow (and
// so remap) the underlying file.
func (m *Manager) Get(offset, size uint64) []byte {
	data := m.file.Data()
	return data[offset : offset+size]
}

// Rest returns the byte slice from offset to the end of the mapping.
// Slab payloads are self-delimiting (varint-prefixed fields), so callers
// that need to deserialize a variable-length payload read forward from
// here rather than asking the manager for an exact length.
func (m *Manager) Rest(offset uint64) []byte {
	return m.file.Data()[offset:]
}

// Sync publishes the manager's high-water mark into the file's own
// payload-size header, so a subsequent open can recover it without
// re-scanning. Called by the coordinator's commit step.
func (m *Manager) Sync() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hw := m.highWaterMark(); hw > m.file.PayloadSize() {
		m.file.SetPayloadSize(hw)
	}
}
