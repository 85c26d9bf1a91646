// Package htable implements the hash-table header and the slab- and
// record-backed hash tables built on top of it: a fixed array of
// bucket heads, each either a slab file offset or a record index,
// with collision chains resolved by chain-head prepend.
//
// Takes the idea of a fixed bucket array addressed by a reduced key
// from space.Space's hash-indexed node lookup, generalized from its
// extendible-hash/COW-B-tree node shape to a much simpler singly linked
// collision chain — and the chain-walk shape for Find/Update traversal
// from list.List, with the COW revision/side-list bookkeeping stripped
// out: these chains are plain mutable linked lists, never copy-on-write.
package htable

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/MicrohexHQ/libbitcoin-database/mmfile"
)

// EntryWidth is the width in bytes of one bucket-head entry.
type EntryWidth uint64

// Entry widths: slab tables store an 8-byte file
// offset per bucket, record tables a 4-byte record index.
const (
	SlabEntry   EntryWidth = 8
	RecordEntry EntryWidth = 4
)

// EmptySlab and EmptyRecord are the bucket-empty sentinels for the two
// entry widths.
const (
	EmptySlab   uint64 = 0
	EmptyRecord uint64 = 0xffffffff
)

// checksumSize is the width of the running header checksum stored
// immediately before the bucket array.
const checksumSize = 8

// Header is the fixed bucket-head array stored at the start of a hash
// table file, right after the file's own payload-size word. A running
// xxhash checksum of the bucket array is kept directly ahead of it and
// rewritten on every bucket write, so a header torn by a crash
// mid-growth is caught the next time the table is opened rather than
// silently read back as a valid, if wrong, bucket chain.
type Header struct {
	file       *mmfile.File
	base       uint64 // offset of the checksum field
	bucketBase uint64 // offset of bucket 0, = base + checksumSize
	buckets    uint64
	width      EntryWidth
	empty      uint64
	checksum   uint64
}

// bucketHash folds a bucket's index and current value into the running
// header checksum.
func bucketHash(index, value uint64) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], index)
	binary.LittleEndian.PutUint64(buf[8:16], value)
	return xxhash.Sum64(buf[:])
}

// OpenHeader attaches a Header to the region of file starting at base,
// sized for the given number of buckets. If the table has never been
// written to (nothing committed past base) every bucket head is
// initialized to the empty sentinel — necessary for record tables,
// whose sentinel (0xffffffff) is not the mmap's natural zero-fill
// value — and a fresh checksum is written over the initialized array.
// Otherwise the stored checksum is recomputed from the bucket array's
// current contents and compared against the value on disk; a mismatch
// means the header region was torn by a crash partway through a prior
// growth or write, and OpenHeader refuses to hand back a Header built
// on it.
func OpenHeader(file *mmfile.File, base, buckets uint64, width EntryWidth, empty uint64) (*Header, error) {
	bucketBase := base + checksumSize
	size := buckets * uint64(width)
	if err := file.Reserve(bucketBase + size); err != nil {
		return nil, errors.Wrap(err, "reserving hash-table header")
	}

	h := &Header{file: file, base: base, bucketBase: bucketBase, buckets: buckets, width: width, empty: empty}

	if file.PayloadSize() <= base {
		for i := uint64(0); i < buckets; i++ {
			h.writeBucket(i, empty)
		}
		h.checksum = h.computeChecksum()
		h.writeChecksum()
		return h, nil
	}

	h.checksum = h.computeChecksum()
	stored := *photon.FromBytes[uint64](file.Data()[base : base+checksumSize])
	if stored != h.checksum {
		return nil, errors.New("hash-table header checksum mismatch: header region was torn by a crash mid-growth")
	}
	return h, nil
}

// Buckets returns the number of buckets in the header.
func (h *Header) Buckets() uint64 {
	return h.buckets
}

// Empty returns the bucket-empty sentinel this header uses.
func (h *Header) Empty() uint64 {
	return h.empty
}

// EndOffset returns the absolute file offset immediately following the
// header region, where a record/slab manager's own counter begins.
func (h *Header) EndOffset() uint64 {
	return h.bucketBase + h.buckets*uint64(h.width)
}

// Read returns the bucket head at index i.
func (h *Header) Read(i uint64) uint64 {
	off := h.bucketBase + i*uint64(h.width)
	switch h.width {
	case RecordEntry:
		return uint64(*photon.FromBytes[uint32](h.file.Data()[off : off+4]))
	default:
		return *photon.FromBytes[uint64](h.file.Data()[off : off+8])
	}
}

// Write sets the bucket head at index i, folding the change into the
// running header checksum and persisting it alongside the bucket
// itself.
func (h *Header) Write(i, v uint64) {
	old := h.Read(i)
	h.writeBucket(i, v)
	h.checksum ^= bucketHash(i, old) ^ bucketHash(i, v)
	h.writeChecksum()
}

func (h *Header) writeBucket(i, v uint64) {
	off := h.bucketBase + i*uint64(h.width)
	switch h.width {
	case RecordEntry:
		*photon.FromBytes[uint32](h.file.Data()[off : off+4]) = uint32(v)
	default:
		*photon.FromBytes[uint64](h.file.Data()[off : off+8]) = v
	}
}

func (h *Header) computeChecksum() uint64 {
	var sum uint64
	for i := uint64(0); i < h.buckets; i++ {
		sum ^= bucketHash(i, h.Read(i))
	}
	return sum
}

func (h *Header) writeChecksum() {
	*photon.FromBytes[uint64](h.file.Data()[h.base : h.base+checksumSize]) = h.checksum
}
