package htable

import (
	"bytes"
	"sync"

	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/MicrohexHQ/libbitcoin-database/slab"
)

// ErrNotFound is the error value for a key with no matching row. Find,
// Update and Unlink do not return it: they report a missing key via
// their boolean return, so lookups never fail loudly, they just come
// back empty.
var ErrNotFound = errors.New("key not found")

// SlabTable is a hash table whose rows live in a slab.Manager: each row
// is [key | next:8 | payload], with payload length chosen per Store
// call. The table tolerates duplicate keys: Find and Update see the
// most recently stored row first.
type SlabTable struct {
	mu     sync.Mutex
	header *Header
	slabs  *slab.Manager
	keyLen int
}

// NewSlabTable constructs a SlabTable over header and slabs for
// fixed-width keys of keyLen bytes.
func NewSlabTable(header *Header, slabs *slab.Manager, keyLen int) *SlabTable {
	return &SlabTable{header: header, slabs: slabs, keyLen: keyLen}
}

func (t *SlabTable) rowHeaderSize() uint64 {
	return uint64(t.keyLen) + 8
}

// Store prepends a new row for key, writing size bytes of payload via
// write, and returns the file offset of the payload. Allocation and the
// payload write happen before the bucket-head lock is taken, so readers
// observe either the pre-link state (row invisible) or the fully
// initialized post-link state.
func (t *SlabTable) Store(key []byte, size uint64, write func(payload []byte)) (uint64, error) {
	if len(key) != t.keyLen {
		return 0, errors.Errorf("key length %d does not match table key length %d", len(key), t.keyLen)
	}

	rowSize := t.rowHeaderSize() + size
	rowOffset, err := t.slabs.New(rowSize)
	if err != nil {
		return 0, errors.Wrap(err, "allocating row")
	}

	row := t.slabs.Get(rowOffset, rowSize)
	copy(row[:t.keyLen], key)
	write(row[t.rowHeaderSize():])

	bucket := Bucket(key, t.header.Buckets())

	t.mu.Lock()
	head := t.header.Read(bucket)
	*photon.FromBytes[uint64](row[t.keyLen : t.keyLen+8]) = head
	t.header.Write(bucket, rowOffset)
	t.mu.Unlock()

	return rowOffset + t.rowHeaderSize(), nil
}

// StoreBytes is a convenience wrapper around Store for a pre-serialized
// payload.
func (t *SlabTable) StoreBytes(key, value []byte) (uint64, error) {
	return t.Store(key, uint64(len(value)), func(payload []byte) {
		copy(payload, value)
	})
}

// Find returns the payload of the first (most recently stored) row
// matching key, as a slice running from the payload's start to the end
// of the mapping — payloads are self-delimiting (varint-prefixed
// fields), so callers parse forward rather than being given an exact
// length. It also returns the payload's file offset.
func (t *SlabTable) Find(key []byte) (payload []byte, offset uint64, found bool) {
	bucket := Bucket(key, t.header.Buckets())
	cur := t.header.Read(bucket)

	for cur != EmptySlab {
		rowHeader := t.slabs.Get(cur, t.rowHeaderSize())
		if bytes.Equal(rowHeader[:t.keyLen], key) {
			payloadOffset := cur + t.rowHeaderSize()
			return t.slabs.Rest(payloadOffset), payloadOffset, true
		}
		cur = *photon.FromBytes[uint64](rowHeader[t.keyLen : t.keyLen+8])
	}

	return nil, 0, false
}

// At returns the self-delimiting payload slice beginning at offset, a
// value previously returned by Store/StoreBytes/Find/Update. It skips
// the key lookup entirely, for callers that persisted the offset
// themselves rather than the key (e.g. the block database's
// transaction offset tail).
func (t *SlabTable) At(offset uint64) []byte {
	return t.slabs.Rest(offset)
}

// Update rewrites in place the payload of the first row matching key by
// calling fn with the live payload slice, and returns the payload's file
// offset. It reports false if no row matches.
func (t *SlabTable) Update(key []byte, fn func(payload []byte)) (uint64, bool) {
	payload, offset, found := t.Find(key)
	if !found {
		return 0, false
	}
	fn(payload)
	return offset, true
}

// Unlink removes the first (most recently stored) row matching key from
// its bucket chain. It is not safe to call concurrently with Store or
// Unlink on the same table — callers must serialize it within the
// writer's critical section.
func (t *SlabTable) Unlink(key []byte) bool {
	bucket := Bucket(key, t.header.Buckets())
	cur := t.header.Read(bucket)
	if cur == EmptySlab {
		return false
	}

	rowHeader := t.slabs.Get(cur, t.rowHeaderSize())
	if bytes.Equal(rowHeader[:t.keyLen], key) {
		next := *photon.FromBytes[uint64](rowHeader[t.keyLen : t.keyLen+8])
		t.header.Write(bucket, next)
		return true
	}

	prev := cur
	cur = *photon.FromBytes[uint64](rowHeader[t.keyLen : t.keyLen+8])
	for cur != EmptySlab {
		curHeader := t.slabs.Get(cur, t.rowHeaderSize())
		if bytes.Equal(curHeader[:t.keyLen], key) {
			next := *photon.FromBytes[uint64](curHeader[t.keyLen : t.keyLen+8])
			prevHeader := t.slabs.Get(prev, t.rowHeaderSize())
			*photon.FromBytes[uint64](prevHeader[t.keyLen : t.keyLen+8]) = next
			return true
		}
		prev = cur
		cur = *photon.FromBytes[uint64](curHeader[t.keyLen : t.keyLen+8])
	}

	return false
}
