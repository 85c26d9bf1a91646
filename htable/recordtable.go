package htable

import (
	"bytes"
	"sync"

	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/MicrohexHQ/libbitcoin-database/record"
)

// RecordTable is a hash table whose rows are fixed-size records:
// [key | next:4 | payload], with payload occupying the rest of each
// record. Used for the spend table and for the primary table of a
// record multimap, where the payload is itself a list-head index.
type RecordTable struct {
	mu         sync.Mutex
	header     *Header
	records    *record.Manager
	keyLen     int
	nextOffset int
}

// NewRecordTable constructs a RecordTable over header and records for
// fixed-width keys of keyLen bytes. The record size is taken from
// records.RecordSize(); it must be at least keyLen+4.
func NewRecordTable(header *Header, records *record.Manager, keyLen int) (*RecordTable, error) {
	if records.RecordSize() < uint64(keyLen+4) {
		return nil, errors.New("record size too small for key and chain pointer")
	}
	return &RecordTable{header: header, records: records, keyLen: keyLen, nextOffset: keyLen}, nil
}

func (t *RecordTable) payloadOffset() int {
	return t.keyLen + 4
}

// Store prepends a new record for key, writing the record's payload via
// write, and returns the new record's index.
func (t *RecordTable) Store(key []byte, write func(payload []byte)) (uint32, error) {
	if len(key) != t.keyLen {
		return 0, errors.Errorf("key length %d does not match table key length %d", len(key), t.keyLen)
	}

	idx, err := t.records.New(1)
	if err != nil {
		return 0, errors.Wrap(err, "allocating record")
	}

	row := t.records.Get(idx)
	copy(row[:t.keyLen], key)
	write(row[t.payloadOffset():])

	bucket := Bucket(key, t.header.Buckets())

	t.mu.Lock()
	head := t.header.Read(bucket)
	*photon.FromBytes[uint32](row[t.nextOffset : t.nextOffset+4]) = uint32(head)
	t.header.Write(bucket, uint64(idx))
	t.mu.Unlock()

	return idx, nil
}

// Find returns the payload of the first (most recently stored) row
// matching key, plus its record index.
func (t *RecordTable) Find(key []byte) (payload []byte, index uint32, found bool) {
	bucket := Bucket(key, t.header.Buckets())
	cur := uint32(t.header.Read(bucket))

	for cur != uint32(EmptyRecord) {
		row := t.records.Get(cur)
		if bytes.Equal(row[:t.keyLen], key) {
			return row[t.payloadOffset():], cur, true
		}
		cur = *photon.FromBytes[uint32](row[t.nextOffset : t.nextOffset+4])
	}

	return nil, 0, false
}

// Update rewrites in place the payload of the first row matching key.
func (t *RecordTable) Update(key []byte, fn func(payload []byte)) (uint32, bool) {
	payload, idx, found := t.Find(key)
	if !found {
		return 0, false
	}
	fn(payload)
	return idx, true
}

// Unlink removes the first row matching key from its bucket chain. Not
// safe to call concurrently with Store/Unlink on the same table.
func (t *RecordTable) Unlink(key []byte) bool {
	bucket := Bucket(key, t.header.Buckets())
	cur := uint32(t.header.Read(bucket))
	if cur == uint32(EmptyRecord) {
		return false
	}

	row := t.records.Get(cur)
	if bytes.Equal(row[:t.keyLen], key) {
		next := *photon.FromBytes[uint32](row[t.nextOffset : t.nextOffset+4])
		t.header.Write(bucket, uint64(next))
		return true
	}

	prev := cur
	cur = *photon.FromBytes[uint32](row[t.nextOffset : t.nextOffset+4])
	for cur != uint32(EmptyRecord) {
		curRow := t.records.Get(cur)
		if bytes.Equal(curRow[:t.keyLen], key) {
			next := *photon.FromBytes[uint32](curRow[t.nextOffset : t.nextOffset+4])
			prevRow := t.records.Get(prev)
			*photon.FromBytes[uint32](prevRow[t.nextOffset : t.nextOffset+4]) = next
			return true
		}
		prev = cur
		cur = *photon.FromBytes[uint32](curRow[t.nextOffset : t.nextOffset+4])
	}

	return false
}

// GetByIndex returns the payload of the record at index i directly,
// without a key lookup — used by callers that persisted the index
// themselves (e.g. a multimap's list-node traversal).
func (t *RecordTable) GetByIndex(i uint32) []byte {
	return t.records.Get(i)[t.payloadOffset():]
}
