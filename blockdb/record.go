package blockdb

import (
	"encoding/binary"

	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/MicrohexHQ/libbitcoin-database/domain"
	"github.com/MicrohexHQ/libbitcoin-database/internal/varint"
)

// TxRef locates one of a block's transactions in the transaction
// database: its hash (needed to rehydrate a txdb.Result without a
// second hash lookup) and its slab offset (an O(1) shortcut straight to
// the payload, bypassing the hash table walk entirely).
type TxRef struct {
	Hash   domain.Hash
	Offset uint64
}

const txRefSize = domain.HashSize + 8

// EncodeBlockPayload builds a block_table row: the block's height and
// header, followed by a (hash, slab offset) pair for each of its
// transactions in the transaction database, in original block order. A
// header-only push (no transactions yet confirmed) passes a nil or
// empty refs.
func EncodeBlockPayload(height uint32, header *domain.Header, refs []TxRef) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf[0:4], height)
	buf = append(buf, header.Serialize()...)
	buf = varint.Append(buf, uint64(len(refs)))
	for _, ref := range refs {
		buf = append(buf, ref.Hash[:]...)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], ref.Offset)
		buf = append(buf, b[:]...)
	}
	return buf
}

// DecodeBlockPayload is the inverse of EncodeBlockPayload.
func DecodeBlockPayload(payload []byte) (height uint32, header domain.Header, refs []TxRef, err error) {
	if len(payload) < 4+domain.HeaderSize {
		return 0, domain.Header{}, nil, errors.New("block record too short")
	}

	height = *photon.FromBytes[uint32](payload[0:4])
	pos := 4

	header = domain.Header{
		Version: *photon.FromBytes[uint32](payload[pos : pos+4]),
		Timestamp: *photon.FromBytes[uint32](payload[pos+68 : pos+72]),
		Bits:      *photon.FromBytes[uint32](payload[pos+72 : pos+76]),
		Nonce:     *photon.FromBytes[uint32](payload[pos+76 : pos+80]),
	}
	copy(header.PreviousBlock[:], payload[pos+4:pos+36])
	copy(header.MerkleRoot[:], payload[pos+36:pos+68])
	pos += domain.HeaderSize

	count, n, err := varint.Get(payload[pos:])
	if err != nil {
		return 0, domain.Header{}, nil, errors.Wrap(err, "reading transaction ref count")
	}
	pos += n

	refs = make([]TxRef, count)
	for i := range refs {
		var ref TxRef
		copy(ref.Hash[:], payload[pos:pos+domain.HashSize])
		ref.Offset = *photon.FromBytes[uint64](payload[pos+domain.HashSize : pos+txRefSize])
		pos += txRefSize
		refs[i] = ref
	}

	return height, header, refs, nil
}
