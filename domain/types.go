// Package domain defines the opaque domain types the store layer persists
// but does not interpret: block and transaction wire shapes, hashes and
// output points. Serialization, script evaluation and consensus rules are
// external collaborators — this package only carries the byte
// encodings the store needs to read and write records.
package domain

import "encoding/binary"

// HashSize is the length in bytes of a block or transaction hash.
const HashSize = 32

// Hash is a double-SHA256-style digest, stored and compared byte-for-byte.
type Hash [HashSize]byte

// IsZero reports whether the hash is the all-zero null hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String renders the hash as a reversed (big-endian display) hex string,
// matching the convention used by every chain-hash type in the pack.
func (h Hash) String() string {
	const hexdigits = "0123456789abcdef"
	buf := make([]byte, 0, HashSize*2)
	for i := HashSize - 1; i >= 0; i-- {
		b := h[i]
		buf = append(buf, hexdigits[b>>4], hexdigits[b&0x0f])
	}
	return string(buf)
}

// OutPoint identifies a transaction output by the hash of the transaction
// that created it and its index within that transaction's output list.
type OutPoint struct {
	Hash  Hash
	Index uint16
}

// IsNull reports whether the outpoint is the coinbase sentinel: a null
// hash with a max-value index. Output lookups treat this as "not
// found" rather than looking anything up.
func (o OutPoint) IsNull() bool {
	return o.Hash.IsZero() && o.Index == 0xffff
}

// TxIn is a transaction input.
type TxIn struct {
	PreviousOutPoint OutPoint
	Script           []byte
	Sequence         uint32
	// Address is the short hash of the input's signing address, when
	// address indexing is enabled. Script interpretation happens
	// upstream of this package; the store persists the
	// already-extracted hash as given and never derives it from Script.
	Address *[20]byte
}

// TxOut is a transaction output.
type TxOut struct {
	Value  uint64
	Script []byte
	// Address is the short hash of the output's destination address,
	// when address indexing is enabled and the script matches a
	// recognized pay-to-address pattern. Nil means either indexing is
	// disabled or the script is not a form this store's caller indexes.
	Address *[20]byte
	// Stealth carries the ephemeral-key announcement data for an
	// even-indexed output that pairs with the next (odd-indexed)
	// payment output, when the caller has identified it as a stealth
	// announcement script. Nil for every other output.
	Stealth *StealthAnnouncement
}

// StealthAnnouncement is the already-extracted payload of a stealth
// ephemeral-key announcement script.
type StealthAnnouncement struct {
	EphemeralKey [32]byte
	Prefix       uint32
}

// Transaction is the decoded shape of a transaction record's immutable
// payload (everything in the tx record except the atomic triple and the
// per-output spender heights, which txdb owns separately).
type Transaction struct {
	Hash     Hash
	Version  uint32
	LockTime uint32
	Inputs   []TxIn
	Outputs  []TxOut
}

// IsCoinbase reports whether the transaction has exactly one input and
// that input's previous outpoint is null.
func (t *Transaction) IsCoinbase() bool {
	return len(t.Inputs) == 1 && t.Inputs[0].PreviousOutPoint.IsNull()
}

// Header is a block header: the 80-byte fixed fields every chain in the
// pack uses (version, previous-block hash, merkle root, time, bits, nonce).
type Header struct {
	Version       uint32
	PreviousBlock Hash
	MerkleRoot    Hash
	Timestamp     uint32
	Bits          uint32
	Nonce         uint32
}

// HeaderSize is the serialized size of Header in bytes.
const HeaderSize = 80

// Serialize returns the 80-byte wire encoding of the header. Computing a
// hash from it is an external collaborator's job; the store layer only
// ever persists and compares already-computed Hash values.
func (h *Header) Serialize() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Version)
	copy(buf[4:36], h.PreviousBlock[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[72:76], h.Bits)
	binary.LittleEndian.PutUint32(buf[76:80], h.Nonce)
	return buf
}

// Block is a full block: header plus its ordered transactions.
type Block struct {
	Header       Header
	Transactions []*Transaction
}
