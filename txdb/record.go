package txdb

import (
	"encoding/binary"

	"github.com/outofforest/photon"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/MicrohexHQ/libbitcoin-database/domain"
	"github.com/MicrohexHQ/libbitcoin-database/internal/varint"
)

// outputsOffset is where the output_count varint begins, right after
// the atomic triple.
const outputsOffset = tripleSize

const outputFixedSize = 4 + 8 // spender_height:4, value:8

// output describes the on-disk position of one output entry so Spend
// can rewrite its spender_height without decoding the whole record.
type output struct {
	SpenderHeight uint32
	Value         uint64
	Script        []byte
	offset        int // byte offset of this output's spender_height field
}

// appendAddress writes the one-byte presence flag and, if set, the
// 20-byte short address hash that trails every input and output's
// script, so a later pop can rebuild the exact domain.TxIn/domain.TxOut
// the push indexed without re-deriving it from the script.
func appendAddress(buf []byte, addr *[20]byte) []byte {
	if addr == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return append(buf, addr[:]...)
}

// appendStealth writes the one-byte presence flag and, if set, the
// 36-byte stealth announcement payload that trails an output's address
// trailer.
func appendStealth(buf []byte, s *domain.StealthAnnouncement) []byte {
	if s == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	buf = append(buf, s.EphemeralKey[:]...)
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], s.Prefix)
	return append(buf, prefix[:]...)
}

// EncodePayload builds a fresh slab payload for a transaction being
// stored for the first time, with every output initialized unspent.
func EncodePayload(tx *domain.Transaction, height uint32, position uint16, state State) []byte {
	buf := make([]byte, tripleSize)
	binary.LittleEndian.PutUint32(buf[0:4], height)
	binary.LittleEndian.PutUint16(buf[4:6], position)
	buf[6] = byte(state)

	buf = varint.Append(buf, uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		var fixed [outputFixedSize]byte
		binary.LittleEndian.PutUint32(fixed[0:4], NotSpent)
		binary.LittleEndian.PutUint64(fixed[4:12], out.Value)
		buf = append(buf, fixed[:]...)
		buf = varint.Append(buf, uint64(len(out.Script)))
		buf = append(buf, out.Script...)
		buf = appendAddress(buf, out.Address)
		buf = appendStealth(buf, out.Stealth)
	}

	buf = varint.Append(buf, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, in.PreviousOutPoint.Hash[:]...)
		var idx [2]byte
		binary.LittleEndian.PutUint16(idx[:], in.PreviousOutPoint.Index)
		buf = append(buf, idx[:]...)
		buf = varint.Append(buf, uint64(len(in.Script)))
		buf = append(buf, in.Script...)
		var seq [4]byte
		binary.LittleEndian.PutUint32(seq[:], in.Sequence)
		buf = append(buf, seq[:]...)
		buf = appendAddress(buf, in.Address)
	}

	buf = varint.Append(buf, uint64(tx.LockTime))
	buf = varint.Append(buf, uint64(tx.Version))
	return buf
}

// skipAddress advances pos past an address trailer: a one-byte
// presence flag and, if set, the 20-byte address that follows it.
func skipAddress(payload []byte, pos int) int {
	if payload[pos] == 1 {
		return pos + 1 + 20
	}
	return pos + 1
}

// skipStealth advances pos past a stealth trailer: a one-byte presence
// flag and, if set, the 36-byte announcement that follows it.
func skipStealth(payload []byte, pos int) int {
	if payload[pos] == 1 {
		return pos + 1 + 32 + 4
	}
	return pos + 1
}

// outputAt locates output index within payload without decoding the
// outputs preceding it any further than skipping their lengths.
func outputAt(payload []byte, index uint16) (out output, count uint64, ok bool) {
	pos := outputsOffset
	cnt, n, err := varint.Get(payload[pos:])
	if err != nil {
		return output{}, 0, false
	}
	pos += n
	if uint64(index) >= cnt {
		return output{}, cnt, false
	}

	for i := uint64(0); i < uint64(index); i++ {
		pos += outputFixedSize
		scriptLen, n, err := varint.Get(payload[pos:])
		if err != nil {
			return output{}, cnt, false
		}
		pos += n + int(scriptLen)
		pos = skipAddress(payload, pos)
		pos = skipStealth(payload, pos)
	}

	spenderHeight := *photon.FromBytes[uint32](payload[pos : pos+4])
	value := *photon.FromBytes[uint64](payload[pos+4 : pos+12])
	scriptLen, n, err := varint.Get(payload[pos+outputFixedSize:])
	if err != nil {
		return output{}, cnt, false
	}
	scriptStart := pos + outputFixedSize + n
	script := payload[scriptStart : scriptStart+int(scriptLen)]

	return output{SpenderHeight: spenderHeight, Value: value, Script: script, offset: pos}, cnt, true
}

// outputCount returns the number of outputs recorded in payload.
func outputCount(payload []byte) uint64 {
	cnt, _, _ := varint.Get(payload[outputsOffset:])
	return cnt
}

// setSpenderHeight overwrites the spender_height of the output
// described by out, previously returned by outputAt on the same
// payload slice.
func setSpenderHeight(payload []byte, out output, height uint32) {
	*photon.FromBytes[uint32](payload[out.offset : out.offset+4]) = height
}

// DecodeTransaction materializes the full transaction recorded in
// payload, identified by hash.
func DecodeTransaction(hash domain.Hash, payload []byte) (*domain.Transaction, error) {
	pos := outputsOffset
	outCount, n, err := varint.Get(payload[pos:])
	if err != nil {
		return nil, errors.Wrap(err, "reading output count")
	}
	pos += n

	outputs := make([]domain.TxOut, 0, outCount)
	for i := uint64(0); i < outCount; i++ {
		pos += 4 // spender_height, not part of the domain output
		value := *photon.FromBytes[uint64](payload[pos : pos+8])
		pos += 8
		scriptLen, n, err := varint.Get(payload[pos:])
		if err != nil {
			return nil, errors.Wrap(err, "reading output script length")
		}
		pos += n
		script := append([]byte(nil), payload[pos:pos+int(scriptLen)]...)
		pos += int(scriptLen)

		var address *[20]byte
		if payload[pos] == 1 {
			var a [20]byte
			copy(a[:], payload[pos+1:pos+1+20])
			address = lo.ToPtr(a)
		}
		pos = skipAddress(payload, pos)

		var stealth *domain.StealthAnnouncement
		if payload[pos] == 1 {
			var s domain.StealthAnnouncement
			copy(s.EphemeralKey[:], payload[pos+1:pos+1+32])
			s.Prefix = *photon.FromBytes[uint32](payload[pos+1+32 : pos+1+32+4])
			stealth = lo.ToPtr(s)
		}
		pos = skipStealth(payload, pos)

		outputs = append(outputs, domain.TxOut{Value: value, Script: script, Address: address, Stealth: stealth})
	}

	inCount, n, err := varint.Get(payload[pos:])
	if err != nil {
		return nil, errors.Wrap(err, "reading input count")
	}
	pos += n

	inputs := make([]domain.TxIn, 0, inCount)
	for i := uint64(0); i < inCount; i++ {
		var prevHash domain.Hash
		copy(prevHash[:], payload[pos:pos+domain.HashSize])
		pos += domain.HashSize
		prevIndex := *photon.FromBytes[uint16](payload[pos : pos+2])
		pos += 2
		scriptLen, n, err := varint.Get(payload[pos:])
		if err != nil {
			return nil, errors.Wrap(err, "reading input script length")
		}
		pos += n
		script := append([]byte(nil), payload[pos:pos+int(scriptLen)]...)
		pos += int(scriptLen)
		seq := *photon.FromBytes[uint32](payload[pos : pos+4])
		pos += 4

		var address *[20]byte
		if payload[pos] == 1 {
			var a [20]byte
			copy(a[:], payload[pos+1:pos+1+20])
			address = lo.ToPtr(a)
		}
		pos = skipAddress(payload, pos)

		inputs = append(inputs, domain.TxIn{
			PreviousOutPoint: domain.OutPoint{Hash: prevHash, Index: prevIndex},
			Script:           script,
			Sequence:         seq,
			Address:          address,
		})
	}

	lockTime, n, err := varint.Get(payload[pos:])
	if err != nil {
		return nil, errors.Wrap(err, "reading lock time")
	}
	pos += n
	version, _, err := varint.Get(payload[pos:])
	if err != nil {
		return nil, errors.Wrap(err, "reading version")
	}

	return &domain.Transaction{
		Hash:     hash,
		Version:  uint32(version),
		LockTime: uint32(lockTime),
		Inputs:   inputs,
		Outputs:  outputs,
	}, nil
}
