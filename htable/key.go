package htable

import "math/big"

// Bucket computes key mod buckets, interpreting key as a little-endian
// unsigned integer wider than a machine word. The modulus is computed
// with multi-limb arithmetic so that wide keys, such as 32-byte
// transaction hashes, distribute uniformly over any bucket count.
//
// Bucket selection here is deliberately the literal key value mod the
// bucket count, not a hash of the key — cespare/xxhash would compute a
// hash, not a modulus of the raw key, so it has no role here. math/big
// is the standard library's arbitrary-precision integer type and is
// used as a numeric primitive, not as a substitute for a pluggable
// concern.
func Bucket(key []byte, buckets uint64) uint64 {
	if buckets == 0 {
		return 0
	}

	bigEndian := make([]byte, len(key))
	for i, b := range key {
		bigEndian[len(key)-1-i] = b
	}

	n := new(big.Int).SetBytes(bigEndian)
	m := new(big.Int).SetUint64(buckets)
	return new(big.Int).Mod(n, m).Uint64()
}
