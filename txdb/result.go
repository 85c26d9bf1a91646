package txdb

import "github.com/MicrohexHQ/libbitcoin-database/domain"

// resultPoolCapacity bounds the pooled Result arena; Get/GetAt
// callers are expected to be short-lived (a single RPC or validation
// step) so the pool rarely needs to grow past it.
const resultPoolCapacity = 4096

// Result is a deferred-read handle into a located transaction record.
// It holds the record's payload slice directly rather than copying it,
// so repeated field reads (Height, State, Output) cost no extra
// lookups; callers must not retain a Result across a Confirm/Spend/Pool
// call that rewrites the same record.
type Result struct {
	db      *DB
	payload []byte
	hash    domain.Hash
	offset  uint64
	valid   bool
}

// Valid reports whether the result refers to an existing record.
func (r *Result) Valid() bool {
	return r.valid
}

// Hash returns the transaction hash this result was located by.
func (r *Result) Hash() domain.Hash {
	return r.hash
}

// Offset returns the slab offset of the record, usable with DB.GetAt to
// rehydrate the same record without a hash lookup.
func (r *Result) Offset() uint64 {
	return r.offset
}

// Triple returns the atomic (height, position, state) group.
func (r *Result) Triple() (height uint32, position uint16, state State) {
	r.db.metaMu.RLock()
	defer r.db.metaMu.RUnlock()
	return ReadTriple(r.payload)
}

// IsSpent reports whether output index of this transaction is spent as
// of forkHeight, following the same indexed/fork_height=max polarity
// as GetOutput (DESIGN.md's Open Question decisions).
func (r *Result) IsSpent(index uint16, forkHeight uint32) (spent bool, found bool) {
	r.db.metaMu.RLock()
	defer r.db.metaMu.RUnlock()

	height, _, state := ReadTriple(r.payload)
	if !confirmedForFork(height, state, forkHeight) {
		return false, false
	}

	out, _, ok := outputAt(r.payload, index)
	if !ok {
		return false, false
	}
	if out.SpenderHeight == NotSpent {
		return false, true
	}
	return out.SpenderHeight <= forkHeight || forkHeight == MaxForkHeight, true
}

// Error reports the reject-cache error code recorded in this result's
// height field, if the record is a StateInvalid entry.
func (r *Result) Error() (code uint32, ok bool) {
	r.db.metaMu.RLock()
	defer r.db.metaMu.RUnlock()

	height, _, state := ReadTriple(r.payload)
	if state != StateInvalid {
		return 0, false
	}
	return height, true
}

// Transaction decodes the full transaction recorded in this result.
func (r *Result) Transaction() (*domain.Transaction, error) {
	return DecodeTransaction(r.hash, r.payload)
}

func (r *Result) reset() {
	r.db = nil
	r.payload = nil
	r.hash = domain.Hash{}
	r.offset = 0
	r.valid = false
}
