package txdb

import "github.com/outofforest/photon"

// State is the lifecycle state of a stored transaction.
type State uint8

const (
	// StateInvalid marks a transaction retained only as a reject-cache
	// entry; the height field of such a record holds an error code
	// instead of a block height.
	StateInvalid State = iota
	// StatePooled marks an unconfirmed transaction held for relay/mining.
	StatePooled
	// StateIndexed marks a transaction that has been assigned a block
	// position ahead of the rest of that block's indexes landing.
	StateIndexed
	// StateConfirmed marks a transaction whose owning block is on the
	// current strong chain.
	StateConfirmed
)

// Unconfirmed is the position sentinel for transactions with no block
// position (pooled, invalid, or indexed-but-not-yet-positioned).
const Unconfirmed uint16 = 0xffff

// NotSpent is the spender-height sentinel for an output that has not
// been spent by any confirmed or indexed transaction.
const NotSpent uint32 = 0xffffffff

// MaxForkHeight is the fork_height value meaning "no fork constraint":
// the caller is not evaluating a speculative chain and does not
// require confirmation from the queried record.
const MaxForkHeight uint32 = 0xffffffff

// tripleSize is the byte width of the atomic (height, position, state)
// group guarded by DB.metaMu.
const tripleSize = 4 + 2 + 1

// ReadTriple reads the atomic (height, position, state) group from the
// start of a transaction record's payload.
func ReadTriple(payload []byte) (height uint32, position uint16, state State) {
	height = *photon.FromBytes[uint32](payload[0:4])
	position = *photon.FromBytes[uint16](payload[4:6])
	state = State(payload[6])
	return height, position, state
}

// WriteTriple overwrites the atomic (height, position, state) group in
// place. Callers must hold DB.metaMu for writing.
func WriteTriple(payload []byte, height uint32, position uint16, state State) {
	*photon.FromBytes[uint32](payload[0:4]) = height
	*photon.FromBytes[uint16](payload[4:6]) = position
	payload[6] = byte(state)
}

// confirmedForFork reports whether a record in state at height counts
// as confirmed when evaluated against forkHeight.
//
// The indexed/fork_height=max interaction is handled with the same
// polarity as is_spent (allow_indexed = fork_height != max); see
// DESIGN.md's Open Question decisions.
func confirmedForFork(height uint32, state State, forkHeight uint32) bool {
	switch state {
	case StateConfirmed:
		return height <= forkHeight
	case StateIndexed:
		return forkHeight != MaxForkHeight
	default:
		return false
	}
}
