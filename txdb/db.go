// Package txdb implements the transaction database: a slab hash table
// keyed by transaction hash whose payload carries an atomically
// rewritable (height, position, state) triple followed by the
// transaction's outputs and inputs, plus a bounded unspent-output
// cache for hot UTXO lookups.
//
// Takes the find/store-over-a-hashed-key shape from space.Space[K, V]
// (htable.SlabTable plays that role here) and the pattern of a single
// mutex guarding a small shared metadata block rewritten out of band
// from the bulk payload from state.State.
package txdb

import (
	"sync"

	"github.com/outofforest/mass"
	"github.com/pkg/errors"

	"github.com/MicrohexHQ/libbitcoin-database/domain"
	"github.com/MicrohexHQ/libbitcoin-database/htable"
)

// ErrNotFound is the error value for a transaction hash with no record.
// Get, GetOutput and Exists do not return it; they report a missing hash
// through their boolean result.
var ErrNotFound = errors.New("transaction not found")

// DB is the transaction database.
type DB struct {
	table  *htable.SlabTable
	metaMu sync.RWMutex
	cache  *outputCache
	pool   *mass.Mass[Result]
}

// Open constructs a transaction database over table, with an unspent-
// output cache bounded to cacheCapacity entries.
func Open(table *htable.SlabTable, cacheCapacity int) (*DB, error) {
	cache, err := newOutputCache(cacheCapacity)
	if err != nil {
		return nil, errors.Wrap(err, "creating output cache")
	}
	return &DB{
		table: table,
		cache: cache,
		pool:  mass.New[Result](resultPoolCapacity),
	}, nil
}

func (db *DB) newResult(hash domain.Hash, payload []byte, offset uint64) *Result {
	r := db.pool.New()
	r.db = db
	r.hash = hash
	r.payload = payload
	r.offset = offset
	r.valid = true
	return r
}

// Get locates the transaction record for hash.
func (db *DB) Get(hash domain.Hash) (*Result, bool) {
	payload, offset, found := db.table.Find(hash[:])
	if !found {
		return nil, false
	}
	return db.newResult(hash, payload, offset), true
}

// GetAt rehydrates the result at a previously returned Result.Offset(),
// bypassing the hash lookup. hash is the caller-known transaction hash
// (not re-derived from the payload). Used to rehydrate a block's
// transactions directly from the offsets the block database persisted
// alongside it.
func (db *DB) GetAt(hash domain.Hash, offset uint64) *Result {
	return db.newResult(hash, db.table.At(offset), offset)
}

// Exists reports whether hash has any record (confirmed, indexed,
// pooled, or invalid), without decoding it.
func (db *DB) Exists(hash domain.Hash) bool {
	_, _, found := db.table.Find(hash[:])
	return found
}

// IsInvalid reports whether hash is retained as a reject-cache entry,
// and if so returns the error code stored in its height field.
func (db *DB) IsInvalid(hash domain.Hash) (code uint32, invalid bool) {
	payload, _, found := db.table.Find(hash[:])
	if !found {
		return 0, false
	}

	db.metaMu.RLock()
	defer db.metaMu.RUnlock()
	height, _, state := ReadTriple(payload)
	if state != StateInvalid {
		return 0, false
	}
	return height, true
}

// OutputQuery is the result of GetOutput.
type OutputQuery struct {
	Value      uint64
	Script     []byte
	Confirmed  bool
	Spent      bool
	IsCoinbase bool
	Height     uint32
}

// GetOutput resolves outpoint against forkHeight, consulting the
// unspent-output cache before falling back to a full record lookup.
// A finite forkHeight requires confirmation: if the owning transaction
// is not confirmed (or indexed, per the adopted polarity) at that
// height, GetOutput reports not found. forkHeight == MaxForkHeight
// accepts pooled/indexed outputs too, as pool validation does.
func (db *DB) GetOutput(outpoint domain.OutPoint, forkHeight uint32) (OutputQuery, bool) {
	if outpoint.IsNull() {
		return OutputQuery{}, false
	}

	if cached, ok := db.cache.get(outpoint); ok && (cached.Height <= forkHeight || forkHeight == MaxForkHeight) {
		return OutputQuery{
			Value:      cached.Value,
			Script:     cached.Script,
			Confirmed:  true,
			Spent:      false,
			IsCoinbase: cached.IsCoinbase,
			Height:     cached.Height,
		}, true
	}

	payload, _, found := db.table.Find(outpoint.Hash[:])
	if !found {
		return OutputQuery{}, false
	}

	db.metaMu.RLock()
	height, position, state := ReadTriple(payload)
	db.metaMu.RUnlock()

	if height == 0 && (state == StateConfirmed || state == StateIndexed) {
		// Genesis coinbase outputs are immune to spend/reorg bookkeeping;
		// treat the request as a miss rather than expose them here.
		return OutputQuery{}, false
	}

	confirmed := confirmedForFork(height, state, forkHeight)
	if !confirmed && forkHeight != MaxForkHeight {
		return OutputQuery{}, false
	}

	out, _, ok := outputAt(payload, outpoint.Index)
	if !ok {
		return OutputQuery{}, false
	}

	spent := out.SpenderHeight != NotSpent && (forkHeight == MaxForkHeight || out.SpenderHeight <= forkHeight)
	isCoinbase := position == 0

	result := OutputQuery{
		Value:      out.Value,
		Script:     out.Script,
		Confirmed:  confirmed,
		Spent:      spent,
		IsCoinbase: isCoinbase,
		Height:     height,
	}

	if confirmed && state == StateConfirmed && out.SpenderHeight == NotSpent {
		db.cache.put(outpoint, cachedOutput{Value: out.Value, Script: out.Script, Height: height, IsCoinbase: isCoinbase})
	}

	return result, true
}

// Store always writes a fresh record for tx, even if hash already has
// one. For StateConfirmed it also spends every prevout tx references.
// Store never matches an existing record by hash and updates it in
// place: two confirmed transactions can legitimately share a hash (a
// duplicate coinbase), and only the caller — holding a Result from a
// prior lookup of the exact record being promoted — can tell that case
// apart from a genuinely new transaction. That promotion path is
// Confirm, not Store.
func (db *DB) Store(tx *domain.Transaction, height uint32, position uint16, state State) error {
	if state == StateConfirmed {
		for _, in := range tx.Inputs {
			if in.PreviousOutPoint.IsNull() {
				continue // coinbase input, nothing to spend
			}
			if !db.Spend(in.PreviousOutPoint, height) {
				return errors.Errorf("spending prevout %s referenced by %s", in.PreviousOutPoint.Hash, tx.Hash)
			}
		}
	}

	payload := EncodePayload(tx, height, position, state)
	_, err := db.table.Store(tx.Hash[:], uint64(len(payload)), func(row []byte) { copy(row, payload) })
	return errors.Wrap(err, "storing transaction record")
}

// Pool is the inverse of Confirm at the pooled state: it unspends
// every prevout tx's inputs reference, demotes tx's own triple to
// (forks=unverified, position=unconfirmed, pooled), and evicts the
// cache entry for each of tx's own outputs — they were cached as
// confirmed, and demoting tx without evicting them would leave a
// stale Confirmed:true entry behind for a no-longer-confirmed output.
func (db *DB) Pool(tx *domain.Transaction) bool {
	payload, _, found := db.table.Find(tx.Hash[:])
	if !found {
		return false
	}

	for _, in := range tx.Inputs {
		if in.PreviousOutPoint.IsNull() {
			continue
		}
		if !db.Spend(in.PreviousOutPoint, NotSpent) {
			return false
		}
	}

	db.metaMu.Lock()
	WriteTriple(payload, 0, Unconfirmed, StatePooled)
	db.metaMu.Unlock()

	for i := range tx.Outputs {
		db.cache.evict(domain.OutPoint{Hash: tx.Hash, Index: uint16(i)})
	}
	return true
}

// Spend sets the spender height of outpoint's output to spenderHeight
// (or unspends it, when spenderHeight is NotSpent). It requires the
// owning transaction to be confirmed at or before spenderHeight.
func (db *DB) Spend(outpoint domain.OutPoint, spenderHeight uint32) bool {
	payload, _, found := db.table.Find(outpoint.Hash[:])
	if !found {
		return false
	}

	db.metaMu.RLock()
	height, _, state := ReadTriple(payload)
	db.metaMu.RUnlock()

	if state != StateConfirmed || height > spenderHeight {
		return false
	}

	out, _, ok := outputAt(payload, outpoint.Index)
	if !ok {
		return false
	}

	setSpenderHeight(payload, out, spenderHeight)
	db.cache.evict(outpoint)
	return true
}

// Confirm promotes tx to confirmed at (height, position) by rewriting
// the atomic triple of r in place, spending every prevout tx
// references. r must be a Result the caller already obtained from a
// prior Get of this exact record — e.g. the lookup a caller performs
// while validating a pooled transaction before confirming it — never
// one fetched just to check whether a same-hash record happens to
// exist. Promoting a transaction the caller has not already looked up
// this way must go through Store instead, which always writes a fresh
// record.
func (db *DB) Confirm(r *Result, tx *domain.Transaction, height uint32, position uint16) error {
	for _, in := range tx.Inputs {
		if in.PreviousOutPoint.IsNull() {
			continue
		}
		if !db.Spend(in.PreviousOutPoint, height) {
			return errors.Errorf("spending prevout %s referenced by %s", in.PreviousOutPoint.Hash, tx.Hash)
		}
	}

	db.metaMu.Lock()
	WriteTriple(r.payload, height, position, StateConfirmed)
	db.metaMu.Unlock()
	return nil
}
