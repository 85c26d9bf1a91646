package coordinator

import (
	"context"
	"fmt"

	"github.com/outofforest/parallel"
	"github.com/pkg/errors"

	"github.com/MicrohexHQ/libbitcoin-database/blockdb"
	"github.com/MicrohexHQ/libbitcoin-database/domain"
	"github.com/MicrohexHQ/libbitcoin-database/txdb"
)

// confirmTransaction runs the full confirm sequence for one transaction
// at position within its block: index maintenance first (spends,
// history, stealth), then the transaction record itself, matching the
// required sub-database commit order. It returns a ref locating the
// transaction in the transaction database, for the block record's
// transaction tail.
func (db *DB) confirmTransaction(height uint32, position uint16, tx *domain.Transaction) (blockdb.TxRef, error) {
	if db.cfg.IndexAddresses {
		if err := db.indexConfirm(height, tx); err != nil {
			return blockdb.TxRef{}, err
		}
	}

	if err := db.storeConfirmedTransaction(height, position, tx); err != nil {
		return blockdb.TxRef{}, errors.Wrap(err, "confirming transaction record")
	}

	result, found := db.tx.Get(tx.Hash)
	if !found {
		return blockdb.TxRef{}, errors.Errorf("transaction %s vanished immediately after being stored", tx.Hash)
	}
	return blockdb.TxRef{Hash: tx.Hash, Offset: result.Offset()}, nil
}

// storeConfirmedTransaction promotes tx to confirmed at (height,
// position). A record already held pooled or indexed under tx's exact
// hash is, by construction, the same transaction being promoted —
// coinbases, the only transactions that can legitimately collide on
// hash with an unrelated transaction (a duplicate-coinbase-hash block),
// are never pooled or indexed ahead of confirmation — so that case
// rewrites the existing record in place via Confirm. Any other
// existing state (already confirmed, or none at all) goes through
// Store, which always writes a fresh record and so preserves a
// legitimate duplicate-coinbase-hash coexistence instead of clobbering
// the earlier one.
func (db *DB) storeConfirmedTransaction(height uint32, position uint16, tx *domain.Transaction) error {
	if existing, found := db.tx.Get(tx.Hash); found {
		if _, _, state := existing.Triple(); state == txdb.StatePooled || state == txdb.StateIndexed {
			return db.tx.Confirm(existing, tx, height, position)
		}
	}
	return db.tx.Store(tx, height, position, txdb.StateConfirmed)
}

// pushTransactionsSequential confirms every transaction in txs in
// order, returning their refs in original order. Used by a plain block
// push, which confirms its transactions one at a time rather than
// bucketed across workers.
func (db *DB) pushTransactionsSequential(height uint32, txs []*domain.Transaction) ([]blockdb.TxRef, error) {
	refs := make([]blockdb.TxRef, len(txs))
	for i, tx := range txs {
		ref, err := db.confirmTransaction(height, uint16(i), tx)
		if err != nil {
			return nil, err
		}
		refs[i] = ref
	}
	return refs, nil
}

// pushTransactionsBucketed confirms every transaction in txs using
// min(workers, len(txs)) concurrent buckets, bucket b of B processing
// positions b, b+B, b+2B, ..., used by a reorg's incoming-block push.
// All buckets must complete (and succeed) before it returns.
func (db *DB) pushTransactionsBucketed(ctx context.Context, height uint32, txs []*domain.Transaction, workers int) ([]blockdb.TxRef, error) {
	if len(txs) == 0 {
		return nil, nil
	}

	buckets := workers
	if buckets > len(txs) {
		buckets = len(txs)
	}
	if buckets < 1 {
		buckets = 1
	}

	refs := make([]blockdb.TxRef, len(txs))
	errs := make([]error, buckets)

	err := parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		for b := 0; b < buckets; b++ {
			bucket := b
			spawn(fmt.Sprintf("bucket-%02d", bucket), parallel.Fail, func(ctx context.Context) error {
				for i := bucket; i < len(txs); i += buckets {
					ref, err := db.confirmTransaction(height, uint16(i), txs[i])
					if err != nil {
						errs[bucket] = err
						return err
					}
					refs[i] = ref
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		for _, e := range errs {
			if e != nil {
				return nil, e
			}
		}
		return nil, errors.Wrap(err, "bucketed transaction push")
	}

	return refs, nil
}
