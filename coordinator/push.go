package coordinator

import (
	"context"

	"github.com/pkg/errors"

	"github.com/MicrohexHQ/libbitcoin-database/blockdb"
	"github.com/MicrohexHQ/libbitcoin-database/domain"
	"github.com/MicrohexHQ/libbitcoin-database/txdb"
)

// Push pools a previously validated transaction: it is stored with
// state pooled at the given fork height and an unconfirmed position.
// Preflight rejects a transaction hash that already has a record
// short of "confirmed and fully spent", since pooling it again would
// either shadow still-live coinage or silently duplicate a record
// still pending confirmation. db.tx.Exists is a cheap probe that lets
// a hash with no prior record at all skip straight to Store without
// decoding a Result for it.
func (db *DB) Push(tx *domain.Transaction, forkHeight uint32) error {
	return db.withWrite(func() error {
		if db.tx.Exists(tx.Hash) {
			existing, found := db.tx.Get(tx.Hash)
			if !found || hasUnspentOutput(existing, len(tx.Outputs)) {
				return ErrUnspentDuplicate
			}
		}
		if err := db.tx.Store(tx, forkHeight, txdb.Unconfirmed, txdb.StatePooled); err != nil {
			return errors.Wrap(ErrOperationFailed, err.Error())
		}
		return nil
	})
}

// hasUnspentOutput reports whether r falls short of "confirmed and
// every output spent". It always probes with txdb.MaxForkHeight,
// independent of the fork height the caller is pooling against: a
// record that isn't itself confirmed is never eligible to coexist with
// a repush, no matter which fork is asking. r.IsSpent's confirmedForFork
// gate already returns found=false for pooled, indexed, and invalid
// records, which this treats the same as "has an unspent output" —
// exactly the rejection a record in any of those states deserves.
func hasUnspentOutput(r *txdb.Result, outputCount int) bool {
	for i := 0; i < outputCount; i++ {
		spent, found := r.IsSpent(uint16(i), txdb.MaxForkHeight)
		if !found || !spent {
			return true
		}
	}
	return false
}

// PushHeader appends a header to the header chain. Preflight requires
// it to extend the current top by exactly one and to reference the
// current top's hash as its parent.
func (db *DB) PushHeader(hash domain.Hash, header domain.Header, height uint32) error {
	return db.withWrite(func() error {
		if err := db.preflightChainExtension(db.headers, header.PreviousBlock, height); err != nil {
			return err
		}
		if err := db.blockdb.PushHeader(hash, header, height); err != nil {
			return errors.Wrap(ErrOperationFailed, err.Error())
		}
		return nil
	})
}

// PushBlock promotes a block to the confirmed-block chain. Preflight
// requires a non-empty block, a height extending the current top by
// exactly one, and a parent hash matching the current top.
// Transactions are confirmed sequentially, in block order.
func (db *DB) PushBlock(hash domain.Hash, block *domain.Block, height uint32) error {
	return db.withWrite(func() error {
		if len(block.Transactions) == 0 {
			return ErrEmptyBlock
		}
		if err := db.preflightChainExtension(db.blocks, block.Header.PreviousBlock, height); err != nil {
			return err
		}
		return db.confirmBlock(hash, block, height, db.pushTransactionsSequential)
	})
}

// Bootstrap installs the genesis block directly, bypassing the normal
// chain-extension preflight: there is no prior top to extend, so
// PushBlock's preflight would otherwise always fail it. Only valid on
// an empty block chain.
func (db *DB) Bootstrap(hash domain.Hash, block *domain.Block) error {
	return db.withWrite(func() error {
		if len(block.Transactions) == 0 {
			return ErrEmptyBlock
		}
		if _, _, ok := db.blocks.Top(); ok {
			return errors.Wrap(ErrOperationFailed, "bootstrap called on a non-empty block chain")
		}
		return db.confirmBlock(hash, block, 0, db.pushTransactionsSequential)
	})
}

type txPusher func(height uint32, txs []*domain.Transaction) ([]blockdb.TxRef, error)

func (db *DB) confirmBlock(hash domain.Hash, block *domain.Block, height uint32, push txPusher) error {
	refs, err := push(height, block.Transactions)
	if err != nil {
		return err
	}

	if err := db.blockdb.PushHeader(hash, block.Header, height); err != nil {
		return errors.Wrap(ErrOperationFailed, err.Error())
	}
	if err := db.blockdb.PushBlock(hash, block.Header, height, refs); err != nil {
		return errors.Wrap(ErrOperationFailed, err.Error())
	}
	return nil
}

func (db *DB) confirmBlockBucketed(ctx context.Context, hash domain.Hash, block *domain.Block, height uint32) error {
	return db.confirmBlock(hash, block, height, func(height uint32, txs []*domain.Transaction) ([]blockdb.TxRef, error) {
		return db.pushTransactionsBucketed(ctx, height, txs, db.cfg.Workers)
	})
}

// preflightChainExtension checks that height extends chain's current
// top by exactly one and that previousHash matches the top's hash. An
// empty chain has no top to extend, so any height is rejected — the
// genesis entry is installed via Bootstrap instead.
func (db *DB) preflightChainExtension(chain interface {
	Top() (height uint32, hash domain.Hash, ok bool)
}, previousHash domain.Hash, height uint32) error {
	topHeight, topHash, ok := chain.Top()
	if !ok || topHeight+1 != height {
		return ErrInvalidHeight
	}
	if topHash != previousHash {
		return ErrMissingParent
	}
	return nil
}
