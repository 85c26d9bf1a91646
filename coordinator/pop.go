package coordinator

import (
	"github.com/pkg/errors"

	"github.com/MicrohexHQ/libbitcoin-database/domain"
)

// PopHeader removes the top header chain entry. Preflight requires it
// to be exactly the current top.
func (db *DB) PopHeader(height uint32) error {
	return db.withWrite(func() error {
		top, _, ok := db.headers.Top()
		if !ok || top != height {
			return ErrInvalidHeight
		}
		if _, _, popped := db.blockdb.PopHeader(); !popped {
			return errors.Wrap(ErrOperationFailed, "header chain pop failed after preflight")
		}
		return nil
	})
}

// PopBlock removes the top confirmed block, pooling every one of its
// transactions and unwinding their secondary-index rows (if indexing is
// enabled) before rewinding the block chain itself. Preflight requires
// height to be exactly the current top.
func (db *DB) PopBlock(height uint32) error {
	return db.withWrite(func() error {
		top, _, ok := db.blocks.Top()
		if !ok || top != height {
			return ErrInvalidHeight
		}
		_, err := db.popTopBlock()
		return err
	})
}

// popTopBlock pools every transaction of the current top confirmed
// block (in reverse block order, unwinding secondary indexes as it
// goes if enabled) and rewinds the block chain past it. Callers must
// have already confirmed the chain is non-empty.
func (db *DB) popTopBlock() (domain.Hash, error) {
	_, hash, ok := db.blocks.Top()
	if !ok {
		return domain.Hash{}, errors.Wrap(ErrOperationFailed, "popTopBlock called on an empty block chain")
	}

	_, _, refs, found := db.blockdb.Get(hash)
	if !found {
		return domain.Hash{}, errors.Wrap(ErrOperationFailed, "block record missing for top of block chain")
	}

	for i := len(refs) - 1; i >= 0; i-- {
		ref := refs[i]
		result := db.tx.GetAt(ref.Hash, ref.Offset)
		tx, err := result.Transaction()
		if err != nil {
			return domain.Hash{}, errors.Wrap(err, "decoding transaction while popping block")
		}

		if db.cfg.IndexAddresses {
			db.indexUnconfirm(tx)
		}

		if !db.tx.Pool(tx) {
			return domain.Hash{}, errors.Wrapf(ErrOperationFailed, "pooling transaction %s while popping block", tx.Hash)
		}
	}

	if _, _, popped := db.blockdb.PopBlock(); !popped {
		return domain.Hash{}, errors.Wrap(ErrOperationFailed, "block chain pop failed unexpectedly")
	}
	return hash, nil
}

// reconstructBlock rehydrates the full block stored for hash: its
// header and, in original order, every transaction the block database
// recorded refs for. The block_table row for hash survives a block
// chain pop, so this can be called either before or after popTopBlock.
func (db *DB) reconstructBlock(hash domain.Hash) (*domain.Block, error) {
	_, header, refs, found := db.blockdb.Get(hash)
	if !found {
		return nil, errors.Wrap(ErrOperationFailed, "block record missing")
	}

	txs := make([]*domain.Transaction, len(refs))
	for i, ref := range refs {
		result := db.tx.GetAt(ref.Hash, ref.Offset)
		tx, err := result.Transaction()
		if err != nil {
			return nil, errors.Wrap(err, "decoding transaction while reconstructing block")
		}
		txs[i] = tx
	}
	return &domain.Block{Header: header, Transactions: txs}, nil
}
