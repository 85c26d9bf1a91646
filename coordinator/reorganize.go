package coordinator

import (
	"context"

	"github.com/pkg/errors"

	"github.com/MicrohexHQ/libbitcoin-database/domain"
)

// IncomingBlock pairs a block with its externally computed hash, the
// shape every reorg entry point needs since this package never computes
// hashes itself.
type IncomingBlock struct {
	Hash  domain.Hash
	Block *domain.Block
}

// IncomingHeader pairs a header with its externally computed hash.
type IncomingHeader struct {
	Hash   domain.Hash
	Header domain.Header
}

// ReorganizeBlocks replaces every confirmed block above forkPoint with
// incoming, in a single write critical section: pop_above rewinds the
// block chain down to forkPoint, pooling and unindexing every displaced
// block's transactions and collecting the displaced blocks (oldest
// first) as outgoing; push_all then confirms incoming in order, each
// block's transactions dispatched across bucketed workers. Between
// blocks the sequence is strict: block N+1 does not start until block
// N's buckets have all succeeded and its header/block records are
// stored. A failure partway through push_all leaves the chain at
// whatever height it reached; the caller observes this via the
// returned error and the database's TopBlock.
func (db *DB) ReorganizeBlocks(ctx context.Context, forkPoint uint32, incoming []IncomingBlock) (outgoing []IncomingBlock, err error) {
	err = db.withWrite(func() error {
		top, _, ok := db.blocks.Top()
		if !ok || top < forkPoint {
			return ErrInvalidHeight
		}

		for {
			topHeight, hash, ok := db.blocks.Top()
			if !ok || topHeight <= forkPoint {
				break
			}

			block, err := db.reconstructBlock(hash)
			if err != nil {
				return err
			}
			if _, err := db.popTopBlock(); err != nil {
				return err
			}
			outgoing = append([]IncomingBlock{{Hash: hash, Block: block}}, outgoing...)
		}

		height := forkPoint + 1
		for _, in := range incoming {
			if err := db.confirmBlockBucketed(ctx, in.Hash, in.Block, height); err != nil {
				return err
			}
			height++
		}
		return nil
	})
	return outgoing, err
}

// ReorganizeHeaders replaces every header-chain entry above forkPoint
// with incoming, the same shape as ReorganizeBlocks but without any
// transaction work: headers carry no transactions, so push_all here is
// strictly sequential with no bucketing.
func (db *DB) ReorganizeHeaders(forkPoint uint32, incoming []IncomingHeader) error {
	return db.withWrite(func() error {
		top, _, ok := db.headers.Top()
		if !ok || top < forkPoint {
			return ErrInvalidHeight
		}

		for {
			topHeight, _, ok := db.headers.Top()
			if !ok || topHeight <= forkPoint {
				break
			}
			if _, _, popped := db.blockdb.PopHeader(); !popped {
				return errors.Wrap(ErrOperationFailed, "header chain pop failed unexpectedly")
			}
		}

		height := forkPoint + 1
		for _, in := range incoming {
			if err := db.blockdb.PushHeader(in.Hash, in.Header, height); err != nil {
				return errors.Wrap(ErrOperationFailed, err.Error())
			}
			height++
		}
		return nil
	})
}
