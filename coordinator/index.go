package coordinator

import (
	"github.com/pkg/errors"

	"github.com/MicrohexHQ/libbitcoin-database/domain"
	"github.com/MicrohexHQ/libbitcoin-database/historydb"
	"github.com/MicrohexHQ/libbitcoin-database/stealthdb"
	"github.com/MicrohexHQ/libbitcoin-database/txdb"
)

// indexConfirm writes every secondary-index row for a transaction being
// confirmed at height: a spends-table entry and a history row per
// non-coinbase input, a history row per output, and a stealth row for
// every ephemeral-key/payment output pair. It is a no-op (and never
// called) when address indexing is disabled.
//
// Called before the transaction's own record is rewritten to the
// confirmed state, matching the commit order spends -> history ->
// stealth -> transactions -> blocks.
func (db *DB) indexConfirm(height uint32, tx *domain.Transaction) error {
	for i, in := range tx.Inputs {
		if in.PreviousOutPoint.IsNull() {
			continue
		}

		inpoint := domain.OutPoint{Hash: tx.Hash, Index: uint16(i)}
		if err := db.spend.Store(in.PreviousOutPoint, inpoint); err != nil {
			return errors.Wrap(err, "indexing spend entry")
		}

		if in.Address == nil {
			continue
		}
		var checksum uint64
		if out, found := db.tx.GetOutput(in.PreviousOutPoint, txdb.MaxForkHeight); found {
			checksum = out.Value
		}
		payment := historydb.Payment{Kind: historydb.KindInput, Point: in.PreviousOutPoint, Height: height, Checksum: checksum}
		if err := db.history.Store(*in.Address, payment); err != nil {
			return errors.Wrap(err, "indexing input history row")
		}
	}

	for i, out := range tx.Outputs {
		if out.Address != nil {
			point := domain.OutPoint{Hash: tx.Hash, Index: uint16(i)}
			payment := historydb.Payment{Kind: historydb.KindOutput, Point: point, Height: height, Checksum: out.Value}
			if err := db.history.Store(*out.Address, payment); err != nil {
				return errors.Wrap(err, "indexing output history row")
			}
		}
	}

	for i := 0; i+1 < len(tx.Outputs); i += 2 {
		ephemeral := tx.Outputs[i]
		if ephemeral.Stealth == nil {
			continue
		}
		payment := tx.Outputs[i+1]
		var address [20]byte
		if payment.Address != nil {
			address = *payment.Address
		}
		row := stealthdb.Row{
			Prefix:       ephemeral.Stealth.Prefix,
			Height:       height,
			EphemeralKey: ephemeral.Stealth.EphemeralKey,
			Address:      address,
			TxHash:       tx.Hash,
		}
		if err := db.stealth.Store(row); err != nil {
			return errors.Wrap(err, "indexing stealth row")
		}
	}

	return nil
}

// indexUnconfirm undoes indexConfirm for a transaction being popped back
// to the pool: unlinks the spend entry and deletes the most recently
// added history row for every address the push touched, in reverse
// (LIFO) order so the unwind matches the append order exactly. It never
// touches the stealth index: stealth rows have no pop inverse (see
// DESIGN.md's Open Question decisions), so stale rows remain after a
// reorg past them.
func (db *DB) indexUnconfirm(tx *domain.Transaction) {
	for i := len(tx.Outputs) - 1; i >= 0; i-- {
		if tx.Outputs[i].Address != nil {
			db.history.UnlinkLastRow(*tx.Outputs[i].Address)
		}
	}

	for i := len(tx.Inputs) - 1; i >= 0; i-- {
		in := tx.Inputs[i]
		if in.PreviousOutPoint.IsNull() {
			continue
		}
		if in.Address != nil {
			db.history.UnlinkLastRow(*in.Address)
		}
		db.spend.Unlink(in.PreviousOutPoint)
	}
}
