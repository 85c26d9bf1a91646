// Package coordinator implements the single-writer, multi-reader
// database coordinator: it owns the transaction, block and (optional)
// address-index sub-databases, enforces the write_mutex/remap_mutex
// locking discipline around every push/pop/reorganize call, and
// sequences sub-database commits in a fixed order so a crash mid-write
// is always recoverable from the flush-lock sentinel alone.
//
// Takes its write-then-flip-the-durable-state shape from quantum's
// db.go Commit (sequence every write, then only release the critical
// section on full success), generalized from a single copy-on-write
// singularity pointer to this store's five-sub-database commit order,
// and its per-tx bucketed dispatcher from alloc's parallel.Run/spawn
// idiom.
package coordinator

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/MicrohexHQ/libbitcoin-database/blockdb"
	"github.com/MicrohexHQ/libbitcoin-database/historydb"
	"github.com/MicrohexHQ/libbitcoin-database/htable"
	"github.com/MicrohexHQ/libbitcoin-database/mmfile"
	"github.com/MicrohexHQ/libbitcoin-database/record"
	"github.com/MicrohexHQ/libbitcoin-database/recordmap"
	"github.com/MicrohexHQ/libbitcoin-database/slab"
	"github.com/MicrohexHQ/libbitcoin-database/spenddb"
	"github.com/MicrohexHQ/libbitcoin-database/stealthdb"
	"github.com/MicrohexHQ/libbitcoin-database/store"
	"github.com/MicrohexHQ/libbitcoin-database/txdb"
)

const (
	blockTableFile       = "block_table"
	headerIndexFile      = "header_index"
	blockIndexFile       = "block_index"
	transactionTableFile = "transaction_table"
	spendTableFile       = "spend_table"
	historyTableFile     = "history_table"
	historyRowsFile      = "history_rows"
	stealthRowsFile      = "stealth_rows"
)

// DB is the data-base coordinator: the top-level handle an application
// opens a directory with.
type DB struct {
	ctx context.Context
	cfg Config

	store *store.Store

	// writeMu serializes every top-level write (push, pop, reorganize).
	// remapMu is held shared by any in-progress read dereferencing a
	// manager.Get/Rest pointer, and exclusive by a write that is about
	// to call Reserve on one of the managed files. writeMu alone only
	// enforces "one writer at a time"; remapMu additionally protects
	// concurrent readers against a grow-triggered remap.
	writeMu sync.Mutex
	remapMu sync.RWMutex

	blockFile    *mmfile.File
	headerFile   *mmfile.File
	blockIdxFile *mmfile.File
	blockSlabs   *slab.Manager
	headers      *blockdb.Chain
	blocks       *blockdb.Chain
	blockdb      *blockdb.DB

	txFile *mmfile.File
	txSlabs *slab.Manager
	tx      *txdb.DB

	spendFile    *mmfile.File
	spendRecords *record.Manager
	spend        *spenddb.DB

	historyTableRecFile *mmfile.File
	historyRowsFileH    *mmfile.File
	historyPrimary      *record.Manager
	historyList         *record.Manager
	history             *historydb.DB

	stealthFile    *mmfile.File
	stealthRecords *record.Manager
	stealth        *stealthdb.DB
}

// Open creates or reopens a database directory according to cfg.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	st, err := store.Open(cfg.Directory)
	if err != nil {
		return nil, errors.Wrap(err, "opening store directory")
	}

	db := &DB{ctx: ctx, cfg: cfg, store: st}

	if err := db.openBlockDatabase(); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.openTransactionDatabase(); err != nil {
		db.Close()
		return nil, err
	}
	if cfg.IndexAddresses {
		if err := db.openIndexes(); err != nil {
			db.Close()
			return nil, err
		}
	}

	logger.Get(ctx).Info("database opened", zap.String("directory", cfg.Directory))
	return db, nil
}

func (db *DB) path(name string) string {
	return filepath.Join(db.cfg.Directory, name)
}

func (db *DB) openBlockDatabase() error {
	f, err := mmfile.Open(db.path(blockTableFile), db.cfg.FileGrowthRate)
	if err != nil {
		return errors.Wrap(err, "opening block_table")
	}
	db.blockFile = f

	header, err := htable.OpenHeader(f, mmfile.HeaderSize, db.cfg.BlockTableBuckets, htable.SlabEntry, htable.EmptySlab)
	if err != nil {
		return errors.Wrap(err, "opening block_table header")
	}
	slabs, err := slab.Open(f, header.EndOffset())
	if err != nil {
		return errors.Wrap(err, "opening block_table slabs")
	}
	db.blockSlabs = slabs
	table := htable.NewSlabTable(header, slabs, 32)

	headerFile, err := mmfile.Open(db.path(headerIndexFile), db.cfg.FileGrowthRate)
	if err != nil {
		return errors.Wrap(err, "opening header_index")
	}
	db.headerFile = headerFile
	headers, err := blockdb.OpenChain(headerFile, mmfile.HeaderSize)
	if err != nil {
		return errors.Wrap(err, "opening header_index chain")
	}
	db.headers = headers

	blockIdxFile, err := mmfile.Open(db.path(blockIndexFile), db.cfg.FileGrowthRate)
	if err != nil {
		return errors.Wrap(err, "opening block_index")
	}
	db.blockIdxFile = blockIdxFile
	blocks, err := blockdb.OpenChain(blockIdxFile, mmfile.HeaderSize)
	if err != nil {
		return errors.Wrap(err, "opening block_index chain")
	}
	db.blocks = blocks

	db.blockdb = blockdb.Open(table, headers, blocks)
	return nil
}

func (db *DB) openTransactionDatabase() error {
	f, err := mmfile.Open(db.path(transactionTableFile), db.cfg.FileGrowthRate)
	if err != nil {
		return errors.Wrap(err, "opening transaction_table")
	}
	db.txFile = f

	header, err := htable.OpenHeader(f, mmfile.HeaderSize, db.cfg.TransactionTableBuckets, htable.SlabEntry, htable.EmptySlab)
	if err != nil {
		return errors.Wrap(err, "opening transaction_table header")
	}
	slabs, err := slab.Open(f, header.EndOffset())
	if err != nil {
		return errors.Wrap(err, "opening transaction_table slabs")
	}
	db.txSlabs = slabs
	table := htable.NewSlabTable(header, slabs, 32)

	tx, err := txdb.Open(table, db.cfg.CacheCapacity)
	if err != nil {
		return errors.Wrap(err, "opening transaction database")
	}
	db.tx = tx
	return nil
}

func (db *DB) openIndexes() error {
	spendFile, err := mmfile.Open(db.path(spendTableFile), db.cfg.FileGrowthRate)
	if err != nil {
		return errors.Wrap(err, "opening spend_table")
	}
	db.spendFile = spendFile

	spendHeader, err := htable.OpenHeader(spendFile, mmfile.HeaderSize, db.cfg.SpendTableBuckets, htable.RecordEntry, htable.EmptyRecord)
	if err != nil {
		return errors.Wrap(err, "opening spend_table header")
	}
	spendRecords, err := record.Open(spendFile, spendHeader.EndOffset(), uint64(spenddb.KeySize+4+spenddb.ValueSize))
	if err != nil {
		return errors.Wrap(err, "opening spend_table records")
	}
	db.spendRecords = spendRecords
	spendTable, err := htable.NewRecordTable(spendHeader, spendRecords, spenddb.KeySize)
	if err != nil {
		return errors.Wrap(err, "constructing spend table")
	}
	db.spend = spenddb.Open(spendTable)

	historyTableRecFile, err := mmfile.Open(db.path(historyTableFile), db.cfg.FileGrowthRate)
	if err != nil {
		return errors.Wrap(err, "opening history_table")
	}
	db.historyTableRecFile = historyTableRecFile

	historyHeader, err := htable.OpenHeader(historyTableRecFile, mmfile.HeaderSize, db.cfg.HistoryTableBuckets, htable.RecordEntry, htable.EmptyRecord)
	if err != nil {
		return errors.Wrap(err, "opening history_table header")
	}
	historyPrimary, err := record.Open(historyTableRecFile, historyHeader.EndOffset(), 20+4+4)
	if err != nil {
		return errors.Wrap(err, "opening history_table records")
	}
	db.historyPrimary = historyPrimary
	historyPrimaryTable, err := htable.NewRecordTable(historyHeader, historyPrimary, 20)
	if err != nil {
		return errors.Wrap(err, "constructing history primary table")
	}

	historyRowsFileH, err := mmfile.Open(db.path(historyRowsFile), db.cfg.FileGrowthRate)
	if err != nil {
		return errors.Wrap(err, "opening history_rows")
	}
	db.historyRowsFileH = historyRowsFileH
	historyList, err := record.Open(historyRowsFileH, mmfile.HeaderSize, historydb.ValueSize+4)
	if err != nil {
		return errors.Wrap(err, "opening history_rows records")
	}
	db.historyList = historyList

	mm, err := recordmap.New(historyPrimaryTable, historyList, historydb.ValueSize)
	if err != nil {
		return errors.Wrap(err, "constructing history multimap")
	}
	db.history = historydb.Open(mm)

	stealthFile, err := mmfile.Open(db.path(stealthRowsFile), db.cfg.FileGrowthRate)
	if err != nil {
		return errors.Wrap(err, "opening stealth_rows")
	}
	db.stealthFile = stealthFile
	stealthRecords, err := record.Open(stealthFile, mmfile.HeaderSize, stealthdb.RowSize)
	if err != nil {
		return errors.Wrap(err, "opening stealth_rows records")
	}
	db.stealthRecords = stealthRecords
	db.stealth = stealthdb.Open(stealthRecords)

	return nil
}

// Close flushes and unmaps every managed file and releases the
// directory's exclusive lock. Idempotent: calling Close twice is safe,
// matching the coordinator's closed_ flag semantics.
func (db *DB) Close() error {
	var firstErr error
	keepFirst := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, f := range []*mmfile.File{
		db.blockFile, db.headerFile, db.blockIdxFile, db.txFile,
		db.spendFile, db.historyTableRecFile, db.historyRowsFileH, db.stealthFile,
	} {
		if f != nil {
			keepFirst(f.Close())
		}
	}
	if db.store != nil {
		keepFirst(db.store.Close())
		db.store = nil
	}
	return firstErr
}

// commit syncs every managed file's high-water mark into its header
// and, if configured, fsyncs every managed file. Called once per write
// critical section, after every sub-database write for that operation
// has succeeded. Syncing an untouched file is a cheap no-op since its
// high-water mark has not moved, so commit does not bother tracking
// which sub-databases a given operation actually touched.
func (db *DB) commit() error {
	db.blockSlabs.Sync()
	db.headers.Sync()
	db.blocks.Sync()
	db.txSlabs.Sync()
	if db.cfg.IndexAddresses {
		db.spendRecords.Sync()
		db.historyPrimary.Sync()
		db.historyList.Sync()
		db.stealthRecords.Sync()
	}

	if !db.cfg.FlushWrites {
		return nil
	}

	for _, f := range []*mmfile.File{
		db.blockFile, db.headerFile, db.blockIdxFile, db.txFile,
		db.spendFile, db.historyTableRecFile, db.historyRowsFileH, db.stealthFile,
	} {
		if f == nil {
			continue
		}
		if err := f.Flush(); err != nil {
			return errors.Wrap(err, "flushing managed file")
		}
	}
	return nil
}

// fileSizes reports the physical size of every managed file, for the
// flush-lock sentinel's manifest checksum.
func (db *DB) fileSizes() map[string]uint64 {
	sizes := make(map[string]uint64, 8)
	add := func(name string, f *mmfile.File) {
		if f != nil {
			sizes[name] = f.Size()
		}
	}
	add(blockTableFile, db.blockFile)
	add(headerIndexFile, db.headerFile)
	add(blockIndexFile, db.blockIdxFile)
	add(transactionTableFile, db.txFile)
	add(spendTableFile, db.spendFile)
	add(historyTableFile, db.historyTableRecFile)
	add(historyRowsFile, db.historyRowsFileH)
	add(stealthRowsFile, db.stealthFile)
	return sizes
}

// withWrite runs fn under write_mutex, bracketed by the flush-lock
// sentinel: begin_write before fn runs, commit and end_write only if fn
// and commit both succeed. A preflight rejection from fn (ErrEmptyBlock,
// ErrInvalidHeight, ErrMissingParent, ErrUnspentDuplicate) comes before
// anything is written, so the sentinel is removed again and the
// rejection returned as is. Any other failure leaves the sentinel in
// place and returns ErrOperationFailed wrapping the cause, per the
// write-sequencing policy: a structural failure mid-critical-section is
// not retried, it requires operator recovery on next open.
func (db *DB) withWrite(fn func() error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	db.remapMu.Lock()
	defer db.remapMu.Unlock()

	if err := db.store.BeginWrite(db.fileSizes()); err != nil {
		return errors.Wrap(ErrOperationFailed, err.Error())
	}

	if err := fn(); err != nil {
		for _, rejection := range []error{ErrEmptyBlock, ErrInvalidHeight, ErrMissingParent, ErrUnspentDuplicate} {
			if errors.Is(err, rejection) {
				if endErr := db.store.EndWrite(); endErr != nil {
					return errors.Wrap(ErrOperationFailed, endErr.Error())
				}
				return err
			}
		}
		logger.Get(db.ctx).Error("write failed, leaving flush lock in place", zap.Error(err))
		if !errors.Is(err, ErrOperationFailed) {
			err = errors.Wrap(ErrOperationFailed, err.Error())
		}
		return err
	}

	if err := db.commit(); err != nil {
		logger.Get(db.ctx).Error("commit failed, leaving flush lock in place", zap.Error(err))
		return errors.Wrap(ErrOperationFailed, err.Error())
	}

	if err := db.store.EndWrite(); err != nil {
		return errors.Wrap(ErrOperationFailed, err.Error())
	}
	return nil
}

// withRead runs fn under remapMu held shared, enforcing a borrow-handle
// discipline: any code dereferencing a manager.Get/Rest pointer does so
// while a read lock on the remap mutex is held.
func (db *DB) withRead(fn func()) {
	db.remapMu.RLock()
	defer db.remapMu.RUnlock()
	fn()
}
