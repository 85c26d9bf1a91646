package blockdb

import (
	"sync"

	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/MicrohexHQ/libbitcoin-database/domain"
	"github.com/MicrohexHQ/libbitcoin-database/mmfile"
	"github.com/MicrohexHQ/libbitcoin-database/record"
)

const counterSize = 4

// Chain is an append-only sequence of block hashes indexed by height,
// used for both the header chain and the confirmed-block chain. It
// tracks its own logical length separately from the underlying
// record.Manager's physical allocation count: Pop only rewinds the
// logical length, it never deallocates, so a subsequent Append after a
// Pop reuses the same physical slot instead of growing the file.
type Chain struct {
	mu          sync.Mutex
	file        *mmfile.File
	countOffset uint64
	records     *record.Manager
}

// OpenChain attaches a Chain to the region of file starting at
// baseOffset: a 4-byte logical length followed by the record manager's
// own header and fixed 32-byte hash records.
func OpenChain(file *mmfile.File, baseOffset uint64) (*Chain, error) {
	if err := file.Reserve(baseOffset + counterSize); err != nil {
		return nil, errors.Wrap(err, "reserving chain length counter")
	}
	records, err := record.Open(file, baseOffset+counterSize, domain.HashSize)
	if err != nil {
		return nil, errors.Wrap(err, "opening chain records")
	}
	return &Chain{file: file, countOffset: baseOffset, records: records}, nil
}

func (c *Chain) length() uint32 {
	return *photon.FromBytes[uint32](c.file.Data()[c.countOffset : c.countOffset+counterSize])
}

func (c *Chain) setLength(v uint32) {
	*photon.FromBytes[uint32](c.file.Data()[c.countOffset : c.countOffset+counterSize]) = v
}

// Top returns the height and hash of the last appended entry.
func (c *Chain) Top() (height uint32, hash domain.Hash, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.length()
	if n == 0 {
		return 0, domain.Hash{}, false
	}
	height = n - 1
	copy(hash[:], c.records.Get(height))
	return height, hash, true
}

// Get returns the hash stored at height.
func (c *Chain) Get(height uint32) (domain.Hash, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if height >= c.length() {
		return domain.Hash{}, false
	}
	var hash domain.Hash
	copy(hash[:], c.records.Get(height))
	return hash, true
}

// Append adds hash as the new top entry and returns its height.
func (c *Chain) Append(hash domain.Hash) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.length()
	if idx >= c.records.Count() {
		allocated, err := c.records.New(1)
		if err != nil {
			return 0, errors.Wrap(err, "allocating chain slot")
		}
		if allocated != idx {
			return 0, errors.Errorf("chain allocation drifted: wanted slot %d, got %d", idx, allocated)
		}
	}
	copy(c.records.Get(idx), hash[:])
	c.setLength(idx + 1)
	return idx, nil
}

// Sync publishes the chain's underlying record manager high-water mark,
// mirroring record.Manager.Sync. Called by the coordinator's commit
// step.
func (c *Chain) Sync() {
	c.records.Sync()
}

// Pop removes and returns the top entry, rewinding the logical length
// without deallocating the slot it occupied.
func (c *Chain) Pop() (height uint32, hash domain.Hash, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.length()
	if n == 0 {
		return 0, domain.Hash{}, false
	}
	height = n - 1
	copy(hash[:], c.records.Get(height))
	c.setLength(height)
	return height, hash, true
}
