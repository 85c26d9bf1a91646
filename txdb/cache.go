package txdb

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/MicrohexHQ/libbitcoin-database/domain"
)

// cachedOutput is an unspent, confirmed output kept in DB.cache so that
// hot UTXOs skip the hash-table lookup and record decode entirely.
type cachedOutput struct {
	Value      uint64
	Script     []byte
	Height     uint32
	IsCoinbase bool
}

// outputCache is a bounded LRU of unspent confirmed outputs, keyed by
// outpoint. It never holds spent or unconfirmed entries: Spend and
// Pool evict on write rather than updating the cached value in place.
type outputCache struct {
	lru *lru.Cache[domain.OutPoint, cachedOutput]
}

func newOutputCache(capacity int) (*outputCache, error) {
	c, err := lru.New[domain.OutPoint, cachedOutput](capacity)
	if err != nil {
		return nil, err
	}
	return &outputCache{lru: c}, nil
}

func (c *outputCache) get(op domain.OutPoint) (cachedOutput, bool) {
	return c.lru.Get(op)
}

func (c *outputCache) put(op domain.OutPoint, out cachedOutput) {
	c.lru.Add(op, out)
}

func (c *outputCache) evict(op domain.OutPoint) {
	c.lru.Remove(op)
}
