package coinsview

import (
	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/blockkernel/blockkernel/domain/consensus/utils/serialization"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// cacheEntryOverhead approximates the memory of a cache entry besides its
// script: the map slot, the outpoint and the coin fields.
const cacheEntryOverhead = 128

type entryFlags uint8

const (
	// entryDirty marks an entry that differs from the database.
	entryDirty entryFlags = 1 << iota

	// entryFresh marks an entry the database does not have. Spending a
	// fresh coin removes it from the cache altogether.
	entryFresh
)

type cacheEntry struct {
	// coin is nil when the coin was spent.
	coin  *model.Coin
	flags entryFlags
}

// Cache is an in-memory overlay over DB. Changes reach the database on Flush
// only. It maintains the commitment of the whole coin set incrementally.
//
// Cache is not safe for concurrent access.
type Cache struct {
	db         *DB
	entries    map[wire.OutPoint]*cacheEntry
	bestBlock  chainhash.Hash
	commitment model.Multiset
	usage      int64
}

// NewCache returns an empty cache on top of db.
func NewCache(db *DB) (*Cache, error) {
	bestBlock, err := db.BestBlock()
	if err != nil {
		return nil, err
	}
	commitment, err := db.multiset()
	if err != nil {
		return nil, err
	}
	return &Cache{
		db:         db,
		entries:    make(map[wire.OutPoint]*cacheEntry),
		bestBlock:  bestBlock,
		commitment: commitment,
	}, nil
}

func entryUsage(coin *model.Coin) int64 {
	if coin == nil {
		return cacheEntryOverhead
	}
	return cacheEntryOverhead + int64(len(coin.PkScript))
}

func (c *Cache) setEntry(outpoint wire.OutPoint, entry *cacheEntry) {
	if old, ok := c.entries[outpoint]; ok {
		c.usage -= entryUsage(old.coin)
	}
	c.entries[outpoint] = entry
	c.usage += entryUsage(entry.coin)
}

func (c *Cache) deleteEntry(outpoint wire.OutPoint) {
	if old, ok := c.entries[outpoint]; ok {
		c.usage -= entryUsage(old.coin)
		delete(c.entries, outpoint)
	}
}

// fetch returns the entry of outpoint, loading it from the database when it
// is not cached. It returns nil when neither has the outpoint.
func (c *Cache) fetch(outpoint wire.OutPoint) (*cacheEntry, error) {
	if entry, ok := c.entries[outpoint]; ok {
		return entry, nil
	}
	coin, err := c.db.GetCoin(outpoint)
	if err != nil {
		return nil, err
	}
	if coin == nil {
		return nil, nil
	}
	entry := &cacheEntry{coin: coin}
	c.setEntry(outpoint, entry)
	return entry, nil
}

// GetCoin implements model.CoinsViewReader.
func (c *Cache) GetCoin(outpoint wire.OutPoint) (*model.Coin, error) {
	entry, err := c.fetch(outpoint)
	if err != nil || entry == nil || entry.coin == nil {
		return nil, err
	}
	return entry.coin.Clone(), nil
}

// HaveCoin implements model.CoinsViewReader.
func (c *Cache) HaveCoin(outpoint wire.OutPoint) (bool, error) {
	entry, err := c.fetch(outpoint)
	if err != nil {
		return false, err
	}
	return entry != nil && entry.coin != nil, nil
}

// BestBlock implements model.CoinsViewReader.
func (c *Cache) BestBlock() (chainhash.Hash, error) {
	return c.bestBlock, nil
}

// SetBestBlock implements model.CoinsView.
func (c *Cache) SetBestBlock(hash chainhash.Hash) {
	c.bestBlock = hash
}

// AddCoin implements model.CoinsView. Unless possibleOverwrite is set, adding
// a coin over an unspent one is an error.
func (c *Cache) AddCoin(outpoint wire.OutPoint, coin *model.Coin, possibleOverwrite bool) error {
	entry, err := c.fetch(outpoint)
	if err != nil {
		return err
	}

	fresh := entry == nil
	if entry != nil && entry.coin != nil {
		if !possibleOverwrite {
			return errors.Errorf("attempted to overwrite unspent coin %s", outpoint)
		}
		err := c.removeFromCommitment(outpoint, entry.coin)
		if err != nil {
			return err
		}
	}
	if entry != nil && entry.flags&entryFresh != 0 {
		fresh = true
	}

	coin = coin.Clone()
	element, err := commitmentElement(outpoint, coin)
	if err != nil {
		return err
	}
	c.commitment.Add(element)

	flags := entryDirty
	if fresh {
		flags |= entryFresh
	}
	c.setEntry(outpoint, &cacheEntry{coin: coin, flags: flags})
	return nil
}

// SpendCoin implements model.CoinsView. It returns nil when there is no
// unspent coin at outpoint.
func (c *Cache) SpendCoin(outpoint wire.OutPoint) (*model.Coin, error) {
	entry, err := c.fetch(outpoint)
	if err != nil || entry == nil || entry.coin == nil {
		return nil, err
	}
	coin := entry.coin
	err = c.removeFromCommitment(outpoint, coin)
	if err != nil {
		return nil, err
	}

	if entry.flags&entryFresh != 0 {
		c.deleteEntry(outpoint)
	} else {
		c.setEntry(outpoint, &cacheEntry{coin: nil, flags: entryDirty})
	}
	return coin, nil
}

func (c *Cache) removeFromCommitment(outpoint wire.OutPoint, coin *model.Coin) error {
	element, err := commitmentElement(outpoint, coin)
	if err != nil {
		return err
	}
	c.commitment.Remove(element)
	return nil
}

// Commitment returns the MuHash3072 commitment of the coin set as seen
// through the cache.
func (c *Cache) Commitment() chainhash.Hash {
	return c.commitment.Hash()
}

// DynamicMemoryUsage estimates the memory held by cached entries.
func (c *Cache) DynamicMemoryUsage() int64 {
	return c.usage
}

// DirtyCount returns the number of entries Flush would write.
func (c *Cache) DirtyCount() int {
	count := 0
	for _, entry := range c.entries {
		if entry.flags&entryDirty != 0 {
			count++
		}
	}
	return count
}

// Flush writes every dirty entry, the best block and the commitment to the
// database in a single transaction and empties the cache.
func (c *Cache) Flush() error {
	dbTx, err := c.db.db.Begin()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	written := 0
	for outpoint, entry := range c.entries {
		if entry.flags&entryDirty == 0 {
			continue
		}
		if entry.coin == nil {
			err = dbTx.Delete(coinKey(outpoint))
		} else {
			var serialized []byte
			serialized, err = serialization.SerializeCoin(entry.coin)
			if err == nil {
				err = dbTx.Put(coinKey(outpoint), serialized)
			}
		}
		if err != nil {
			return err
		}
		written++
	}
	err = dbTx.Put(bestBlockKey, c.bestBlock[:])
	if err != nil {
		return err
	}
	err = dbTx.Put(commitmentKey, c.commitment.Serialize())
	if err != nil {
		return err
	}
	err = dbTx.Commit()
	if err != nil {
		return err
	}

	log.Debugf("Flushed %d coins to the database at best block %s", written, c.bestBlock)
	c.entries = make(map[wire.OutPoint]*cacheEntry)
	c.usage = 0
	return nil
}
