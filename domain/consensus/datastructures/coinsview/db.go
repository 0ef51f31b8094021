package coinsview

import (
	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/blockkernel/blockkernel/domain/consensus/utils/multiset"
	"github.com/blockkernel/blockkernel/domain/consensus/utils/serialization"
	"github.com/blockkernel/blockkernel/infrastructure/db/database"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

var (
	coinsBucket   = database.MakeBucket([]byte("coins"))
	bestBlockKey  = database.MakeBucket().Key([]byte("best-block"))
	commitmentKey = database.MakeBucket().Key([]byte("coins-commitment"))
)

// DB is the persistent coin set. It only changes through Cache.Flush.
type DB struct {
	db database.Database
}

// NewDB returns a DB stored in db.
func NewDB(db database.Database) *DB {
	return &DB{db: db}
}

func coinKey(outpoint wire.OutPoint) *database.Key {
	return coinsBucket.Key(serialization.OutpointKey(outpoint))
}

// GetCoin returns the stored coin at outpoint, or nil.
func (cdb *DB) GetCoin(outpoint wire.OutPoint) (*model.Coin, error) {
	serialized, err := cdb.db.Get(coinKey(outpoint))
	if database.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return serialization.DeserializeCoin(serialized)
}

// HaveCoin returns whether an unspent coin is stored at outpoint.
func (cdb *DB) HaveCoin(outpoint wire.OutPoint) (bool, error) {
	return cdb.db.Has(coinKey(outpoint))
}

// BestBlock returns the block the stored set is consistent with, or the zero
// hash for an empty database.
func (cdb *DB) BestBlock() (chainhash.Hash, error) {
	serialized, err := cdb.db.Get(bestBlockKey)
	if database.IsNotFoundError(err) {
		return chainhash.Hash{}, nil
	}
	if err != nil {
		return chainhash.Hash{}, err
	}
	hash, err := chainhash.NewHash(serialized)
	if err != nil {
		return chainhash.Hash{}, errors.Wrap(err, "corrupt best block entry")
	}
	return *hash, nil
}

// multiset returns the commitment of the stored set.
func (cdb *DB) multiset() (model.Multiset, error) {
	serialized, err := cdb.db.Get(commitmentKey)
	if database.IsNotFoundError(err) {
		return multiset.New(), nil
	}
	if err != nil {
		return nil, err
	}
	return multiset.FromBytes(serialized)
}

// ForEachCoin calls fn for every stored coin in key order until fn returns
// false.
func (cdb *DB) ForEachCoin(fn func(outpoint wire.OutPoint, coin *model.Coin) (bool, error)) error {
	cursor, err := cdb.db.Cursor(coinsBucket)
	if err != nil {
		return err
	}
	defer cursor.Close()

	for ok := cursor.First(); ok; ok = cursor.Next() {
		key, err := cursor.Key()
		if err != nil {
			return err
		}
		outpoint, err := serialization.OutpointFromKey(key.Suffix())
		if err != nil {
			return err
		}
		serialized, err := cursor.Value()
		if err != nil {
			return err
		}
		coin, err := serialization.DeserializeCoin(serialized)
		if err != nil {
			return err
		}
		more, err := fn(outpoint, coin)
		if err != nil || !more {
			return err
		}
	}
	return nil
}

// ComputeCommitment hashes every stored coin from scratch.
func (cdb *DB) ComputeCommitment() (chainhash.Hash, error) {
	ms := multiset.New()
	err := cdb.ForEachCoin(func(outpoint wire.OutPoint, coin *model.Coin) (bool, error) {
		element, err := commitmentElement(outpoint, coin)
		if err != nil {
			return false, err
		}
		ms.Add(element)
		return true, nil
	})
	if err != nil {
		return chainhash.Hash{}, err
	}
	return ms.Hash(), nil
}

// commitmentElement is the multiset element of a coin: its outpoint key
// followed by the serialized coin.
func commitmentElement(outpoint wire.OutPoint, coin *model.Coin) ([]byte, error) {
	serializedCoin, err := serialization.SerializeCoin(coin)
	if err != nil {
		return nil, err
	}
	return append(serialization.OutpointKey(outpoint), serializedCoin...), nil
}
