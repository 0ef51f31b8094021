package model

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// CoinsViewReader gives read access to a set of unspent coins
type CoinsViewReader interface {
	// GetCoin returns the unspent coin at outpoint, or nil if there is
	// none.
	GetCoin(outpoint wire.OutPoint) (*Coin, error)
	HaveCoin(outpoint wire.OutPoint) (bool, error)

	// BestBlock returns the hash of the block the view is consistent
	// with.
	BestBlock() (chainhash.Hash, error)
}

// CoinsView is a CoinsViewReader that can be modified
type CoinsView interface {
	CoinsViewReader
	AddCoin(outpoint wire.OutPoint, coin *Coin, possibleOverwrite bool) error
	SpendCoin(outpoint wire.OutPoint) (*Coin, error)
	SetBestBlock(hash chainhash.Hash)
}
