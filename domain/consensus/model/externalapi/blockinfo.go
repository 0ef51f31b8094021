package externalapi

import (
	"math/big"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// BlockInfo is a read-only snapshot of a chain index entry handed to
// callbacks.
type BlockInfo struct {
	Hash      chainhash.Hash
	Height    int32
	Timestamp time.Time
	ChainWork *big.Int
}

// Clone returns a clone of BlockInfo
func (bi *BlockInfo) Clone() *BlockInfo {
	clone := *bi
	if bi.ChainWork != nil {
		clone.ChainWork = new(big.Int).Set(bi.ChainWork)
	}
	return &clone
}
