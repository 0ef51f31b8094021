package model

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// ChainContext is what contextual validation needs to know about a block's
// parent and the chain behind it.
type ChainContext interface {
	Height() int32
	Header() wire.BlockHeader
	CalcPastMedianTime() time.Time

	// ParentContext returns nil at genesis.
	ParentContext() ChainContext

	// AncestorContext returns nil if height is negative or above this
	// entry.
	AncestorContext(height int32) ChainContext
}

// BlockValidator exposes a set of validation classes, after which
// it's possible to determine whether a block is valid
type BlockValidator interface {
	CheckBlockHeaderSanity(header *wire.BlockHeader) error
	CheckBlockSanity(block *btcutil.Block) error
	CheckBlockHeaderContext(header *wire.BlockHeader, parent ChainContext) error
	CheckBlockContext(block *btcutil.Block, parent ChainContext) error

	// CheckConnectBlock validates a block against the coins it spends.
	// undo lists those coins in input order, as produced when the block
	// was applied to a scratch view. Cancelling ctx abandons the script
	// checks.
	CheckConnectBlock(ctx context.Context, block *btcutil.Block, parent ChainContext, undo *BlockUndo) error
}
