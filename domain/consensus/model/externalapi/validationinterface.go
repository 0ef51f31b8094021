package externalapi

import "github.com/btcsuite/btcd/btcutil"

// ValidationInterface observes validation outcomes. It is advisory: nothing
// a hook does changes whether a block is accepted.
type ValidationInterface interface {
	// BlockChecked is called once a block has been fully judged, valid or
	// not.
	BlockChecked(block *btcutil.Block, state *BlockValidationState)

	// NewPoWValidBlock is called when a block with valid proof of work
	// extends the tip and is about to be connected.
	NewPoWValidBlock(info *BlockInfo, block *btcutil.Block)

	BlockConnected(block *btcutil.Block, info *BlockInfo)
	BlockDisconnected(block *btcutil.Block, info *BlockInfo)
}

// NopValidationInterface implements ValidationInterface with empty hooks.
type NopValidationInterface struct{}

// BlockChecked implements ValidationInterface.
func (NopValidationInterface) BlockChecked(*btcutil.Block, *BlockValidationState) {}

// NewPoWValidBlock implements ValidationInterface.
func (NopValidationInterface) NewPoWValidBlock(*BlockInfo, *btcutil.Block) {}

// BlockConnected implements ValidationInterface.
func (NopValidationInterface) BlockConnected(*btcutil.Block, *BlockInfo) {}

// BlockDisconnected implements ValidationInterface.
func (NopValidationInterface) BlockDisconnected(*btcutil.Block, *BlockInfo) {}
