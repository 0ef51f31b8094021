package model

import "github.com/btcsuite/btcd/wire"

// BlockStore represents a store of raw blocks and their undo data
type BlockStore interface {
	WriteBlock(block *wire.MsgBlock) (Location, error)
	WriteUndo(undo *BlockUndo) (Location, error)
	ReadBlock(location Location) (*wire.MsgBlock, error)
	ReadUndo(location Location) (*BlockUndo, error)
	ScanBlocks(fn func(location Location, block *wire.MsgBlock) (bool, error)) error
	ResetUndo() error
	Sync() error
}
