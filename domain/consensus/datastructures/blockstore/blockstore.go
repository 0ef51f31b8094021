package blockstore

import (
	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/blockkernel/blockkernel/domain/consensus/utils/serialization"
	"github.com/blockkernel/blockkernel/infrastructure/db/database"
	"github.com/blockkernel/blockkernel/infrastructure/db/database/ffldb/ff"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

const (
	blockStoreName = "blk"
	undoStoreName  = "rev"
)

// blockStore keeps raw blocks and undo data in the append-only stores of a
// database.StoreDatabase.
type blockStore struct {
	db database.StoreDatabase
}

// New instantiates a new BlockStore
func New(db database.StoreDatabase) model.BlockStore {
	return &blockStore{db: db}
}

func toLocation(serialized []byte) (model.Location, error) {
	fileNumber, offset, length, err := ff.ParseLocation(serialized)
	if err != nil {
		return model.Location{}, err
	}
	return model.Location{FileNumber: fileNumber, Offset: offset, Length: length}, nil
}

func fromLocation(location model.Location) []byte {
	return ff.SerializeLocation(location.FileNumber, location.Offset, location.Length)
}

// WriteBlock appends block to the block files.
func (bs *blockStore) WriteBlock(block *wire.MsgBlock) (model.Location, error) {
	serialized, err := serialization.SerializeBlock(block)
	if err != nil {
		return model.Location{}, err
	}
	serializedLocation, err := bs.db.AppendToStore(blockStoreName, serialized)
	if err != nil {
		return model.Location{}, errors.Wrapf(err, "failed to write block %s", block.BlockHash())
	}
	return toLocation(serializedLocation)
}

// WriteUndo appends undo to the undo files.
func (bs *blockStore) WriteUndo(undo *model.BlockUndo) (model.Location, error) {
	serialized, err := serialization.SerializeBlockUndo(undo)
	if err != nil {
		return model.Location{}, err
	}
	serializedLocation, err := bs.db.AppendToStore(undoStoreName, serialized)
	if err != nil {
		return model.Location{}, errors.Wrap(err, "failed to write undo data")
	}
	return toLocation(serializedLocation)
}

// ReadBlock reads the block at location. A location that was never written,
// or that is beyond the current end of the files, yields
// database.ErrNotFound.
func (bs *blockStore) ReadBlock(location model.Location) (*wire.MsgBlock, error) {
	serialized, err := bs.read(blockStoreName, location)
	if err != nil {
		return nil, err
	}
	block, err := serialization.DeserializeBlock(serialized)
	if err != nil {
		return nil, errors.Wrapf(err, "corrupt block at %s", location)
	}
	return block, nil
}

// ReadUndo reads the undo data at location. Errors follow ReadBlock.
func (bs *blockStore) ReadUndo(location model.Location) (*model.BlockUndo, error) {
	serialized, err := bs.read(undoStoreName, location)
	if err != nil {
		return nil, err
	}
	undo, err := serialization.DeserializeBlockUndo(serialized)
	if err != nil {
		return nil, errors.Wrapf(err, "corrupt undo data at %s", location)
	}
	return undo, nil
}

func (bs *blockStore) read(storeName string, location model.Location) ([]byte, error) {
	if location.Length == 0 {
		return nil, errors.Wrapf(database.ErrNotFound, "empty location in store %s", storeName)
	}
	return bs.db.RetrieveFromStore(storeName, fromLocation(location))
}

// ScanBlocks calls fn with every readable block in file order until fn
// returns false. Entries that do not decode as blocks are skipped.
func (bs *blockStore) ScanBlocks(fn func(location model.Location, block *wire.MsgBlock) (bool, error)) error {
	return bs.db.ScanStore(blockStoreName, func(serializedLocation []byte, data []byte) (bool, error) {
		location, err := toLocation(serializedLocation)
		if err != nil {
			return false, err
		}
		block, err := serialization.DeserializeBlock(data)
		if err != nil {
			log.Warnf("Skipping undecodable block data at %s: %s", location, err)
			return true, nil
		}
		return fn(location, block)
	})
}

// ResetUndo discards all undo data.
func (bs *blockStore) ResetUndo() error {
	return bs.db.ResetStore(undoStoreName)
}

// Sync writes the stores to stable storage and records their end positions.
func (bs *blockStore) Sync() error {
	return bs.db.Flush()
}
