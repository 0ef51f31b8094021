package blockindex

import (
	"bytes"
	"encoding/binary"

	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/blockkernel/blockkernel/domain/consensus/utils/serialization"
	"github.com/blockkernel/blockkernel/infrastructure/db/database"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

var bucket = database.MakeBucket([]byte("block-index"))

// nodeKey is the block height encoded as a big-endian 32-bit unsigned int
// followed by the 32 byte block hash, so a cursor yields parents before
// their children.
func nodeKey(node *Node) *database.Key {
	key := make([]byte, 4+chainhash.HashSize)
	binary.BigEndian.PutUint32(key[:4], uint32(node.height))
	copy(key[4:], node.hash[:])
	return bucket.Key(key)
}

func serializeNode(node *Node) ([]byte, error) {
	w := &bytes.Buffer{}
	header := node.Header()
	err := header.Serialize(w)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	err = serialization.WriteElements(w,
		uint32(node.status), node.sequenceID, node.txCount,
		node.blockLocation.FileNumber, node.blockLocation.Offset, node.blockLocation.Length,
		node.undoLocation.FileNumber, node.undoLocation.Offset, node.undoLocation.Length)
	if err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (bi *Index) deserializeNode(serialized []byte) (*Node, error) {
	r := bytes.NewReader(serialized)
	var header wire.BlockHeader
	err := header.Deserialize(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var parent *Node
	if header.PrevBlock != (chainhash.Hash{}) {
		parent = bi.index[header.PrevBlock]
		if parent == nil {
			return nil, errors.Errorf("could not find parent %s for block %s",
				header.PrevBlock, header.BlockHash())
		}
	}
	node := newNode(&header, parent)

	var status uint32
	var blockLocation, undoLocation model.Location
	err = serialization.ReadElements(r,
		&status, &node.sequenceID, &node.txCount,
		&blockLocation.FileNumber, &blockLocation.Offset, &blockLocation.Length,
		&undoLocation.FileNumber, &undoLocation.Offset, &undoLocation.Length)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, errors.Errorf("%d trailing bytes in the entry of block %s", r.Len(), node.hash)
	}
	node.status = Status(status)
	node.blockLocation = blockLocation
	node.undoLocation = undoLocation
	return node, nil
}

// FlushToDB writes every node changed since the last flush to dbTx.
func (bi *Index) FlushToDB(dbTx database.DataAccessor) error {
	bi.Lock()
	defer bi.Unlock()
	if len(bi.dirty) == 0 {
		return nil
	}

	for node := range bi.dirty {
		serialized, err := serializeNode(node)
		if err != nil {
			return err
		}
		err = dbTx.Put(nodeKey(node), serialized)
		if err != nil {
			return err
		}
	}
	log.Debugf("Flushed %d block index entries", len(bi.dirty))
	return nil
}

// ClearDirty forgets which nodes were changed. It is called once the
// transaction written by FlushToDB was committed.
func (bi *Index) ClearDirty() {
	bi.Lock()
	defer bi.Unlock()
	bi.dirty = make(map[*Node]struct{})
}

// LoadFromDB fills an empty index with every node stored in db. It returns
// the number of loaded nodes.
func (bi *Index) LoadFromDB(db database.DataAccessor) (int, error) {
	bi.Lock()
	defer bi.Unlock()
	if len(bi.index) != 0 {
		return 0, errors.New("cannot load into a non-empty block index")
	}

	cursor, err := db.Cursor(bucket)
	if err != nil {
		return 0, err
	}
	defer cursor.Close()

	count := 0
	for ok := cursor.First(); ok; ok = cursor.Next() {
		serialized, err := cursor.Value()
		if err != nil {
			return 0, err
		}
		node, err := bi.deserializeNode(serialized)
		if err != nil {
			return 0, err
		}
		if node.parent == nil && node.hash != *bi.params.GenesisHash {
			return 0, errors.Errorf("stored block %s has no parent and is not the genesis "+
				"block of %s", node.hash, bi.params.Name)
		}
		bi.addNode(node)
		bi.updateCandidate(node)
		if node.sequenceID >= bi.nextSequenceID {
			bi.nextSequenceID = node.sequenceID + 1
		}
		count++
	}
	if count > 0 && bi.genesis == nil {
		return 0, errors.New("the stored block index has no genesis block")
	}
	return count, nil
}
