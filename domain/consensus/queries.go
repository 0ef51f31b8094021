package consensus

import (
	"github.com/blockkernel/blockkernel/domain/chainparams"
	"github.com/blockkernel/blockkernel/domain/consensus/datastructures/blockindex"
	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/blockkernel/blockkernel/infrastructure/db/database"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// ErrNoUndoData is returned when reading the undo data of the genesis
// block, which spends nothing.
var ErrNoUndoData = errors.New("the genesis block has no undo data")

// Tip returns the tip of the active chain.
func (m *ChainstateManager) Tip() *blockindex.Node {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.chain.Tip()
}

// Genesis returns the genesis entry of the chain.
func (m *ChainstateManager) Genesis() *blockindex.Node {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.blockIndex.Genesis()
}

// BlockIndexByHash returns the index entry of hash, or nil if the block is
// unknown.
func (m *ChainstateManager) BlockIndexByHash(hash *chainhash.Hash) *blockindex.Node {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.blockIndex.LookupNode(hash)
}

// BlockIndexByHeight returns the entry of the active chain at height, or
// nil if height is out of range.
func (m *ChainstateManager) BlockIndexByHeight(height int32) *blockindex.Node {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.chain.NodeByHeight(height)
}

// Next returns the successor of node on the active chain, or nil if node is
// the tip or not on the active chain.
func (m *ChainstateManager) Next(node *blockindex.Node) *blockindex.Node {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.chain.Next(node)
}

// Previous returns the parent of node, or nil for genesis.
func (m *ChainstateManager) Previous(node *blockindex.Node) *blockindex.Node {
	return node.Previous()
}

// Ancestor returns the ancestor of node at height, or nil if there is none.
func (m *ChainstateManager) Ancestor(node *blockindex.Node, height int32) *blockindex.Node {
	return node.Ancestor(height)
}

// IsInActiveChain returns whether node is part of the active chain.
func (m *ChainstateManager) IsInActiveChain(node *blockindex.Node) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.chain.Contains(node)
}

// Status returns the validation status of node.
func (m *ChainstateManager) Status(node *blockindex.Node) blockindex.Status {
	return m.blockIndex.NodeStatus(node)
}

// ReadBlock reads the block of node from the block store. A block that was
// never stored yields an error wrapping database.ErrNotFound.
func (m *ChainstateManager) ReadBlock(node *blockindex.Node) (*btcutil.Block, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	err := m.checkUsable()
	if err != nil {
		return nil, err
	}
	return m.readBlock(node)
}

// ReadBlockUndo reads the undo data of node. Genesis yields ErrNoUndoData;
// a block that was never connected yields an error wrapping
// database.ErrNotFound.
func (m *ChainstateManager) ReadBlockUndo(node *blockindex.Node) (*model.BlockUndo, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	err := m.checkUsable()
	if err != nil {
		return nil, err
	}
	if node.Previous() == nil {
		return nil, errors.WithStack(ErrNoUndoData)
	}
	location, ok := m.blockIndex.UndoLocation(node)
	if !ok {
		return nil, errors.Wrapf(database.ErrNotFound, "block %s has no undo data", node.Hash())
	}
	return m.blockStore.ReadUndo(location)
}

// GetCoin returns the unspent coin at outpoint as of the active tip, or nil
// if there is none.
func (m *ChainstateManager) GetCoin(outpoint wire.OutPoint) (*model.Coin, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	err := m.checkUsable()
	if err != nil {
		return nil, err
	}
	m.coinsLock.Lock()
	defer m.coinsLock.Unlock()
	return m.coins.GetCoin(outpoint)
}

// CoinsCommitment returns the MuHash3072 commitment of the coin set at the
// active tip.
func (m *ChainstateManager) CoinsCommitment() (chainhash.Hash, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	err := m.checkUsable()
	if err != nil {
		return chainhash.Hash{}, err
	}
	m.coinsLock.Lock()
	defer m.coinsLock.Unlock()
	return m.coins.Commitment(), nil
}

// Params returns the network parameters of the chain.
func (m *ChainstateManager) Params() *chainparams.Params {
	return m.params
}
