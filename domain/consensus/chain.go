package consensus

import (
	"context"

	"github.com/blockkernel/blockkernel/domain/chainparams"
	"github.com/blockkernel/blockkernel/domain/consensus/datastructures/blockindex"
	"github.com/blockkernel/blockkernel/domain/consensus/datastructures/coinsview"
	"github.com/blockkernel/blockkernel/domain/consensus/ruleerrors"
	"github.com/blockkernel/blockkernel/infrastructure/db/database"
	"github.com/blockkernel/blockkernel/infrastructure/logger"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
)

// bip30Exceptions are the two mainnet blocks whose coinbases duplicate
// earlier ones still unspent. They overwrite the earlier outputs.
var bip30Exceptions = map[int32]chainhash.Hash{
	91842: mustParseHash("00000000000a4d0a398161ffc163c503763b1f4360639393e0e4c8e300e0caec"),
	91880: mustParseHash("00000000000743f190a18c5577a3c2d2a1f610ae9601ac046a38084ccb7cd721"),
}

func mustParseHash(s string) chainhash.Hash {
	hash, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return *hash
}

func isBIP30Exception(params *chainparams.Params, node *blockindex.Node) bool {
	if params.Type != chainparams.Mainnet {
		return false
	}
	hash, ok := bip30Exceptions[node.Height()]
	return ok && hash == node.Hash()
}

// activateBestChain moves the active chain to the best candidate, one block
// at a time, until no candidate has more work than the tip. A block that
// fails to connect is marked invalid and the next best candidate is tried.
// Only fatal errors are returned. Must be called with lock held.
func (m *ChainstateManager) activateBestChain() error {
	onEnd := logger.LogAndMeasureExecutionTime(benchLog, "activateBestChain")
	defer onEnd()

	oldTip := m.chain.Tip()
	for {
		if m.interrupted() {
			log.Infof("Chain activation interrupted at height %d", m.chain.Height())
			break
		}
		tip := m.chain.Tip()
		best := m.blockIndex.BestCandidate()
		if best == nil || best == tip || best.WorkSum().Cmp(tip.WorkSum()) <= 0 {
			break
		}
		err := m.activateBestChainStep(best)
		if err != nil {
			return err
		}
	}

	tip := m.chain.Tip()
	m.blockIndex.PruneCandidates(tip)
	m.checkForkWarningConditions()
	if tip != oldTip {
		log.Infof("New chain tip %s at height %d", tip.Hash(), tip.Height())
		m.notifyBlockTip(tip)
	}
	m.maybeFlush()
	return nil
}

// activateBestChainStep reorganizes towards best. It stops early, leaving a
// consistent chain, on interrupt or when a block fails to connect.
func (m *ChainstateManager) activateBestChainStep(best *blockindex.Node) error {
	fork := m.chain.FindFork(best)
	if fork == nil {
		return errors.Errorf("block %s does not share a fork point with the active chain", best.Hash())
	}

	if m.chain.Tip() != fork {
		log.Infof("Reorganizing from %s to %s at fork height %d",
			m.chain.Tip().Hash(), best.Hash(), fork.Height())
	}
	for m.chain.Tip() != fork {
		if m.interrupted() {
			return nil
		}
		err := m.disconnectTip()
		if err != nil {
			return err
		}
	}

	path := make([]*blockindex.Node, 0, best.Height()-fork.Height())
	for node := best; node != fork; node = node.Previous() {
		path = append(path, node)
	}
	for i := len(path) - 1; i >= 0; i-- {
		if m.interrupted() {
			return nil
		}
		node := path[i]
		err := m.connectTip(node)
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if !ruleerrors.IsRuleError(err) {
			return err
		}
		m.invalidBlockFound(node, err)
		return nil
	}
	return nil
}

// connectTip validates node against the coin set and, when valid, makes it
// the new tip. The coin set changes only if every check passes.
func (m *ChainstateManager) connectTip(node *blockindex.Node) error {
	onEnd := logger.LogAndMeasureExecutionTime(benchLog, "connectTip")
	defer onEnd()

	block, err := m.readBlock(node)
	if err != nil {
		return err
	}

	view := coinsview.NewView(m.coins)
	undo, err := coinsview.ConnectBlock(view, block, node.Height(), isBIP30Exception(m.params, node))
	if err == nil {
		err = m.validator.CheckConnectBlock(m.ctx, block, node.ParentContext(), undo)
	}
	if err != nil {
		if ruleerrors.IsRuleError(err) {
			m.blockChecked(block, err)
		}
		return err
	}

	undoLocation, err := m.blockStore.WriteUndo(undo)
	if err != nil {
		return err
	}
	m.blockIndex.SetUndoLocation(node, undoLocation)
	m.blockIndex.SetStatusFlags(node, blockindex.StatusValid)
	err = view.Commit()
	if err != nil {
		return err
	}
	m.chain.SetTip(node)
	log.Debugf("Connected block %s at height %d", node.Hash(), node.Height())

	m.blockChecked(block, nil)
	m.blockConnected(node, block)
	m.checkUnknownRules(node)
	return nil
}

// disconnectTip reverts the tip using its undo data and makes its parent
// the new tip.
func (m *ChainstateManager) disconnectTip() error {
	tip := m.chain.Tip()
	parent := tip.Previous()
	if parent == nil {
		return errors.New("cannot disconnect the genesis block")
	}

	block, err := m.readBlock(tip)
	if err != nil {
		return err
	}
	undoLocation, ok := m.blockIndex.UndoLocation(tip)
	if !ok {
		return errors.Errorf("no undo data for connected block %s", tip.Hash())
	}
	undo, err := m.blockStore.ReadUndo(undoLocation)
	if err != nil {
		return errors.Wrapf(err, "failed to read undo data of block %s", tip.Hash())
	}

	view := coinsview.NewView(m.coins)
	err = coinsview.DisconnectBlock(view, block, tip.Height(), undo)
	if err != nil {
		return err
	}
	err = view.Commit()
	if err != nil {
		return err
	}
	m.chain.SetTip(parent)
	m.blockIndex.AddCandidate(tip)
	log.Debugf("Disconnected block %s at height %d", tip.Hash(), tip.Height())

	m.blockDisconnected(tip, block)
	return nil
}

func (m *ChainstateManager) invalidBlockFound(node *blockindex.Node, err error) {
	log.Warnf("Block %s at height %d failed to connect: %s", node.Hash(), node.Height(), err)
	m.blockFailures[node] = err
	descendants := m.blockIndex.MarkInvalid(node)
	if descendants > 0 {
		log.Infof("Marked %d descendants of block %s as invalid", descendants, node.Hash())
	}
}

func (m *ChainstateManager) readBlock(node *blockindex.Node) (*btcutil.Block, error) {
	location, ok := m.blockIndex.BlockLocation(node)
	if !ok {
		return nil, errors.Wrapf(database.ErrNotFound, "block %s is not stored", node.Hash())
	}
	msgBlock, err := m.blockStore.ReadBlock(location)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read block %s", node.Hash())
	}
	return btcutil.NewBlock(msgBlock), nil
}
