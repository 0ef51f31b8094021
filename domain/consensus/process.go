package consensus

import (
	"github.com/blockkernel/blockkernel/domain/consensus/datastructures/blockindex"
	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/blockkernel/blockkernel/domain/consensus/model/externalapi"
	"github.com/blockkernel/blockkernel/domain/consensus/ruleerrors"
	"github.com/blockkernel/blockkernel/domain/consensus/utils/serialization"
	"github.com/blockkernel/blockkernel/infrastructure/logger"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// ProcessBlockBytes decodes a wire-serialized block and processes it. A
// decoding failure rejects the block without a validity judgment.
func (m *ChainstateManager) ProcessBlockBytes(serialized []byte) (accepted bool, isNew bool, err error) {
	msgBlock, err := serialization.DeserializeBlock(serialized)
	if err != nil {
		return false, false, err
	}
	return m.ProcessBlock(btcutil.NewBlock(msgBlock))
}

// ProcessBlock validates block, stores it and activates the best chain.
//
// accepted reports whether the block is stored and not known to be invalid.
// isNew reports whether this call stored it. A rejected block yields a
// ruleerrors.RuleError from which ruleerrors.ResultOf extracts the
// validation result. Any other error is fatal and poisons the manager.
func (m *ChainstateManager) ProcessBlock(block *btcutil.Block) (accepted bool, isNew bool, err error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	err = m.checkUsable()
	if err != nil {
		return false, false, err
	}
	return m.processBlock(block)
}

func (m *ChainstateManager) processBlock(block *btcutil.Block) (accepted bool, isNew bool, err error) {
	onEnd := logger.LogAndMeasureExecutionTime(benchLog, "processBlock")
	defer onEnd()

	m.blockFailures = make(map[*blockindex.Node]error)
	node, isNew, err := m.acceptBlock(block, nil)
	if err != nil {
		if ruleerrors.IsRuleError(err) {
			log.Infof("Rejected block %s: %s", block.Hash(), err)
			return false, isNew, err
		}
		return false, isNew, m.poison(err)
	}
	if !isNew {
		log.Debugf("Block %s is already known", block.Hash())
		return true, false, nil
	}

	err = m.activateBestChain()
	if err != nil {
		return false, true, m.poison(err)
	}

	if failure, ok := m.blockFailures[node]; ok {
		return false, true, failure
	}
	if m.blockIndex.NodeStatus(node).KnownInvalid() {
		return false, true, errors.Wrapf(ruleerrors.ErrInvalidAncestorBlock,
			"block %s descends from a block that failed to connect", block.Hash())
	}
	return true, true, nil
}

// acceptBlock runs every check that does not need the coin set and stores
// block in the block store and the index. A block read back from the block
// files passes its location and is not written again.
//
// Permanent failures are recorded in the index so that resubmissions fail
// fast with ErrKnownInvalid.
func (m *ChainstateManager) acceptBlock(block *btcutil.Block,
	location *model.Location) (node *blockindex.Node, isNew bool, err error) {

	hash := block.Hash()
	header := &block.MsgBlock().Header

	if existing := m.blockIndex.LookupNode(hash); existing != nil {
		if m.blockIndex.NodeStatus(existing).KnownInvalid() {
			return existing, false, errors.Wrapf(ruleerrors.ErrKnownInvalid,
				"block %s is known to be invalid", hash)
		}
		return existing, false, nil
	}

	parent := m.blockIndex.LookupNode(&header.PrevBlock)

	err = m.validator.CheckBlockHeaderSanity(header)
	if err != nil {
		m.rejectBlock(block, parent, err)
		return nil, false, err
	}

	if parent == nil {
		err = errors.Wrapf(ruleerrors.ErrMissingPrev, "parent %s of block %s is unknown",
			header.PrevBlock, hash)
		m.blockChecked(block, err)
		return nil, false, err
	}
	if m.blockIndex.NodeStatus(parent).KnownInvalid() {
		err = errors.Wrapf(ruleerrors.ErrInvalidAncestorBlock, "parent %s of block %s is invalid",
			header.PrevBlock, hash)
		m.cacheInvalid(header, parent, blockindex.StatusInvalidAncestor)
		m.blockChecked(block, err)
		return nil, false, err
	}

	err = m.validator.CheckBlockHeaderContext(header, parent)
	if err == nil {
		err = m.validator.CheckBlockSanity(block)
	}
	if err == nil {
		err = m.validator.CheckBlockContext(block, parent)
	}
	if err != nil {
		m.rejectBlock(block, parent, err)
		return nil, false, err
	}

	var blockLocation model.Location
	if location != nil {
		blockLocation = *location
	} else {
		blockLocation, err = m.blockStore.WriteBlock(block.MsgBlock())
		if err != nil {
			return nil, false, err
		}
	}
	node, err = m.blockIndex.AddNode(header, parent)
	if err != nil {
		return nil, false, err
	}
	m.blockIndex.SetBlockLocation(node, blockLocation, uint32(len(block.Transactions())))
	log.Debugf("Accepted block %s at height %d", hash, node.Height())

	m.updateHeaderTip(node)
	tip := m.chain.Tip()
	if parent == tip && node.WorkSum().Cmp(tip.WorkSum()) > 0 {
		m.newPoWValidBlock(node, block)
	}
	return node, true, nil
}

// rejectBlock reports a failed check and, when the failure is permanent,
// records it. Mutated blocks are not recorded since the same header with
// the right body may still be valid, and a timestamp too far in the future
// may become acceptable later.
func (m *ChainstateManager) rejectBlock(block *btcutil.Block, parent *blockindex.Node, err error) {
	m.blockChecked(block, err)
	if parent == nil || !ruleerrors.IsRuleError(err) {
		return
	}
	switch ruleerrors.ResultOf(err) {
	case externalapi.BlockMutated, externalapi.BlockTimeFuture:
		return
	}
	m.cacheInvalid(&block.MsgBlock().Header, parent, blockindex.StatusValidateFailed)
}

func (m *ChainstateManager) cacheInvalid(header *wire.BlockHeader, parent *blockindex.Node,
	status blockindex.Status) {

	node, err := m.blockIndex.AddNode(header, parent)
	if err != nil {
		log.Warnf("Failed to record invalid block %s: %s", header.BlockHash(), err)
		return
	}
	if status == blockindex.StatusValidateFailed {
		m.blockIndex.MarkInvalid(node)
		return
	}
	m.blockIndex.SetStatusFlags(node, status)
}
