package consensus

import (
	"time"

	"github.com/blockkernel/blockkernel/domain/consensus/datastructures/blockindex"
	"github.com/blockkernel/blockkernel/domain/consensus/model/externalapi"
	"github.com/blockkernel/blockkernel/domain/consensus/ruleerrors"
	"github.com/blockkernel/blockkernel/util/panics"
	"github.com/btcsuite/btcd/btcutil"
)

// maxTipAge is how old the tip may be before the chain is considered to be
// in initial download.
const maxTipAge = 24 * time.Hour

// BlockInfo returns the snapshot of node handed to callbacks.
func BlockInfo(node *blockindex.Node) *externalapi.BlockInfo {
	return &externalapi.BlockInfo{
		Hash:      node.Hash(),
		Height:    node.Height(),
		Timestamp: node.Timestamp(),
		ChainWork: node.WorkSum(),
	}
}

// callHook runs a caller-supplied hook. A panicking hook is logged and
// otherwise ignored.
func callHook(name string, hook func()) {
	_ = panics.RecoverToError(log, name, hook)
}

func (m *ChainstateManager) currentSyncState() externalapi.SynchronizationState {
	if m.syncState == externalapi.SyncStateInitReindex {
		return m.syncState
	}
	tip := m.chain.Tip()
	if tip == nil || m.cfg.Clock()().Sub(tip.Timestamp()) > maxTipAge {
		return externalapi.SyncStateInitDownload
	}
	return externalapi.SyncStatePostInit
}

// verificationProgress estimates the share of the chain validated so far
// from how far the tip's timestamp is between genesis and now.
func (m *ChainstateManager) verificationProgress(tip *blockindex.Node) float64 {
	genesisTime := m.params.GenesisBlock.Header.Timestamp
	total := m.cfg.Clock()().Sub(genesisTime)
	if total <= 0 {
		return 1
	}
	progress := float64(tip.Timestamp().Sub(genesisTime)) / float64(total)
	if progress > 1 {
		return 1
	}
	if progress < 0 {
		return 0
	}
	return progress
}

func (m *ChainstateManager) notifyBlockTip(tip *blockindex.Node) {
	state := m.currentSyncState()
	progress := m.verificationProgress(tip)
	info := BlockInfo(tip)
	callHook("BlockTip", func() {
		m.notifications.BlockTip(state, info, progress)
	})
}

// updateHeaderTip reports node as the best header when it has more work
// than the previous best one.
func (m *ChainstateManager) updateHeaderTip(node *blockindex.Node) {
	if m.bestHeader != nil && node.WorkSum().Cmp(m.bestHeader.WorkSum()) <= 0 {
		return
	}
	m.bestHeader = node
	state := m.currentSyncState()
	callHook("HeaderTip", func() {
		m.notifications.HeaderTip(state, node.Height(), node.Timestamp().Unix(), false)
	})
}

func (m *ChainstateManager) notifyProgress(title string, percent int, resumePossible bool) {
	callHook("Progress", func() {
		m.notifications.Progress(title, percent, resumePossible)
	})
}

func (m *ChainstateManager) setWarning(warning externalapi.Warning, message string) {
	if m.warnings[warning] {
		return
	}
	m.warnings[warning] = true
	log.Warnf("Warning: %s", message)
	callHook("WarningSet", func() {
		m.notifications.WarningSet(warning, message)
	})
}

func (m *ChainstateManager) unsetWarning(warning externalapi.Warning) {
	if !m.warnings[warning] {
		return
	}
	delete(m.warnings, warning)
	callHook("WarningUnset", func() {
		m.notifications.WarningUnset(warning)
	})
}

func (m *ChainstateManager) notifyFlushError(err error) {
	log.Errorf("Failed to flush: %s", err)
	callHook("FlushError", func() {
		m.notifications.FlushError(err.Error())
	})
}

func (m *ChainstateManager) notifyFatalError(err error) {
	callHook("FatalError", func() {
		m.notifications.FatalError(err.Error())
	})
}

// blockChecked reports the verdict on block. Errors that are neither rule
// violations nor nil are not verdicts and are not reported.
func (m *ChainstateManager) blockChecked(block *btcutil.Block, err error) {
	if err != nil && !ruleerrors.IsRuleError(err) {
		return
	}
	state := ruleerrors.ValidationState(err)
	callHook("BlockChecked", func() {
		m.validationInterface.BlockChecked(block, state)
	})
}

func (m *ChainstateManager) newPoWValidBlock(node *blockindex.Node, block *btcutil.Block) {
	info := BlockInfo(node)
	callHook("NewPoWValidBlock", func() {
		m.validationInterface.NewPoWValidBlock(info, block)
	})
}

func (m *ChainstateManager) blockConnected(node *blockindex.Node, block *btcutil.Block) {
	info := BlockInfo(node)
	callHook("BlockConnected", func() {
		m.validationInterface.BlockConnected(block, info)
	})
}

func (m *ChainstateManager) blockDisconnected(node *blockindex.Node, block *btcutil.Block) {
	info := BlockInfo(node)
	callHook("BlockDisconnected", func() {
		m.validationInterface.BlockDisconnected(block, info)
	})
}
