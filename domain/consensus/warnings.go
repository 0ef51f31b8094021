package consensus

import (
	"fmt"
	"math/big"

	"github.com/blockkernel/blockkernel/domain/consensus/datastructures/blockindex"
	"github.com/blockkernel/blockkernel/domain/consensus/model/externalapi"
	"github.com/btcsuite/btcd/blockchain"
)

const (
	// largeWorkBlocks is how many tip blocks worth of extra work an
	// invalid chain needs before it is reported.
	largeWorkBlocks = 6

	versionBitsTopMask = 0xe0000000
	versionBitsTopBits = 0x20000000
	versionBitsNumBits = 29
)

// checkForkWarningConditions warns while an invalid chain has significantly
// more work than the active one.
func (m *ChainstateManager) checkForkWarningConditions() {
	tip := m.chain.Tip()
	invalid := m.blockIndex.MostWorkInvalid()
	if invalid == nil {
		m.unsetWarning(externalapi.WarningLargeWorkInvalidChain)
		return
	}

	threshold := new(big.Int).Mul(blockchain.CalcWork(tip.Bits()), big.NewInt(largeWorkBlocks))
	threshold.Add(threshold, tip.WorkSum())
	if invalid.WorkSum().Cmp(threshold) <= 0 {
		m.unsetWarning(externalapi.WarningLargeWorkInvalidChain)
		return
	}
	m.setWarning(externalapi.WarningLargeWorkInvalidChain, fmt.Sprintf(
		"found an invalid chain at height %d with significantly more work than the active chain "+
			"at height %d", invalid.Height(), tip.Height()))
}

// checkUnknownRules warns when, over the signalling window ending at node,
// a version bit unknown to this network reached the activation threshold.
func (m *ChainstateManager) checkUnknownRules(node *blockindex.Node) {
	window := int32(m.params.MinerConfirmationWindow)
	if window <= 0 || (node.Height()+1)%window != 0 {
		return
	}

	var known [versionBitsNumBits]bool
	for _, deployment := range m.params.Deployments {
		if int(deployment.BitNumber) < versionBitsNumBits {
			known[deployment.BitNumber] = true
		}
	}

	var counts [versionBitsNumBits]uint32
	current := node
	for i := int32(0); i < window && current != nil; i++ {
		version := uint32(current.Header().Version)
		if version&versionBitsTopMask == versionBitsTopBits {
			for bit := 0; bit < versionBitsNumBits; bit++ {
				if version&(1<<uint(bit)) != 0 && !known[bit] {
					counts[bit]++
				}
			}
		}
		current = current.Previous()
	}

	for bit, count := range counts {
		if count >= m.params.RuleChangeActivationThreshold {
			m.setWarning(externalapi.WarningUnknownNewRulesActivated,
				fmt.Sprintf("unknown new rules activated (versionbit %d)", bit))
			return
		}
	}
	m.unsetWarning(externalapi.WarningUnknownNewRulesActivated)
}
