// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockvalidator

import (
	"math/big"
	"time"

	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/btcsuite/btcd/blockchain"
)

// blocksPerRetarget is the number of blocks between difficulty adjustments.
func (v *blockValidator) blocksPerRetarget() int32 {
	return int32(v.params.TargetTimespan / v.params.TargetTimePerBlock)
}

// requiredDifficulty calculates the required difficulty for the block after
// parent, given the block's timestamp.
func (v *blockValidator) requiredDifficulty(parent model.ChainContext, newBlockTime time.Time) uint32 {
	// Genesis block.
	if parent == nil {
		return v.params.PowLimitBits
	}

	parentHeader := parent.Header()
	height := parent.Height() + 1
	blocksPerRetarget := v.blocksPerRetarget()

	// Return the previous block's difficulty requirements if this block
	// is not at a difficulty retarget interval.
	if height%blocksPerRetarget != 0 {
		// For networks that support it, allow special reduction of the
		// required difficulty once too much time has elapsed without
		// mining a block.
		if v.params.ReduceMinDifficulty {
			allowMinTime := parentHeader.Timestamp.Add(v.params.MinDiffReductionTime)
			if newBlockTime.After(allowMinTime) {
				return v.params.PowLimitBits
			}

			// The block was mined within the desired timeframe, so
			// return the difficulty for the last block which did
			// not have the special minimum difficulty rule applied.
			return v.findPrevTestNetDifficulty(parent)
		}

		return parentHeader.Bits
	}

	if v.params.PoWNoRetargeting {
		return parentHeader.Bits
	}

	// Get the block at the previous retarget (targetTimespan days worth
	// of blocks).
	first := parent.AncestorContext(height - blocksPerRetarget)
	if first == nil {
		log.Warnf("Unable to obtain previous retarget block for height %d", height)
		return parentHeader.Bits
	}
	firstHeader := first.Header()

	// Limit the amount of adjustment that can occur to the previous
	// difficulty.
	targetTimespan := int64(v.params.TargetTimespan / time.Second)
	adjustmentFactor := v.params.RetargetAdjustmentFactor
	minRetargetTimespan := targetTimespan / adjustmentFactor
	maxRetargetTimespan := targetTimespan * adjustmentFactor

	actualTimespan := parentHeader.Timestamp.Unix() - firstHeader.Timestamp.Unix()
	adjustedTimespan := actualTimespan
	if actualTimespan < minRetargetTimespan {
		adjustedTimespan = minRetargetTimespan
	} else if actualTimespan > maxRetargetTimespan {
		adjustedTimespan = maxRetargetTimespan
	}

	// With BIP94 the new target derives from the first block of the
	// period, so a timewarped final block cannot compound.
	baseBits := parentHeader.Bits
	if v.params.EnforceBIP94 {
		baseBits = firstHeader.Bits
	}

	// Calculate new target difficulty as:
	//  currentDifficulty * (adjustedTimespan / targetTimespan)
	// The result uses integer division which means it will be slightly
	// rounded down.
	newTarget := blockchain.CompactToBig(baseBits)
	newTarget.Mul(newTarget, big.NewInt(adjustedTimespan))
	newTarget.Div(newTarget, big.NewInt(targetTimespan))

	// Limit new value to the proof of work limit.
	if newTarget.Cmp(v.params.PowLimit) > 0 {
		newTarget.Set(v.params.PowLimit)
	}

	newTargetBits := blockchain.BigToCompact(newTarget)
	log.Debugf("Difficulty retarget at block height %d: old %08x, new %08x, "+
		"actual timespan %s, target timespan %s", height, baseBits, newTargetBits,
		time.Duration(actualTimespan)*time.Second, v.params.TargetTimespan)

	return newTargetBits
}

// findPrevTestNetDifficulty returns the difficulty of the previous block
// which did not have the special testnet minimum difficulty rule applied.
func (v *blockValidator) findPrevTestNetDifficulty(startNode model.ChainContext) uint32 {
	blocksPerRetarget := v.blocksPerRetarget()

	// Search backwards through the chain for the last block without
	// the special rule applied.
	iterNode := startNode
	for iterNode != nil && iterNode.Height()%blocksPerRetarget != 0 &&
		iterNode.Header().Bits == v.params.PowLimitBits {

		iterNode = iterNode.ParentContext()
	}

	// Return the found difficulty or the minimum difficulty if no
	// appropriate block was found.
	if iterNode == nil {
		return v.params.PowLimitBits
	}
	return iterNode.Header().Bits
}
