package blockvalidator

import (
	"time"

	"github.com/blockkernel/blockkernel/domain/chainparams"
	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/blockkernel/blockkernel/domain/consensus/ruleerrors"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// maxTimewarp is how far the first block of a difficulty period may move
// time back from its parent when BIP94 is enforced.
const maxTimewarp = 600 * time.Second

// CheckBlockHeaderContext validates a header against the chain ending at
// parent.
func (v *blockValidator) CheckBlockHeaderContext(header *wire.BlockHeader, parent model.ChainContext) error {
	if parent == nil {
		return errors.New("contextual header checks need a parent")
	}

	err := v.checkDifficulty(header, parent)
	if err != nil {
		return err
	}

	err = v.checkMedianTime(header, parent)
	if err != nil {
		return err
	}

	err = v.checkTimewarp(header, parent)
	if err != nil {
		return err
	}

	return v.checkBlockVersion(header, parent.Height()+1)
}

func (v *blockValidator) checkDifficulty(header *wire.BlockHeader, parent model.ChainContext) error {
	expectedBits := v.requiredDifficulty(parent, header.Timestamp)
	if header.Bits != expectedBits {
		return errors.Wrapf(ruleerrors.ErrUnexpectedDifficulty, "block difficulty of %08x "+
			"is not the expected value of %08x", header.Bits, expectedBits)
	}
	return nil
}

func (v *blockValidator) checkMedianTime(header *wire.BlockHeader, parent model.ChainContext) error {
	pastMedianTime := parent.CalcPastMedianTime()
	if !header.Timestamp.After(pastMedianTime) {
		return errors.Wrapf(ruleerrors.ErrTimeTooOld, "block timestamp of %s is not after "+
			"expected %s", header.Timestamp, pastMedianTime)
	}
	return nil
}

func (v *blockValidator) checkTimewarp(header *wire.BlockHeader, parent model.ChainContext) error {
	if !v.params.EnforceBIP94 {
		return nil
	}
	height := parent.Height() + 1
	if height%v.blocksPerRetarget() != 0 {
		return nil
	}

	minTimestamp := parent.Header().Timestamp.Add(-maxTimewarp)
	if header.Timestamp.Before(minTimestamp) {
		return errors.Wrapf(ruleerrors.ErrTimewarpAttack, "block timestamp of %s is more than %s "+
			"before its parent", header.Timestamp, maxTimewarp)
	}
	return nil
}

// checkBlockVersion rejects outdated block versions once the buried
// deployment that superseded them is active.
func (v *blockValidator) checkBlockVersion(header *wire.BlockHeader, height int32) error {
	floors := []struct {
		deployment chainparams.Deployment
		minVersion int32
	}{
		{chainparams.DeploymentHeightInCoinbase, 2},
		{chainparams.DeploymentDERSig, 3},
		{chainparams.DeploymentCLTV, 4},
	}
	for _, floor := range floors {
		if header.Version < floor.minVersion && v.params.IsDeploymentActive(floor.deployment, height) {
			return errors.Wrapf(ruleerrors.ErrBlockVersionTooOld, "new blocks with version %d "+
				"are no longer valid at height %d", header.Version, height)
		}
	}
	return nil
}
