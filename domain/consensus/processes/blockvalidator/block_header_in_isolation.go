package blockvalidator

import (
	"github.com/blockkernel/blockkernel/domain/consensus/ruleerrors"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// CheckBlockHeaderSanity validates a block header without looking at the
// chain it extends.
func (v *blockValidator) CheckBlockHeaderSanity(header *wire.BlockHeader) error {
	err := v.checkProofOfWork(header)
	if err != nil {
		return err
	}

	return v.checkBlockTimestampInIsolation(header)
}

// checkProofOfWork ensures the block header bits which indicate the target
// difficulty is in min/max range and that the block hash is less than the
// target difficulty as claimed.
func (v *blockValidator) checkProofOfWork(header *wire.BlockHeader) error {
	target := blockchain.CompactToBig(header.Bits)
	if target.Sign() <= 0 {
		return errors.Wrapf(ruleerrors.ErrUnexpectedDifficulty, "block target difficulty of %064x "+
			"is too low", target)
	}

	if target.Cmp(v.params.PowLimit) > 0 {
		return errors.Wrapf(ruleerrors.ErrUnexpectedDifficulty, "block target difficulty of %064x "+
			"is higher than max of %064x", target, v.params.PowLimit)
	}

	hash := header.BlockHash()
	hashNum := blockchain.HashToBig(&hash)
	if hashNum.Cmp(target) > 0 {
		return errors.Wrapf(ruleerrors.ErrInvalidPoW, "block hash of %064x is higher than "+
			"expected max of %064x", hashNum, target)
	}
	return nil
}

func (v *blockValidator) checkBlockTimestampInIsolation(header *wire.BlockHeader) error {
	maxTimestamp := v.clock().Add(maxFutureBlockTime)
	if header.Timestamp.After(maxTimestamp) {
		return errors.Wrapf(ruleerrors.ErrTimeTooMuchInTheFuture, "block timestamp of %s is too far in the "+
			"future, max is %s", header.Timestamp, maxTimestamp)
	}
	return nil
}
