package blockvalidator

import (
	"bytes"

	"github.com/blockkernel/blockkernel/domain/chainparams"
	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/blockkernel/blockkernel/domain/consensus/ruleerrors"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/pkg/errors"
)

// CheckBlockContext validates a block body against the chain ending at
// parent, without looking at the coins it spends.
func (v *blockValidator) CheckBlockContext(block *btcutil.Block, parent model.ChainContext) error {
	if parent == nil {
		return errors.New("contextual block checks need a parent")
	}
	height := parent.Height() + 1

	err := v.checkBlockTransactionsFinalized(block, parent)
	if err != nil {
		return err
	}

	err = v.checkCoinbaseHeight(block, height)
	if err != nil {
		return err
	}

	err = v.checkWitness(block, height)
	if err != nil {
		return err
	}

	return v.checkBlockWeight(block)
}

func (v *blockValidator) checkBlockTransactionsFinalized(block *btcutil.Block, parent model.ChainContext) error {
	height := parent.Height() + 1

	// Once CSV is active the lock time cutoff is the median time of the
	// previous blocks instead of the block's own timestamp.
	lockTimeCutoff := block.MsgBlock().Header.Timestamp
	if v.params.IsDeploymentActive(chainparams.DeploymentCSV, height) {
		lockTimeCutoff = parent.CalcPastMedianTime()
	}

	for _, tx := range block.Transactions() {
		if !blockchain.IsFinalizedTransaction(tx, height, lockTimeCutoff) {
			return errors.Wrapf(ruleerrors.ErrUnfinalizedTx, "block contains unfinalized "+
				"transaction %s", tx.Hash())
		}
	}
	return nil
}

// checkCoinbaseHeight requires the coinbase signature script to start with
// the minimal push of the block height once BIP34 is active.
func (v *blockValidator) checkCoinbaseHeight(block *btcutil.Block, height int32) error {
	if !v.params.IsDeploymentActive(chainparams.DeploymentHeightInCoinbase, height) {
		return nil
	}

	expectedPrefix, err := txscript.NewScriptBuilder().AddInt64(int64(height)).Script()
	if err != nil {
		return errors.WithStack(err)
	}
	coinbase := block.Transactions()[0].MsgTx()
	if !bytes.HasPrefix(coinbase.TxIn[0].SignatureScript, expectedPrefix) {
		return errors.Wrapf(ruleerrors.ErrBadCoinbaseHeight, "coinbase transaction "+
			"does not start with the serialized block height %d", height)
	}
	return nil
}

func (v *blockValidator) checkWitness(block *btcutil.Block, height int32) error {
	if !v.params.IsDeploymentActive(chainparams.DeploymentSegwit, height) {
		for _, tx := range block.Transactions() {
			if tx.HasWitness() {
				return errors.Wrapf(ruleerrors.ErrUnexpectedWitness, "transaction %s has "+
					"witness data before segwit is active", tx.Hash())
			}
		}
		return nil
	}

	err := blockchain.ValidateWitnessCommitment(block)
	if err != nil {
		return errors.Wrapf(ruleerrors.ErrBadWitnessCommitment, "%s", err)
	}
	return nil
}

func (v *blockValidator) checkBlockWeight(block *btcutil.Block) error {
	blockWeight := blockchain.GetBlockWeight(block)
	if blockWeight > blockchain.MaxBlockWeight {
		return errors.Wrapf(ruleerrors.ErrBlockTooBig, "block's weight metric is too high - "+
			"got %d, max %d", blockWeight, blockchain.MaxBlockWeight)
	}
	return nil
}
