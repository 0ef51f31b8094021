package blockvalidator

import (
	"github.com/blockkernel/blockkernel/domain/consensus/ruleerrors"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
)

// CheckBlockSanity validates a block body without looking at the chain it
// extends. The header is expected to have passed CheckBlockHeaderSanity.
func (v *blockValidator) CheckBlockSanity(block *btcutil.Block) error {
	err := v.checkBlockContainsAtLeastOneTransaction(block)
	if err != nil {
		return err
	}

	err = v.checkBlockHashMerkleRoot(block)
	if err != nil {
		return err
	}

	err = v.checkBlockDuplicateTransactions(block)
	if err != nil {
		return err
	}

	err = v.checkBlockSize(block)
	if err != nil {
		return err
	}

	err = v.checkFirstBlockTransactionIsCoinbase(block)
	if err != nil {
		return err
	}

	err = v.checkBlockContainsOnlyOneCoinbase(block)
	if err != nil {
		return err
	}

	err = v.checkTransactionsInIsolation(block)
	if err != nil {
		return err
	}

	return v.checkLegacySigOps(block)
}

func (v *blockValidator) checkBlockContainsAtLeastOneTransaction(block *btcutil.Block) error {
	if len(block.Transactions()) == 0 {
		return errors.Wrapf(ruleerrors.ErrNoTransactions, "block does not contain "+
			"any transactions")
	}
	return nil
}

func (v *blockValidator) checkBlockHashMerkleRoot(block *btcutil.Block) error {
	header := &block.MsgBlock().Header
	calculatedMerkleRoot := blockchain.CalcMerkleRoot(block.Transactions(), false)
	if !header.MerkleRoot.IsEqual(&calculatedMerkleRoot) {
		return errors.Wrapf(ruleerrors.ErrBadMerkleRoot, "block merkle root is invalid - block "+
			"header indicates %s, but calculated value is %s",
			header.MerkleRoot, calculatedMerkleRoot)
	}
	return nil
}

// checkBlockDuplicateTransactions rejects blocks listing a transaction twice.
// Such a block can share its merkle root with a valid one.
func (v *blockValidator) checkBlockDuplicateTransactions(block *btcutil.Block) error {
	existingTxHashes := make(map[chainhash.Hash]struct{}, len(block.Transactions()))
	for _, tx := range block.Transactions() {
		hash := tx.Hash()
		if _, exists := existingTxHashes[*hash]; exists {
			return errors.Wrapf(ruleerrors.ErrDuplicateTx, "block contains duplicate "+
				"transaction %s", hash)
		}
		existingTxHashes[*hash] = struct{}{}
	}
	return nil
}

func (v *blockValidator) checkBlockSize(block *btcutil.Block) error {
	numTx := len(block.Transactions())
	if numTx*blockchain.WitnessScaleFactor > blockchain.MaxBlockWeight {
		return errors.Wrapf(ruleerrors.ErrBlockTooBig, "block contains too many transactions - "+
			"got %d, max %d", numTx, blockchain.MaxBlockWeight/blockchain.WitnessScaleFactor)
	}

	serializedSize := block.MsgBlock().SerializeSizeStripped()
	if serializedSize*blockchain.WitnessScaleFactor > blockchain.MaxBlockWeight {
		return errors.Wrapf(ruleerrors.ErrBlockTooBig, "serialized block is too big - got %d, "+
			"max %d", serializedSize, blockchain.MaxBlockBaseSize)
	}
	return nil
}

func (v *blockValidator) checkFirstBlockTransactionIsCoinbase(block *btcutil.Block) error {
	if !blockchain.IsCoinBase(block.Transactions()[0]) {
		return errors.Wrapf(ruleerrors.ErrFirstTxNotCoinbase, "first transaction in "+
			"block is not a coinbase")
	}
	return nil
}

func (v *blockValidator) checkBlockContainsOnlyOneCoinbase(block *btcutil.Block) error {
	for i, tx := range block.Transactions()[1:] {
		if blockchain.IsCoinBase(tx) {
			return errors.Wrapf(ruleerrors.ErrMultipleCoinbases, "block contains second "+
				"coinbase at index %d", i+1)
		}
	}
	return nil
}

func (v *blockValidator) checkTransactionsInIsolation(block *btcutil.Block) error {
	for _, tx := range block.Transactions() {
		err := blockchain.CheckTransactionSanity(tx)
		if err != nil {
			return errors.Wrapf(ruleerrors.ErrBadTransaction, "transaction %s failed sanity "+
				"checks: %s", tx.Hash(), err)
		}
	}
	return nil
}

// checkLegacySigOps bounds the signature operations counted without looking
// at the spent outputs. CheckConnectBlock repeats the count with P2SH and
// witness operations included.
func (v *blockValidator) checkLegacySigOps(block *btcutil.Block) error {
	totalSigOps := 0
	for _, tx := range block.Transactions() {
		lastSigOps := totalSigOps
		totalSigOps += blockchain.CountSigOps(tx) * blockchain.WitnessScaleFactor
		if totalSigOps < lastSigOps || totalSigOps > blockchain.MaxBlockSigOpsCost {
			return errors.Wrapf(ruleerrors.ErrTooManySigOps, "block contains too many signature "+
				"operations - got %d, max %d", totalSigOps, blockchain.MaxBlockSigOpsCost)
		}
	}
	return nil
}
