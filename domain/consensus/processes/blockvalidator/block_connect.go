package blockvalidator

import (
	"context"
	"time"

	"github.com/blockkernel/blockkernel/domain/chainparams"
	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/blockkernel/blockkernel/domain/consensus/ruleerrors"
	"github.com/blockkernel/blockkernel/domain/consensus/utils/scriptverify"
	"github.com/blockkernel/blockkernel/infrastructure/logger"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// CheckConnectBlock validates block against the coins listed in undo, which
// must have been produced by applying block on top of parent.
func (v *blockValidator) CheckConnectBlock(ctx context.Context, block *btcutil.Block,
	parent model.ChainContext, undo *model.BlockUndo) error {

	onEnd := logger.LogAndMeasureExecutionTime(log, "CheckConnectBlock")
	defer onEnd()

	if parent == nil {
		return errors.New("connect checks need a parent")
	}
	err := checkUndoMatchesBlock(block, undo)
	if err != nil {
		return err
	}

	height := parent.Height() + 1
	flags := BlockScriptFlags(v.params, block.Hash(), height)
	enforceSequenceLocks := v.params.IsDeploymentActive(chainparams.DeploymentCSV, height)
	pastMedianTime := parent.CalcPastMedianTime()

	transactions := block.Transactions()
	var totalFees int64
	totalSigOpCost := 0
	checks := make([]*scriptverify.ScriptCheck, 0, len(transactions))
	for i, tx := range transactions {
		var spentCoins []*model.Coin
		if i > 0 {
			spentCoins = undo.TxUndos[i-1].SpentCoins

			txFee, err := v.checkTransactionInputs(tx, height, spentCoins)
			if err != nil {
				return err
			}
			lastTotalFees := totalFees
			totalFees += txFee
			if totalFees < lastTotalFees || totalFees > btcutil.MaxSatoshi {
				return errors.Wrapf(ruleerrors.ErrBadTxOutValue, "total fees for block "+
					"are out of range")
			}

			if enforceSequenceLocks {
				err = checkSequenceLock(tx, height, parent, pastMedianTime, spentCoins)
				if err != nil {
					return err
				}
			}
		}

		lastSigOpCost := totalSigOpCost
		totalSigOpCost += sigOpCost(tx, spentCoins, flags)
		if totalSigOpCost < lastSigOpCost || totalSigOpCost > blockchain.MaxBlockSigOpsCost {
			return errors.Wrapf(ruleerrors.ErrTooManySigOps, "block contains too many "+
				"signature operations - got %d, max %d",
				totalSigOpCost, blockchain.MaxBlockSigOpsCost)
		}

		if i > 0 {
			checks = append(checks, scriptChecks(tx, spentCoins, flags)...)
		}
	}

	err = v.checkCoinbaseValue(transactions[0], height, totalFees)
	if err != nil {
		return err
	}

	err = v.checkQueue.Run(ctx, checks)
	if err != nil {
		var scriptErr *scriptverify.ScriptError
		if errors.As(err, &scriptErr) {
			return errors.Wrapf(ruleerrors.ErrScriptValidation, "%s", scriptErr)
		}
		return err
	}
	return nil
}

func checkUndoMatchesBlock(block *btcutil.Block, undo *model.BlockUndo) error {
	transactions := block.Transactions()
	if undo == nil || len(undo.TxUndos) != len(transactions)-1 {
		return errors.Errorf("undo data of block %s does not match its transactions", block.Hash())
	}
	for i, txUndo := range undo.TxUndos {
		tx := transactions[i+1].MsgTx()
		if len(txUndo.SpentCoins) != len(tx.TxIn) {
			return errors.Errorf("undo data of transaction %s lists %d coins for %d inputs",
				transactions[i+1].Hash(), len(txUndo.SpentCoins), len(tx.TxIn))
		}
	}
	return nil
}

// checkTransactionInputs performs a series of checks on the inputs to a
// transaction to ensure they are valid and returns the transaction fee.
// spentCoins holds the coin spent by each input.
func (v *blockValidator) checkTransactionInputs(tx *btcutil.Tx, txHeight int32,
	spentCoins []*model.Coin) (int64, error) {

	coinbaseMaturity := int32(v.params.CoinbaseMaturity)
	var totalSatoshiIn int64
	for txInIndex, coin := range spentCoins {
		// Ensure the transaction is not spending coins which have not
		// yet reached the required coinbase maturity.
		if coin.IsCoinbase {
			blocksSincePrev := txHeight - coin.Height
			if blocksSincePrev < coinbaseMaturity {
				return 0, errors.Wrapf(ruleerrors.ErrImmatureSpend, "tried to spend coinbase "+
					"transaction output %s from height %d at height %d before "+
					"required maturity of %d blocks",
					tx.MsgTx().TxIn[txInIndex].PreviousOutPoint, coin.Height, txHeight,
					coinbaseMaturity)
			}
		}

		// Ensure the transaction amounts are in range. The total of
		// all inputs must not be more than the max allowed per
		// transaction.
		if coin.Amount < 0 || coin.Amount > btcutil.MaxSatoshi {
			return 0, errors.Wrapf(ruleerrors.ErrBadTxOutValue, "transaction output has "+
				"value of %d which is out of range", coin.Amount)
		}
		lastSatoshiIn := totalSatoshiIn
		totalSatoshiIn += coin.Amount
		if totalSatoshiIn < lastSatoshiIn || totalSatoshiIn > btcutil.MaxSatoshi {
			return 0, errors.Wrapf(ruleerrors.ErrBadTxOutValue, "total value of all "+
				"transaction inputs is %d which is higher than max allowed value of %d",
				totalSatoshiIn, int64(btcutil.MaxSatoshi))
		}
	}

	// The output values were range checked by the sanity checks, so the
	// sum cannot overflow.
	var totalSatoshiOut int64
	for _, txOut := range tx.MsgTx().TxOut {
		totalSatoshiOut += txOut.Value
	}

	// Ensure the transaction does not spend more than its inputs.
	if totalSatoshiIn < totalSatoshiOut {
		return 0, errors.Wrapf(ruleerrors.ErrSpendTooHigh, "total value of all transaction "+
			"inputs for transaction %s is %d which is less than the amount spent of %d",
			tx.Hash(), totalSatoshiIn, totalSatoshiOut)
	}

	return totalSatoshiIn - totalSatoshiOut, nil
}

// checkSequenceLock enforces the BIP68 relative lock times of tx.
func checkSequenceLock(tx *btcutil.Tx, height int32, parent model.ChainContext,
	pastMedianTime time.Time, spentCoins []*model.Coin) error {

	sequenceLock, err := calcSequenceLock(tx, parent, spentCoins)
	if err != nil {
		return err
	}
	if !blockchain.SequenceLockActive(sequenceLock, height, pastMedianTime) {
		return errors.Wrapf(ruleerrors.ErrSequenceLockNotMet, "transaction %s has input "+
			"sequence locks that are not met", tx.Hash())
	}
	return nil
}

// calcSequenceLock computes the relative lock-times for tx, which is
// included in the block after parent.
func calcSequenceLock(tx *btcutil.Tx, parent model.ChainContext,
	spentCoins []*model.Coin) (*blockchain.SequenceLock, error) {

	// A value of -1 for each relative lock type represents a relative time
	// lock value that will allow a transaction to be included in a block
	// at any given height or time.
	sequenceLock := &blockchain.SequenceLock{Seconds: -1, BlockHeight: -1}

	msgTx := tx.MsgTx()
	if msgTx.Version < 2 {
		return sequenceLock, nil
	}

	for txInIndex, txIn := range msgTx.TxIn {
		inputHeight := spentCoins[txInIndex].Height
		sequenceNum := txIn.Sequence
		relativeLock := int64(sequenceNum & wire.SequenceLockTimeMask)

		switch {
		// Relative time locks are disabled for this input, so we can
		// skip any further calculation.
		case sequenceNum&wire.SequenceLockTimeDisabled == wire.SequenceLockTimeDisabled:
			continue
		case sequenceNum&wire.SequenceLockTimeIsSeconds == wire.SequenceLockTimeIsSeconds:
			// The lock counts from the median time of the block
			// before the one which included the spent output.
			prevInputHeight := inputHeight - 1
			if prevInputHeight < 0 {
				prevInputHeight = 0
			}
			ancestor := parent.AncestorContext(prevInputHeight)
			if ancestor == nil {
				return nil, errors.Errorf("no ancestor at height %d for input %d of "+
					"transaction %s", prevInputHeight, txInIndex, tx.Hash())
			}
			medianTime := ancestor.CalcPastMedianTime()

			// Time based relative locks have a granularity of
			// 512 seconds. One is subtracted to keep the
			// original lock time semantics.
			timeLockSeconds := (relativeLock << wire.SequenceLockTimeGranularity) - 1
			timeLock := medianTime.Unix() + timeLockSeconds
			if timeLock > sequenceLock.Seconds {
				sequenceLock.Seconds = timeLock
			}
		default:
			blockHeight := inputHeight + int32(relativeLock-1)
			if blockHeight > sequenceLock.BlockHeight {
				sequenceLock.BlockHeight = blockHeight
			}
		}
	}

	return sequenceLock, nil
}

// sigOpCost returns the weighted signature operation cost of tx. Witness
// operations weigh a quarter of legacy and P2SH ones.
func sigOpCost(tx *btcutil.Tx, spentCoins []*model.Coin, flags scriptverify.Flags) int {
	cost := blockchain.CountSigOps(tx) * blockchain.WitnessScaleFactor
	if spentCoins == nil {
		return cost
	}

	for txInIndex, txIn := range tx.MsgTx().TxIn {
		pkScript := spentCoins[txInIndex].PkScript
		if flags&scriptverify.FlagP2SH != 0 && txscript.IsPayToScriptHash(pkScript) {
			cost += txscript.GetPreciseSigOpCount(txIn.SignatureScript, pkScript, true) *
				blockchain.WitnessScaleFactor
		}
		if flags&scriptverify.FlagWitness != 0 {
			cost += txscript.GetWitnessSigOpCount(txIn.SignatureScript, pkScript, txIn.Witness)
		}
	}
	return cost
}

func scriptChecks(tx *btcutil.Tx, spentCoins []*model.Coin, flags scriptverify.Flags) []*scriptverify.ScriptCheck {
	msgTx := tx.MsgTx()
	spentOutputs := make([]*wire.TxOut, len(spentCoins))
	for i, coin := range spentCoins {
		spentOutputs[i] = coin.TxOut()
	}
	txData := scriptverify.NewPrecomputedTxData(msgTx, spentOutputs)

	checks := make([]*scriptverify.ScriptCheck, len(msgTx.TxIn))
	for i := range msgTx.TxIn {
		checks[i] = &scriptverify.ScriptCheck{
			Tx:           msgTx,
			TxHash:       *tx.Hash(),
			InputIndex:   i,
			ScriptPubKey: spentCoins[i].PkScript,
			Amount:       spentCoins[i].Amount,
			Flags:        flags,
			TxData:       txData,
		}
	}
	return checks
}

func (v *blockValidator) checkCoinbaseValue(coinbase *btcutil.Tx, height int32, totalFees int64) error {
	var totalSatoshiOut int64
	for _, txOut := range coinbase.MsgTx().TxOut {
		totalSatoshiOut += txOut.Value
	}
	expectedSatoshiOut := blockchain.CalcBlockSubsidy(height, &v.params.Params) + totalFees
	if totalSatoshiOut > expectedSatoshiOut {
		return errors.Wrapf(ruleerrors.ErrBadCoinbaseValue, "coinbase transaction for block "+
			"pays %d which is more than expected value of %d",
			totalSatoshiOut, expectedSatoshiOut)
	}
	return nil
}
