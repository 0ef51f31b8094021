package coinsview

import (
	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/blockkernel/blockkernel/domain/consensus/ruleerrors"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// IsUnspendable returns whether pkScript can never be spent, in which case
// the output never enters the coin set.
func IsUnspendable(pkScript []byte) bool {
	return (len(pkScript) > 0 && pkScript[0] == txscript.OP_RETURN) ||
		len(pkScript) > txscript.MaxScriptSize
}

// ConnectBlock spends the inputs and adds the outputs of every transaction of
// block to view, and returns the coins it spent. It fails with a rule error
// when an input refers to a missing coin, when two inputs of the block spend
// the same coin, or when an output would replace an unspent coin and
// overwriteAllowed is false. On failure view may be partially updated, so it
// should be a View that is then dropped.
func ConnectBlock(view model.CoinsView, block *btcutil.Block, height int32, overwriteAllowed bool) (*model.BlockUndo, error) {
	transactions := block.Transactions()
	undo := &model.BlockUndo{TxUndos: make([]*model.TxUndo, 0, len(transactions)-1)}
	spentInBlock := make(map[wire.OutPoint]struct{})

	for txIndex, tx := range transactions {
		msgTx := tx.MsgTx()
		isCoinbase := txIndex == 0

		if !isCoinbase {
			txUndo := &model.TxUndo{SpentCoins: make([]*model.Coin, 0, len(msgTx.TxIn))}
			var missing []wire.OutPoint
			for _, txIn := range msgTx.TxIn {
				coin, err := view.SpendCoin(txIn.PreviousOutPoint)
				if err != nil {
					return nil, err
				}
				if coin == nil {
					if _, ok := spentInBlock[txIn.PreviousOutPoint]; ok {
						return nil, errors.Wrapf(ruleerrors.ErrDoubleSpendInSameBlock,
							"output %s spent twice in block %s", txIn.PreviousOutPoint, block.Hash())
					}
					missing = append(missing, txIn.PreviousOutPoint)
					continue
				}
				spentInBlock[txIn.PreviousOutPoint] = struct{}{}
				txUndo.SpentCoins = append(txUndo.SpentCoins, coin)
			}
			if len(missing) > 0 {
				return nil, ruleerrors.NewErrMissingTxOut(missing)
			}
			undo.TxUndos = append(undo.TxUndos, txUndo)
		}

		txHash := tx.Hash()
		for outputIndex, txOut := range msgTx.TxOut {
			if IsUnspendable(txOut.PkScript) {
				continue
			}
			outpoint := wire.OutPoint{Hash: *txHash, Index: uint32(outputIndex)}
			if !overwriteAllowed {
				exists, err := view.HaveCoin(outpoint)
				if err != nil {
					return nil, err
				}
				if exists {
					return nil, errors.Wrapf(ruleerrors.ErrOverwriteTx,
						"transaction %s overwrites unspent output %s", txHash, outpoint)
				}
			}
			err := view.AddCoin(outpoint, model.NewCoin(txOut, height, isCoinbase), overwriteAllowed)
			if err != nil {
				return nil, err
			}
		}
	}

	view.SetBestBlock(*block.Hash())
	return undo, nil
}

// DisconnectBlock reverses ConnectBlock using the undo data it returned.
// Inconsistencies between the view and the block are logged and tolerated,
// as long as the undo data matches the block's shape.
func DisconnectBlock(view model.CoinsView, block *btcutil.Block, height int32, undo *model.BlockUndo) error {
	transactions := block.Transactions()
	if len(undo.TxUndos)+1 != len(transactions) {
		return errors.Errorf("undo data of block %s has %d entries for %d transactions",
			block.Hash(), len(undo.TxUndos), len(transactions))
	}

	clean := true
	for txIndex := len(transactions) - 1; txIndex >= 0; txIndex-- {
		tx := transactions[txIndex]
		msgTx := tx.MsgTx()
		isCoinbase := txIndex == 0

		for outputIndex, txOut := range msgTx.TxOut {
			if IsUnspendable(txOut.PkScript) {
				continue
			}
			outpoint := wire.OutPoint{Hash: *tx.Hash(), Index: uint32(outputIndex)}
			coin, err := view.SpendCoin(outpoint)
			if err != nil {
				return err
			}
			if coin == nil || coin.Height != height || coin.IsCoinbase != isCoinbase ||
				!coin.Equal(model.NewCoin(txOut, height, isCoinbase)) {
				clean = false
			}
		}

		if isCoinbase {
			continue
		}
		txUndo := undo.TxUndos[txIndex-1]
		if len(txUndo.SpentCoins) != len(msgTx.TxIn) {
			return errors.Errorf("undo data of transaction %s has %d coins for %d inputs",
				tx.Hash(), len(txUndo.SpentCoins), len(msgTx.TxIn))
		}
		for inputIndex := len(msgTx.TxIn) - 1; inputIndex >= 0; inputIndex-- {
			outpoint := msgTx.TxIn[inputIndex].PreviousOutPoint
			exists, err := view.HaveCoin(outpoint)
			if err != nil {
				return err
			}
			if exists {
				clean = false
			}
			err = view.AddCoin(outpoint, txUndo.SpentCoins[inputIndex], exists)
			if err != nil {
				return err
			}
		}
	}

	if !clean {
		log.Warnf("Disconnecting block %s at height %d left the coin set unclean", block.Hash(), height)
	}
	view.SetBestBlock(block.MsgBlock().Header.PrevBlock)
	return nil
}
