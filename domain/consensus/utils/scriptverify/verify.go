package scriptverify

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// Status explains why Verify refused to run the script engine. It stays
// StatusOK when the engine ran and the script failed, and for the
// preconditions that have no dedicated status.
type Status int

// Verification statuses.
const (
	StatusOK Status = iota
	StatusInvalidFlagsCombination
	StatusSpentOutputsRequired
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusInvalidFlagsCombination:
		return "ERROR_INVALID_FLAGS_COMBINATION"
	case StatusSpentOutputsRequired:
		return "ERROR_SPENT_OUTPUTS_REQUIRED"
	}
	return "UNKNOWN"
}

// Verify returns whether input inputIndex of tx correctly spends an output
// locked by scriptPubKey with the given amount under flags. spentOutputs is
// either empty or lists the outputs spent by every input of tx; it is
// required when flags include FlagTaproot.
func Verify(scriptPubKey []byte, amount int64, tx *wire.MsgTx, inputIndex uint,
	spentOutputs []*wire.TxOut, flags Flags) (bool, Status) {

	if !flags.Known() {
		return false, StatusOK
	}
	if !flags.validCombination() {
		return false, StatusInvalidFlagsCombination
	}
	if flags&FlagTaproot != 0 && len(spentOutputs) == 0 {
		return false, StatusSpentOutputsRequired
	}
	if len(spentOutputs) != 0 && len(spentOutputs) != len(tx.TxIn) {
		return false, StatusOK
	}
	if inputIndex >= uint(len(tx.TxIn)) {
		return false, StatusOK
	}

	var txData *PrecomputedTxData
	if flags&FlagTaproot != 0 {
		txData = NewPrecomputedTxData(tx, spentOutputs)
	} else {
		txData = NewPrecomputedTxData(tx, nil)
	}

	err := VerifyInput(scriptPubKey, amount, tx, int(inputIndex), flags, txData, nil)
	if err != nil {
		log.Debugf("Input %d of %s failed script verification: %s", inputIndex, tx.TxHash(), err)
		return false, StatusOK
	}
	return true, StatusOK
}

// VerifyInput runs the script engine for one input. sigCache may be nil.
func VerifyInput(scriptPubKey []byte, amount int64, tx *wire.MsgTx, inputIndex int,
	flags Flags, txData *PrecomputedTxData, sigCache *txscript.SigCache) error {

	if inputIndex < 0 || inputIndex >= len(tx.TxIn) {
		return errors.Errorf("input index %d out of range for a transaction with %d inputs",
			inputIndex, len(tx.TxIn))
	}
	if txData == nil {
		txData = NewPrecomputedTxData(tx, nil)
	}
	vm, err := txscript.NewEngine(scriptPubKey, tx, inputIndex, flags.ScriptFlags(), sigCache,
		txData.SigHashes, amount, txData.fetcherFor(scriptPubKey, amount))
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(vm.Execute())
}
