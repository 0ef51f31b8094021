package testutils

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/pkg/errors"
)

// OpTrueScript returns a P2SH script paying to an anyone-can-spend redeem
// script. The second return value is that redeem script.
func OpTrueScript() (pkScript []byte, redeemScript []byte) {
	redeemScript = []byte{txscript.OP_TRUE}
	pkScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(hash160(redeemScript)).
		AddOp(txscript.OP_EQUAL).
		Script()
	if err != nil {
		panic(errors.Wrapf(err, "Couldn't build opTrueScript. This should never happen"))
	}
	return pkScript, redeemScript
}

// OpTrueSignatureScript returns the signature script spending an output
// locked by OpTrueScript.
func OpTrueSignatureScript() []byte {
	_, redeemScript := OpTrueScript()
	sigScript, err := txscript.NewScriptBuilder().AddData(redeemScript).Script()
	if err != nil {
		panic(errors.Wrapf(err, "Couldn't build opTrueSignatureScript. This should never happen"))
	}
	return sigScript
}
