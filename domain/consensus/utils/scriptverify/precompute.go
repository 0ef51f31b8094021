package scriptverify

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// PrecomputedTxData holds the signature hash midstates of a transaction
// (BIP143 and, when the spent outputs are known, BIP341) so they are
// computed once for all of its inputs.
type PrecomputedTxData struct {
	SigHashes *txscript.TxSigHashes

	// Fetcher returns the outputs spent by the transaction. It is nil
	// unless the data was built from the full list of spent outputs.
	Fetcher txscript.PrevOutputFetcher
}

// NewPrecomputedTxData computes the hash midstates of tx. spentOutputs is
// either empty or holds one output per input, in input order.
func NewPrecomputedTxData(tx *wire.MsgTx, spentOutputs []*wire.TxOut) *PrecomputedTxData {
	if len(spentOutputs) == 0 {
		return &PrecomputedTxData{
			SigHashes: txscript.NewTxSigHashes(tx, txscript.NewCannedPrevOutputFetcher(nil, 0)),
		}
	}

	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(spentOutputs))
	for i, txIn := range tx.TxIn {
		prevOuts[txIn.PreviousOutPoint] = spentOutputs[i]
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	return &PrecomputedTxData{
		SigHashes: txscript.NewTxSigHashes(tx, fetcher),
		Fetcher:   fetcher,
	}
}

func (d *PrecomputedTxData) fetcherFor(scriptPubKey []byte, amount int64) txscript.PrevOutputFetcher {
	if d.Fetcher != nil {
		return d.Fetcher
	}
	return txscript.NewCannedPrevOutputFetcher(scriptPubKey, amount)
}
