// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainparams

import (
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const testnet4GenesisMessage = "03/May/2024 000000000000000000001ebd58c244970b3aa9d783bb001011fbe8ea8e98e00e"

// testnet4GenesisCoinbaseTx is the coinbase transaction of the testnet4
// genesis block. Its signature script follows the original genesis layout:
// the difficulty bits, the number 4 and the message.
var testnet4GenesisCoinbaseTx = func() *wire.MsgTx {
	signatureScript := []byte{
		0x04, 0xff, 0xff, 0x00, 0x1d, // push 486604799
		0x01, 0x04, // push 4
		txscript.OP_PUSHDATA1, byte(len(testnet4GenesisMessage)),
	}
	signatureScript = append(signatureScript, testnet4GenesisMessage...)

	pkScript := make([]byte, 0, 35)
	pkScript = append(pkScript, txscript.OP_DATA_33)
	pkScript = append(pkScript, make([]byte, 33)...)
	pkScript = append(pkScript, txscript.OP_CHECKSIG)

	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{}, Index: wire.MaxPrevOutIndex},
		SignatureScript:  signatureScript,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(50*btcutil.SatoshiPerBitcoin, pkScript))
	return tx
}()

var testnet4GenesisMerkleRoot = blockchain.CalcMerkleRoot(
	[]*btcutil.Tx{btcutil.NewTx(testnet4GenesisCoinbaseTx)}, false)

var testnet4GenesisBlock = wire.MsgBlock{
	Header: wire.BlockHeader{
		Version:    1,
		PrevBlock:  chainhash.Hash{},
		MerkleRoot: testnet4GenesisMerkleRoot,
		Timestamp:  time.Unix(1714777860, 0),
		Bits:       0x1d00ffff,
		Nonce:      393743547,
	},
	Transactions: []*wire.MsgTx{testnet4GenesisCoinbaseTx},
}
