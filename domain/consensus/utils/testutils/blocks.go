package testutils

import (
	"time"

	"github.com/blockkernel/blockkernel/domain/chainparams"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

var witnessCommitmentHeader = []byte{0xaa, 0x21, 0xa9, 0xed}

func hash160(data []byte) []byte {
	return btcutil.Hash160(data)
}

// CoinbaseTx returns a coinbase for a block at height paying value to
// pkScript. extraNonce distinguishes coinbases at the same height.
func CoinbaseTx(height int32, value int64, pkScript []byte, extraNonce int64) *wire.MsgTx {
	sigScript, err := txscript.NewScriptBuilder().
		AddInt64(int64(height)).
		AddInt64(extraNonce).
		Script()
	if err != nil {
		panic(errors.Wrapf(err, "Couldn't build coinbase script. This should never happen"))
	}

	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex),
		SignatureScript:  sigScript,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(value, pkScript))
	return tx
}

// SpendTx returns a version 2 transaction spending outpoints locked by
// OpTrueScript and paying value to pkScript.
func SpendTx(value int64, pkScript []byte, outpoints ...wire.OutPoint) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	for i := range outpoints {
		tx.AddTxIn(wire.NewTxIn(&outpoints[i], OpTrueSignatureScript(), nil))
	}
	tx.AddTxOut(wire.NewTxOut(value, pkScript))
	return tx
}

// BuildBlock assembles a block on top of parentHash at height, paying the
// full subsidy plus fees to OpTrueScript, and solves its proof of work
// against the network's minimum difficulty. A witness commitment is added
// when any transaction carries witness data.
func BuildBlock(params *chainparams.Params, parentHash *chainhash.Hash, height int32,
	timestamp time.Time, fees int64, transactions ...*wire.MsgTx) *wire.MsgBlock {

	pkScript, _ := OpTrueScript()
	coinbase := CoinbaseTx(height, blockchain.CalcBlockSubsidy(height, &params.Params)+fees, pkScript, 0)

	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   4,
			PrevBlock: *parentHash,
			Timestamp: timestamp,
			Bits:      params.PowLimitBits,
		},
		Transactions: append([]*wire.MsgTx{coinbase}, transactions...),
	}
	AddWitnessCommitment(block)
	SolveBlock(block)
	return block
}

// AddWitnessCommitment adds the witness commitment to the coinbase of block
// when one of its transactions carries witness data.
func AddWitnessCommitment(block *wire.MsgBlock) {
	hasWitness := false
	for _, tx := range block.Transactions {
		if tx.HasWitness() {
			hasWitness = true
			break
		}
	}
	if !hasWitness {
		return
	}

	var witnessNonce [blockchain.CoinbaseWitnessDataLen]byte
	coinbase := block.Transactions[0]
	coinbase.TxIn[0].Witness = wire.TxWitness{witnessNonce[:]}

	txs := make([]*btcutil.Tx, len(block.Transactions))
	for i, tx := range block.Transactions {
		txs[i] = btcutil.NewTx(tx)
	}
	witnessMerkleRoot := blockchain.CalcMerkleRoot(txs, true)

	var preimage [chainhash.HashSize * 2]byte
	copy(preimage[:chainhash.HashSize], witnessMerkleRoot[:])
	copy(preimage[chainhash.HashSize:], witnessNonce[:])
	commitment := chainhash.DoubleHashB(preimage[:])

	commitmentScript := append([]byte{txscript.OP_RETURN, txscript.OP_DATA_36}, witnessCommitmentHeader...)
	commitmentScript = append(commitmentScript, commitment...)
	coinbase.AddTxOut(wire.NewTxOut(0, commitmentScript))
}

// SolveBlock recomputes the merkle root of block and grinds its nonce until
// the header hash meets its target.
func SolveBlock(block *wire.MsgBlock) {
	txs := make([]*btcutil.Tx, len(block.Transactions))
	for i, tx := range block.Transactions {
		txs[i] = btcutil.NewTx(tx)
	}
	block.Header.MerkleRoot = blockchain.CalcMerkleRoot(txs, false)

	target := blockchain.CompactToBig(block.Header.Bits)
	for nonce := uint32(0); ; nonce++ {
		block.Header.Nonce = nonce
		hash := block.Header.BlockHash()
		if blockchain.HashToBig(&hash).Cmp(target) <= 0 {
			return
		}
		if nonce == ^uint32(0) {
			panic("no nonce solves the block")
		}
	}
}
