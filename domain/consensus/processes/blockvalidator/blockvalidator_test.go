package blockvalidator_test

import (
	"context"
	"testing"
	"time"

	"github.com/blockkernel/blockkernel/domain/chainparams"
	"github.com/blockkernel/blockkernel/domain/consensus/datastructures/blockindex"
	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/blockkernel/blockkernel/domain/consensus/processes/blockvalidator"
	"github.com/blockkernel/blockkernel/domain/consensus/ruleerrors"
	"github.com/blockkernel/blockkernel/domain/consensus/utils/scriptverify"
	"github.com/blockkernel/blockkernel/domain/consensus/utils/testutils"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

type testChain struct {
	params *chainparams.Params
	index  *blockindex.Index
	tip    *blockindex.Node
}

func newTestChain(t *testing.T) *testChain {
	params := &chainparams.RegressionNetParams
	index := blockindex.New(params)
	genesis, err := index.AddNode(&params.GenesisBlock.Header, nil)
	if err != nil {
		t.Fatalf("AddNode(genesis): %s", err)
	}
	return &testChain{params: params, index: index, tip: genesis}
}

// nextBlock builds a solved block on top of the chain tip.
func (c *testChain) nextBlock(fees int64, transactions ...*wire.MsgTx) *wire.MsgBlock {
	tipHash := c.tip.Hash()
	return testutils.BuildBlock(c.params, &tipHash, c.tip.Height()+1,
		c.tip.Timestamp().Add(10*time.Minute), fees, transactions...)
}

func (c *testChain) extend(t *testing.T, block *wire.MsgBlock) {
	node, err := c.index.AddNode(&block.Header, c.tip)
	if err != nil {
		t.Fatalf("AddNode: %s", err)
	}
	c.tip = node
}

func newValidator(params *chainparams.Params, now time.Time) model.BlockValidator {
	return blockvalidator.New(params, func() time.Time { return now },
		scriptverify.NewCheckQueue(2, txscript.NewSigCache(100)))
}

func expectRuleError(t *testing.T, name string, err error, expected error) {
	t.Helper()
	if expected == nil {
		if err != nil {
			t.Fatalf("%s: unexpected error: %+v", name, err)
		}
		return
	}
	if !errors.Is(err, expected) {
		t.Fatalf("%s: expected error %s but got %+v", name, expected, err)
	}
}

func TestCheckBlockHeaderSanity(t *testing.T) {
	chain := newTestChain(t)
	block := chain.nextBlock(0)
	now := block.Header.Timestamp
	validator := newValidator(chain.params, now)

	err := validator.CheckBlockHeaderSanity(&block.Header)
	expectRuleError(t, "valid header", err, nil)

	future := block.Header
	future.Timestamp = now.Add(2*time.Hour + time.Second)
	solved := &wire.MsgBlock{Header: future, Transactions: block.Transactions}
	testutils.SolveBlock(solved)
	err = validator.CheckBlockHeaderSanity(&solved.Header)
	expectRuleError(t, "future timestamp", err, ruleerrors.ErrTimeTooMuchInTheFuture)

	atLimit := block.Header
	atLimit.Timestamp = now.Add(2 * time.Hour)
	solved = &wire.MsgBlock{Header: atLimit, Transactions: block.Transactions}
	testutils.SolveBlock(solved)
	err = validator.CheckBlockHeaderSanity(&solved.Header)
	expectRuleError(t, "timestamp at the limit", err, nil)

	tooEasy := block.Header
	tooEasy.Bits = 0x2100ffff
	err = validator.CheckBlockHeaderSanity(&tooEasy)
	expectRuleError(t, "target above the pow limit", err, ruleerrors.ErrUnexpectedDifficulty)

	zeroTarget := block.Header
	zeroTarget.Bits = 0
	err = validator.CheckBlockHeaderSanity(&zeroTarget)
	expectRuleError(t, "zero target", err, ruleerrors.ErrUnexpectedDifficulty)

	// Find a nonce that misses a harder target.
	unsolved := block.Header
	unsolved.Bits = 0x1d00ffff
	target := blockchain.CompactToBig(unsolved.Bits)
	for {
		hash := unsolved.BlockHash()
		if blockchain.HashToBig(&hash).Cmp(target) > 0 {
			break
		}
		unsolved.Nonce++
	}
	err = validator.CheckBlockHeaderSanity(&unsolved)
	expectRuleError(t, "hash above target", err, ruleerrors.ErrInvalidPoW)
}

func TestCheckBlockSanity(t *testing.T) {
	chain := newTestChain(t)
	pkScript, _ := testutils.OpTrueScript()
	spend := testutils.SpendTx(1000, pkScript, wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0})

	tests := []struct {
		name     string
		mutate   func(block *wire.MsgBlock)
		expected error
	}{
		{
			name:     "valid",
			mutate:   func(block *wire.MsgBlock) {},
			expected: nil,
		},
		{
			name: "no transactions",
			mutate: func(block *wire.MsgBlock) {
				block.Transactions = nil
			},
			expected: ruleerrors.ErrNoTransactions,
		},
		{
			name: "bad merkle root",
			mutate: func(block *wire.MsgBlock) {
				block.Header.MerkleRoot = chainhash.Hash{0xff}
			},
			expected: ruleerrors.ErrBadMerkleRoot,
		},
		{
			name: "duplicate transaction",
			mutate: func(block *wire.MsgBlock) {
				block.Transactions = append(block.Transactions, spend)
				testutils.SolveBlock(block)
			},
			expected: ruleerrors.ErrDuplicateTx,
		},
		{
			name: "first transaction is not a coinbase",
			mutate: func(block *wire.MsgBlock) {
				block.Transactions = block.Transactions[1:]
				testutils.SolveBlock(block)
			},
			expected: ruleerrors.ErrFirstTxNotCoinbase,
		},
		{
			name: "second coinbase",
			mutate: func(block *wire.MsgBlock) {
				block.Transactions = append(block.Transactions, testutils.CoinbaseTx(1, 1, pkScript, 7))
				testutils.SolveBlock(block)
			},
			expected: ruleerrors.ErrMultipleCoinbases,
		},
		{
			name: "transaction without outputs",
			mutate: func(block *wire.MsgBlock) {
				empty := testutils.SpendTx(0, nil, wire.OutPoint{Hash: chainhash.Hash{2}})
				empty.TxOut = nil
				block.Transactions = append(block.Transactions, empty)
				testutils.SolveBlock(block)
			},
			expected: ruleerrors.ErrBadTransaction,
		},
		{
			name: "too many legacy signature operations",
			mutate: func(block *wire.MsgBlock) {
				script := make([]byte, 20001)
				for i := range script {
					script[i] = txscript.OP_CHECKSIG
				}
				heavy := testutils.SpendTx(1000, script, wire.OutPoint{Hash: chainhash.Hash{3}})
				block.Transactions = append(block.Transactions, heavy)
				testutils.SolveBlock(block)
			},
			expected: ruleerrors.ErrTooManySigOps,
		},
	}

	for _, test := range tests {
		block := chain.nextBlock(0, spend)
		test.mutate(block)
		validator := newValidator(chain.params, block.Header.Timestamp)
		err := validator.CheckBlockSanity(btcutil.NewBlock(block))
		expectRuleError(t, test.name, err, test.expected)
	}
}

func TestCheckBlockHeaderContext(t *testing.T) {
	chain := newTestChain(t)
	for i := 0; i < 11; i++ {
		chain.extend(t, chain.nextBlock(0))
	}
	validator := newValidator(chain.params, time.Now())

	block := chain.nextBlock(0)
	err := validator.CheckBlockHeaderContext(&block.Header, chain.tip)
	expectRuleError(t, "valid header", err, nil)

	atMedianTime := block.Header
	atMedianTime.Timestamp = chain.tip.CalcPastMedianTime()
	err = validator.CheckBlockHeaderContext(&atMedianTime, chain.tip)
	expectRuleError(t, "timestamp equal to the median time", err, ruleerrors.ErrTimeTooOld)

	afterMedianTime := block.Header
	afterMedianTime.Timestamp = chain.tip.CalcPastMedianTime().Add(time.Second)
	err = validator.CheckBlockHeaderContext(&afterMedianTime, chain.tip)
	expectRuleError(t, "timestamp after the median time", err, nil)

	wrongBits := block.Header
	wrongBits.Bits = 0x1d00ffff
	err = validator.CheckBlockHeaderContext(&wrongBits, chain.tip)
	expectRuleError(t, "unexpected bits", err, ruleerrors.ErrUnexpectedDifficulty)

	for version := int32(1); version < 4; version++ {
		oldVersion := block.Header
		oldVersion.Version = version
		err = validator.CheckBlockHeaderContext(&oldVersion, chain.tip)
		expectRuleError(t, "outdated version", err, ruleerrors.ErrBlockVersionTooOld)
	}
}

func TestCheckBlockContext(t *testing.T) {
	chain := newTestChain(t)
	chain.extend(t, chain.nextBlock(0))
	validator := newValidator(chain.params, time.Now())
	pkScript, _ := testutils.OpTrueScript()

	block := chain.nextBlock(0)
	err := validator.CheckBlockContext(btcutil.NewBlock(block), chain.tip)
	expectRuleError(t, "valid block", err, nil)

	wrongHeight := chain.nextBlock(0)
	wrongHeight.Transactions[0] = testutils.CoinbaseTx(chain.tip.Height()+2, 1, pkScript, 0)
	testutils.SolveBlock(wrongHeight)
	err = validator.CheckBlockContext(btcutil.NewBlock(wrongHeight), chain.tip)
	expectRuleError(t, "wrong coinbase height", err, ruleerrors.ErrBadCoinbaseHeight)

	locked := testutils.SpendTx(1000, pkScript, wire.OutPoint{Hash: chainhash.Hash{1}})
	locked.LockTime = uint32(chain.tip.Height() + 2)
	locked.TxIn[0].Sequence = 0
	unfinalized := chain.nextBlock(0, locked)
	err = validator.CheckBlockContext(btcutil.NewBlock(unfinalized), chain.tip)
	expectRuleError(t, "unfinalized transaction", err, ruleerrors.ErrUnfinalizedTx)

	locked.LockTime = uint32(chain.tip.Height() + 1)
	atHeight := chain.nextBlock(0, locked)
	err = validator.CheckBlockContext(btcutil.NewBlock(atHeight), chain.tip)
	expectRuleError(t, "lock time at the block height", err, ruleerrors.ErrUnfinalizedTx)

	locked.LockTime = uint32(chain.tip.Height())
	finalized := chain.nextBlock(0, locked)
	err = validator.CheckBlockContext(btcutil.NewBlock(finalized), chain.tip)
	expectRuleError(t, "lock time below the block height", err, nil)

	witnessTx := testutils.SpendTx(1000, pkScript, wire.OutPoint{Hash: chainhash.Hash{2}})
	witnessTx.TxIn[0].Witness = wire.TxWitness{{0x01}}
	committed := chain.nextBlock(0, witnessTx)
	err = validator.CheckBlockContext(btcutil.NewBlock(committed), chain.tip)
	expectRuleError(t, "witness with commitment", err, nil)

	uncommitted := chain.nextBlock(0, witnessTx)
	coinbase := uncommitted.Transactions[0]
	coinbase.TxOut = coinbase.TxOut[:len(coinbase.TxOut)-1]
	testutils.SolveBlock(uncommitted)
	err = validator.CheckBlockContext(btcutil.NewBlock(uncommitted), chain.tip)
	expectRuleError(t, "witness without commitment", err, ruleerrors.ErrBadWitnessCommitment)
}

func TestCheckConnectBlock(t *testing.T) {
	chain := newTestChain(t)
	chain.extend(t, chain.nextBlock(0))
	validator := newValidator(chain.params, time.Now())
	pkScript, _ := testutils.OpTrueScript()
	fundingOutpoint := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}

	spentCoin := &model.Coin{Amount: 10000, PkScript: pkScript, Height: 1, IsCoinbase: false}
	undoFor := func(coins ...*model.Coin) *model.BlockUndo {
		return &model.BlockUndo{TxUndos: []*model.TxUndo{{SpentCoins: coins}}}
	}

	tests := []struct {
		name     string
		tx       func() *wire.MsgTx
		fees     int64
		coin     *model.Coin
		expected error
	}{
		{
			name:     "valid spend",
			tx:       func() *wire.MsgTx { return testutils.SpendTx(9000, pkScript, fundingOutpoint) },
			fees:     1000,
			coin:     spentCoin,
			expected: nil,
		},
		{
			name:     "coinbase claims more than subsidy and fees",
			tx:       func() *wire.MsgTx { return testutils.SpendTx(9000, pkScript, fundingOutpoint) },
			fees:     1001,
			coin:     spentCoin,
			expected: ruleerrors.ErrBadCoinbaseValue,
		},
		{
			name:     "spends more than its inputs",
			tx:       func() *wire.MsgTx { return testutils.SpendTx(10001, pkScript, fundingOutpoint) },
			coin:     spentCoin,
			expected: ruleerrors.ErrSpendTooHigh,
		},
		{
			name: "immature coinbase",
			tx:   func() *wire.MsgTx { return testutils.SpendTx(9000, pkScript, fundingOutpoint) },
			fees: 1000,
			coin: &model.Coin{Amount: 10000, PkScript: pkScript, Height: 1,
				IsCoinbase: true},
			expected: ruleerrors.ErrImmatureSpend,
		},
		{
			name: "relative lock not met",
			tx: func() *wire.MsgTx {
				tx := testutils.SpendTx(9000, pkScript, fundingOutpoint)
				tx.TxIn[0].Sequence = 10
				return tx
			},
			fees:     1000,
			coin:     spentCoin,
			expected: ruleerrors.ErrSequenceLockNotMet,
		},
		{
			name: "relative lock met",
			tx: func() *wire.MsgTx {
				tx := testutils.SpendTx(9000, pkScript, fundingOutpoint)
				tx.TxIn[0].Sequence = 1
				return tx
			},
			fees:     1000,
			coin:     spentCoin,
			expected: nil,
		},
		{
			name: "failing script",
			tx: func() *wire.MsgTx {
				tx := testutils.SpendTx(9000, pkScript, fundingOutpoint)
				tx.TxIn[0].SignatureScript = []byte{txscript.OP_DATA_1, txscript.OP_2}
				return tx
			},
			fees:     1000,
			coin:     spentCoin,
			expected: ruleerrors.ErrScriptValidation,
		},
	}

	for _, test := range tests {
		block := chain.nextBlock(test.fees, test.tx())
		err := validator.CheckConnectBlock(context.Background(), btcutil.NewBlock(block),
			chain.tip, undoFor(test.coin))
		expectRuleError(t, test.name, err, test.expected)
	}

	block := chain.nextBlock(0, testutils.SpendTx(9000, pkScript, fundingOutpoint))
	err := validator.CheckConnectBlock(context.Background(), btcutil.NewBlock(block),
		chain.tip, &model.BlockUndo{})
	if err == nil || ruleerrors.IsRuleError(err) {
		t.Fatalf("mismatched undo data should be an internal error, got %v", err)
	}
}

func TestScriptFlagsForHeight(t *testing.T) {
	params := &chainparams.MainnetParams
	base := scriptverify.FlagP2SH | scriptverify.FlagWitness | scriptverify.FlagTaproot

	tests := []struct {
		height   int32
		expected scriptverify.Flags
	}{
		{0, base},
		{363725, base | scriptverify.FlagDERSig},
		{388381, base | scriptverify.FlagDERSig | scriptverify.FlagCheckLockTimeVerify},
		{481824, base | scriptverify.FlagDERSig | scriptverify.FlagCheckLockTimeVerify |
			scriptverify.FlagCheckSequenceVerify | scriptverify.FlagNullDummy},
	}
	for _, test := range tests {
		flags := blockvalidator.ScriptFlagsForHeight(params, test.height)
		if flags != test.expected {
			t.Errorf("height %d: expected %s, got %s", test.height, test.expected, flags)
		}
	}

	exception, _ := chainhash.NewHashFromStr("00000000000002dc756eebf4f49723ed8d30cc28a5f108eb94b1ba88ac4f9c22")
	if flags := blockvalidator.BlockScriptFlags(params, exception, 170060); flags != scriptverify.FlagsNone {
		t.Fatalf("expected no flags for the BIP16 exception block, got %s", flags)
	}
	if flags := blockvalidator.BlockScriptFlags(&chainparams.RegressionNetParams, exception, 1); flags == scriptverify.FlagsNone {
		t.Fatalf("exceptions must only apply on their own network")
	}
}
