package coinsview

import (
	"testing"

	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/blockkernel/blockkernel/domain/consensus/ruleerrors"
	"github.com/blockkernel/blockkernel/infrastructure/db/database/ldb"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

var anyoneCanSpend = []byte{0x51}

func coinbaseTx(tag byte, outputs int) *wire.MsgTx {
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex), []byte{tag, 0x01}, nil))
	for i := 0; i < outputs; i++ {
		tx.AddTxOut(wire.NewTxOut(int64(1000*(i+1)), anyoneCanSpend))
	}
	return tx
}

func spendTx(outputs int, prevOuts ...wire.OutPoint) *wire.MsgTx {
	tx := wire.NewMsgTx(1)
	for i := range prevOuts {
		tx.AddTxIn(wire.NewTxIn(&prevOuts[i], nil, nil))
	}
	for i := 0; i < outputs; i++ {
		tx.AddTxOut(wire.NewTxOut(500, anyoneCanSpend))
	}
	return tx
}

func makeBlock(prevHash chainhash.Hash, txs ...*wire.MsgTx) *btcutil.Block {
	block := wire.NewMsgBlock(&wire.BlockHeader{Version: 4, PrevBlock: prevHash})
	for _, tx := range txs {
		block.AddTransaction(tx)
	}
	return btcutil.NewBlock(block)
}

func outpoint(tx *wire.MsgTx, index uint32) wire.OutPoint {
	return wire.OutPoint{Hash: tx.TxHash(), Index: index}
}

func newTestCache(t *testing.T) (*Cache, *DB, func()) {
	db, err := ldb.NewMemLevelDB()
	if err != nil {
		t.Fatalf("NewMemLevelDB: %s", err)
	}
	coinsDB := NewDB(db)
	cache, err := NewCache(coinsDB)
	if err != nil {
		t.Fatalf("NewCache: %s", err)
	}
	return cache, coinsDB, func() { db.Close() }
}

// connect connects block through a View and commits it.
func connect(t *testing.T, cache *Cache, block *btcutil.Block, height int32) *model.BlockUndo {
	view := NewView(cache)
	undo, err := ConnectBlock(view, block, height, false)
	if err != nil {
		t.Fatalf("ConnectBlock: %s", err)
	}
	if err := view.Commit(); err != nil {
		t.Fatalf("Commit: %s", err)
	}
	return undo
}

func TestConnectDisconnectRestoresCommitment(t *testing.T) {
	cache, _, teardown := newTestCache(t)
	defer teardown()

	emptyCommitment := cache.Commitment()
	coinbase1 := coinbaseTx(1, 2)
	block1 := makeBlock(chainhash.Hash{}, coinbase1)
	connect(t, cache, block1, 1)
	afterFirst := cache.Commitment()
	if afterFirst == emptyCommitment {
		t.Fatalf("adding coins did not change the commitment")
	}

	coinbase2 := coinbaseTx(2, 1)
	spend := spendTx(2, outpoint(coinbase1, 0), outpoint(coinbase1, 1))
	chained := spendTx(1, outpoint(spend, 1))
	block2 := makeBlock(*block1.Hash(), coinbase2, spend, chained)
	undo := connect(t, cache, block2, 2)

	if len(undo.TxUndos) != 2 || len(undo.TxUndos[0].SpentCoins) != 2 || len(undo.TxUndos[1].SpentCoins) != 1 {
		t.Fatalf("unexpected undo shape")
	}
	if coin := undo.TxUndos[0].SpentCoins[1]; coin.Amount != 2000 || !coin.IsCoinbase || coin.Height != 1 {
		t.Fatalf("unexpected spent coin %+v", coin)
	}
	if have, _ := cache.HaveCoin(outpoint(coinbase1, 0)); have {
		t.Fatalf("spent coin still present")
	}
	if have, _ := cache.HaveCoin(outpoint(spend, 1)); have {
		t.Fatalf("coin spent in the same block still present")
	}
	if best, _ := cache.BestBlock(); best != *block2.Hash() {
		t.Fatalf("unexpected best block %s", best)
	}

	view := NewView(cache)
	if err := DisconnectBlock(view, block2, 2, undo); err != nil {
		t.Fatalf("DisconnectBlock: %s", err)
	}
	if err := view.Commit(); err != nil {
		t.Fatalf("Commit: %s", err)
	}
	if cache.Commitment() != afterFirst {
		t.Fatalf("connect then disconnect did not restore the commitment")
	}
	coin, err := cache.GetCoin(outpoint(coinbase1, 1))
	if err != nil || coin == nil || coin.Amount != 2000 {
		t.Fatalf("coin not restored: %+v, %v", coin, err)
	}
	if have, _ := cache.HaveCoin(outpoint(coinbase2, 0)); have {
		t.Fatalf("coinbase output of the disconnected block still present")
	}
	if best, _ := cache.BestBlock(); best != *block1.Hash() {
		t.Fatalf("unexpected best block after disconnect %s", best)
	}
}

func TestConnectBlockFailuresLeaveBaseUntouched(t *testing.T) {
	cache, _, teardown := newTestCache(t)
	defer teardown()

	coinbase1 := coinbaseTx(1, 1)
	block1 := makeBlock(chainhash.Hash{}, coinbase1)
	connect(t, cache, block1, 1)
	commitment := cache.Commitment()

	tests := []struct {
		name     string
		block    *btcutil.Block
		expected error
	}{
		{
			name: "double spend in the same block",
			block: makeBlock(*block1.Hash(), coinbaseTx(2, 1),
				spendTx(1, outpoint(coinbase1, 0)), spendTx(2, outpoint(coinbase1, 0))),
			expected: ruleerrors.ErrDoubleSpendInSameBlock,
		},
		{
			name:     "duplicate coinbase",
			block:    makeBlock(*block1.Hash(), coinbaseTx(1, 1)),
			expected: ruleerrors.ErrOverwriteTx,
		},
	}
	for _, test := range tests {
		view := NewView(cache)
		_, err := ConnectBlock(view, test.block, 2, false)
		if !errors.Is(err, test.expected) {
			t.Fatalf("%s: expected %v, got %v", test.name, test.expected, err)
		}
	}

	missing := makeBlock(*block1.Hash(), coinbaseTx(3, 1), spendTx(1, wire.OutPoint{Index: 9}))
	_, err := ConnectBlock(NewView(cache), missing, 2, false)
	var missingErr ruleerrors.ErrMissingTxOut
	if !errors.As(err, &missingErr) || len(missingErr.MissingOutpoints) != 1 {
		t.Fatalf("expected ErrMissingTxOut, got %v", err)
	}

	if cache.Commitment() != commitment {
		t.Fatalf("a failed connection changed the base view")
	}
	if have, _ := cache.HaveCoin(outpoint(coinbase1, 0)); !have {
		t.Fatalf("a failed connection spent a base coin")
	}

	// Overwriting is tolerated where explicitly allowed.
	view := NewView(cache)
	if _, err := ConnectBlock(view, makeBlock(*block1.Hash(), coinbaseTx(1, 1)), 2, true); err != nil {
		t.Fatalf("ConnectBlock with overwrite allowed: %s", err)
	}
	if err := view.Commit(); err != nil {
		t.Fatalf("Commit: %s", err)
	}
	coin, _ := cache.GetCoin(outpoint(coinbase1, 0))
	if coin == nil || coin.Height != 2 {
		t.Fatalf("expected the overwritten coin at height 2, got %+v", coin)
	}
}

func TestFlushPersistsCoins(t *testing.T) {
	cache, coinsDB, teardown := newTestCache(t)
	defer teardown()

	coinbase1 := coinbaseTx(1, 3)
	block1 := makeBlock(chainhash.Hash{}, coinbase1)
	connect(t, cache, block1, 1)
	if err := cache.Flush(); err != nil {
		t.Fatalf("Flush: %s", err)
	}

	block2 := makeBlock(*block1.Hash(), coinbaseTx(2, 1), spendTx(1, outpoint(coinbase1, 2)))
	connect(t, cache, block2, 2)
	if cache.DirtyCount() != 3 {
		t.Fatalf("expected 3 dirty entries, got %d", cache.DirtyCount())
	}
	if cache.DynamicMemoryUsage() <= 0 {
		t.Fatalf("expected a positive memory usage")
	}
	if err := cache.Flush(); err != nil {
		t.Fatalf("Flush: %s", err)
	}
	if cache.DynamicMemoryUsage() != 0 {
		t.Fatalf("flush should empty the cache")
	}

	recomputed, err := coinsDB.ComputeCommitment()
	if err != nil {
		t.Fatalf("ComputeCommitment: %s", err)
	}
	if recomputed != cache.Commitment() {
		t.Fatalf("incremental commitment %s differs from recomputed %s", cache.Commitment(), recomputed)
	}

	reopened, err := NewCache(coinsDB)
	if err != nil {
		t.Fatalf("NewCache: %s", err)
	}
	if reopened.Commitment() != cache.Commitment() {
		t.Fatalf("commitment not persisted")
	}
	if best, _ := reopened.BestBlock(); best != *block2.Hash() {
		t.Fatalf("best block not persisted")
	}
	if have, _ := reopened.HaveCoin(outpoint(coinbase1, 2)); have {
		t.Fatalf("spent coin persisted")
	}
	coin, err := reopened.GetCoin(outpoint(coinbase1, 1))
	if err != nil || coin == nil || coin.Amount != 2000 {
		t.Fatalf("unexpected persisted coin %+v, %v", coin, err)
	}
}

func TestFreshCoinsNeverReachTheDatabase(t *testing.T) {
	cache, coinsDB, teardown := newTestCache(t)
	defer teardown()

	coin := &model.Coin{Amount: 1, PkScript: anyoneCanSpend, Height: 1}
	op := wire.OutPoint{Index: 1}
	if err := cache.AddCoin(op, coin, false); err != nil {
		t.Fatalf("AddCoin: %s", err)
	}
	if err := cache.AddCoin(op, coin, false); err == nil {
		t.Fatalf("expected an error when overwriting without permission")
	}
	spent, err := cache.SpendCoin(op)
	if err != nil || !spent.Equal(coin) {
		t.Fatalf("SpendCoin returned %+v, %v", spent, err)
	}
	if cache.DirtyCount() != 0 {
		t.Fatalf("a coin created and spent in the cache should leave no trace")
	}
	if spent, err := cache.SpendCoin(op); spent != nil || err != nil {
		t.Fatalf("spending twice should return nothing")
	}
	if err := cache.Flush(); err != nil {
		t.Fatalf("Flush: %s", err)
	}
	if have, _ := coinsDB.HaveCoin(op); have {
		t.Fatalf("fresh coin written to the database")
	}
}

func TestIsUnspendable(t *testing.T) {
	if !IsUnspendable([]byte{0x6a, 0x01, 0x02}) {
		t.Fatalf("OP_RETURN output should be unspendable")
	}
	if IsUnspendable(anyoneCanSpend) || IsUnspendable(nil) {
		t.Fatalf("unexpected unspendable script")
	}
	if !IsUnspendable(make([]byte, 10001)) {
		t.Fatalf("oversized script should be unspendable")
	}
}
