package consensus

import (
	"reflect"
	"testing"

	"github.com/blockkernel/blockkernel/domain/consensus/model/externalapi"
	"github.com/blockkernel/blockkernel/domain/consensus/ruleerrors"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
)

func TestReorganizeToMostWork(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, rec)
	builder := newChainBuilder()
	processAll(t, m, builder.mine(100)...)
	forkPoint := m.Tip()

	spent := builder.blocks[1]
	spentOutpoint := coinbaseOutpoint(spent)
	spendTx := spend(coinbaseValue(spent)-1000, spentOutpoint)
	createdOutpoint := wire.OutPoint{Hash: spendTx.TxHash(), Index: 0}

	side := builder.fork(100, 1)
	b := builder.extend(1000, spendTx)
	c := builder.extend(0)
	processAll(t, m, b, c)
	assertTip(t, m, c, 102)

	if coin, err := m.GetCoin(spentOutpoint); err != nil || coin != nil {
		t.Fatalf("the spent coinbase should be gone: %v %v", coin, err)
	}
	if coin, err := m.GetCoin(createdOutpoint); err != nil || coin == nil {
		t.Fatalf("the created output should exist: %v", err)
	}
	undo, err := m.ReadBlockUndo(m.BlockIndexByHeight(101))
	if err != nil {
		t.Fatalf("ReadBlockUndo: %+v", err)
	}
	if len(undo.TxUndos) != 1 || len(undo.TxUndos[0].SpentCoins) != 1 {
		t.Fatalf("unexpected undo data %s", spew.Sdump(undo))
	}
	if undo.TxUndos[0].SpentCoins[0].Height != 1 || !undo.TxUndos[0].SpentCoins[0].IsCoinbase {
		t.Fatalf("unexpected spent coin %s", spew.Sdump(undo.TxUndos[0].SpentCoins[0]))
	}

	sideB := side.extend(0)
	sideC := side.extend(0)
	processAll(t, m, sideB, sideC)
	assertTip(t, m, c, 102)

	sideD := side.extend(0)
	processAll(t, m, sideD)
	assertTip(t, m, sideD, 103)

	wantDisconnected := []chainhash.Hash{c.BlockHash(), b.BlockHash()}
	if !reflect.DeepEqual(rec.disconnected, wantDisconnected) {
		t.Fatalf("unexpected disconnections: got %v, want %v", rec.disconnected, wantDisconnected)
	}
	connected := rec.connected[len(rec.connected)-3:]
	wantConnected := []chainhash.Hash{sideB.BlockHash(), sideC.BlockHash(), sideD.BlockHash()}
	if !reflect.DeepEqual(connected, wantConnected) {
		t.Fatalf("unexpected connections: got %v, want %v", connected, wantConnected)
	}

	if coin, err := m.GetCoin(spentOutpoint); err != nil || coin == nil {
		t.Fatalf("the disconnected spend must be undone: %v", err)
	}
	if coin, err := m.GetCoin(createdOutpoint); err != nil || coin != nil {
		t.Fatalf("the output of the disconnected spend must be gone: %v %v", coin, err)
	}

	tip := m.Tip()
	if m.Ancestor(tip, 100) != forkPoint {
		t.Fatalf("the new chain must descend from the fork point")
	}
	sideBHash := sideB.BlockHash()
	if m.Ancestor(tip, 101) != m.BlockIndexByHash(&sideBHash) || m.BlockIndexByHeight(101) != m.Ancestor(tip, 101) {
		t.Fatalf("the active chain must follow the side branch")
	}
	if m.Next(forkPoint) != m.BlockIndexByHeight(101) {
		t.Fatalf("unexpected successor of the fork point")
	}
	bHash := b.BlockHash()
	oldB := m.BlockIndexByHash(&bHash)
	if oldB == nil || m.IsInActiveChain(oldB) {
		t.Fatalf("the old branch must leave the active chain")
	}
	if !m.Status(oldB).KnownValid() {
		t.Fatalf("a disconnected block stays valid")
	}

	for height := int32(1); height <= tip.Height(); height++ {
		node := m.BlockIndexByHeight(height)
		if m.Previous(node) != m.BlockIndexByHeight(height-1) {
			t.Fatalf("broken parent link at height %d", height)
		}
		if node.WorkSum().Cmp(m.Previous(node).WorkSum()) <= 0 {
			t.Fatalf("work does not grow at height %d", height)
		}
	}
}

func TestInvalidBranchKeepsValidPrefix(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, rec)
	builder := newChainBuilder()
	processAll(t, m, builder.mine(2)...)
	oldTip := builder.tip()

	// The side branch overtakes the active chain with its second block,
	// whose coinbase pays more than allowed.
	side := builder.fork(1, 1)
	sideTip := side.extend(0)
	processAll(t, m, sideTip)
	assertTip(t, m, oldTip, 2)

	bad := side.extend(1)
	accepted, isNew, err := m.ProcessBlock(btcutil.NewBlock(bad))
	if accepted || !isNew || ruleerrors.ResultOf(err) != externalapi.BlockConsensus {
		t.Fatalf("a coinbase paying too much must fail to connect: %t %t %v", accepted, isNew, err)
	}

	// The valid part of the branch stays connected since switching back
	// requires strictly more work.
	assertTip(t, m, sideTip, 2)
	wantDisconnected := []chainhash.Hash{oldTip.BlockHash()}
	if !reflect.DeepEqual(rec.disconnected, wantDisconnected) {
		t.Fatalf("unexpected disconnections: got %v, want %v", rec.disconnected, wantDisconnected)
	}
	oldTipHash := oldTip.BlockHash()
	if node := m.BlockIndexByHash(&oldTipHash); m.Status(node).KnownInvalid() {
		t.Fatalf("the disconnected block is still valid")
	}
}

func TestLargeWorkInvalidChainWarning(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, rec)
	builder := newChainBuilder()

	// Store a long branch whose first block fails to connect before
	// activating it.
	invalid := builder.fork(0, 1)
	invalid.extend(1)
	invalid.mine(9)
	m.lock.Lock()
	for _, block := range invalid.blocks[1:] {
		_, _, err := m.acceptBlock(btcutil.NewBlock(block), nil)
		if err != nil {
			m.lock.Unlock()
			t.Fatalf("acceptBlock: %+v", err)
		}
	}
	err := m.activateBestChain()
	m.lock.Unlock()
	if err != nil {
		t.Fatalf("activateBestChain: %+v", err)
	}

	if m.Tip() != m.Genesis() {
		t.Fatalf("the invalid branch must not be activated")
	}
	if len(rec.warningsSet) != 1 || rec.warningsSet[0] != externalapi.WarningLargeWorkInvalidChain {
		t.Fatalf("expected the large work invalid chain warning, got %v", rec.warningsSet)
	}

	// With a tip of height 4 the invalid branch is no longer more than six
	// blocks ahead.
	processAll(t, m, builder.mine(3)...)
	if len(rec.warningsUnset) != 0 {
		t.Fatalf("the warning should persist at height 3")
	}
	processAll(t, m, builder.mine(1)...)
	if len(rec.warningsUnset) != 1 || rec.warningsUnset[0] != externalapi.WarningLargeWorkInvalidChain {
		t.Fatalf("expected the warning to be cleared, got %v", rec.warningsUnset)
	}
	if len(rec.warningsSet) != 1 {
		t.Fatalf("the warning must be raised once, got %v", rec.warningsSet)
	}
}

func TestUnknownRulesWarning(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, rec)
	builder := newChainBuilder()
	builder.version = 0x20000000 | 1<<27

	window := int(testParams.MinerConfirmationWindow)
	processAll(t, m, builder.mine(window-2)...)
	if len(rec.warningsSet) != 0 {
		t.Fatalf("no warning is expected before the end of the window")
	}
	processAll(t, m, builder.mine(1)...)
	if len(rec.warningsSet) != 1 || rec.warningsSet[0] != externalapi.WarningUnknownNewRulesActivated {
		t.Fatalf("expected the unknown rules warning, got %v", rec.warningsSet)
	}

	builder.version = 4
	processAll(t, m, builder.mine(window)...)
	if len(rec.warningsUnset) != 1 || rec.warningsUnset[0] != externalapi.WarningUnknownNewRulesActivated {
		t.Fatalf("expected the warning to be cleared, got %v", rec.warningsUnset)
	}
}
