package blockvalidator

import (
	"testing"
	"time"

	"github.com/blockkernel/blockkernel/domain/chainparams"
	"github.com/blockkernel/blockkernel/domain/consensus/datastructures/blockindex"
	"github.com/blockkernel/blockkernel/domain/consensus/ruleerrors"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// buildHeaderChain indexes length headers on top of the genesis block of
// params, spaced by spacing and carrying bits.
func buildHeaderChain(t *testing.T, params *chainparams.Params, length int,
	spacing time.Duration, bits uint32) *blockindex.Node {

	index := blockindex.New(params)
	tip, err := index.AddNode(&params.GenesisBlock.Header, nil)
	if err != nil {
		t.Fatalf("AddNode(genesis): %s", err)
	}
	for i := 0; i < length; i++ {
		header := &wire.BlockHeader{
			Version:   4,
			PrevBlock: tip.Hash(),
			Timestamp: tip.Timestamp().Add(spacing),
			Bits:      bits,
		}
		tip, err = index.AddNode(header, tip)
		if err != nil {
			t.Fatalf("AddNode: %s", err)
		}
	}
	return tip
}

func TestRequiredDifficultyRetarget(t *testing.T) {
	params := &chainparams.MainnetParams
	v := New(params, nil, nil).(*blockValidator)

	tests := []struct {
		name     string
		spacing  time.Duration
		expected uint32
	}{
		{"blocks four times too fast are clamped", time.Minute, 0x1c3fffc0},
		{"blocks far too slow are capped at the pow limit", 100 * time.Minute, 0x1d00ffff},
	}
	for _, test := range tests {
		tip := buildHeaderChain(t, params, 2015, test.spacing, 0x1d00ffff)
		bits := v.requiredDifficulty(tip, tip.Timestamp().Add(test.spacing))
		if bits != test.expected {
			t.Errorf("%s: expected bits %08x, got %08x", test.name, test.expected, bits)
		}
	}

	// Between retargets the bits of the parent carry over.
	tip := buildHeaderChain(t, params, 100, time.Minute, 0x1d00ffff)
	if bits := v.requiredDifficulty(tip, tip.Timestamp().Add(time.Hour)); bits != 0x1d00ffff {
		t.Fatalf("expected the parent bits, got %08x", bits)
	}
	if bits := v.requiredDifficulty(nil, time.Now()); bits != params.PowLimitBits {
		t.Fatalf("expected the pow limit for a block without parent, got %08x", bits)
	}
}

func TestRequiredDifficultyMinDifficultyBlocks(t *testing.T) {
	params := &chainparams.TestnetParams
	v := New(params, nil, nil).(*blockValidator)

	tip := buildHeaderChain(t, params, 10, 10*time.Minute, 0x1c3fffc0)
	late := tip.Timestamp().Add(params.MinDiffReductionTime + time.Second)
	if bits := v.requiredDifficulty(tip, late); bits != params.PowLimitBits {
		t.Fatalf("a late block may use the minimum difficulty, got %08x", bits)
	}
	onTime := tip.Timestamp().Add(params.MinDiffReductionTime)
	if bits := v.requiredDifficulty(tip, onTime); bits != 0x1c3fffc0 {
		t.Fatalf("an on-time block needs the last real difficulty, got %08x", bits)
	}
}

func TestTimewarpProtection(t *testing.T) {
	params := &chainparams.Testnet4Params
	v := New(params, nil, nil).(*blockValidator)
	tip := buildHeaderChain(t, params, 2015, 10*time.Minute, params.GenesisBlock.Header.Bits)

	headerAt := func(timestamp time.Time) *wire.BlockHeader {
		return &wire.BlockHeader{
			Version:   4,
			PrevBlock: tip.Hash(),
			Timestamp: timestamp,
			Bits:      v.requiredDifficulty(tip, timestamp),
		}
	}

	err := v.CheckBlockHeaderContext(headerAt(tip.Timestamp().Add(-maxTimewarp-time.Second)), tip)
	if !errors.Is(err, ruleerrors.ErrTimewarpAttack) {
		t.Fatalf("expected ErrTimewarpAttack, got %+v", err)
	}
	err = v.CheckBlockHeaderContext(headerAt(tip.Timestamp().Add(-maxTimewarp)), tip)
	if err != nil {
		t.Fatalf("a block exactly at the timewarp limit is valid: %+v", err)
	}

	// The rule only binds on networks enforcing BIP94.
	testnet := New(&chainparams.TestnetParams, nil, nil).(*blockValidator)
	testnetTip := buildHeaderChain(t, &chainparams.TestnetParams, 2015, 10*time.Minute,
		chainparams.TestnetParams.GenesisBlock.Header.Bits)
	timestamp := testnetTip.Timestamp().Add(-maxTimewarp - time.Second)
	err = testnet.CheckBlockHeaderContext(&wire.BlockHeader{
		Version:   4,
		PrevBlock: testnetTip.Hash(),
		Timestamp: timestamp,
		Bits:      testnet.requiredDifficulty(testnetTip, timestamp),
	}, testnetTip)
	if err != nil {
		t.Fatalf("unexpected error without BIP94: %+v", err)
	}
}
