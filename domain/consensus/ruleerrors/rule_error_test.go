package ruleerrors

import (
	"testing"

	"github.com/blockkernel/blockkernel/domain/consensus/model/externalapi"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

func TestNewErrMissingTxOut(t *testing.T) {
	outpoint := wire.OutPoint{Hash: chainhash.Hash{255, 255, 255}, Index: 5}
	outer := NewErrMissingTxOut([]wire.OutPoint{outpoint})
	expectedOuterErr := "ErrMissingTxOut: missing the following outpoint: [" + outpoint.String() + "]"

	inner := &ErrMissingTxOut{}
	if !errors.As(outer, inner) {
		t.Fatal("TestNewErrMissingTxOut: Outer should contain ErrMissingTxOut in it")
	}
	if len(inner.MissingOutpoints) != 1 || inner.MissingOutpoints[0].Index != 5 {
		t.Fatalf("TestNewErrMissingTxOut: unexpected outpoints %v", inner.MissingOutpoints)
	}

	rule := &RuleError{}
	if !errors.As(outer, rule) {
		t.Fatal("TestNewErrMissingTxOut: Outer should contain RuleError in it")
	}
	if rule.message != "ErrMissingTxOut" {
		t.Fatalf("TestNewErrMissingTxOut: Expected message = 'ErrMissingTxOut', found: '%s'", rule.message)
	}
	if outer.Error() != expectedOuterErr {
		t.Fatalf("TestNewErrMissingTxOut: Expected %s. found: %s", expectedOuterErr, outer.Error())
	}
	if ResultOf(outer) != externalapi.BlockConsensus {
		t.Fatalf("TestNewErrMissingTxOut: unexpected result %s", ResultOf(outer))
	}
}

func TestValidationState(t *testing.T) {
	tests := []struct {
		err       error
		mode      externalapi.ValidationMode
		result    externalapi.BlockValidationResult
		isRuleErr bool
	}{
		{nil, externalapi.ModeValid, externalapi.BlockResultUnset, false},
		{errors.Wrapf(ErrBadMerkleRoot, "block %d", 7), externalapi.ModeInvalid, externalapi.BlockMutated, true},
		{errors.Wrap(ErrTimeTooMuchInTheFuture, "later"), externalapi.ModeInvalid, externalapi.BlockTimeFuture, true},
		{ErrMissingPrev, externalapi.ModeInvalid, externalapi.BlockMissingPrev, true},
		{errors.New("disk on fire"), externalapi.ModeInternalError, externalapi.BlockResultUnset, false},
	}
	for i, test := range tests {
		state := ValidationState(test.err)
		if state.Mode != test.mode || state.Result != test.result {
			t.Errorf("test %d: got %s/%s, want %s/%s", i, state.Mode, state.Result, test.mode, test.result)
		}
		if IsRuleError(test.err) != test.isRuleErr {
			t.Errorf("test %d: IsRuleError mismatch", i)
		}
	}
}
