package ruleerrors

import (
	"fmt"

	"github.com/blockkernel/blockkernel/domain/consensus/model/externalapi"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// These constants are used to identify a specific RuleError.
var (
	// ErrKnownInvalid indicates the block was already judged invalid.
	ErrKnownInvalid = newRuleError("ErrKnownInvalid", externalapi.BlockCachedInvalid)

	// ErrMissingPrev indicates the block's parent is not in the chain
	// index.
	ErrMissingPrev = newRuleError("ErrMissingPrev", externalapi.BlockMissingPrev)

	// ErrInvalidAncestorBlock indicates that an ancestor of this block has
	// already failed validation.
	ErrInvalidAncestorBlock = newRuleError("ErrInvalidAncestorBlock", externalapi.BlockInvalidPrev)

	// ErrInvalidPoW indicates the block hash does not meet its claimed
	// target.
	ErrInvalidPoW = newRuleError("ErrInvalidPoW", externalapi.BlockInvalidHeader)

	// ErrUnexpectedDifficulty indicates the header bits are out of range or
	// differ from what the difficulty rules require.
	ErrUnexpectedDifficulty = newRuleError("ErrUnexpectedDifficulty", externalapi.BlockInvalidHeader)

	// ErrBlockVersionTooOld indicates the block version is below what an
	// active buried deployment requires.
	ErrBlockVersionTooOld = newRuleError("ErrBlockVersionTooOld", externalapi.BlockInvalidHeader)

	// ErrTimeTooOld indicates the timestamp is not after the median time
	// of the previous blocks.
	ErrTimeTooOld = newRuleError("ErrTimeTooOld", externalapi.BlockInvalidHeader)

	// ErrTimewarpAttack indicates the first block of a difficulty period
	// moves time back too far from its parent.
	ErrTimewarpAttack = newRuleError("ErrTimewarpAttack", externalapi.BlockInvalidHeader)

	// ErrTimeTooMuchInTheFuture indicates that the block timestamp is too
	// much in the future.
	ErrTimeTooMuchInTheFuture = newRuleError("ErrTimeTooMuchInTheFuture", externalapi.BlockTimeFuture)

	// ErrBadMerkleRoot indicates the calculated merkle root does not match
	// the header.
	ErrBadMerkleRoot = newRuleError("ErrBadMerkleRoot", externalapi.BlockMutated)

	// ErrDuplicateTx indicates a block contains the same transaction
	// twice, which makes the merkle root ambiguous.
	ErrDuplicateTx = newRuleError("ErrDuplicateTx", externalapi.BlockMutated)

	// ErrBadWitnessCommitment indicates the coinbase witness commitment is
	// missing or wrong.
	ErrBadWitnessCommitment = newRuleError("ErrBadWitnessCommitment", externalapi.BlockMutated)

	// ErrUnexpectedWitness indicates witness data in a block that cannot
	// commit to it.
	ErrUnexpectedWitness = newRuleError("ErrUnexpectedWitness", externalapi.BlockMutated)

	// ErrNoTransactions indicates the block does not have a least one
	// transaction. A valid block must have at least the coinbase
	// transaction.
	ErrNoTransactions = newRuleError("ErrNoTransactions", externalapi.BlockConsensus)

	// ErrBlockTooBig indicates the serialized block or its weight exceeds
	// the limit.
	ErrBlockTooBig = newRuleError("ErrBlockTooBig", externalapi.BlockConsensus)

	// ErrFirstTxNotCoinbase indicates the first transaction in a block
	// is not a coinbase transaction.
	ErrFirstTxNotCoinbase = newRuleError("ErrFirstTxNotCoinbase", externalapi.BlockConsensus)

	// ErrMultipleCoinbases indicates a block contains more than one
	// coinbase transaction.
	ErrMultipleCoinbases = newRuleError("ErrMultipleCoinbases", externalapi.BlockConsensus)

	// ErrBadCoinbaseHeight indicates the coinbase does not start with the
	// block height.
	ErrBadCoinbaseHeight = newRuleError("ErrBadCoinbaseHeight", externalapi.BlockConsensus)

	// ErrBadCoinbaseValue indicates the coinbase pays more than the
	// subsidy plus fees.
	ErrBadCoinbaseValue = newRuleError("ErrBadCoinbaseValue", externalapi.BlockConsensus)

	// ErrBadTransaction indicates a transaction failed context-free
	// sanity checks.
	ErrBadTransaction = newRuleError("ErrBadTransaction", externalapi.BlockConsensus)

	// ErrTooManySigOps indicates the block's signature operation cost
	// exceeds the limit.
	ErrTooManySigOps = newRuleError("ErrTooManySigOps", externalapi.BlockConsensus)

	// ErrUnfinalizedTx indicates a transaction has not been finalized.
	// A valid block may only contain finalized transactions.
	ErrUnfinalizedTx = newRuleError("ErrUnfinalizedTx", externalapi.BlockConsensus)

	// ErrSequenceLockNotMet indicates a transaction's relative lock time
	// has not passed.
	ErrSequenceLockNotMet = newRuleError("ErrSequenceLockNotMet", externalapi.BlockConsensus)

	// ErrOverwriteTx indicates a transaction would overwrite an unspent
	// output of an earlier transaction with the same id.
	ErrOverwriteTx = newRuleError("ErrOverwriteTx", externalapi.BlockConsensus)

	// ErrDoubleSpendInSameBlock indicates a transaction spends an output
	// that an earlier transaction of the same block already spent.
	ErrDoubleSpendInSameBlock = newRuleError("ErrDoubleSpendInSameBlock", externalapi.BlockConsensus)

	// ErrImmatureSpend indicates a transaction is attempting to spend a
	// coinbase that has not yet reached the required maturity.
	ErrImmatureSpend = newRuleError("ErrImmatureSpend", externalapi.BlockConsensus)

	// ErrBadTxOutValue indicates an output or input value is out of range.
	ErrBadTxOutValue = newRuleError("ErrBadTxOutValue", externalapi.BlockConsensus)

	// ErrSpendTooHigh indicates a transaction is attempting to spend more
	// value than the sum of all of its inputs.
	ErrSpendTooHigh = newRuleError("ErrSpendTooHigh", externalapi.BlockConsensus)

	// ErrScriptValidation indicates an input script failed to verify.
	ErrScriptValidation = newRuleError("ErrScriptValidation", externalapi.BlockConsensus)
)

// RuleError identifies a rule violation. It is used to indicate that
// processing of a block failed due to one of the many validation rules. The
// caller can use errors.As to determine if a failure was specifically due to
// a rule violation, and Result to learn how it is classified.
type RuleError struct {
	message string
	result  externalapi.BlockValidationResult
	inner   error
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	if e.inner != nil {
		return e.message + ": " + e.inner.Error()
	}
	return e.message
}

// Result returns the validation result this rule violation maps to.
func (e RuleError) Result() externalapi.BlockValidationResult {
	return e.result
}

// Unwrap satisfies the errors.Unwrap interface
func (e RuleError) Unwrap() error {
	return e.inner
}

// Cause satisfies the github.com/pkg/errors.Cause interface
func (e RuleError) Cause() error {
	return e.inner
}

func newRuleError(message string, result externalapi.BlockValidationResult) RuleError {
	return RuleError{message: message, result: result, inner: nil}
}

// ErrMissingTxOut indicates a transaction output referenced by an input
// either does not exist or has already been spent.
type ErrMissingTxOut struct {
	MissingOutpoints []wire.OutPoint
}

func (e ErrMissingTxOut) Error() string {
	return fmt.Sprintf("missing the following outpoint: %v", e.MissingOutpoints)
}

// NewErrMissingTxOut Creates a new ErrMissingTxOut error wrapped in a RuleError
func NewErrMissingTxOut(missingOutpoints []wire.OutPoint) error {
	return errors.WithStack(RuleError{
		message: "ErrMissingTxOut",
		result:  externalapi.BlockConsensus,
		inner:   ErrMissingTxOut{missingOutpoints},
	})
}

// IsRuleError returns whether err is, or wraps, a RuleError.
func IsRuleError(err error) bool {
	var ruleErr RuleError
	return errors.As(err, &ruleErr)
}

// ResultOf returns the validation result of err, or BlockResultUnset when err
// is not a rule violation.
func ResultOf(err error) externalapi.BlockValidationResult {
	var ruleErr RuleError
	if !errors.As(err, &ruleErr) {
		return externalapi.BlockResultUnset
	}
	return ruleErr.result
}

// ValidationState converts the outcome of a validation into the verdict
// reported to observers. Errors that are not rule violations are internal
// errors.
func ValidationState(err error) *externalapi.BlockValidationState {
	if err == nil {
		return &externalapi.BlockValidationState{Mode: externalapi.ModeValid}
	}
	var ruleErr RuleError
	if !errors.As(err, &ruleErr) {
		return &externalapi.BlockValidationState{
			Mode:   externalapi.ModeInternalError,
			Result: externalapi.BlockResultUnset,
			Reason: err.Error(),
		}
	}
	return &externalapi.BlockValidationState{
		Mode:   externalapi.ModeInvalid,
		Result: ruleErr.result,
		Reason: err.Error(),
	}
}
