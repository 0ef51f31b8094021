package scriptverify

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// MaxWorkers bounds the number of script verification goroutines.
const MaxWorkers = 15

// ScriptCheck is the verification of a single transaction input.
type ScriptCheck struct {
	Tx           *wire.MsgTx
	TxHash       chainhash.Hash
	InputIndex   int
	ScriptPubKey []byte
	Amount       int64
	Flags        Flags
	TxData       *PrecomputedTxData
}

// ScriptError describes the first input of a batch that failed to verify.
type ScriptError struct {
	TxHash     chainhash.Hash
	InputIndex int
	Err        error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("input %d of transaction %s: %s", e.InputIndex, e.TxHash, e.Err)
}

// Unwrap returns the script engine error.
func (e *ScriptError) Unwrap() error {
	return e.Err
}

// CheckQueue verifies batches of script checks on a bounded pool of
// goroutines.
type CheckQueue struct {
	workers  int
	sigCache *txscript.SigCache
}

// NewCheckQueue returns a CheckQueue running up to workers checks at once.
// Zero workers runs every check on the calling goroutine. workers is clamped
// to [0, MaxWorkers].
func NewCheckQueue(workers int, sigCache *txscript.SigCache) *CheckQueue {
	if workers < 0 {
		workers = 0
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	return &CheckQueue{workers: workers, sigCache: sigCache}
}

// Workers returns the size of the pool.
func (q *CheckQueue) Workers() int {
	return q.workers
}

// Run verifies every check and returns a *ScriptError for a failing one.
// Once a check fails the remaining ones are skipped. ctx cancels checks that
// have not started yet.
func (q *CheckQueue) Run(ctx context.Context, checks []*ScriptCheck) error {
	if q.workers == 0 || len(checks) <= 1 {
		for _, check := range checks {
			if err := ctx.Err(); err != nil {
				return errors.WithStack(err)
			}
			if err := q.verify(check); err != nil {
				return err
			}
		}
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(q.workers)
	for _, check := range checks {
		check := check
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return errors.WithStack(err)
			}
			return q.verify(check)
		})
	}
	return group.Wait()
}

func (q *CheckQueue) verify(check *ScriptCheck) error {
	err := VerifyInput(check.ScriptPubKey, check.Amount, check.Tx, check.InputIndex,
		check.Flags, check.TxData, q.sigCache)
	if err != nil {
		return &ScriptError{TxHash: check.TxHash, InputIndex: check.InputIndex, Err: err}
	}
	return nil
}
