package blockvalidator

import (
	"time"

	"github.com/blockkernel/blockkernel/domain/chainparams"
	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/blockkernel/blockkernel/domain/consensus/utils/scriptverify"
)

// maxFutureBlockTime is how far ahead of the local clock a block timestamp
// may be.
const maxFutureBlockTime = 2 * time.Hour

// blockValidator exposes a set of validation classes, after which
// it's possible to determine whether either a block is valid
type blockValidator struct {
	params     *chainparams.Params
	clock      func() time.Time
	checkQueue *scriptverify.CheckQueue
}

// New instantiates a new BlockValidator. clock supplies the current time
// for the future timestamp rule and defaults to time.Now.
func New(params *chainparams.Params, clock func() time.Time,
	checkQueue *scriptverify.CheckQueue) model.BlockValidator {

	if clock == nil {
		clock = time.Now
	}
	if checkQueue == nil {
		checkQueue = scriptverify.NewCheckQueue(0, nil)
	}
	return &blockValidator{
		params:     params,
		clock:      clock,
		checkQueue: checkQueue,
	}
}
