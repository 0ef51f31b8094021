package consensus

import (
	"github.com/blockkernel/blockkernel/infrastructure/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.KRNL)
var reindexLog, _ = logger.Get(logger.SubsystemTags.RIDX)
var benchLog, _ = logger.Get(logger.SubsystemTags.BENC)
