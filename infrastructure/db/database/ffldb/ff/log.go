package ff

import "github.com/blockkernel/blockkernel/infrastructure/logger"

var log, _ = logger.Get(logger.SubsystemTags.STOR)
