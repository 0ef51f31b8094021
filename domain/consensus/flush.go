package consensus

import (
	"time"

	"github.com/blockkernel/blockkernel/infrastructure/logger"
)

// flushInterval bounds how long in-memory state may go unflushed.
const flushInterval = time.Hour

// maybeFlush flushes when the coins cache outgrew its budget or the last
// flush is too old. A failure is reported and otherwise tolerated: the
// state stays in memory and the next flush retries.
func (m *ChainstateManager) maybeFlush() {
	usage := m.coins.DynamicMemoryUsage()
	if usage <= int64(m.cfg.CoinsCacheSize()) && time.Since(m.lastFlush) < flushInterval {
		return
	}
	log.Debugf("Flushing with a coins cache of %d bytes", usage)
	err := m.flush()
	if err != nil {
		m.notifyFlushError(err)
	}
}

// flush persists the block files, then the block index, then the coin set.
// The coin set never refers to a block whose index entry or undo data could
// be lost. Must be called with lock held.
func (m *ChainstateManager) flush() error {
	onEnd := logger.LogAndMeasureExecutionTime(benchLog, "flush")
	defer onEnd()

	err := m.blockStore.Sync()
	if err != nil {
		return err
	}

	dbTx, err := m.blockTreeDB.Begin()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()
	err = m.blockIndex.FlushToDB(dbTx)
	if err != nil {
		return err
	}
	err = dbTx.Commit()
	if err != nil {
		return err
	}
	m.blockIndex.ClearDirty()

	err = m.coins.Flush()
	if err != nil {
		return err
	}
	m.lastFlush = time.Now()
	return nil
}
