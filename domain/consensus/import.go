package consensus

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/blockkernel/blockkernel/domain/consensus/model/externalapi"
	"github.com/blockkernel/blockkernel/domain/consensus/ruleerrors"
	"github.com/blockkernel/blockkernel/domain/consensus/utils/serialization"
	"github.com/blockkernel/blockkernel/infrastructure/logger"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// reindexLogInterval is how many blocks are reindexed between progress
// lines.
const reindexLogInterval = 10000

type queuedBlock struct {
	block    *btcutil.Block
	location *model.Location
}

// orphanPool holds imported blocks whose parent was not seen yet, keyed by
// the parent hash.
type orphanPool struct {
	byParent map[chainhash.Hash][]*queuedBlock
	count    int
}

func newOrphanPool() *orphanPool {
	return &orphanPool{byParent: make(map[chainhash.Hash][]*queuedBlock)}
}

func (p *orphanPool) add(parent chainhash.Hash, block *queuedBlock) {
	p.byParent[parent] = append(p.byParent[parent], block)
	p.count++
}

func (p *orphanPool) take(parent chainhash.Hash) []*queuedBlock {
	children := p.byParent[parent]
	delete(p.byParent, parent)
	p.count -= len(children)
	return children
}

// ImportBlocks processes every block stored in the given files, which hold
// records of network magic, little-endian size and serialized block as
// written by the reference node's block files. Blocks are processed in file
// order; a block whose parent is not known yet waits until its parent is
// processed. With no paths, the manager's own block files are rescanned
// instead. State is flushed at the end.
func (m *ChainstateManager) ImportBlocks(paths []string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	err := m.checkUsable()
	if err != nil {
		return err
	}

	onEnd := logger.LogAndMeasureExecutionTime(benchLog, "ImportBlocks")
	defer onEnd()

	if len(paths) == 0 {
		previousState := m.syncState
		m.syncState = externalapi.SyncStateInitReindex
		err = m.reindex()
		if err == nil {
			err = m.activateBestChain()
		}
		m.syncState = previousState
		if err != nil {
			return m.poison(err)
		}
		return m.flushAfterImport()
	}

	orphans := newOrphanPool()
	var failedPaths []string
	for i, path := range paths {
		if m.interrupted() {
			break
		}
		m.notifyProgress(fmt.Sprintf("Importing blocks from %s", filepath.Base(path)),
			i*100/len(paths), false)
		err := m.importFile(path, orphans)
		if m.poisonErr != nil {
			return err
		}
		if err != nil {
			log.Warnf("Failed to import blocks from %s: %s", path, err)
			failedPaths = append(failedPaths, path)
		}
	}
	if orphans.count > 0 {
		log.Infof("%d imported blocks have no known parent", orphans.count)
	}
	m.notifyProgress("Importing blocks", 100, false)

	err = m.flushAfterImport()
	if err != nil {
		return err
	}
	if len(failedPaths) > 0 {
		return errors.Errorf("failed to import blocks from %v", failedPaths)
	}
	return nil
}

func (m *ChainstateManager) flushAfterImport() error {
	err := m.flush()
	if err != nil {
		m.notifyFlushError(err)
	}
	return err
}

func (m *ChainstateManager) importFile(path string, orphans *orphanPool) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer file.Close()

	log.Infof("Importing blocks from %s", path)
	imported := 0
	err = readBlockRecords(file, m.params.MessageStart(), func(msgBlock *wire.MsgBlock) (bool, error) {
		if m.interrupted() {
			return false, nil
		}
		imported++
		return true, m.importBlock(&queuedBlock{block: btcutil.NewBlock(msgBlock)}, orphans, true)
	})
	log.Infof("Read %d blocks from %s", imported, path)
	return err
}

// importBlock processes queued and then every waiting descendant of it.
// With activate unset the blocks are only accepted into the index, which is
// how the block files are reindexed. Rule violations are logged and
// skipped; only fatal errors are returned.
func (m *ChainstateManager) importBlock(queued *queuedBlock, orphans *orphanPool, activate bool) error {
	queue := []*queuedBlock{queued}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		hash := next.block.Hash()
		header := &next.block.MsgBlock().Header

		switch {
		case hash.IsEqual(m.params.GenesisHash):
			if m.blockIndex.Genesis() == nil && next.location != nil {
				err := m.addGenesis(*next.location)
				if err != nil {
					return err
				}
			}

		case m.blockIndex.LookupNode(&header.PrevBlock) == nil:
			orphans.add(header.PrevBlock, next)
			continue

		default:
			var err error
			if activate {
				_, _, err = m.processBlock(next.block)
			} else {
				_, _, err = m.acceptBlock(next.block, next.location)
			}
			if err != nil && !ruleerrors.IsRuleError(err) {
				return err
			}
			if err != nil {
				log.Debugf("Skipping imported block %s: %s", hash, err)
			}
		}
		queue = append(queue, orphans.take(*hash)...)
	}
	return nil
}

// reindex accepts every block of the block files into the index without
// rewriting them. Must be called with lock held.
func (m *ChainstateManager) reindex() error {
	onEnd := logger.LogAndMeasureExecutionTime(benchLog, "reindex")
	defer onEnd()

	reindexLog.Infof("Reindexing the block files")
	m.notifyProgress("Reindexing blocks", 0, false)
	orphans := newOrphanPool()
	scanned := 0
	err := m.blockStore.ScanBlocks(func(location model.Location, msgBlock *wire.MsgBlock) (bool, error) {
		if m.interrupted() {
			return false, nil
		}
		scanned++
		if scanned%reindexLogInterval == 0 {
			reindexLog.Infof("Reindexed %d blocks", scanned)
		}
		locationCopy := location
		queued := &queuedBlock{block: btcutil.NewBlock(msgBlock), location: &locationCopy}
		return true, m.importBlock(queued, orphans, false)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to reindex the block files")
	}
	if orphans.count > 0 {
		reindexLog.Warnf("%d blocks in the block files have no known parent", orphans.count)
	}
	reindexLog.Infof("Reindexed %d blocks", scanned)
	m.notifyProgress("Reindexing blocks", 100, false)
	return nil
}

// readBlockRecords calls fn for every block record of r until fn returns
// false. Bytes that do not start a record are skipped, as are records that
// are oversized or do not decode. A truncated final record ends the file.
func readBlockRecords(r io.Reader, magic [4]byte, fn func(block *wire.MsgBlock) (bool, error)) error {
	reader := bufio.NewReader(r)
	var window [4]byte
	filled := 0
	for {
		b, err := reader.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.WithStack(err)
		}
		copy(window[:], window[1:])
		window[3] = b
		if filled < len(window) {
			filled++
		}
		if filled < len(window) || window != magic {
			continue
		}
		filled = 0

		var sizeBytes [4]byte
		_, err = io.ReadFull(reader, sizeBytes[:])
		if err != nil {
			return truncatedRecord(err)
		}
		size := binary.LittleEndian.Uint32(sizeBytes[:])
		if size < wire.MaxBlockHeaderPayload || size > wire.MaxBlockPayload {
			log.Debugf("Skipping block record of invalid size %d", size)
			continue
		}
		serialized := make([]byte, size)
		_, err = io.ReadFull(reader, serialized)
		if err != nil {
			return truncatedRecord(err)
		}

		block, err := serialization.DeserializeBlock(serialized)
		if err != nil {
			log.Warnf("Skipping undecodable block record: %s", err)
			continue
		}
		more, err := fn(block)
		if err != nil || !more {
			return err
		}
	}
}

func truncatedRecord(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		log.Debugf("Ignoring a truncated block record at the end of the file")
		return nil
	}
	return errors.WithStack(err)
}

// WriteBlockRecord writes block in the record format ImportBlocks reads.
func WriteBlockRecord(w io.Writer, magic [4]byte, block *wire.MsgBlock) error {
	serialized, err := serialization.SerializeBlock(block)
	if err != nil {
		return err
	}
	var header [8]byte
	copy(header[:4], magic[:])
	binary.LittleEndian.PutUint32(header[4:], uint32(len(serialized)))
	_, err = w.Write(header[:])
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = w.Write(serialized)
	return errors.WithStack(err)
}
