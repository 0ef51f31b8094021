package consensus

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/blockkernel/blockkernel/domain/chainparams"
	"github.com/blockkernel/blockkernel/domain/consensus/datastructures/blockindex"
	"github.com/blockkernel/blockkernel/domain/consensus/datastructures/blockstore"
	"github.com/blockkernel/blockkernel/domain/consensus/datastructures/coinsview"
	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/blockkernel/blockkernel/domain/consensus/model/externalapi"
	"github.com/blockkernel/blockkernel/domain/consensus/processes/blockvalidator"
	"github.com/blockkernel/blockkernel/domain/consensus/utils/scriptverify"
	"github.com/blockkernel/blockkernel/infrastructure/config"
	"github.com/blockkernel/blockkernel/infrastructure/db/database"
	"github.com/blockkernel/blockkernel/infrastructure/db/database/ffldb"
	"github.com/blockkernel/blockkernel/infrastructure/db/database/ldb"
	"github.com/blockkernel/blockkernel/infrastructure/logger"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/pkg/errors"
)

const (
	blockTreeCacheMiB  = 8
	chainstateCacheMiB = 16
	sigCacheEntries    = 50000
)

var (
	// ErrPoisoned is returned by every operation once the chain manager
	// hit a fatal error.
	ErrPoisoned = errors.New("the chain manager hit a fatal error and can no longer be used")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("the chain manager is closed")
)

// ChainstateManager owns the block index, the block store and the coin set
// of one chain, and drives them from submitted blocks to an active chain.
//
// Writers (ProcessBlock, ImportBlocks, ForceFlush, Close) are serialized by
// a single lock. Queries share it.
type ChainstateManager struct {
	cfg                 *config.Config
	params              *chainparams.Params
	notifications       externalapi.Notifications
	validationInterface externalapi.ValidationInterface

	ctx    context.Context
	cancel context.CancelFunc

	lock        sync.RWMutex
	blockTreeDB database.StoreDatabase
	coinsDB     *ldb.LevelDB
	blockStore  model.BlockStore
	blockIndex  *blockindex.Index
	chain       *blockindex.ChainView
	coins       *coinsview.Cache
	validator   model.BlockValidator

	// coinsLock serializes cache reads made by concurrent queries. The
	// write path holds lock exclusively and needs no more.
	coinsLock sync.Mutex

	syncState     externalapi.SynchronizationState
	bestHeader    *blockindex.Node
	blockFailures map[*blockindex.Node]error
	warnings      map[externalapi.Warning]bool
	lastFlush     time.Time
	poisonErr     error
	closed        bool
}

// New opens the stores described by cfg, applies the requested wipes,
// loads or rebuilds the block index and activates the best known chain.
// Startup failures are reported through the FatalError notification as well
// as returned.
func New(cfg *config.Config) (*ChainstateManager, error) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &ChainstateManager{
		cfg:                 cfg,
		params:              cfg.Params(),
		notifications:       cfg.Notifications(),
		validationInterface: cfg.ValidationInterface(),
		ctx:                 ctx,
		cancel:              cancel,
		syncState:           externalapi.SyncStateInitDownload,
		blockFailures:       make(map[*blockindex.Node]error),
		warnings:            make(map[externalapi.Warning]bool),
		lastFlush:           time.Now(),
	}

	err := m.open()
	if err != nil {
		m.notifyFatalError(err)
		closeErr := m.closeDatabases()
		if closeErr != nil {
			log.Warnf("Failed to close databases after a failed open: %s", closeErr)
		}
		cancel()
		return nil, err
	}
	return m, nil
}

func (m *ChainstateManager) open() error {
	onEnd := logger.LogAndMeasureExecutionTime(benchLog, "ChainstateManager.open")
	defer onEnd()

	cfg := m.cfg
	if cfg.WipeChainstate() && !cfg.ChainstateInMemory() {
		log.Infof("Wiping the chainstate at %s", cfg.ChainstateDir())
		err := os.RemoveAll(cfg.ChainstateDir())
		if err != nil {
			return errors.Wrapf(err, "failed to wipe the chainstate")
		}
	}
	if cfg.WipeBlockTree() && !cfg.BlockTreeInMemory() {
		log.Infof("Wiping the block index at %s", cfg.BlockIndexDir())
		err := os.RemoveAll(cfg.BlockIndexDir())
		if err != nil {
			return errors.Wrapf(err, "failed to wipe the block index")
		}
	}

	var err error
	if cfg.BlockTreeInMemory() {
		m.blockTreeDB, err = ffldb.OpenInMemory()
	} else {
		m.blockTreeDB, err = ffldb.Open(cfg.BlocksDir(), cfg.BlockIndexDir(), blockTreeCacheMiB)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to open the block tree database")
	}
	m.blockStore = blockstore.New(m.blockTreeDB)
	if cfg.WipeBlockTree() {
		err = m.blockStore.ResetUndo()
		if err != nil {
			return err
		}
	}

	if cfg.ChainstateInMemory() {
		m.coinsDB, err = ldb.NewMemLevelDB()
	} else {
		m.coinsDB, err = ldb.NewLevelDB(cfg.ChainstateDir(), chainstateCacheMiB)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to open the chainstate database")
	}
	m.coins, err = coinsview.NewCache(coinsview.NewDB(m.coinsDB))
	if err != nil {
		return errors.Wrapf(err, "failed to load the chainstate")
	}

	checkQueue := scriptverify.NewCheckQueue(cfg.WorkerThreads(), txscript.NewSigCache(sigCacheEntries))
	m.validator = blockvalidator.New(m.params, cfg.Clock(), checkQueue)
	m.blockIndex = blockindex.New(m.params)

	err = m.loadBlockIndex()
	if err != nil {
		return err
	}
	err = m.loadChainTip()
	if err != nil {
		return err
	}

	err = m.activateBestChain()
	if err != nil {
		return err
	}
	m.syncState = externalapi.SyncStateInitDownload
	return m.flush()
}

// loadBlockIndex loads the stored block index, rebuilding it from the block
// files when it is empty.
func (m *ChainstateManager) loadBlockIndex() error {
	count, err := m.blockIndex.LoadFromDB(m.blockTreeDB)
	if err != nil {
		return errors.Wrapf(err, "failed to load the block index")
	}
	if count > 0 {
		log.Infof("Loaded %d block index entries", count)
		return nil
	}

	m.syncState = externalapi.SyncStateInitReindex
	err = m.reindex()
	if err != nil {
		return err
	}
	if m.blockIndex.Genesis() == nil {
		return m.initGenesis()
	}
	return nil
}

// initGenesis stores the genesis block of a fresh chain and marks it valid.
// Its outputs are never added to the coin set.
func (m *ChainstateManager) initGenesis() error {
	genesisBlock := m.params.GenesisBlock
	location, err := m.blockStore.WriteBlock(genesisBlock)
	if err != nil {
		return err
	}
	return m.addGenesis(location)
}

func (m *ChainstateManager) addGenesis(location model.Location) error {
	genesisBlock := m.params.GenesisBlock
	node, err := m.blockIndex.AddNode(&genesisBlock.Header, nil)
	if err != nil {
		return err
	}
	m.blockIndex.SetBlockLocation(node, location, uint32(len(genesisBlock.Transactions)))
	m.blockIndex.SetStatusFlags(node, blockindex.StatusValid)
	log.Infof("Initialized the %s chain at genesis %s", m.params.Name, node.Hash())
	return nil
}

// loadChainTip restores the active chain from the block the coin set is
// consistent with.
func (m *ChainstateManager) loadChainTip() error {
	genesis := m.blockIndex.Genesis()
	bestBlock, err := m.coins.BestBlock()
	if err != nil {
		return err
	}

	tip := genesis
	if bestBlock == (chainhash.Hash{}) {
		if m.blockIndex.Count() > 1 {
			m.syncState = externalapi.SyncStateInitReindex
			log.Infof("The chainstate is empty; reconnecting blocks from genesis")
		}
		m.coins.SetBestBlock(genesis.Hash())
	} else {
		tip = m.blockIndex.LookupNode(&bestBlock)
		if tip == nil {
			return errors.Errorf("the chainstate is at block %s which is not in the "+
				"block index; wipe the chainstate to rebuild it", bestBlock)
		}
	}

	m.chain = blockindex.NewChainView(tip)
	m.bestHeader = tip
	m.blockIndex.PruneCandidates(tip)
	log.Infof("Chain tip is %s at height %d", tip.Hash(), tip.Height())
	return nil
}

// Interrupt asks long running operations to stop at their next safe point.
// It may be called from any goroutine. An interrupted manager keeps
// accepting blocks into its index but no longer connects them.
func (m *ChainstateManager) Interrupt() {
	log.Infof("Interrupt requested")
	m.cancel()
}

func (m *ChainstateManager) interrupted() bool {
	return m.ctx.Err() != nil
}

// ForceFlush writes all in-memory state to the durable stores.
func (m *ChainstateManager) ForceFlush() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	err := m.checkUsable()
	if err != nil {
		return err
	}
	err = m.flush()
	if err != nil {
		m.notifyFlushError(err)
		return err
	}
	return nil
}

// Close interrupts pending work, flushes durable state and releases the
// stores. Ephemeral stores are discarded. Close is idempotent.
func (m *ChainstateManager) Close() error {
	m.cancel()

	m.lock.Lock()
	defer m.lock.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var flushErr error
	if m.poisonErr == nil {
		flushErr = m.flush()
		if flushErr != nil {
			m.poison(errors.Wrapf(flushErr, "failed to flush on shutdown"))
		}
	}
	closeErr := m.closeDatabases()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

func (m *ChainstateManager) closeDatabases() error {
	var firstErr error
	if m.coinsDB != nil {
		err := m.coinsDB.Close()
		if err != nil {
			firstErr = err
		}
	}
	if m.blockTreeDB != nil {
		err := m.blockTreeDB.Close()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// checkUsable must be called with lock held.
func (m *ChainstateManager) checkUsable() error {
	if m.closed {
		return errors.WithStack(ErrClosed)
	}
	if m.poisonErr != nil {
		return errors.WithStack(ErrPoisoned)
	}
	return nil
}

// poison records err as fatal. Only the first fatal error is reported.
func (m *ChainstateManager) poison(err error) error {
	if m.poisonErr != nil {
		return err
	}
	m.poisonErr = err
	log.Criticalf("Fatal error: %+v", err)
	m.notifyFatalError(err)
	return err
}
