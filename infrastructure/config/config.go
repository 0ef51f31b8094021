package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/blockkernel/blockkernel/domain/chainparams"
	"github.com/blockkernel/blockkernel/domain/consensus/model/externalapi"
	"github.com/pkg/errors"
)

const (
	// MaxWorkerThreads is the largest script verification pool accepted.
	MaxWorkerThreads = 15

	// DefaultCoinsCacheSize is the coins cache budget in bytes before a
	// periodic flush is forced.
	DefaultCoinsCacheSize = 450 * 1024 * 1024

	blockIndexDirName = "index"
	chainstateDirName = "chainstate"
)

// Config is an immutable snapshot of the options a chain manager is opened
// with. Obtain one through Builder.Build.
type Config struct {
	params              *chainparams.Params
	dataDir             string
	blocksDir           string
	workerThreads       int
	blockTreeInMemory   bool
	chainstateInMemory  bool
	wipeBlockTree       bool
	wipeChainstate      bool
	coinsCacheSize      int
	notifications       externalapi.Notifications
	validationInterface externalapi.ValidationInterface
	clock               func() time.Time
}

// Params returns the network parameters.
func (c *Config) Params() *chainparams.Params { return c.params }

// DataDir returns the root data directory.
func (c *Config) DataDir() string { return c.dataDir }

// BlocksDir returns the directory holding the block and undo flat files.
func (c *Config) BlocksDir() string { return c.blocksDir }

// BlockIndexDir returns the directory of the block index database.
func (c *Config) BlockIndexDir() string { return filepath.Join(c.blocksDir, blockIndexDirName) }

// ChainstateDir returns the directory of the coins database.
func (c *Config) ChainstateDir() string { return filepath.Join(c.dataDir, chainstateDirName) }

// WorkerThreads returns the number of script verification workers. Zero
// means scripts are verified on the validating goroutine.
func (c *Config) WorkerThreads() int { return c.workerThreads }

// BlockTreeInMemory returns whether the block index and flat files are
// ephemeral.
func (c *Config) BlockTreeInMemory() bool { return c.blockTreeInMemory }

// ChainstateInMemory returns whether the coins database is ephemeral.
func (c *Config) ChainstateInMemory() bool { return c.chainstateInMemory }

// WipeBlockTree returns whether the block index is rebuilt from the flat
// files on open.
func (c *Config) WipeBlockTree() bool { return c.wipeBlockTree }

// WipeChainstate returns whether the coins database is rebuilt on open.
func (c *Config) WipeChainstate() bool { return c.wipeChainstate }

// CoinsCacheSize returns the coins cache budget in bytes.
func (c *Config) CoinsCacheSize() int { return c.coinsCacheSize }

// Notifications returns the chain event sink.
func (c *Config) Notifications() externalapi.Notifications { return c.notifications }

// ValidationInterface returns the validation observer.
func (c *Config) ValidationInterface() externalapi.ValidationInterface {
	return c.validationInterface
}

// Clock returns the time source used for the future timestamp check.
func (c *Config) Clock() func() time.Time { return c.clock }

// Builder accumulates chain manager options. It is not safe for concurrent
// use; Build produces an immutable Config.
type Builder struct {
	config Config
}

// NewBuilder returns a Builder for mainnet with durable stores rooted at
// the given directories.
func NewBuilder(dataDir, blocksDir string) *Builder {
	return &Builder{config: Config{
		params:              &chainparams.MainnetParams,
		dataDir:             dataDir,
		blocksDir:           blocksDir,
		coinsCacheSize:      DefaultCoinsCacheSize,
		notifications:       externalapi.NopNotifications{},
		validationInterface: externalapi.NopValidationInterface{},
		clock:               time.Now,
	}}
}

// SetChainType selects the network by type.
func (b *Builder) SetChainType(chainType chainparams.ChainType) error {
	params, err := chainparams.ParamsFor(chainType)
	if err != nil {
		return err
	}
	b.config.params = params
	return nil
}

// SetChainParams selects the network by its parameters.
func (b *Builder) SetChainParams(params *chainparams.Params) {
	b.config.params = params
}

// SetWorkerThreads sets the script verification pool size, clamped to
// [0, MaxWorkerThreads].
func (b *Builder) SetWorkerThreads(workers int) {
	if workers < 0 {
		workers = 0
	}
	if workers > MaxWorkerThreads {
		workers = MaxWorkerThreads
	}
	b.config.workerThreads = workers
}

// SetBlockTreeDBInMemory makes the block index and flat files ephemeral.
func (b *Builder) SetBlockTreeDBInMemory(inMemory bool) {
	b.config.blockTreeInMemory = inMemory
}

// SetChainstateDBInMemory makes the coins database ephemeral.
func (b *Builder) SetChainstateDBInMemory(inMemory bool) {
	b.config.chainstateInMemory = inMemory
}

// SetWipeDBs requests that the block index and/or the chainstate be rebuilt
// on open. Wiping the block tree requires wiping the chainstate too, which is
// checked by Build.
func (b *Builder) SetWipeDBs(wipeBlockTree, wipeChainstate bool) {
	b.config.wipeBlockTree = wipeBlockTree
	b.config.wipeChainstate = wipeChainstate
}

// SetNotifications installs the chain event sink. A nil sink restores the
// no-op default.
func (b *Builder) SetNotifications(notifications externalapi.Notifications) {
	if notifications == nil {
		notifications = externalapi.NopNotifications{}
	}
	b.config.notifications = notifications
}

// SetValidationInterface installs the validation observer. A nil observer
// restores the no-op default.
func (b *Builder) SetValidationInterface(validationInterface externalapi.ValidationInterface) {
	if validationInterface == nil {
		validationInterface = externalapi.NopValidationInterface{}
	}
	b.config.validationInterface = validationInterface
}

// SetCoinsCacheSize sets the coins cache budget in bytes.
func (b *Builder) SetCoinsCacheSize(bytes int) {
	b.config.coinsCacheSize = bytes
}

// SetClock overrides the time source. Tests use it to pin "now".
func (b *Builder) SetClock(clock func() time.Time) {
	if clock == nil {
		clock = time.Now
	}
	b.config.clock = clock
}

// Build validates the accumulated options, creates the directories the
// durable stores need and returns a snapshot of the options.
func (b *Builder) Build() (*Config, error) {
	cfg := b.config
	if cfg.params == nil {
		return nil, errors.New("no chain parameters set")
	}
	if cfg.wipeBlockTree && !cfg.wipeChainstate {
		return nil, errors.New("wiping the block tree requires wiping the chainstate too")
	}
	if cfg.coinsCacheSize <= 0 {
		return nil, errors.Errorf("invalid coins cache size %d", cfg.coinsCacheSize)
	}

	if !cfg.blockTreeInMemory {
		if cfg.blocksDir == "" {
			return nil, errors.New("a blocks directory is required for a durable block tree")
		}
		err := os.MkdirAll(cfg.BlockIndexDir(), 0700)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot create blocks directory %s", cfg.blocksDir)
		}
	}
	if !cfg.chainstateInMemory {
		if cfg.dataDir == "" {
			return nil, errors.New("a data directory is required for a durable chainstate")
		}
		err := os.MkdirAll(cfg.dataDir, 0700)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot create data directory %s", cfg.dataDir)
		}
	}

	return &cfg, nil
}
