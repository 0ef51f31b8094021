package main

import (
	"os"
	"path/filepath"

	"github.com/blockkernel/blockkernel/infrastructure/config"
	"github.com/blockkernel/blockkernel/infrastructure/logger"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

const (
	defaultLogLevel    = "info"
	defaultLogFilename = "chainstate.log"
	defaultErrLogFile  = "chainstate_err.log"
)

var defaultDataDir = btcutil.AppDataDir("blockkernel", false)

type configFlags struct {
	DataDir     string   `short:"b" long:"datadir" description:"Directory to store the chainstate and logs in"`
	BlocksDir   string   `long:"blocksdir" description:"Directory to store the block files in (default: <datadir>/blocks)"`
	LogLevel    string   `short:"d" long:"loglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`
	Workers     int      `long:"workers" description:"Number of script verification threads, at most 15 (0 verifies on the processing thread)"`
	Import      []string `long:"import" description:"Import blocks from a file of block records before reading stdin. May be repeated"`
	Profile     string   `long:"profile" description:"Serve profiling data and metrics on the given port"`
	ShowVersion bool     `short:"V" long:"version" description:"Display version information and exit"`
	config.NetworkFlags
}

func parseConfig(args []string) (*configFlags, error) {
	cfg := &configFlags{
		DataDir:  defaultDataDir,
		LogLevel: defaultLogLevel,
		Workers:  config.MaxWorkerThreads,
	}
	parser := flags.NewParser(cfg, flags.HelpFlag)
	_, err := parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if ok := errors.As(err, &flagsErr); !ok || flagsErr.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, err
	}

	err = cfg.ResolveNetwork(parser)
	if err != nil {
		return nil, err
	}

	// Every network gets its own data directory.
	cfg.DataDir = filepath.Join(cleanAndExpandPath(cfg.DataDir), cfg.NetParams().Name)
	if cfg.BlocksDir == "" {
		cfg.BlocksDir = filepath.Join(cfg.DataDir, "blocks")
	} else {
		cfg.BlocksDir = filepath.Join(cleanAndExpandPath(cfg.BlocksDir), cfg.NetParams().Name)
	}

	if cfg.Workers < 0 || cfg.Workers > config.MaxWorkerThreads {
		return nil, errors.Errorf("--workers must be between 0 and %d", config.MaxWorkerThreads)
	}

	err = logger.ParseAndSetLogLevels(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// cleanAndExpandPath expands environment variables and a leading ~ in path.
func cleanAndExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}
