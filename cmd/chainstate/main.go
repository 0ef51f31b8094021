// The chainstate tool validates blocks read from stdin against a chain
// stored on disk. Each input line holds one hex-encoded block; a verdict is
// printed for each, together with every change of the chain tip.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/blockkernel/blockkernel/domain/consensus"
	"github.com/blockkernel/blockkernel/domain/consensus/metrics"
	"github.com/blockkernel/blockkernel/infrastructure/config"
	"github.com/blockkernel/blockkernel/infrastructure/logger"
	"github.com/blockkernel/blockkernel/infrastructure/os/signal"
	"github.com/blockkernel/blockkernel/util/panics"
	"github.com/blockkernel/blockkernel/util/profiling"
	"github.com/blockkernel/blockkernel/version"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	defer panics.HandlePanic(log, nil)

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing command-line arguments: %s\n", err)
		os.Exit(1)
	}
	if cfg.ShowVersion {
		fmt.Printf("chainstate version %s\n", version.Version())
		os.Exit(0)
	}
	err = initLog(filepath.Join(cfg.DataDir, "logs"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing the logger: %s\n", err)
		os.Exit(1)
	}

	err = run(cfg)
	logger.BackendLog.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(cfg *configFlags) error {
	out := newPrinter(os.Stdout)
	registry := prometheus.NewRegistry()
	observer, err := metrics.New(registry, out, out)
	if err != nil {
		return err
	}
	if cfg.Profile != "" {
		profiling.Start(cfg.Profile, registry, log)
	}

	builder := config.NewBuilder(cfg.DataDir, cfg.BlocksDir)
	builder.SetChainParams(cfg.NetParams())
	builder.SetWorkerThreads(cfg.Workers)
	builder.SetNotifications(observer)
	builder.SetValidationInterface(observer)
	managerConfig, err := builder.Build()
	if err != nil {
		return err
	}

	log.Infof("Version %s", version.Version())
	log.Infof("Opening the %s chain in %s", cfg.NetParams().Name, cfg.DataDir)
	manager, err := consensus.New(managerConfig)
	if err != nil {
		return errors.Wrapf(err, "failed to open the chainstate")
	}
	interrupt := signal.InterruptListener(manager)

	done := make(chan error, 1)
	spawn(func() {
		if len(cfg.Import) > 0 {
			err := manager.ImportBlocks(cfg.Import)
			if err != nil {
				log.Warnf("Import finished with errors: %s", err)
			}
		}
		done <- processBlocks(manager, os.Stdin, out, interrupt)
	})

	select {
	case err = <-done:
	case <-interrupt:
		log.Infof("Shutting down")
	}

	closeErr := manager.Close()
	if err != nil {
		return err
	}
	return closeErr
}
