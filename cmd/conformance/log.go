package main

import (
	"os"

	"github.com/blockkernel/blockkernel/infrastructure/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.CNFM)

type stderrWriter struct{}

func (stderrWriter) Write(p []byte) (int, error) { return os.Stderr.Write(p) }
func (stderrWriter) Close() error                { return nil }

// initLog sends log lines to stderr, leaving stdout to the responses.
func initLog(level string) error {
	err := logger.ParseAndSetLogLevels(level)
	if err != nil {
		return err
	}
	err = logger.BackendLog.AddLogWriter(stderrWriter{}, logger.LevelTrace)
	if err != nil {
		return err
	}
	return logger.BackendLog.Run()
}
