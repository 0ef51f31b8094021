package main

import (
	"os"
	"path/filepath"

	"github.com/blockkernel/blockkernel/infrastructure/logger"
	"github.com/blockkernel/blockkernel/util/panics"
)

var (
	log, _ = logger.Get(logger.SubsystemTags.CHST)
	spawn  = panics.GoroutineWrapperFunc(log)
)

type stderrWriter struct{}

func (stderrWriter) Write(p []byte) (int, error) { return os.Stderr.Write(p) }
func (stderrWriter) Close() error                { return nil }

// initLog writes every message to the log files under logDir and warnings
// and above to stderr.
func initLog(logDir string) error {
	err := logger.BackendLog.AddLogWriter(stderrWriter{}, logger.LevelWarn)
	if err != nil {
		return err
	}
	err = logger.BackendLog.AddLogFile(filepath.Join(logDir, defaultLogFilename), logger.LevelTrace)
	if err != nil {
		return err
	}
	err = logger.BackendLog.AddLogFile(filepath.Join(logDir, defaultErrLogFile), logger.LevelWarn)
	if err != nil {
		return err
	}
	return logger.BackendLog.Run()
}
