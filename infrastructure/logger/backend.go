package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jrick/logrotate/rotator"
	"github.com/pkg/errors"
)

// defaultFlags specifies changes to the default logger behavior. It is set
// from the LOGFLAGS environment variable. Backends can override these
// flags using NewBackendWithFlags.
var defaultFlags = getDefaultFlags()

// Flags to modify Backend's behavior.
const (
	// LogFlagLongFile modifies the logger output to include full path and line number
	// of the logging callsite, e.g. /a/b/c/main.go:123.
	LogFlagLongFile uint32 = 1 << iota

	// LogFlagShortFile modifies the logger output to include filename and line number
	// of the logging callsite, e.g. main.go:123. takes precedence over LogFlagLongFile.
	LogFlagShortFile
)

func getDefaultFlags() (flags uint32) {
	for _, f := range strings.Split(os.Getenv("LOGFLAGS"), ",") {
		switch f {
		case "longfile":
			flags |= LogFlagLongFile
		case "shortfile":
			flags |= LogFlagShortFile
		}
	}
	return
}

// logsBuffer is the number of entries the backend queues before it starts
// dropping messages. Loggers never wait for a slow sink.
const logsBuffer = 4096

const (
	defaultThresholdKB = 100 * 1000 // 100 MB logs by default.
	defaultMaxRolls    = 8          // keep 8 last logs by default.
)

// Backend is a logging backend. Subsystems created from the backend write to
// the backend's writers. Backend provides atomic writes to the writers from
// all subsystems.
type Backend struct {
	flag      uint32
	isRunning uint32
	dropped   uint64
	writers   []logWriter
	writeChan chan logEntry
	syncClose sync.Mutex // held by the writing goroutine until the channel drains
}

// NewBackendWithFlags configures a Backend to use the specified flags rather than using
// the package's defaults as determined through the LOGFLAGS environment
// variable.
func NewBackendWithFlags(flags uint32) *Backend {
	return &Backend{flag: flags, writeChan: make(chan logEntry, logsBuffer)}
}

// NewBackend creates a new logger backend.
func NewBackend() *Backend {
	return NewBackendWithFlags(defaultFlags)
}

type logWriter interface {
	io.WriteCloser
	LogLevel() Level
}

type logWriterWrap struct {
	io.WriteCloser
	logLevel Level
}

func (lw logWriterWrap) LogLevel() Level {
	return lw.logLevel
}

// callbackWriter adapts a message callback to io.WriteCloser.
type callbackWriter func(message string)

func (cw callbackWriter) Write(p []byte) (int, error) {
	cw(string(p))
	return len(p), nil
}

func (cw callbackWriter) Close() error {
	return nil
}

// AddLogFile adds a file which the log will write into on a certain
// log level with the default log rotation settings. It'll create the file if it doesn't exist.
func (b *Backend) AddLogFile(logFile string, logLevel Level) error {
	return b.AddLogFileWithCustomRotator(logFile, logLevel, defaultThresholdKB, defaultMaxRolls)
}

// AddLogWriter adds a type implementing io.WriteCloser which the log will write into on a certain
// log level.
func (b *Backend) AddLogWriter(logWriter io.WriteCloser, logLevel Level) error {
	if b.IsRunning() {
		return errors.New("The logger is already running")
	}
	b.writers = append(b.writers, logWriterWrap{
		WriteCloser: logWriter,
		logLevel:    logLevel,
	})
	return nil
}

// AddLogCallback registers a function that receives every formatted log line
// at or above logLevel. The callback runs on the backend goroutine.
func (b *Backend) AddLogCallback(callback func(message string), logLevel Level) error {
	if callback == nil {
		return errors.New("nil log callback")
	}
	return b.AddLogWriter(callbackWriter(callback), logLevel)
}

// AddLogFileWithCustomRotator adds a file which the log will write into on a certain
// log level, with the specified log rotation settings.
// It'll create the file if it doesn't exist.
func (b *Backend) AddLogFileWithCustomRotator(logFile string, logLevel Level, thresholdKB int64, maxRolls int) error {
	if b.IsRunning() {
		return errors.New("The logger is already running")
	}
	logDir, _ := filepath.Split(logFile)
	// if the logDir is empty then `logFile` is in the cwd and there's no need to create any directory.
	if logDir != "" {
		err := os.MkdirAll(logDir, 0700)
		if err != nil {
			return errors.Errorf("failed to create log directory: %+v", err)
		}
	}
	r, err := rotator.New(logFile, thresholdKB, false, maxRolls)
	if err != nil {
		return errors.Errorf("failed to create file rotator: %s", err)
	}
	b.writers = append(b.writers, logWriterWrap{
		WriteCloser: r,
		logLevel:    logLevel,
	})
	return nil
}

// Run launches the logger backend in a separate go-routine. should only be called once.
func (b *Backend) Run() error {
	if !atomic.CompareAndSwapUint32(&b.isRunning, 0, 1) {
		return errors.New("The logger is already running")
	}
	b.syncClose.Lock()
	go func() {
		defer func() {
			if err := recover(); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "Fatal error in logger.Backend goroutine: %+v\n", err)
				_, _ = fmt.Fprintf(os.Stderr, "Goroutine stacktrace: %s\n", debug.Stack())
			}
		}()
		b.runBlocking()
	}()
	return nil
}

func (b *Backend) runBlocking() {
	defer b.syncClose.Unlock()

	for log := range b.writeChan {
		for _, writer := range b.writers {
			if log.level >= writer.LogLevel() {
				_, _ = writer.Write(log.log)
			}
		}
	}
}

// IsRunning returns true if backend.Run() has been called and false if it hasn't.
func (b *Backend) IsRunning() bool {
	return atomic.LoadUint32(&b.isRunning) != 0
}

// Dropped returns the number of entries discarded because no sink was
// running or the queue was full.
func (b *Backend) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}

// enqueue hands an entry to the writer goroutine without ever waiting on it.
func (b *Backend) enqueue(entry logEntry) {
	if !b.IsRunning() || len(b.writers) == 0 {
		atomic.AddUint64(&b.dropped, 1)
		return
	}
	defer func() {
		// The channel is closed once Close has been called.
		if recover() != nil {
			atomic.AddUint64(&b.dropped, 1)
		}
	}()
	select {
	case b.writeChan <- entry:
	default:
		atomic.AddUint64(&b.dropped, 1)
	}
}

// Close finalizes all log rotators for this backend
func (b *Backend) Close() {
	if !atomic.CompareAndSwapUint32(&b.isRunning, 1, 0) {
		return
	}
	close(b.writeChan)
	// Wait for it to finish writing using the syncClose mutex.
	b.syncClose.Lock()
	defer b.syncClose.Unlock()
	for _, writer := range b.writers {
		_ = writer.Close()
	}
}

// Logger returns a new logger for a particular subsystem that writes to the
// Backend b. A tag describes the subsystem and is included in all log
// messages. The logger uses the info verbosity level by default.
func (b *Backend) Logger(subsystemTag string) *Logger {
	return &Logger{lvl: uint32(LevelInfo), tag: subsystemTag, b: b}
}
