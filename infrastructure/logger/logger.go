package logger

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

type logEntry struct {
	log   []byte
	level Level
}

// Logger is a subsystem logger for a Backend.
type Logger struct {
	lvl uint32 // atomic
	tag string
	b   *Backend
}

// Trace formats message using the default formats for its operands, prepends
// the prefix as necessary, and writes to log with LevelTrace.
func (l *Logger) Trace(args ...interface{}) {
	l.Write(LevelTrace, args...)
}

// Tracef formats message according to format specifier, prepends the prefix as
// necessary, and writes to log with LevelTrace.
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.Writef(LevelTrace, format, args...)
}

// Debug formats message using the default formats for its operands, prepends
// the prefix as necessary, and writes to log with LevelDebug.
func (l *Logger) Debug(args ...interface{}) {
	l.Write(LevelDebug, args...)
}

// Debugf formats message according to format specifier, prepends the prefix as
// necessary, and writes to log with LevelDebug.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Writef(LevelDebug, format, args...)
}

// Info formats message using the default formats for its operands, prepends
// the prefix as necessary, and writes to log with LevelInfo.
func (l *Logger) Info(args ...interface{}) {
	l.Write(LevelInfo, args...)
}

// Infof formats message according to format specifier, prepends the prefix as
// necessary, and writes to log with LevelInfo.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Writef(LevelInfo, format, args...)
}

// Warn formats message using the default formats for its operands, prepends
// the prefix as necessary, and writes to log with LevelWarn.
func (l *Logger) Warn(args ...interface{}) {
	l.Write(LevelWarn, args...)
}

// Warnf formats message according to format specifier, prepends the prefix as
// necessary, and writes to log with LevelWarn.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.Writef(LevelWarn, format, args...)
}

// Error formats message using the default formats for its operands, prepends
// the prefix as necessary, and writes to log with LevelError.
func (l *Logger) Error(args ...interface{}) {
	l.Write(LevelError, args...)
}

// Errorf formats message according to format specifier, prepends the prefix as
// necessary, and writes to log with LevelError.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Writef(LevelError, format, args...)
}

// Critical formats message using the default formats for its operands, prepends
// the prefix as necessary, and writes to log with LevelCritical.
func (l *Logger) Critical(args ...interface{}) {
	l.Write(LevelCritical, args...)
}

// Criticalf formats message according to format specifier, prepends the prefix as
// necessary, and writes to log with LevelCritical.
func (l *Logger) Criticalf(format string, args ...interface{}) {
	l.Writef(LevelCritical, format, args...)
}

// Write formats message using the default formats for its operands, prepends
// the prefix as necessary, and writes to log with the given logLevel.
func (l *Logger) Write(logLevel Level, args ...interface{}) {
	if !l.enabled(logLevel) {
		return
	}
	l.print(logLevel, fmt.Sprint(args...))
}

// Writef formats message according to format specifier, prepends the prefix as
// necessary, and writes to log with the given logLevel.
func (l *Logger) Writef(logLevel Level, format string, args ...interface{}) {
	if !l.enabled(logLevel) {
		return
	}
	l.print(logLevel, fmt.Sprintf(format, args...))
}

// Level returns the current logging level.
func (l *Logger) Level() Level {
	return Level(atomic.LoadUint32(&l.lvl))
}

// SetLevel changes the logging level to the passed level.
func (l *Logger) SetLevel(level Level) {
	atomic.StoreUint32(&l.lvl, uint32(level))
}

// Backend returns the log backend
func (l *Logger) Backend() *Backend {
	return l.b
}

func (l *Logger) enabled(logLevel Level) bool {
	return logLevel >= l.Level() && l.b.IsRunning()
}

func (l *Logger) print(logLevel Level, message string) {
	var buf strings.Builder
	buf.Grow(normalLogSize)
	buf.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	buf.WriteString(" [")
	buf.WriteString(logLevel.String())
	buf.WriteString("] ")
	buf.WriteString(l.tag)
	if l.b.flag&(LogFlagShortFile|LogFlagLongFile) != 0 {
		buf.WriteByte(' ')
		buf.WriteString(callsite(l.b.flag))
	}
	buf.WriteString(": ")
	buf.WriteString(message)
	if !strings.HasSuffix(message, "\n") {
		buf.WriteByte('\n')
	}
	l.b.enqueue(logEntry{log: []byte(buf.String()), level: logLevel})
}

const normalLogSize = 512

// callsite returns the file and line of the logging call, four frames up:
// callsite, print, Write(f), and the exported level method.
func callsite(flag uint32) string {
	_, file, line, ok := runtime.Caller(4)
	if !ok {
		return "???:0"
	}
	if flag&LogFlagShortFile != 0 {
		if i := strings.LastIndexByte(file, os.PathSeparator); i >= 0 {
			file = file[i+1:]
		}
	}
	return fmt.Sprintf("%s:%d", file, line)
}
