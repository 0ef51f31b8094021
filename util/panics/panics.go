package panics

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/blockkernel/blockkernel/infrastructure/logger"
	"github.com/pkg/errors"
)

const exitHandlerTimeout = 5 * time.Second

// HandlePanic recovers panics and then initiates a clean shutdown.
func HandlePanic(log *logger.Logger, goroutineStackTrace []byte) {
	err := recover()
	if err == nil {
		return
	}

	reason := fmt.Sprintf("Fatal error: %+v", err)
	exit(log, reason, debug.Stack(), goroutineStackTrace)
}

// GoroutineWrapperFunc returns a goroutine wrapper function that handles panics and writes them to the log.
func GoroutineWrapperFunc(log *logger.Logger) func(func()) {
	return func(f func()) {
		stackTrace := debug.Stack()
		go func() {
			defer HandlePanic(log, stackTrace)
			f()
		}()
	}
}

// RecoverToError runs f and converts a panic raised inside it into an error
// instead of unwinding further. Used around caller-supplied callbacks.
func RecoverToError(log *logger.Logger, name string, f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Recovered from panic in %s: %+v\n%s", name, r, debug.Stack())
			err = errors.Errorf("panic in %s: %v", name, r)
		}
	}()
	f()
	return nil
}

// Exit prints the given reason to log and initiates a clean shutdown.
func Exit(log *logger.Logger, reason string) {
	exit(log, reason, nil, nil)
}

// exit prints the given reason, prints either of the given stack traces (if not nil),
// waits for them to finish writing, and exits.
func exit(log *logger.Logger, reason string, currentThreadStackTrace []byte, goroutineStackTrace []byte) {
	exitHandlerDone := make(chan struct{})
	go func() {
		log.Criticalf("Exiting: %s", reason)
		if goroutineStackTrace != nil {
			log.Criticalf("Goroutine stack trace: %s", goroutineStackTrace)
		}
		if currentThreadStackTrace != nil {
			log.Criticalf("Stack trace: %s", currentThreadStackTrace)
		}
		log.Backend().Close()
		close(exitHandlerDone)
	}()

	select {
	case <-time.After(exitHandlerTimeout):
		fmt.Fprintln(os.Stderr, "Couldn't exit gracefully.")
	case <-exitHandlerDone:
	}
	fmt.Fprintln(os.Stderr, "Exiting...")
	os.Exit(1)
}
