// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signal

import (
	"os"
	"os/signal"
	"syscall"
)

// ShutdownRequestChannel is used to initiate shutdown from one of the
// subsystems using the same code paths as when an interrupt signal is
// received.
var ShutdownRequestChannel = make(chan struct{})

// interruptSignals defines the default signals to catch in order to do a
// proper shutdown.
var interruptSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// Interrupter is anything that can abandon long running work on request.
type Interrupter interface {
	Interrupt()
}

// InterruptListener listens for OS signals such as SIGINT (Ctrl+C) and
// shutdown requests from ShutdownRequestChannel. It returns a channel that
// is closed when either signal is received. Every interrupter is asked to
// stop before the channel is closed.
func InterruptListener(interrupters ...Interrupter) <-chan struct{} {
	interruptChannel := make(chan os.Signal, 1)
	signal.Notify(interruptChannel, interruptSignals...)
	return listen(interruptChannel, ShutdownRequestChannel, interrupters...)
}

func listen(interruptChannel <-chan os.Signal, shutdownRequests <-chan struct{},
	interrupters ...Interrupter) <-chan struct{} {

	c := make(chan struct{})
	go func() {
		// Listen for initial shutdown signal and close the returned
		// channel to notify the caller.
		select {
		case sig := <-interruptChannel:
			log.Infof("Received signal (%s). Shutting down...", sig)

		case <-shutdownRequests:
			log.Info("Shutdown requested. Shutting down...")
		}
		for _, interrupter := range interrupters {
			interrupter.Interrupt()
		}
		close(c)

		// Listen for repeated signals and display a message so the user
		// knows the shutdown is in progress and the process is not
		// hung.
		for {
			select {
			case sig := <-interruptChannel:
				log.Infof("Received signal (%s). Already "+
					"shutting down...", sig)

			case <-shutdownRequests:
				log.Info("Shutdown requested. Already " +
					"shutting down...")
			}
		}
	}()

	return c
}

// InterruptRequested returns true when the channel returned by
// InterruptListener was closed. This simplifies early shutdown slightly since
// the caller can just use an if statement instead of a select.
func InterruptRequested(interrupted <-chan struct{}) bool {
	select {
	case <-interrupted:
		return true
	default:
	}

	return false
}
