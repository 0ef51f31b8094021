// The conformance tool answers script verification requests, one JSON
// object per line on stdin, with one JSON response per line on stdout. It
// exits when stdin is closed.
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/blockkernel/blockkernel/infrastructure/logger"
	"github.com/blockkernel/blockkernel/util/panics"
	"github.com/blockkernel/blockkernel/version"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

const maxRequestLength = 16 * 1024 * 1024

type configFlags struct {
	LogLevel    string `short:"d" long:"loglevel" description:"Logging level for all subsystems, written to stderr"`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
}

func main() {
	defer panics.HandlePanic(log, nil)

	cfg := &configFlags{LogLevel: "warn"}
	_, err := flags.Parse(cfg)
	if err != nil {
		os.Exit(1)
	}
	if cfg.ShowVersion {
		fmt.Printf("conformance version %s\n", version.Version())
		os.Exit(0)
	}
	err = initLog(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing the logger: %s\n", err)
		os.Exit(1)
	}

	err = serve(os.Stdin, os.Stdout)
	logger.BackendLog.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// serve answers every request read from r in order.
func serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestLength)
	writer := bufio.NewWriter(w)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		res := handleLine(line)
		if res == nil {
			continue
		}
		serialized, err := json.Marshal(res)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = writer.Write(append(serialized, '\n'))
		if err != nil {
			return errors.WithStack(err)
		}
		err = writer.Flush()
		if err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.WithStack(scanner.Err())
}
