package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/blockkernel/blockkernel/domain/consensus/model/externalapi"
	"github.com/blockkernel/blockkernel/domain/consensus/ruleerrors"
	"github.com/blockkernel/blockkernel/domain/consensus/utils/serialization"
	"github.com/blockkernel/blockkernel/infrastructure/os/signal"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// maxLineLength fits the largest block in hex plus a line ending.
const maxLineLength = 2*wire.MaxBlockPayload + 2

type blockProcessor interface {
	ProcessBlock(block *btcutil.Block) (accepted bool, isNew bool, err error)
}

// printer reports tip changes and remembers the verdict of every checked
// block so that the input loop can print it.
type printer struct {
	externalapi.NopNotifications
	externalapi.NopValidationInterface

	sync.Mutex
	w       io.Writer
	checked map[chainhash.Hash]*externalapi.BlockValidationState
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, checked: make(map[chainhash.Hash]*externalapi.BlockValidationState)}
}

func (p *printer) printf(format string, args ...interface{}) {
	p.Lock()
	defer p.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) BlockTip(state externalapi.SynchronizationState, info *externalapi.BlockInfo,
	verificationProgress float64) {

	p.printf("Tip changed to %s at height %d (%s, progress %.4f)\n",
		info.Hash, info.Height, state, verificationProgress)
}

func (p *printer) WarningSet(warning externalapi.Warning, message string) {
	p.printf("Warning %s: %s\n", warning, message)
}

func (p *printer) FatalError(message string) {
	p.printf("Fatal error: %s\n", message)
}

func (p *printer) BlockChecked(block *btcutil.Block, state *externalapi.BlockValidationState) {
	p.Lock()
	defer p.Unlock()
	p.checked[*block.Hash()] = state
}

func (p *printer) takeChecked(hash chainhash.Hash) (*externalapi.BlockValidationState, bool) {
	p.Lock()
	defer p.Unlock()
	state, ok := p.checked[hash]
	delete(p.checked, hash)
	return state, ok
}

// processBlocks feeds every hex-encoded block read from r to processor and
// prints a verdict for each. It returns on end of input, on interrupt, or
// on a fatal processing error.
func processBlocks(processor blockProcessor, r io.Reader, out *printer, interrupt <-chan struct{}) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		if signal.InterruptRequested(interrupt) {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		serialized, err := hex.DecodeString(line)
		if err != nil {
			out.printf("Block decode failed: %s\n", err)
			continue
		}
		msgBlock, err := serialization.DeserializeBlock(serialized)
		if err != nil {
			out.printf("Block decode failed: %s\n", err)
			continue
		}
		hash := msgBlock.BlockHash()

		accepted, isNew, err := processor.ProcessBlock(btcutil.NewBlock(msgBlock))
		state, checked := out.takeChecked(hash)
		switch {
		case err != nil && !ruleerrors.IsRuleError(err):
			return errors.Wrapf(err, "failed to process block %s", hash)
		case err != nil:
			out.printf("Block %s is invalid: %s\n", hash, ruleerrors.ValidationState(err))
		case accepted && !isNew:
			out.printf("Block %s is a duplicate\n", hash)
		case checked && state.IsValid():
			out.printf("Block %s is valid\n", hash)
		case checked:
			out.printf("Block %s is invalid: %s\n", hash, state)
		default:
			out.printf("Block %s was stored but not connected\n", hash)
		}
	}
	return errors.WithStack(scanner.Err())
}
