package config

import (
	"fmt"
	"os"

	"github.com/blockkernel/blockkernel/domain/chainparams"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

// NetworkFlags holds the network configuration, that is which network is selected.
type NetworkFlags struct {
	Testnet  bool `long:"testnet" description:"Use the test network (testnet3)"`
	Testnet4 bool `long:"testnet4" description:"Use the testnet4 network"`
	Signet   bool `long:"signet" description:"Use the default signet network"`
	Regtest  bool `long:"regtest" description:"Use the regression test network"`

	ActiveNetParams *chainparams.Params
}

// ResolveNetwork parses the network command line argument and sets ActiveNetParams accordingly.
// It returns error if more than one network was selected, nil otherwise.
func (networkFlags *NetworkFlags) ResolveNetwork(parser *flags.Parser) error {
	// Default net is main net.
	networkFlags.ActiveNetParams = &chainparams.MainnetParams

	// Multiple networks can't be selected simultaneously. Count the
	// network flags passed and assign active network params while we're at
	// it.
	numNets := 0
	if networkFlags.Testnet {
		numNets++
		networkFlags.ActiveNetParams = &chainparams.TestnetParams
	}
	if networkFlags.Testnet4 {
		numNets++
		networkFlags.ActiveNetParams = &chainparams.Testnet4Params
	}
	if networkFlags.Signet {
		numNets++
		networkFlags.ActiveNetParams = &chainparams.SignetParams
	}
	if networkFlags.Regtest {
		numNets++
		networkFlags.ActiveNetParams = &chainparams.RegressionNetParams
	}
	if numNets > 1 {
		err := errors.New("multiple network parameters (testnet, testnet4, signet, regtest) cannot be used " +
			"together. Please choose only one network")
		if parser != nil {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
		}
		return err
	}

	return nil
}

// NetParams returns the ActiveNetParams
func (networkFlags *NetworkFlags) NetParams() *chainparams.Params {
	return networkFlags.ActiveNetParams
}

// ChainType returns the type of the selected network.
func (networkFlags *NetworkFlags) ChainType() chainparams.ChainType {
	if networkFlags.ActiveNetParams == nil {
		return chainparams.Mainnet
	}
	return networkFlags.ActiveNetParams.Type
}
