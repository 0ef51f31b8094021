// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainparams

import (
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// ChainType names one of the supported networks.
type ChainType int

// The closed set of networks the kernel can run on.
const (
	Mainnet ChainType = iota
	Testnet
	Testnet4
	Signet
	Regtest
)

var chainTypeNames = map[ChainType]string{
	Mainnet:  "mainnet",
	Testnet:  "testnet",
	Testnet4: "testnet4",
	Signet:   "signet",
	Regtest:  "regtest",
}

func (c ChainType) String() string {
	if name, ok := chainTypeNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseChainType returns the ChainType with the given name.
func ParseChainType(name string) (ChainType, error) {
	for chainType, chainName := range chainTypeNames {
		if strings.EqualFold(name, chainName) {
			return chainType, nil
		}
	}
	return 0, errors.Errorf("unknown chain type %q", name)
}

// Deployment identifies a buried soft fork.
type Deployment int

// Buried deployments, in activation order on mainnet.
const (
	DeploymentHeightInCoinbase Deployment = iota // BIP34
	DeploymentDERSig                             // BIP66
	DeploymentCLTV                               // BIP65
	DeploymentCSV                                // BIP68, BIP112, BIP113
	DeploymentSegwit                             // BIP141, BIP143, BIP147
	DeploymentTaproot                            // BIP341, BIP342

	numDeployments
)

// Params defines a network by its parameters. The embedded chaincfg.Params
// carries the genesis block, proof-of-work limits and retargeting rules; the
// remaining fields hold what the kernel enforces beyond them.
type Params struct {
	chaincfg.Params

	// Type is the network these parameters belong to.
	Type ChainType

	// DeploymentHeights is the first height at which each buried
	// deployment is enforced.
	DeploymentHeights [numDeployments]int32

	// EnforceBIP94 enables the testnet4 timewarp fix and retargets from
	// the first block of each difficulty period.
	EnforceBIP94 bool

	// MinimumChainWork is the work below which the node considers itself
	// to be in initial block download. Nil means zero.
	MinimumChainWork *big.Int
}

// MessageStart returns the four magic bytes that prefix blocks in block
// files and import streams.
func (p *Params) MessageStart() [4]byte {
	var magic [4]byte
	net := uint32(p.Net)
	magic[0] = byte(net)
	magic[1] = byte(net >> 8)
	magic[2] = byte(net >> 16)
	magic[3] = byte(net >> 24)
	return magic
}

// IsDeploymentActive returns whether deployment is enforced for a block at
// height.
func (p *Params) IsDeploymentActive(deployment Deployment, height int32) bool {
	return height >= p.DeploymentHeights[deployment]
}

// MainnetParams defines the network parameters for the main network.
var MainnetParams = Params{
	Params: chaincfg.MainNetParams,
	Type:   Mainnet,
	DeploymentHeights: [numDeployments]int32{
		DeploymentHeightInCoinbase: 227931,
		DeploymentDERSig:           363725,
		DeploymentCLTV:             388381,
		DeploymentCSV:              419328,
		DeploymentSegwit:           481824,
		DeploymentTaproot:          709632,
	},
}

// TestnetParams defines the network parameters for the version 3 test
// network.
var TestnetParams = Params{
	Params: chaincfg.TestNet3Params,
	Type:   Testnet,
	DeploymentHeights: [numDeployments]int32{
		DeploymentHeightInCoinbase: 21111,
		DeploymentDERSig:           330776,
		DeploymentCLTV:             581885,
		DeploymentCSV:              770112,
		DeploymentSegwit:           834624,
		DeploymentTaproot:          2011968,
	},
}

// Testnet4Params defines the network parameters for the version 4 test
// network. It shares testnet3's rules apart from its genesis block, its
// magic and the BIP94 fixes.
var Testnet4Params = newTestnet4Params()

// SignetParams defines the network parameters for the default signet.
var SignetParams = Params{
	Params: chaincfg.SigNetParams,
	Type:   Signet,
	DeploymentHeights: [numDeployments]int32{
		DeploymentHeightInCoinbase: 1,
		DeploymentDERSig:           1,
		DeploymentCLTV:             1,
		DeploymentCSV:              1,
		DeploymentSegwit:           1,
		DeploymentTaproot:          0,
	},
}

// RegressionNetParams defines the network parameters for the regression
// test network. Every deployment is active from the first block after
// genesis, and segwit and taproot from genesis itself.
var RegressionNetParams = Params{
	Params: chaincfg.RegressionNetParams,
	Type:   Regtest,
	DeploymentHeights: [numDeployments]int32{
		DeploymentHeightInCoinbase: 1,
		DeploymentDERSig:           1,
		DeploymentCLTV:             1,
		DeploymentCSV:              1,
		DeploymentSegwit:           0,
		DeploymentTaproot:          0,
	},
}

// testnet4MessageStart is 1c 16 3f 28 on the wire.
const testnet4Net wire.BitcoinNet = 0x283f161c

func newTestnet4Params() Params {
	params := Params{
		Params:       chaincfg.TestNet3Params,
		Type:         Testnet4,
		EnforceBIP94: true,
		DeploymentHeights: [numDeployments]int32{
			DeploymentHeightInCoinbase: 1,
			DeploymentDERSig:           1,
			DeploymentCLTV:             1,
			DeploymentCSV:              1,
			DeploymentSegwit:           1,
			DeploymentTaproot:          0,
		},
	}
	genesisHash := testnet4GenesisBlock.BlockHash()
	params.Name = "testnet4"
	params.Net = testnet4Net
	params.DefaultPort = "48333"
	params.DNSSeeds = nil
	params.Checkpoints = nil
	params.GenesisBlock = &testnet4GenesisBlock
	params.GenesisHash = &genesisHash
	return params
}

// ParamsFor returns the parameters of the given network. The returned value
// is shared and must not be modified.
func ParamsFor(chainType ChainType) (*Params, error) {
	switch chainType {
	case Mainnet:
		return &MainnetParams, nil
	case Testnet:
		return &TestnetParams, nil
	case Testnet4:
		return &Testnet4Params, nil
	case Signet:
		return &SignetParams, nil
	case Regtest:
		return &RegressionNetParams, nil
	}
	return nil, errors.Errorf("unknown chain type %d", chainType)
}
