package chainparams

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

func TestParamsFor(t *testing.T) {
	tests := []struct {
		chainType ChainType
		name      string
		genesis   *chainhash.Hash
	}{
		{Mainnet, "mainnet", chaincfg.MainNetParams.GenesisHash},
		{Testnet, "testnet", chaincfg.TestNet3Params.GenesisHash},
		{Signet, "signet", chaincfg.SigNetParams.GenesisHash},
		{Regtest, "regtest", chaincfg.RegressionNetParams.GenesisHash},
	}
	for _, test := range tests {
		params, err := ParamsFor(test.chainType)
		if err != nil {
			t.Fatalf("ParamsFor(%s): %s", test.chainType, err)
		}
		if params.Type != test.chainType {
			t.Errorf("ParamsFor(%s): got type %s", test.chainType, params.Type)
		}
		if *params.GenesisHash != *test.genesis {
			t.Errorf("ParamsFor(%s): unexpected genesis %s", test.chainType, params.GenesisHash)
		}
		parsed, err := ParseChainType(test.name)
		if err != nil || parsed != test.chainType {
			t.Errorf("ParseChainType(%q): got %s (%v)", test.name, parsed, err)
		}
	}

	if _, err := ParamsFor(ChainType(99)); err == nil {
		t.Fatalf("expected an error for an unknown chain type")
	}
	if _, err := ParseChainType("moonnet"); err == nil {
		t.Fatalf("expected an error for an unknown chain name")
	}
}

func TestTestnet4Genesis(t *testing.T) {
	want, err := chainhash.NewHashFromStr("00000000da84f2bafbbc53dee25a72ae507ff4914b867c565be350b0da8bf043")
	if err != nil {
		t.Fatalf("NewHashFromStr: %s", err)
	}
	if *Testnet4Params.GenesisHash != *want {
		t.Fatalf("testnet4 genesis hash: got %s, want %s", Testnet4Params.GenesisHash, want)
	}
	if Testnet4Params.GenesisBlock.BlockHash() != *want {
		t.Fatalf("testnet4 genesis block does not hash to its recorded hash")
	}
	if magic := Testnet4Params.MessageStart(); magic != [4]byte{0x1c, 0x16, 0x3f, 0x28} {
		t.Fatalf("testnet4 magic: got %x", magic)
	}
	// The shared testnet3 parameters must be left untouched.
	if chaincfg.TestNet3Params.Name == Testnet4Params.Name {
		t.Fatalf("deriving testnet4 modified testnet3")
	}
}

func TestMessageStart(t *testing.T) {
	if magic := MainnetParams.MessageStart(); magic != [4]byte{0xf9, 0xbe, 0xb4, 0xd9} {
		t.Fatalf("mainnet magic: got %x", magic)
	}
	if magic := RegressionNetParams.MessageStart(); magic != [4]byte{0xfa, 0xbf, 0xb5, 0xda} {
		t.Fatalf("regtest magic: got %x", magic)
	}
}

func TestDeploymentActivation(t *testing.T) {
	if MainnetParams.IsDeploymentActive(DeploymentSegwit, 481823) {
		t.Errorf("segwit active one block early")
	}
	if !MainnetParams.IsDeploymentActive(DeploymentSegwit, 481824) {
		t.Errorf("segwit not active at its activation height")
	}
	if RegressionNetParams.IsDeploymentActive(DeploymentHeightInCoinbase, 0) {
		t.Errorf("BIP34 must not apply to the regtest genesis block")
	}
	if !RegressionNetParams.IsDeploymentActive(DeploymentTaproot, 0) {
		t.Errorf("taproot should be active from genesis on regtest")
	}
}
