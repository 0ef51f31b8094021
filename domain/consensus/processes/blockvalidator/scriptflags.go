package blockvalidator

import (
	"github.com/blockkernel/blockkernel/domain/chainparams"
	"github.com/blockkernel/blockkernel/domain/consensus/utils/scriptverify"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// scriptFlagExceptions lists historical blocks that are valid only under
// weaker script rules than their height implies.
var scriptFlagExceptions = map[chainparams.ChainType]map[chainhash.Hash]scriptverify.Flags{
	chainparams.Mainnet: {
		// Spends a P2SH output with a script that does not satisfy
		// BIP16.
		mustParseHash("00000000000002dc756eebf4f49723ed8d30cc28a5f108eb94b1ba88ac4f9c22"): scriptverify.FlagsNone,
		// Spends a taproot output with an invalid signature before
		// activation.
		mustParseHash("0000000000000000000f14c35b2d841e986ab5441de8c585d5ffe55ea1e395ad"): scriptverify.FlagP2SH |
			scriptverify.FlagWitness,
	},
	chainparams.Testnet: {
		mustParseHash("00000000dd30457c001f4095d208cc1296b0eed002427aa599874af7a432b105"): scriptverify.FlagsNone,
	},
}

// ScriptFlagsForHeight returns the script verification flags enforced for
// the inputs of a block at height. P2SH, witness and taproot rules apply to
// every block since no block before their activation violates them.
func ScriptFlagsForHeight(params *chainparams.Params, height int32) scriptverify.Flags {
	flags := scriptverify.FlagP2SH | scriptverify.FlagWitness | scriptverify.FlagTaproot

	if params.IsDeploymentActive(chainparams.DeploymentDERSig, height) {
		flags |= scriptverify.FlagDERSig
	}
	if params.IsDeploymentActive(chainparams.DeploymentCLTV, height) {
		flags |= scriptverify.FlagCheckLockTimeVerify
	}
	if params.IsDeploymentActive(chainparams.DeploymentCSV, height) {
		flags |= scriptverify.FlagCheckSequenceVerify
	}
	if params.IsDeploymentActive(chainparams.DeploymentSegwit, height) {
		flags |= scriptverify.FlagNullDummy
	}
	return flags
}

// BlockScriptFlags is ScriptFlagsForHeight with the historical exceptions
// applied.
func BlockScriptFlags(params *chainparams.Params, blockHash *chainhash.Hash, height int32) scriptverify.Flags {
	if exceptions, ok := scriptFlagExceptions[params.Type]; ok {
		if flags, ok := exceptions[*blockHash]; ok {
			return flags
		}
	}
	return ScriptFlagsForHeight(params, height)
}

func mustParseHash(s string) chainhash.Hash {
	hash, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return *hash
}
