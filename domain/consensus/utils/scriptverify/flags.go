package scriptverify

import (
	"strings"

	"github.com/btcsuite/btcd/txscript"
)

// Flags is a bitset selecting which rules a script verification enforces.
// The numeric values are stable and shared with external callers.
type Flags uint32

// Verification flags.
const (
	FlagsNone Flags = 0

	// FlagP2SH evaluates pay-to-script-hash subscripts (BIP16).
	FlagP2SH Flags = 1 << 0

	// FlagStrictEncoding enforces strict DER and public key encodings.
	FlagStrictEncoding Flags = 1 << 1

	// FlagDERSig enforces strict DER signatures (BIP66).
	FlagDERSig Flags = 1 << 2

	// FlagLowS requires signatures with a low S value.
	FlagLowS Flags = 1 << 3

	// FlagNullDummy requires the extra CHECKMULTISIG stack item to be
	// empty (BIP147).
	FlagNullDummy Flags = 1 << 4

	FlagSigPushOnly              Flags = 1 << 5
	FlagMinimalData              Flags = 1 << 6
	FlagDiscourageUpgradableNops Flags = 1 << 7
	FlagCleanStack               Flags = 1 << 8

	// FlagCheckLockTimeVerify enables OP_CHECKLOCKTIMEVERIFY (BIP65).
	FlagCheckLockTimeVerify Flags = 1 << 9

	// FlagCheckSequenceVerify enables OP_CHECKSEQUENCEVERIFY (BIP112).
	FlagCheckSequenceVerify Flags = 1 << 10

	// FlagWitness enables segregated witness (BIP141, BIP143).
	FlagWitness Flags = 1 << 11

	FlagDiscourageUpgradableWitnessProgram Flags = 1 << 12
	FlagMinimalIf                          Flags = 1 << 13
	FlagNullFail                           Flags = 1 << 14
	FlagWitnessPubKeyType                  Flags = 1 << 15
	FlagConstScriptCode                    Flags = 1 << 16

	// FlagTaproot enables taproot and tapscript (BIP341, BIP342).
	FlagTaproot Flags = 1 << 17

	// Policy flags of the taproot rules. They carry no consensus meaning
	// but are accepted so every defined bit below the end marker is valid.
	FlagDiscourageUpgradableTaprootVersion Flags = 1 << 18
	FlagDiscourageOpSuccess                Flags = 1 << 19
	FlagDiscourageUpgradablePubKeyType     Flags = 1 << 20

	// FlagsAll is every consensus flag.
	FlagsAll = FlagP2SH | FlagDERSig | FlagNullDummy | FlagCheckLockTimeVerify |
		FlagCheckSequenceVerify | FlagWitness | FlagTaproot

	flagsKnown Flags = 1<<21 - 1
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagP2SH, "P2SH"},
	{FlagStrictEncoding, "STRICTENC"},
	{FlagDERSig, "DERSIG"},
	{FlagLowS, "LOW_S"},
	{FlagNullDummy, "NULLDUMMY"},
	{FlagSigPushOnly, "SIGPUSHONLY"},
	{FlagMinimalData, "MINIMALDATA"},
	{FlagDiscourageUpgradableNops, "DISCOURAGE_UPGRADABLE_NOPS"},
	{FlagCleanStack, "CLEANSTACK"},
	{FlagCheckLockTimeVerify, "CHECKLOCKTIMEVERIFY"},
	{FlagCheckSequenceVerify, "CHECKSEQUENCEVERIFY"},
	{FlagWitness, "WITNESS"},
	{FlagDiscourageUpgradableWitnessProgram, "DISCOURAGE_UPGRADABLE_WITNESS_PROGRAM"},
	{FlagMinimalIf, "MINIMALIF"},
	{FlagNullFail, "NULLFAIL"},
	{FlagWitnessPubKeyType, "WITNESS_PUBKEYTYPE"},
	{FlagConstScriptCode, "CONST_SCRIPTCODE"},
	{FlagTaproot, "TAPROOT"},
	{FlagDiscourageUpgradableTaprootVersion, "DISCOURAGE_UPGRADABLE_TAPROOT_VERSION"},
	{FlagDiscourageOpSuccess, "DISCOURAGE_OP_SUCCESS"},
	{FlagDiscourageUpgradablePubKeyType, "DISCOURAGE_UPGRADABLE_PUBKEYTYPE"},
}

// FlagByName returns the flag with the given name, as printed by String.
// "ALL" and "NONE" are accepted as well.
func FlagByName(name string) (Flags, bool) {
	switch name {
	case "ALL":
		return FlagsAll, true
	case "NONE":
		return FlagsNone, true
	}
	for _, fn := range flagNames {
		if fn.name == name {
			return fn.flag, true
		}
	}
	return 0, false
}

func (f Flags) String() string {
	if f == FlagsNone {
		return "NONE"
	}
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	if unknown := f &^ flagsKnown; unknown != 0 {
		names = append(names, "UNKNOWN")
	}
	return strings.Join(names, "|")
}

// Known returns whether f only has defined bits set.
func (f Flags) Known() bool {
	return f&^flagsKnown == 0
}

// validCombination reports whether f could come from a sane policy:
// CLEANSTACK only makes sense together with P2SH and WITNESS, and WITNESS
// requires P2SH.
func (f Flags) validCombination() bool {
	if f&FlagCleanStack != 0 {
		if f&FlagP2SH == 0 || f&FlagWitness == 0 {
			return false
		}
	}
	if f&FlagWitness != 0 && f&FlagP2SH == 0 {
		return false
	}
	return true
}

var txscriptFlags = map[Flags]txscript.ScriptFlags{
	FlagP2SH:                               txscript.ScriptBip16,
	FlagStrictEncoding:                     txscript.ScriptVerifyStrictEncoding,
	FlagDERSig:                             txscript.ScriptVerifyDERSignatures,
	FlagLowS:                               txscript.ScriptVerifyLowS,
	FlagNullDummy:                          txscript.ScriptStrictMultiSig,
	FlagSigPushOnly:                        txscript.ScriptVerifySigPushOnly,
	FlagMinimalData:                        txscript.ScriptVerifyMinimalData,
	FlagDiscourageUpgradableNops:           txscript.ScriptDiscourageUpgradableNops,
	FlagCleanStack:                         txscript.ScriptVerifyCleanStack,
	FlagCheckLockTimeVerify:                txscript.ScriptVerifyCheckLockTimeVerify,
	FlagCheckSequenceVerify:                txscript.ScriptVerifyCheckSequenceVerify,
	FlagWitness:                            txscript.ScriptVerifyWitness,
	FlagDiscourageUpgradableWitnessProgram: txscript.ScriptVerifyDiscourageUpgradeableWitnessProgram,
	FlagMinimalIf:                          txscript.ScriptVerifyMinimalIf,
	FlagNullFail:                           txscript.ScriptVerifyNullFail,
	FlagWitnessPubKeyType:                  txscript.ScriptVerifyWitnessPubKeyType,
	FlagConstScriptCode:                    txscript.ScriptVerifyConstScriptCode,
	FlagTaproot:                            txscript.ScriptVerifyTaproot,
	FlagDiscourageUpgradableTaprootVersion: txscript.ScriptVerifyDiscourageUpgradeableTaprootVersion,
	FlagDiscourageOpSuccess:                txscript.ScriptVerifyDiscourageOpSuccess,
	FlagDiscourageUpgradablePubKeyType:     txscript.ScriptVerifyDiscourageUpgradeablePubkeyType,
}

// ScriptFlags converts f to the script engine's flags.
func (f Flags) ScriptFlags() txscript.ScriptFlags {
	var scriptFlags txscript.ScriptFlags
	for flag, scriptFlag := range txscriptFlags {
		if f&flag != 0 {
			scriptFlags |= scriptFlag
		}
	}
	return scriptFlags
}
