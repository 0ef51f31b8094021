package main

import (
	"encoding/hex"
	"strings"

	"github.com/blockkernel/blockkernel/domain/consensus/utils/scriptverify"
	"github.com/blockkernel/blockkernel/domain/consensus/utils/serialization"
	"github.com/btcsuite/btcd/wire"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	methodScriptPubKeyVerify = "btck_script_pubkey_verify"

	flagPrefix       = "btck_ScriptVerificationFlags_"
	statusType       = "btck_ScriptVerifyStatus"
	unknownMethod    = "UNKNOWN_METHOD"
	handlerErrorType = "HANDLER_ERROR"
)

type request struct {
	ID     string              `json:"id"`
	Method string              `json:"method"`
	Params jsoniter.RawMessage `json:"params"`
}

type response struct {
	ID     string         `json:"id"`
	Result interface{}    `json:"result"`
	Error  *responseError `json:"error"`
}

type responseError struct {
	Code errorCode `json:"code"`
}

type errorCode struct {
	Type   string `json:"type"`
	Member string `json:"member,omitempty"`
}

type spentOutput struct {
	ScriptPubKey string `json:"script_pubkey"`
	Amount       int64  `json:"amount"`
}

type scriptVerifyParams struct {
	ScriptPubKey string        `json:"script_pubkey"`
	Amount       int64         `json:"amount"`
	TxTo         string        `json:"tx_to"`
	InputIndex   uint          `json:"input_index"`
	Flags        []string      `json:"flags"`
	SpentOutputs []spentOutput `json:"spent_outputs"`
}

func errorResponse(id string, code errorCode) *response {
	return &response{ID: id, Error: &responseError{Code: code}}
}

// handleLine answers one request line. It returns nil when the line is not
// a request that can be answered.
func handleLine(line []byte) *response {
	var req request
	err := json.Unmarshal(line, &req)
	if err != nil {
		log.Warnf("Ignoring malformed request: %s", err)
		return nil
	}

	switch req.Method {
	case methodScriptPubKeyVerify:
		res, err := handleScriptPubKeyVerify(req.ID, req.Params)
		if err != nil {
			log.Debugf("Request %s failed: %s", req.ID, err)
			return errorResponse(req.ID, errorCode{Type: handlerErrorType, Member: err.Error()})
		}
		return res
	default:
		return errorResponse(req.ID, errorCode{Type: unknownMethod})
	}
}

func handleScriptPubKeyVerify(id string, rawParams jsoniter.RawMessage) (*response, error) {
	var params scriptVerifyParams
	err := json.Unmarshal(rawParams, &params)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed params")
	}

	flags, err := parseFlags(params.Flags)
	if err != nil {
		return nil, err
	}
	scriptPubKey, err := hex.DecodeString(params.ScriptPubKey)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed script_pubkey")
	}
	serializedTx, err := hex.DecodeString(params.TxTo)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed tx_to")
	}
	tx, err := serialization.DeserializeTransaction(serializedTx)
	if err != nil {
		return nil, err
	}
	spentOutputs := make([]*wire.TxOut, len(params.SpentOutputs))
	for i, output := range params.SpentOutputs {
		pkScript, err := hex.DecodeString(output.ScriptPubKey)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed script_pubkey of spent output %d", i)
		}
		spentOutputs[i] = wire.NewTxOut(output.Amount, pkScript)
	}

	valid, status := scriptverify.Verify(scriptPubKey, params.Amount, tx, params.InputIndex, spentOutputs, flags)
	if status != scriptverify.StatusOK {
		return errorResponse(id, errorCode{Type: statusType, Member: status.String()}), nil
	}
	return &response{ID: id, Result: valid}, nil
}

func parseFlags(names []string) (scriptverify.Flags, error) {
	flags := scriptverify.FlagsNone
	for _, name := range names {
		if !strings.HasPrefix(name, flagPrefix) {
			return 0, errors.Errorf("unknown flag %s", name)
		}
		flag, ok := scriptverify.FlagByName(strings.TrimPrefix(name, flagPrefix))
		if !ok {
			return 0, errors.Errorf("unknown flag %s", name)
		}
		flags |= flag
	}
	return flags, nil
}
