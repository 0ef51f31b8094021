package serialization

import (
	"bytes"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// ErrDecode is wrapped by every error caused by malformed input.
var ErrDecode = errors.New("decode error")

// IsDecodeError returns whether err was caused by malformed input.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrDecode)
}

func decodeError(what string, err error) error {
	return errors.Wrapf(ErrDecode, "%s: %s", what, err)
}

// DeserializeTransaction decodes a transaction in witness serialization
// form. Truncated input and trailing bytes are rejected.
func DeserializeTransaction(serialized []byte) (*wire.MsgTx, error) {
	reader := bytes.NewReader(serialized)
	tx := &wire.MsgTx{}
	err := tx.Deserialize(reader)
	if err != nil {
		return nil, decodeError("transaction", err)
	}
	if reader.Len() != 0 {
		return nil, decodeError("transaction", errors.Errorf("%d trailing bytes", reader.Len()))
	}
	return tx, nil
}

// SerializeTransaction encodes tx with its witness data, if any.
func SerializeTransaction(tx *wire.MsgTx) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, tx.SerializeSize()))
	err := tx.Serialize(buf)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

// DeserializeBlock decodes a block. Truncated input and trailing bytes are
// rejected.
func DeserializeBlock(serialized []byte) (*wire.MsgBlock, error) {
	reader := bytes.NewReader(serialized)
	block := &wire.MsgBlock{}
	err := block.Deserialize(reader)
	if err != nil {
		return nil, decodeError("block", err)
	}
	if reader.Len() != 0 {
		return nil, decodeError("block", errors.Errorf("%d trailing bytes", reader.Len()))
	}
	return block, nil
}

// SerializeBlock encodes block with the witness data of its transactions.
func SerializeBlock(block *wire.MsgBlock) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, block.SerializeSize()))
	err := block.Serialize(buf)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

// DeserializeBlockHeader decodes an 80-byte block header.
func DeserializeBlockHeader(serialized []byte) (*wire.BlockHeader, error) {
	if len(serialized) != wire.MaxBlockHeaderPayload {
		return nil, decodeError("block header", errors.Errorf("expected %d bytes, got %d",
			wire.MaxBlockHeaderPayload, len(serialized)))
	}
	header := &wire.BlockHeader{}
	err := header.Deserialize(bytes.NewReader(serialized))
	if err != nil {
		return nil, decodeError("block header", err)
	}
	return header, nil
}

// SerializeBlockHeader encodes header into its 80-byte form.
func SerializeBlockHeader(header *wire.BlockHeader) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, wire.MaxBlockHeaderPayload))
	err := header.Serialize(buf)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}
