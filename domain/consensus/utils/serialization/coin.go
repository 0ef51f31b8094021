package serialization

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// maxScriptSize bounds decoded scripts so a corrupt length cannot trigger a
// huge allocation.
const maxScriptSize = wire.MaxMessagePayload

// OutpointKeySize is the length of a serialized outpoint key.
const OutpointKeySize = chainhash.HashSize + 4

// OutpointKey serializes outpoint as txid followed by the big-endian output
// index, so keys of one transaction sort by index.
func OutpointKey(outpoint wire.OutPoint) []byte {
	key := make([]byte, OutpointKeySize)
	copy(key, outpoint.Hash[:])
	binary.BigEndian.PutUint32(key[chainhash.HashSize:], outpoint.Index)
	return key
}

// OutpointFromKey is the inverse of OutpointKey.
func OutpointFromKey(key []byte) (wire.OutPoint, error) {
	if len(key) != OutpointKeySize {
		return wire.OutPoint{}, decodeError("outpoint key",
			errors.Errorf("expected %d bytes, got %d", OutpointKeySize, len(key)))
	}
	var outpoint wire.OutPoint
	copy(outpoint.Hash[:], key[:chainhash.HashSize])
	outpoint.Index = binary.BigEndian.Uint32(key[chainhash.HashSize:])
	return outpoint, nil
}

// SerializeCoin encodes a coin as
//
//	varint(height<<1 | coinbase) | int64 amount | varint script length | script
func SerializeCoin(coin *model.Coin) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, coinSerializeSize(coin)))
	err := writeCoin(buf, coin)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeCoin decodes a coin serialized by SerializeCoin.
func DeserializeCoin(serialized []byte) (*model.Coin, error) {
	reader := bytes.NewReader(serialized)
	coin, err := readCoin(reader)
	if err != nil {
		return nil, decodeError("coin", err)
	}
	if reader.Len() != 0 {
		return nil, decodeError("coin", errors.Errorf("%d trailing bytes", reader.Len()))
	}
	return coin, nil
}

func coinSerializeSize(coin *model.Coin) int {
	code := uint64(coin.Height) << 1
	return wire.VarIntSerializeSize(code) + 8 +
		wire.VarIntSerializeSize(uint64(len(coin.PkScript))) + len(coin.PkScript)
}

func writeCoin(w io.Writer, coin *model.Coin) error {
	if coin.Height < 0 {
		return errors.Errorf("cannot serialize a coin at negative height %d", coin.Height)
	}
	code := uint64(coin.Height) << 1
	if coin.IsCoinbase {
		code |= 1
	}
	err := wire.WriteVarInt(w, 0, code)
	if err != nil {
		return errors.WithStack(err)
	}
	err = WriteElement(w, coin.Amount)
	if err != nil {
		return err
	}
	return errors.WithStack(wire.WriteVarBytes(w, 0, coin.PkScript))
}

func readCoin(r io.Reader) (*model.Coin, error) {
	code, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if code>>1 > uint64(^uint32(0)>>1) {
		return nil, errors.Errorf("coin height %d out of range", code>>1)
	}
	coin := &model.Coin{
		Height:     int32(code >> 1),
		IsCoinbase: code&1 == 1,
	}
	err = ReadElement(r, &coin.Amount)
	if err != nil {
		return nil, err
	}
	coin.PkScript, err = wire.ReadVarBytes(r, 0, maxScriptSize, "pkScript")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return coin, nil
}
