package serialization

import (
	"bytes"
	"io"

	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// minCoinSize is the smallest possible serialized coin: a one-byte code, the
// amount and an empty script.
const minCoinSize = 1 + 8 + 1

// SerializeBlockUndo encodes undo data as a varint transaction count
// followed, per transaction, by a varint coin count and the coins.
func SerializeBlockUndo(undo *model.BlockUndo) ([]byte, error) {
	buf := &bytes.Buffer{}
	err := wire.WriteVarInt(buf, 0, uint64(len(undo.TxUndos)))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for _, txUndo := range undo.TxUndos {
		err := wire.WriteVarInt(buf, 0, uint64(len(txUndo.SpentCoins)))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		for _, coin := range txUndo.SpentCoins {
			err := writeCoin(buf, coin)
			if err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

// DeserializeBlockUndo decodes undo data serialized by SerializeBlockUndo.
func DeserializeBlockUndo(serialized []byte) (*model.BlockUndo, error) {
	reader := bytes.NewReader(serialized)
	undo, err := readBlockUndo(reader)
	if err != nil {
		return nil, decodeError("block undo", err)
	}
	if reader.Len() != 0 {
		return nil, decodeError("block undo", errors.Errorf("%d trailing bytes", reader.Len()))
	}
	return undo, nil
}

func readBlockUndo(reader *bytes.Reader) (*model.BlockUndo, error) {
	txCount, err := readCount(reader, 1)
	if err != nil {
		return nil, err
	}
	undo := &model.BlockUndo{TxUndos: make([]*model.TxUndo, txCount)}
	for i := range undo.TxUndos {
		coinCount, err := readCount(reader, minCoinSize)
		if err != nil {
			return nil, err
		}
		txUndo := &model.TxUndo{SpentCoins: make([]*model.Coin, coinCount)}
		for j := range txUndo.SpentCoins {
			txUndo.SpentCoins[j], err = readCoin(reader)
			if err != nil {
				return nil, err
			}
		}
		undo.TxUndos[i] = txUndo
	}
	return undo, nil
}

// readCount reads a varint element count and rejects counts that cannot fit
// in the remaining input given each element's minimum size.
func readCount(reader *bytes.Reader, minElementSize int) (uint64, error) {
	count, err := wire.ReadVarInt(reader, 0)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	if count > uint64(reader.Len()/minElementSize) {
		return 0, errors.Wrapf(io.ErrUnexpectedEOF, "count %d exceeds the remaining %d bytes",
			count, reader.Len())
	}
	return count, nil
}
