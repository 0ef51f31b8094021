package serialization

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
)

func witnessTx() *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{1, 2, 3}, Index: 7},
		Witness:          wire.TxWitness{{0x30, 0x44}, {0x02, 0x03}},
		Sequence:         0xfffffffd,
	})
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{4}, Index: 0},
		SignatureScript:  []byte{0x51},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(12345, []byte{0x00, 0x14, 0xaa}))
	tx.LockTime = 500
	return tx
}

func TestTransactionRoundTrip(t *testing.T) {
	tx := witnessTx()
	serialized, err := SerializeTransaction(tx)
	if err != nil {
		t.Fatalf("SerializeTransaction: %s", err)
	}
	decoded, err := DeserializeTransaction(serialized)
	if err != nil {
		t.Fatalf("DeserializeTransaction: %s", err)
	}
	if decoded.TxHash() != tx.TxHash() || decoded.WitnessHash() != tx.WitnessHash() {
		t.Fatalf("round trip mismatch: got %s want %s", spew.Sdump(decoded), spew.Sdump(tx))
	}
	if !reflect.DeepEqual(decoded.TxIn[0].Witness, tx.TxIn[0].Witness) ||
		decoded.TxIn[0].PreviousOutPoint != tx.TxIn[0].PreviousOutPoint ||
		decoded.LockTime != tx.LockTime {
		t.Fatalf("round trip lost fields: %s", spew.Sdump(decoded))
	}
	reserialized, err := SerializeTransaction(decoded)
	if err != nil {
		t.Fatalf("SerializeTransaction: %s", err)
	}
	if !bytes.Equal(reserialized, serialized) {
		t.Fatalf("encoding is not canonical")
	}
	if decoded.TxHash() == decoded.WitnessHash() {
		t.Fatalf("txid must exclude the witness")
	}
}

func TestDeserializeRejectsMalformedInput(t *testing.T) {
	serialized, err := SerializeTransaction(witnessTx())
	if err != nil {
		t.Fatalf("SerializeTransaction: %s", err)
	}
	genesis, err := SerializeBlock(chaincfg.MainNetParams.GenesisBlock)
	if err != nil {
		t.Fatalf("SerializeBlock: %s", err)
	}

	tests := []struct {
		name   string
		decode func() error
	}{
		{"empty transaction", func() error { _, err := DeserializeTransaction(nil); return err }},
		{"truncated transaction", func() error {
			_, err := DeserializeTransaction(serialized[:len(serialized)-1])
			return err
		}},
		{"transaction with trailing bytes", func() error {
			_, err := DeserializeTransaction(append(append([]byte{}, serialized...), 0x00))
			return err
		}},
		{"truncated block", func() error { _, err := DeserializeBlock(genesis[:100]); return err }},
		{"block with trailing bytes", func() error {
			_, err := DeserializeBlock(append(append([]byte{}, genesis...), 0x01))
			return err
		}},
		{"short header", func() error { _, err := DeserializeBlockHeader(genesis[:79]); return err }},
		{"truncated coin", func() error { _, err := DeserializeCoin([]byte{0x02}); return err }},
		{"undo with impossible count", func() error {
			_, err := DeserializeBlockUndo([]byte{0xfd, 0xff, 0xff})
			return err
		}},
	}
	for _, test := range tests {
		err := test.decode()
		if err == nil {
			t.Errorf("%s: expected an error", test.name)
			continue
		}
		if !IsDecodeError(err) {
			t.Errorf("%s: expected a decode error, got %v", test.name, err)
		}
	}
}

func TestBlockRoundTrip(t *testing.T) {
	genesis := chaincfg.MainNetParams.GenesisBlock
	serialized, err := SerializeBlock(genesis)
	if err != nil {
		t.Fatalf("SerializeBlock: %s", err)
	}
	decoded, err := DeserializeBlock(serialized)
	if err != nil {
		t.Fatalf("DeserializeBlock: %s", err)
	}
	if decoded.BlockHash() != *chaincfg.MainNetParams.GenesisHash {
		t.Fatalf("unexpected genesis hash %s", decoded.BlockHash())
	}
	reserialized, err := SerializeBlock(decoded)
	if err != nil {
		t.Fatalf("SerializeBlock: %s", err)
	}
	if !bytes.Equal(reserialized, serialized) {
		t.Fatalf("block encoding is not canonical")
	}

	header, err := DeserializeBlockHeader(serialized[:wire.MaxBlockHeaderPayload])
	if err != nil {
		t.Fatalf("DeserializeBlockHeader: %s", err)
	}
	if header.BlockHash() != decoded.BlockHash() {
		t.Fatalf("header hash differs from block hash")
	}
	headerBytes, err := SerializeBlockHeader(header)
	if err != nil {
		t.Fatalf("SerializeBlockHeader: %s", err)
	}
	if !bytes.Equal(headerBytes, serialized[:wire.MaxBlockHeaderPayload]) {
		t.Fatalf("header encoding is not canonical")
	}
}

func TestCoinAndUndoRoundTrip(t *testing.T) {
	coins := []*model.Coin{
		{Amount: 5000000000, PkScript: []byte{0x51}, Height: 0, IsCoinbase: true},
		{Amount: 1, PkScript: []byte{}, Height: 700000, IsCoinbase: false},
		{Amount: 21, PkScript: bytes.Repeat([]byte{0xab}, 300), Height: 1 << 30, IsCoinbase: true},
	}
	for i, coin := range coins {
		serialized, err := SerializeCoin(coin)
		if err != nil {
			t.Fatalf("SerializeCoin %d: %s", i, err)
		}
		decoded, err := DeserializeCoin(serialized)
		if err != nil {
			t.Fatalf("DeserializeCoin %d: %s", i, err)
		}
		if !decoded.Equal(coin) {
			t.Fatalf("coin %d: got %s want %s", i, spew.Sdump(decoded), spew.Sdump(coin))
		}
	}

	undo := &model.BlockUndo{TxUndos: []*model.TxUndo{
		{SpentCoins: coins[:2]},
		{SpentCoins: coins[2:]},
	}}
	serialized, err := SerializeBlockUndo(undo)
	if err != nil {
		t.Fatalf("SerializeBlockUndo: %s", err)
	}
	decoded, err := DeserializeBlockUndo(serialized)
	if err != nil {
		t.Fatalf("DeserializeBlockUndo: %s", err)
	}
	if len(decoded.TxUndos) != 2 || len(decoded.TxUndos[0].SpentCoins) != 2 ||
		len(decoded.TxUndos[1].SpentCoins) != 1 {
		t.Fatalf("unexpected undo shape %s", spew.Sdump(decoded))
	}
	for i, txUndo := range decoded.TxUndos {
		for j, coin := range txUndo.SpentCoins {
			if !coin.Equal(undo.TxUndos[i].SpentCoins[j]) {
				t.Fatalf("undo coin %d/%d mismatch", i, j)
			}
		}
	}

	empty, err := SerializeBlockUndo(&model.BlockUndo{})
	if err != nil {
		t.Fatalf("SerializeBlockUndo: %s", err)
	}
	decodedEmpty, err := DeserializeBlockUndo(empty)
	if err != nil || len(decodedEmpty.TxUndos) != 0 {
		t.Fatalf("empty undo: %v (%v)", decodedEmpty, err)
	}
}

func TestOutpointKey(t *testing.T) {
	outpoint := wire.OutPoint{Hash: chainhash.Hash{9, 8, 7}, Index: 258}
	key := OutpointKey(outpoint)
	if len(key) != OutpointKeySize {
		t.Fatalf("unexpected key length %d", len(key))
	}
	decoded, err := OutpointFromKey(key)
	if err != nil {
		t.Fatalf("OutpointFromKey: %s", err)
	}
	if decoded != outpoint {
		t.Fatalf("got %s want %s", decoded, outpoint)
	}
	next := OutpointKey(wire.OutPoint{Hash: outpoint.Hash, Index: 259})
	if bytes.Compare(key, next) >= 0 {
		t.Fatalf("keys of one transaction must sort by index")
	}
}
