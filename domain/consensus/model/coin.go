package model

import "github.com/btcsuite/btcd/wire"

// Coin is an unspent transaction output together with the context it was
// created in.
type Coin struct {
	Amount     int64
	PkScript   []byte
	Height     int32
	IsCoinbase bool
}

// NewCoin creates a coin for txOut created at height.
func NewCoin(txOut *wire.TxOut, height int32, isCoinbase bool) *Coin {
	return &Coin{
		Amount:     txOut.Value,
		PkScript:   txOut.PkScript,
		Height:     height,
		IsCoinbase: isCoinbase,
	}
}

// TxOut returns the coin as a transaction output.
func (c *Coin) TxOut() *wire.TxOut {
	return wire.NewTxOut(c.Amount, c.PkScript)
}

// Clone returns a deep copy of the coin.
func (c *Coin) Clone() *Coin {
	clone := *c
	clone.PkScript = append([]byte(nil), c.PkScript...)
	return &clone
}

// Equal returns whether both coins are identical.
func (c *Coin) Equal(other *Coin) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.Amount != other.Amount || c.Height != other.Height || c.IsCoinbase != other.IsCoinbase {
		return false
	}
	if len(c.PkScript) != len(other.PkScript) {
		return false
	}
	for i := range c.PkScript {
		if c.PkScript[i] != other.PkScript[i] {
			return false
		}
	}
	return true
}
