package model

// TxUndo holds the coins one transaction spent, in input order.
type TxUndo struct {
	SpentCoins []*Coin
}

// BlockUndo holds what is needed to reverse a block's effect on the coins
// view: one TxUndo per transaction, coinbase excluded.
type BlockUndo struct {
	TxUndos []*TxUndo
}
