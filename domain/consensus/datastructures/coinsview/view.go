package coinsview

import (
	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

type viewEntry struct {
	// coin is nil when the coin was spent in this view.
	coin *model.Coin
}

// View is a scratch layer over another CoinsView. Nothing reaches the base
// until Commit, so a failed block connection is undone by dropping the view.
type View struct {
	base      model.CoinsView
	entries   map[wire.OutPoint]*viewEntry
	bestBlock *chainhash.Hash
}

// NewView returns an empty view on top of base.
func NewView(base model.CoinsView) *View {
	return &View{
		base:    base,
		entries: make(map[wire.OutPoint]*viewEntry),
	}
}

// GetCoin implements model.CoinsViewReader.
func (v *View) GetCoin(outpoint wire.OutPoint) (*model.Coin, error) {
	if entry, ok := v.entries[outpoint]; ok {
		if entry.coin == nil {
			return nil, nil
		}
		return entry.coin.Clone(), nil
	}
	return v.base.GetCoin(outpoint)
}

// HaveCoin implements model.CoinsViewReader.
func (v *View) HaveCoin(outpoint wire.OutPoint) (bool, error) {
	if entry, ok := v.entries[outpoint]; ok {
		return entry.coin != nil, nil
	}
	return v.base.HaveCoin(outpoint)
}

// BestBlock implements model.CoinsViewReader.
func (v *View) BestBlock() (chainhash.Hash, error) {
	if v.bestBlock != nil {
		return *v.bestBlock, nil
	}
	return v.base.BestBlock()
}

// SetBestBlock implements model.CoinsView.
func (v *View) SetBestBlock(hash chainhash.Hash) {
	v.bestBlock = &hash
}

// AddCoin implements model.CoinsView.
func (v *View) AddCoin(outpoint wire.OutPoint, coin *model.Coin, possibleOverwrite bool) error {
	if !possibleOverwrite {
		exists, err := v.HaveCoin(outpoint)
		if err != nil {
			return err
		}
		if exists {
			return errors.Errorf("attempted to overwrite unspent coin %s", outpoint)
		}
	}
	v.entries[outpoint] = &viewEntry{coin: coin.Clone()}
	return nil
}

// SpendCoin implements model.CoinsView.
func (v *View) SpendCoin(outpoint wire.OutPoint) (*model.Coin, error) {
	coin, err := v.GetCoin(outpoint)
	if err != nil || coin == nil {
		return nil, err
	}
	v.entries[outpoint] = &viewEntry{coin: nil}
	return coin, nil
}

// Commit applies every change of the view to its base and empties the view.
func (v *View) Commit() error {
	for outpoint, entry := range v.entries {
		if entry.coin == nil {
			_, err := v.base.SpendCoin(outpoint)
			if err != nil {
				return err
			}
			continue
		}
		err := v.base.AddCoin(outpoint, entry.coin, true)
		if err != nil {
			return err
		}
	}
	if v.bestBlock != nil {
		v.base.SetBestBlock(*v.bestBlock)
	}
	v.entries = make(map[wire.OutPoint]*viewEntry)
	v.bestBlock = nil
	return nil
}
