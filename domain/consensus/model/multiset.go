package model

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// Multiset is a set hash that supports adding and removing elements in any
// order
type Multiset interface {
	Add(data []byte)
	Remove(data []byte)
	Hash() chainhash.Hash
	Serialize() []byte
	Clone() Multiset
}
