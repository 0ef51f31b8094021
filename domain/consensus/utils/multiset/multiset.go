package multiset

import (
	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/kaspanet/go-muhash"
	"github.com/pkg/errors"
)

type multiset struct {
	ms *muhash.MuHash
}

func (m *multiset) Add(data []byte) {
	m.ms.Add(data)
}

func (m *multiset) Remove(data []byte) {
	m.ms.Remove(data)
}

func (m *multiset) Hash() chainhash.Hash {
	finalizedHash := m.ms.Finalize()
	var hash chainhash.Hash
	copy(hash[:], finalizedHash[:])
	return hash
}

func (m *multiset) Serialize() []byte {
	return m.ms.Serialize()[:]
}

func (m *multiset) Clone() model.Multiset {
	clone, err := FromBytes(m.Serialize())
	if err != nil {
		panic(errors.Wrap(err, "a serialized multiset failed to deserialize"))
	}
	return clone
}

// FromBytes deserializes the given bytes slice and returns a multiset.
func FromBytes(multisetBytes []byte) (model.Multiset, error) {
	serialized := &muhash.SerializedMuHash{}
	if len(serialized) != len(multisetBytes) {
		return nil, errors.Errorf("multiset bytes expected to be in length of %d but got %d",
			len(serialized), len(multisetBytes))
	}
	copy(serialized[:], multisetBytes)
	ms, err := muhash.DeserializeMuHash(serialized)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &multiset{ms: ms}, nil
}

// New returns a new model.Multiset
func New() model.Multiset {
	return &multiset{ms: muhash.NewMuHash()}
}
