package blockindex

import (
	"sync"

	"github.com/blockkernel/blockkernel/domain/chainparams"
	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// Index provides facilities for keeping track of an in-memory index of the
// block chain. Every known block is a node of a tree rooted at genesis.
type Index struct {
	// The following fields are set when the instance is created and can't
	// be changed afterwards, so there is no need to protect them with a
	// separate mutex.
	params *chainparams.Params

	sync.RWMutex
	index          map[chainhash.Hash]*Node
	children       map[*Node][]*Node
	dirty          map[*Node]struct{}
	candidates     map[*Node]struct{}
	genesis        *Node
	nextSequenceID uint64
}

// New returns a new empty instance of a block index. The index will be
// dynamically populated as block nodes are loaded from the database and
// manually added.
func New(params *chainparams.Params) *Index {
	return &Index{
		params:     params,
		index:      make(map[chainhash.Hash]*Node),
		children:   make(map[*Node][]*Node),
		dirty:      make(map[*Node]struct{}),
		candidates: make(map[*Node]struct{}),
	}
}

// HaveBlock returns whether or not the block index contains the provided hash.
//
// This function is safe for concurrent access.
func (bi *Index) HaveBlock(hash *chainhash.Hash) bool {
	bi.RLock()
	defer bi.RUnlock()
	_, hasBlock := bi.index[*hash]
	return hasBlock
}

// LookupNode returns the block node identified by the provided hash. It will
// return nil if there is no entry for the hash.
//
// This function is safe for concurrent access.
func (bi *Index) LookupNode(hash *chainhash.Hash) *Node {
	bi.RLock()
	defer bi.RUnlock()
	return bi.index[*hash]
}

// Genesis returns the genesis node, or nil if it was not added yet.
func (bi *Index) Genesis() *Node {
	bi.RLock()
	defer bi.RUnlock()
	return bi.genesis
}

// Count returns the number of nodes in the index.
func (bi *Index) Count() int {
	bi.RLock()
	defer bi.RUnlock()
	return len(bi.index)
}

// AddNode creates a node for header on top of parent and adds it to the
// index. parent must be nil exactly when header is the genesis header of the
// network. If the header is already indexed, the existing node is returned.
//
// This function is safe for concurrent access.
func (bi *Index) AddNode(header *wire.BlockHeader, parent *Node) (*Node, error) {
	bi.Lock()
	defer bi.Unlock()

	hash := header.BlockHash()
	if existing, ok := bi.index[hash]; ok {
		return existing, nil
	}
	if parent == nil {
		if hash != *bi.params.GenesisHash {
			return nil, errors.Errorf("block %s has no parent and is not the genesis block", hash)
		}
	} else {
		if header.PrevBlock != parent.hash {
			return nil, errors.Errorf("block %s does not build on %s", hash, parent.hash)
		}
		if _, ok := bi.index[parent.hash]; !ok {
			return nil, errors.Errorf("parent %s of block %s is not indexed", parent.hash, hash)
		}
	}

	node := newNode(header, parent)
	node.sequenceID = bi.nextSequenceID
	bi.nextSequenceID++
	bi.addNode(node)
	bi.dirty[node] = struct{}{}
	return node, nil
}

func (bi *Index) addNode(node *Node) {
	bi.index[node.hash] = node
	if node.parent == nil {
		bi.genesis = node
		return
	}
	bi.children[node.parent] = append(bi.children[node.parent], node)
}

// NodeStatus provides concurrent-safe access to the status field of a node.
//
// This function is safe for concurrent access.
func (bi *Index) NodeStatus(node *Node) Status {
	bi.RLock()
	defer bi.RUnlock()
	return node.status
}

// SetStatusFlags flips the provided status flags on the block node to on,
// regardless of whether they were on or off previously. This does not unset
// any flags currently on.
//
// This function is safe for concurrent access.
func (bi *Index) SetStatusFlags(node *Node, flags Status) {
	bi.Lock()
	defer bi.Unlock()
	node.status |= flags
	bi.dirty[node] = struct{}{}
	bi.updateCandidate(node)
}

// UnsetStatusFlags flips the provided status flags on the block node to off,
// regardless of whether they were on or off previously.
//
// This function is safe for concurrent access.
func (bi *Index) UnsetStatusFlags(node *Node, flags Status) {
	bi.Lock()
	defer bi.Unlock()
	node.status &^= flags
	bi.dirty[node] = struct{}{}
	bi.updateCandidate(node)
}

// SetBlockLocation records where the block data of node is stored and marks
// it as stored.
func (bi *Index) SetBlockLocation(node *Node, location model.Location, txCount uint32) {
	bi.Lock()
	defer bi.Unlock()
	node.blockLocation = location
	node.txCount = txCount
	node.status |= StatusDataStored
	bi.dirty[node] = struct{}{}
	bi.updateCandidate(node)
}

// SetUndoLocation records where the undo data of node is stored and marks it
// as stored.
func (bi *Index) SetUndoLocation(node *Node, location model.Location) {
	bi.Lock()
	defer bi.Unlock()
	node.undoLocation = location
	node.status |= StatusUndoStored
	bi.dirty[node] = struct{}{}
}

// BlockLocation returns where the block data of node is stored, and whether
// it is stored at all.
func (bi *Index) BlockLocation(node *Node) (model.Location, bool) {
	bi.RLock()
	defer bi.RUnlock()
	return node.blockLocation, node.status&StatusDataStored != 0
}

// UndoLocation returns where the undo data of node is stored, and whether it
// is stored at all.
func (bi *Index) UndoLocation(node *Node) (model.Location, bool) {
	bi.RLock()
	defer bi.RUnlock()
	return node.undoLocation, node.status&StatusUndoStored != 0
}

// TxCount returns the number of transactions in the block, or zero if its
// data is not stored.
func (bi *Index) TxCount(node *Node) uint32 {
	bi.RLock()
	defer bi.RUnlock()
	return node.txCount
}

// MarkInvalid marks node as failed and every indexed descendant of it as
// having an invalid ancestor. It returns the number of descendants newly
// marked. Only the subtree below node is visited.
func (bi *Index) MarkInvalid(node *Node) int {
	bi.Lock()
	defer bi.Unlock()

	node.status |= StatusValidateFailed
	bi.dirty[node] = struct{}{}
	delete(bi.candidates, node)

	marked := 0
	queue := append([]*Node(nil), bi.children[node]...)
	for len(queue) > 0 {
		descendant := queue[0]
		queue = queue[1:]
		queue = append(queue, bi.children[descendant]...)
		if descendant.status&StatusInvalidAncestor != 0 {
			continue
		}
		descendant.status |= StatusInvalidAncestor
		bi.dirty[descendant] = struct{}{}
		delete(bi.candidates, descendant)
		marked++
	}
	return marked
}

// Children returns the indexed nodes built directly on node.
func (bi *Index) Children(node *Node) []*Node {
	bi.RLock()
	defer bi.RUnlock()
	return append([]*Node(nil), bi.children[node]...)
}

// AddCandidate makes node eligible as a best chain tip again, provided its
// data is stored and it is not known to be invalid.
func (bi *Index) AddCandidate(node *Node) {
	bi.Lock()
	defer bi.Unlock()
	bi.updateCandidate(node)
}

func (bi *Index) updateCandidate(node *Node) {
	if node.status.HaveData() && !node.status.KnownInvalid() {
		bi.candidates[node] = struct{}{}
		return
	}
	delete(bi.candidates, node)
}

// BestCandidate returns the stored, not known invalid node with the most
// cumulative work. Ties go to the node that arrived first.
func (bi *Index) BestCandidate() *Node {
	bi.RLock()
	defer bi.RUnlock()

	var best *Node
	for candidate := range bi.candidates {
		if candidate.isBetterThan(best) {
			best = candidate
		}
	}
	return best
}

// PruneCandidates drops every candidate that can no longer be preferred over
// tip.
func (bi *Index) PruneCandidates(tip *Node) {
	bi.Lock()
	defer bi.Unlock()
	for candidate := range bi.candidates {
		if candidate != tip && tip.isBetterThan(candidate) {
			delete(bi.candidates, candidate)
		}
	}
}

// MostWorkInvalid returns the known invalid node with the most work among
// those whose data was stored, or nil if there is none. Headers rejected
// before storage only claim their work and are ignored.
func (bi *Index) MostWorkInvalid() *Node {
	bi.RLock()
	defer bi.RUnlock()
	var best *Node
	for _, node := range bi.index {
		if node.status.KnownInvalid() && node.status.HaveData() && node.isBetterThan(best) {
			best = node
		}
	}
	return best
}

// IsDirty returns whether node has changes that were not flushed yet.
func (bi *Index) IsDirty(node *Node) bool {
	bi.RLock()
	defer bi.RUnlock()
	_, ok := bi.dirty[node]
	return ok
}
