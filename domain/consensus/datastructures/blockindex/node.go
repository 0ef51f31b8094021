package blockindex

import (
	"math/big"
	"sort"
	"time"

	"github.com/blockkernel/blockkernel/domain/consensus/model"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// medianTimeBlocks is the number of previous blocks which should be
// used to calculate the median time used to validate block timestamps.
const medianTimeBlocks = 11

// Node represents a block within the block chain. Nodes are owned by the
// Index that created them and are never removed from it, so pointers to
// them stay valid for the lifetime of the index.
type Node struct {
	// parent is the parent block for this node. It is nil for the
	// genesis block.
	parent *Node

	// hash is the double sha 256 of the block header.
	hash chainhash.Hash

	// workSum is the total amount of work in the chain up to and
	// including this node.
	workSum *big.Int

	// height is the position in the block chain.
	height int32

	// sequenceID orders nodes by arrival. Among chains of equal work the
	// one whose tip arrived first is preferred.
	sequenceID uint64

	// Some fields from block headers to aid in best chain selection and
	// reconstructing headers from memory. These must be treated as
	// immutable.
	version    int32
	bits       uint32
	nonce      uint32
	timestamp  int64
	merkleRoot chainhash.Hash

	// The fields below are written under the index lock only.
	status        Status
	blockLocation model.Location
	undoLocation  model.Location
	txCount       uint32
}

func newNode(header *wire.BlockHeader, parent *Node) *Node {
	node := &Node{
		parent:     parent,
		hash:       header.BlockHash(),
		workSum:    blockchain.CalcWork(header.Bits),
		version:    header.Version,
		bits:       header.Bits,
		nonce:      header.Nonce,
		timestamp:  header.Timestamp.Unix(),
		merkleRoot: header.MerkleRoot,
	}
	if parent != nil {
		node.height = parent.height + 1
		node.workSum = node.workSum.Add(parent.workSum, node.workSum)
	}
	return node
}

// Hash returns the block hash.
func (node *Node) Hash() chainhash.Hash {
	return node.hash
}

// Height implements model.ChainContext.
func (node *Node) Height() int32 {
	return node.height
}

// WorkSum returns a copy of the cumulative work up to and including node.
func (node *Node) WorkSum() *big.Int {
	return new(big.Int).Set(node.workSum)
}

// SequenceID returns the arrival order of the node.
func (node *Node) SequenceID() uint64 {
	return node.sequenceID
}

// Timestamp returns the header timestamp.
func (node *Node) Timestamp() time.Time {
	return time.Unix(node.timestamp, 0)
}

// Bits returns the header difficulty target in compact form.
func (node *Node) Bits() uint32 {
	return node.bits
}

// Previous returns the parent node, or nil for genesis.
func (node *Node) Previous() *Node {
	return node.parent
}

// Header implements model.ChainContext.
func (node *Node) Header() wire.BlockHeader {
	// No lock is needed because all accessed fields are immutable.
	var prevHash chainhash.Hash
	if node.parent != nil {
		prevHash = node.parent.hash
	}
	return wire.BlockHeader{
		Version:    node.version,
		PrevBlock:  prevHash,
		MerkleRoot: node.merkleRoot,
		Timestamp:  time.Unix(node.timestamp, 0),
		Bits:       node.bits,
		Nonce:      node.nonce,
	}
}

// ParentContext implements model.ChainContext.
func (node *Node) ParentContext() model.ChainContext {
	if node.parent == nil {
		return nil
	}
	return node.parent
}

// AncestorContext implements model.ChainContext.
func (node *Node) AncestorContext(height int32) model.ChainContext {
	ancestor := node.Ancestor(height)
	if ancestor == nil {
		return nil
	}
	return ancestor
}

// Ancestor returns the ancestor block node at the provided height by following
// the chain backwards from this node. The returned block will be nil when a
// height is requested that is after the height of the passed node or is less
// than zero.
func (node *Node) Ancestor(height int32) *Node {
	if height < 0 || height > node.height {
		return nil
	}

	n := node
	for ; n != nil && n.height != height; n = n.parent {
		// Intentionally left blank
	}

	return n
}

// RelativeAncestor returns the ancestor block node a relative 'distance' blocks
// before this node. This is equivalent to calling Ancestor with the node's
// height minus provided distance.
func (node *Node) RelativeAncestor(distance int32) *Node {
	return node.Ancestor(node.height - distance)
}

// IsAncestorOf returns whether node is other or one of its ancestors.
func (node *Node) IsAncestorOf(other *Node) bool {
	return other.Ancestor(node.height) == node
}

// CalcPastMedianTime calculates the median time of the previous few blocks
// prior to, and including, the block node.
func (node *Node) CalcPastMedianTime() time.Time {
	// Create a slice of the previous few block timestamps used to calculate
	// the median per the number defined by the constant medianTimeBlocks.
	timestamps := make([]int64, 0, medianTimeBlocks)
	iterNode := node
	for i := 0; i < medianTimeBlocks && iterNode != nil; i++ {
		timestamps = append(timestamps, iterNode.timestamp)
		iterNode = iterNode.parent
	}

	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	// NOTE: The consensus rules incorrectly calculate the median for even
	// numbers of blocks. A true median averages the middle two elements
	// for a set with an even number of elements in it. Since the constant
	// for the previous number of blocks to be used is odd, this is only an
	// issue for a few blocks near the beginning of the chain.
	medianTimestamp := timestamps[len(timestamps)/2]
	return time.Unix(medianTimestamp, 0)
}

// isBetterThan reports whether node should be preferred as tip over other:
// more work, or equal work and earlier arrival.
func (node *Node) isBetterThan(other *Node) bool {
	if other == nil {
		return true
	}
	switch node.workSum.Cmp(other.workSum) {
	case 1:
		return true
	case -1:
		return false
	}
	return node.sequenceID < other.sequenceID
}
