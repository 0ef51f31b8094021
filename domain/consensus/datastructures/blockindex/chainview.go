package blockindex

import "sync"

// ChainView provides a flat view of a specific branch of the block chain from
// its tip back to the genesis block and provides various convenience functions
// for comparing chains.
//
// The chain view for the branch ending in 6a consists of:
//
//	genesis -> 1 -> 2 -> 3 -> 4a -> 5a -> 6a
//
// The view is backed by a slice indexed by height, so lookups by height are
// O(1).
type ChainView struct {
	mtx   sync.RWMutex
	nodes []*Node
}

// NewChainView returns a new chain view for the given tip block node. Passing
// nil as the tip will result in a chain view that is not initialized.
func NewChainView(tip *Node) *ChainView {
	var c ChainView
	c.setTip(tip)
	return &c
}

// Genesis returns the genesis block for the chain view, or nil if the view
// is empty.
//
// This function is safe for concurrent access.
func (c *ChainView) Genesis() *Node {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	if len(c.nodes) == 0 {
		return nil
	}
	return c.nodes[0]
}

// Tip returns the current tip block node for the chain view. It will return
// nil if there is no tip.
//
// This function is safe for concurrent access.
func (c *ChainView) Tip() *Node {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.tip()
}

func (c *ChainView) tip() *Node {
	if len(c.nodes) == 0 {
		return nil
	}
	return c.nodes[len(c.nodes)-1]
}

// setTip sets the chain view to use the provided block node as the current
// tip and ensures the view is consistent by populating it with the nodes
// obtained by walking backwards all the way to genesis block as necessary.
// Only the part of the view that differs from the new branch is rewritten.
func (c *ChainView) setTip(node *Node) {
	if node == nil {
		c.nodes = nil
		return
	}

	needed := int(node.height) + 1
	if cap(c.nodes) < needed {
		nodes := make([]*Node, needed, needed+needed/8)
		copy(nodes, c.nodes)
		c.nodes = nodes
	} else {
		for i := needed; i < len(c.nodes); i++ {
			c.nodes[i] = nil
		}
		c.nodes = c.nodes[:needed]
	}

	for node != nil && c.nodes[node.height] != node {
		c.nodes[node.height] = node
		node = node.parent
	}
}

// SetTip sets the chain view to use the provided block node as the current
// tip. Passing nil empties the view.
//
// This function is safe for concurrent access.
func (c *ChainView) SetTip(node *Node) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.setTip(node)
}

// Height returns the height of the tip of the chain view. It will return -1 if
// there is no tip (which only happens if the chain view has not been
// initialized).
//
// This function is safe for concurrent access.
func (c *ChainView) Height() int32 {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return int32(len(c.nodes) - 1)
}

func (c *ChainView) nodeByHeight(height int32) *Node {
	if height < 0 || height >= int32(len(c.nodes)) {
		return nil
	}
	return c.nodes[height]
}

// NodeByHeight returns the block node at the specified height. Nil will be
// returned if the height does not exist.
//
// This function is safe for concurrent access.
func (c *ChainView) NodeByHeight(height int32) *Node {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.nodeByHeight(height)
}

func (c *ChainView) contains(node *Node) bool {
	return c.nodeByHeight(node.height) == node
}

// Contains returns whether or not the chain view contains the passed block
// node.
//
// This function is safe for concurrent access.
func (c *ChainView) Contains(node *Node) bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.contains(node)
}

// Next returns the successor to the provided node for the chain view. It will
// return nil if there is no successor or the provided node is not part of the
// view.
//
// This function is safe for concurrent access.
func (c *ChainView) Next(node *Node) *Node {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	if node == nil || !c.contains(node) {
		return nil
	}
	return c.nodeByHeight(node.height + 1)
}

// FindFork returns the final common block between the provided node and the
// the chain view. It will return nil if there is no common block.
//
// For example, assume a block chain with a side chain as depicted below:
//
//	genesis -> 1 -> 2 -> ... -> 5 -> 6  -> 7  -> 8
//	                             \-> 6a -> 7a
//
// Further, assume the view is for the longer chain depicted above. That is to
// say it consists of:
//
//	genesis -> 1 -> 2 -> ... -> 5 -> 6 -> 7 -> 8
//
// Invoking this function with block node 7a would return block node 5 while
// invoking it with block node 7 would return itself since it is already part of
// the branch formed by the view.
//
// This function is safe for concurrent access.
func (c *ChainView) FindFork(node *Node) *Node {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	if node == nil {
		return nil
	}

	// If the passed node is higher than the end of the current chain view,
	// start from its ancestor at the height of the view.
	//
	// NOTE: This isn't strictly necessary as the following section will
	// find the node as well, however, it is more efficient to avoid the
	// contains check since it is already known that the common node can't
	// possibly be past the end of the current chain.
	chainHeight := int32(len(c.nodes) - 1)
	if node.height > chainHeight {
		node = node.Ancestor(chainHeight)
	}

	// Walk the other chain backwards as long as the current one does not
	// contain the node or there are no more nodes in which case there is no
	// common node between the two.
	for node != nil && !c.contains(node) {
		node = node.parent
	}

	return node
}
