package graph

import "time"

// snapshotNode is one node of the AVL tree backing SnapshotTree.
type snapshotNode struct {
	timestamp time.Time
	graph     *MappedGraph
	height    int
	left      *snapshotNode
	right     *snapshotNode
}

// SnapshotTree is an ordered map from timestamp to *MappedGraph, balanced as
// an AVL tree so that insertion and max-less-than lookups both run in
// O(log n). Entries are the weekly-optimized graph snapshots a pair
// converter builds over the lifetime of a manifest.
type SnapshotTree struct {
	root *snapshotNode
	size int
}

// NewSnapshotTree returns an empty snapshot tree.
func NewSnapshotTree() *SnapshotTree {
	return &SnapshotTree{}
}

// Len returns the number of snapshots stored.
func (t *SnapshotTree) Len() int {
	return t.size
}

// Insert adds a (timestamp, graph) snapshot. It reports false without
// modifying the tree if a snapshot already exists at exactly ts.
func (t *SnapshotTree) Insert(ts time.Time, g *MappedGraph) bool {
	var inserted bool
	t.root, inserted = insertNode(t.root, ts, g)
	if inserted {
		t.size++
	}
	return inserted
}

func insertNode(n *snapshotNode, ts time.Time, g *MappedGraph) (*snapshotNode, bool) {
	if n == nil {
		return &snapshotNode{timestamp: ts, graph: g, height: 1}, true
	}

	var inserted bool
	switch {
	case ts.Equal(n.timestamp):
		return n, false
	case ts.Before(n.timestamp):
		n.left, inserted = insertNode(n.left, ts, g)
	default:
		n.right, inserted = insertNode(n.right, ts, g)
	}
	if !inserted {
		return n, false
	}

	n.height = 1 + maxInt(nodeHeight(n.left), nodeHeight(n.right))
	return rebalance(n), true
}

// FindMaxValueLessThan returns the graph with the greatest timestamp that is
// strictly before ts. It returns false if no such snapshot exists.
func (t *SnapshotTree) FindMaxValueLessThan(ts time.Time) (*MappedGraph, bool) {
	n := t.root
	var best *snapshotNode
	for n != nil {
		if n.timestamp.Before(ts) {
			best = n
			n = n.right
		} else {
			n = n.left
		}
	}
	if best == nil {
		return nil, false
	}
	return best.graph, true
}

func nodeHeight(n *snapshotNode) int {
	if n == nil {
		return 0
	}
	return n.height
}

func balanceFactor(n *snapshotNode) int {
	if n == nil {
		return 0
	}
	return nodeHeight(n.left) - nodeHeight(n.right)
}

func rotateRight(y *snapshotNode) *snapshotNode {
	x := y.left
	t2 := x.right

	x.right = y
	y.left = t2

	y.height = 1 + maxInt(nodeHeight(y.left), nodeHeight(y.right))
	x.height = 1 + maxInt(nodeHeight(x.left), nodeHeight(x.right))

	return x
}

func rotateLeft(x *snapshotNode) *snapshotNode {
	y := x.right
	t2 := y.left

	y.left = x
	x.right = t2

	x.height = 1 + maxInt(nodeHeight(x.left), nodeHeight(x.right))
	y.height = 1 + maxInt(nodeHeight(y.left), nodeHeight(y.right))

	return y
}

func rebalance(n *snapshotNode) *snapshotNode {
	bf := balanceFactor(n)

	if bf > 1 {
		if balanceFactor(n.left) < 0 {
			n.left = rotateLeft(n.left)
		}
		return rotateRight(n)
	}
	if bf < -1 {
		if balanceFactor(n.right) > 0 {
			n.right = rotateRight(n.right)
		}
		return rotateLeft(n)
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
