package treecontract

import "iter"

// Filter selects nodes during a traversal.
type Filter func(t *Tree, id NodeID) bool

// All selects every node.
func All(*Tree, NodeID) bool { return true }

// Leaves selects operands.
func Leaves(t *Tree, id NodeID) bool { return t.IsLeaf(id) }

// Operations selects operator nodes.
func Operations(t *Tree, id NodeID) bool { return !t.IsLeaf(id) }

// Postorder returns the live nodes of the tree selected by keep in postorder:
// children before their parent, left before right. A nil keep selects every
// node. The sequence is lazy and may be ranged over any number of times; each
// iteration walks the tree as it is when the iteration starts. The tree must
// not be modified during an iteration.
func (t *Tree) Postorder(keep Filter) iter.Seq[NodeID] {
	return func(yield func(NodeID) bool) {
		if t.root == Nil {
			return
		}
		var stack []NodeID
		last := Nil
		n := t.root
		for n != Nil || len(stack) > 0 {
			if n != Nil {
				stack = append(stack, n)
				n = t.nodes[n].left
				continue
			}
			top := stack[len(stack)-1]
			if r := t.nodes[top].right; r != Nil && r != last {
				n = r
				continue
			}
			stack = stack[:len(stack)-1]
			last = top
			if keep == nil || keep(t, top) {
				if !yield(top) {
					return
				}
			}
		}
	}
}

// Leaves is a shortcut for t.Postorder(Leaves).
func (t *Tree) Leaves() iter.Seq[NodeID] {
	return t.Postorder(Leaves)
}

// Operations is a shortcut for t.Postorder(Operations).
func (t *Tree) Operations() iter.Seq[NodeID] {
	return t.Postorder(Operations)
}
