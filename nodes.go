package treecontract

import (
	"strconv"
	"strings"
)

// NodeID identifies a node in a Tree.
type NodeID int32

// Nil is the NodeID of no node.
const Nil NodeID = -1

// Op is a binary operator that can be evaluated.
type Op int8

const (
	OpNone Op = iota
	OpAdd
	OpMul
)

func (op Op) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpMul:
		return "*"
	default:
		return "?"
	}
}

// opFor gets the operator for a token's text. Unsupported operators give
// OpNone.
func opFor(text string) Op {
	switch text {
	case "+":
		return OpAdd
	case "*", "×", "·":
		return OpMul
	default:
		return OpNone
	}
}

// node is a node in the expression tree. Links are indices into the owning
// tree's arena.
type node struct {
	kind nodeKind
	op   Op
	// text is the operand rune for operands.
	text string
	// pos is the source column of the token that created the node.
	pos int

	parent NodeID
	left   NodeID
	right  NodeID

	// dead marks a node removed by a rake.
	dead bool
}

type nodeKind int8

const (
	nodeNone nodeKind = iota

	nodeOperand   // leaf, text is a digit or variable name
	nodeOperation // op applied to left and right
)

// Tree is a binary expression tree. The tree owns all of its nodes; links
// between nodes are NodeIDs, never pointers. A Tree is not safe for
// concurrent use, except as arranged by contraction.
type Tree struct {
	nodes []node
	root  NodeID
}

func (t *Tree) add(n node) NodeID {
	n.parent, n.left, n.right = Nil, Nil, Nil
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

// link makes l and r the children of p.
func (t *Tree) link(p, l, r NodeID) {
	t.nodes[p].left = l
	t.nodes[p].right = r
	t.nodes[l].parent = p
	t.nodes[r].parent = p
}

// Root returns the root of the tree.
func (t *Tree) Root() NodeID {
	return t.root
}

// Len returns the number of live nodes in the tree.
func (t *Tree) Len() int {
	n := 0
	for i := range t.nodes {
		if !t.nodes[i].dead {
			n++
		}
	}
	return n
}

// Cap returns the number of nodes ever allocated in the tree, so every NodeID
// in the tree is less than Cap.
func (t *Tree) Cap() int {
	return len(t.nodes)
}

// IsLeaf returns whether id is an operand.
func (t *Tree) IsLeaf(id NodeID) bool {
	return t.nodes[id].kind == nodeOperand
}

// Alive returns whether id has not been removed by contraction.
func (t *Tree) Alive(id NodeID) bool {
	return !t.nodes[id].dead
}

// Op returns the operator of an operation node, or OpNone for operands.
func (t *Tree) Op(id NodeID) Op {
	return t.nodes[id].op
}

// Value returns the operand text of a leaf or the operator symbol of an
// operation.
func (t *Tree) Value(id NodeID) string {
	n := &t.nodes[id]
	if n.kind == nodeOperand {
		return n.text
	}
	return n.op.String()
}

// Pos returns the source column of the token that created id.
func (t *Tree) Pos(id NodeID) int {
	return t.nodes[id].pos
}

// Parent returns the parent of id, or Nil for the root and removed nodes.
func (t *Tree) Parent(id NodeID) NodeID {
	return t.nodes[id].parent
}

// Left returns the left child of id, or Nil.
func (t *Tree) Left(id NodeID) NodeID {
	return t.nodes[id].left
}

// Right returns the right child of id, or Nil.
func (t *Tree) Right(id NodeID) NodeID {
	return t.nodes[id].right
}

// Children returns the left and right children of id.
func (t *Tree) Children(id NodeID) (left, right NodeID) {
	n := &t.nodes[id]
	return n.left, n.right
}

// Sibling returns the other child of id's parent, or Nil if id has no parent.
func (t *Tree) Sibling(id NodeID) NodeID {
	p := t.nodes[id].parent
	if p == Nil {
		return Nil
	}
	if t.nodes[p].left == id {
		return t.nodes[p].right
	}
	return t.nodes[p].left
}

// Clone returns a deep copy of the tree. NodeIDs are preserved.
func (t *Tree) Clone() *Tree {
	return &Tree{
		nodes: append([]node(nil), t.nodes...),
		root:  t.root,
	}
}

// splice removes v and its parent u from the tree, promoting w into u's slot
// in g. left tells whether u is g's left child. splice touches only the
// fields of v, u and w and one child slot of g.
func (t *Tree) splice(v, u, w, g NodeID, left bool) {
	if left {
		t.nodes[g].left = w
	} else {
		t.nodes[g].right = w
	}
	t.nodes[w].parent = g
	un := &t.nodes[u]
	un.left, un.right, un.parent, un.dead = Nil, Nil, Nil, true
	vn := &t.nodes[v]
	vn.parent, vn.dead = Nil, true
}

// String renders the tree in infix order with alternating round and square
// brackets grouping each term.
func (t *Tree) String() string {
	if t.root == Nil {
		return "()"
	}
	var b strings.Builder
	t.fmt(&b, t.root, false, false)
	return b.String()
}

func (t *Tree) fmt(b *strings.Builder, id NodeID, square, alt bool) {
	var l, r byte = '(', ')'
	if square {
		l, r = '[', ']'
	}
	b.WriteByte(l)
	defer b.WriteByte(r)
	n := &t.nodes[id]
	switch n.kind {
	case nodeOperand:
		b.WriteString(n.text)
	case nodeOperation:
		if n.left != Nil {
			t.fmt(b, n.left, !square, alt)
		}
		if n.op == OpMul && alt {
			b.WriteString(" × ")
		} else {
			b.WriteString(" " + n.op.String() + " ")
		}
		if n.right != Nil {
			t.fmt(b, n.right, !square, alt)
		}
	default:
		panic("treecontract: invalid node kind " + strconv.Itoa(int(n.kind)) + " after writing " + b.String())
	}
}
