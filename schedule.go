package treecontract

import (
	"errors"
	"math/big"

	"github.com/zephyrtronium/bigfloat"
)

// rake is a planned rake: leaf v is removed with its parent u, and the sibling
// w moves into u's slot in the grandparent g.
type rake struct {
	v, u, w, g NodeID
	// left is whether u is g's left child.
	left bool
}

// split partitions leaves by index parity. odd holds the leaves at even
// 0-based indices, i.e. the first, third, and so on.
func split(leaves []NodeID) (odd, even []NodeID) {
	odd = make([]NodeID, 0, (len(leaves)+1)/2)
	even = make([]NodeID, 0, len(leaves)/2)
	for i, v := range leaves {
		if i%2 == 0 {
			odd = append(odd, v)
		} else {
			even = append(even, v)
		}
	}
	return odd, even
}

// independent checks that the rakes in a batch can run in any order or at the
// same time: no node removed by one rake is touched by another, no two rakes
// share a sibling, and no two rakes replace the same child slot. A node may
// be the sibling of one rake and the grandparent of another, since those
// rakes write disjoint fields of it. On failure, independent returns the
// contested node.
func independent(batch []rake) (NodeID, bool) {
	type slot struct {
		g    NodeID
		left bool
	}
	touched := make(map[NodeID]int, 4*len(batch))
	siblings := make(map[NodeID]bool, len(batch))
	slots := make(map[slot]bool, len(batch))
	for _, r := range batch {
		for _, id := range [...]NodeID{r.v, r.u, r.w, r.g} {
			touched[id]++
		}
		if siblings[r.w] {
			return r.w, false
		}
		siblings[r.w] = true
		s := slot{r.g, r.left}
		if slots[s] {
			return r.g, false
		}
		slots[s] = true
	}
	for _, r := range batch {
		if touched[r.v] > 1 {
			return r.v, false
		}
		if touched[r.u] > 1 {
			return r.u, false
		}
	}
	return Nil, true
}

// RoundBound returns ⌈log_1.5 k⌉, an upper bound on the number of contraction
// rounds for a tree with k leaves.
func RoundBound(k int) int {
	if k < 2 {
		return 0
	}
	n := new(big.Float).SetPrec(64).SetInt64(int64(k))
	b := new(big.Float).SetPrec(64).SetFloat64(1.5)
	bigfloat.Log(n, n)
	bigfloat.Log(b, b)
	n.Quo(n, b)
	r, acc := n.Int64()
	if acc == big.Below {
		r++
	}
	return int(r)
}

func isViolation(err error) bool {
	return errors.Is(err, ErrStructuralViolation)
}
