// Package treecontract evaluates arithmetic expressions by parallel tree
// contraction.
//
// Expressions are sums and products of single-character operands, e.g.
// "((2+3)*2)+((4*2)+2)". Digits are numbers; letters are variables bound in
// the evaluation context. An expression is parsed to postfix order, built into
// a binary expression tree, and then contracted in synchronous rounds. Each
// round rakes about half of the remaining leaves: a raked leaf and its parent
// operator are removed from the tree and their effect is folded into an affine
// transform (a, b) carried by the leaf's sibling. When only the root and its
// two boundary leaves remain, the root operator combines a*value+b of each.
//
// Within a round, rakes of left-child leaves never share a parent and never
// remove a node another of them touches, so they may run concurrently. See
// the Parallel option.
package treecontract
