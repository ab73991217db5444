package treecontract

import "math/big"

// Affine is a transform x ↦ A*x + B. During contraction each node carries one,
// meaning that the node's position in the original tree contributes
// A*value + B, where value is the current value of the node.
type Affine struct {
	A, B *big.Float
}

func identity(prec uint) Affine {
	return Affine{
		A: new(big.Float).SetPrec(prec).SetInt64(1),
		B: new(big.Float).SetPrec(prec),
	}
}

// Apply returns A*x + B as a new value with precision prec.
func (f Affine) Apply(x *big.Float, prec uint) *big.Float {
	r := new(big.Float).SetPrec(prec).Mul(f.A, x)
	return r.Add(r, f.B)
}

// Copy returns a deep copy of f.
func (f Affine) Copy() Affine {
	return Affine{A: new(big.Float).Copy(f.A), B: new(big.Float).Copy(f.B)}
}

// compose returns the transform of the sibling w after raking the leaf v with
// value cv out from under their parent u, which applies op:
//
//	+:  a' = a_u*a_w               b' = a_u*(a_v*c_v + b_v + b_w) + b_u
//	*:  a' = a_u*(a_v*c_v + b_v)*a_w   b' = a_u*(a_v*c_v + b_v)*b_w + b_u
func compose(op Op, u, v Affine, cv *big.Float, w Affine, prec uint) Affine {
	mul := func(x, y *big.Float) *big.Float { return new(big.Float).SetPrec(prec).Mul(x, y) }
	add := func(x, y *big.Float) *big.Float { return new(big.Float).SetPrec(prec).Add(x, y) }
	switch op {
	case OpAdd:
		return Affine{
			A: mul(u.A, w.A),
			B: add(mul(u.A, add(add(mul(v.A, cv), v.B), w.B)), u.B),
		}
	case OpMul:
		k := mul(u.A, add(mul(v.A, cv), v.B))
		return Affine{
			A: mul(k, w.A),
			B: add(mul(k, w.B), u.B),
		}
	default:
		panic("treecontract: compose with invalid operator " + op.String())
	}
}

// combine applies op to x and y.
func combine(op Op, x, y *big.Float, prec uint) *big.Float {
	r := new(big.Float).SetPrec(prec)
	switch op {
	case OpAdd:
		return r.Add(x, y)
	case OpMul:
		return r.Mul(x, y)
	default:
		panic("treecontract: combine with invalid operator " + op.String())
	}
}
