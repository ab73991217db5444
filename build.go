package treecontract

// Build builds an expression tree from tokens in postfix order. Each operand
// token becomes a leaf; each operator token pops its right and then its left
// operand and becomes their parent. The result has exactly one root.
//
// Operators other than + and * (or their alternate spellings × and ·) give an
// *OperatorError. Too few or too many operands give an *OperandError, and an
// empty sequence gives an *EmptyExpressionError.
func Build(tokens []Token) (*Tree, error) {
	if len(tokens) == 0 {
		return nil, &EmptyExpressionError{Col: 1}
	}
	t := &Tree{nodes: make([]node, 0, len(tokens)), root: Nil}
	stack := make([]NodeID, 0, len(tokens)/2+1)
	for _, tok := range tokens {
		switch tok.Kind {
		case TokenOperand:
			id := t.add(node{kind: nodeOperand, text: tok.Text, pos: tok.Pos})
			stack = append(stack, id)
		case TokenOperator:
			op := opFor(tok.Text)
			if op == OpNone {
				return nil, &OperatorError{Col: tok.Pos, Operator: tok.Text}
			}
			if len(stack) < 2 {
				return nil, &OperandError{Col: tok.Pos, Token: tok.Text, Reason: "not enough operands for"}
			}
			r := stack[len(stack)-1]
			l := stack[len(stack)-2]
			stack = stack[:len(stack)-2]
			id := t.add(node{kind: nodeOperation, op: op, pos: tok.Pos})
			t.link(id, l, r)
			stack = append(stack, id)
		default:
			return nil, &OperandError{Col: tok.Pos, Token: tok.Text, Reason: "unexpected " + tok.Kind.String() + " token"}
		}
	}
	if len(stack) != 1 {
		extra := stack[1]
		return nil, &OperandError{Col: t.Pos(extra), Token: t.Value(extra), Reason: "missing operator before"}
	}
	t.root = stack[0]
	return t, nil
}
