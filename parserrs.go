package treecontract

import (
	"errors"
	"strconv"
)

var (
	// ErrMalformedExpression matches errors from input that is not a valid
	// expression: unbalanced brackets, missing or extra operands, and
	// unrecognized runes.
	ErrMalformedExpression = errors.New("malformed expression")
	// ErrUnsupportedOperator matches errors from operators other than + and *.
	ErrUnsupportedOperator = errors.New("unsupported operator")
	// ErrStructuralViolation matches internal consistency faults detected
	// during contraction. These indicate a bug, not bad input.
	ErrStructuralViolation = errors.New("structural violation")
)

// OperatorError is an error indicating an operator that cannot be evaluated.
// It implements InputError and matches ErrUnsupportedOperator.
type OperatorError struct {
	// Col is the position of the operator.
	Col int
	// Operator is the operator token.
	Operator string
}

func (err *OperatorError) Error() string {
	return errpos(err.Col, "unsupported operator "+strconv.Quote(err.Operator))
}

func (err *OperatorError) Pos() int {
	return err.Col
}

func (err *OperatorError) Is(target error) bool {
	return target == ErrUnsupportedOperator
}

// BracketError is an error indicating mismatched brackets in the
// input. It implements InputError.
type BracketError struct {
	// Col is the position of the bracket or of the end of input.
	Col int
	// Left is the opening bracket.
	Left string
	// Right is the mismatched closing bracket.
	Right string
}

func (err *BracketError) Error() string {
	if err.Left == "" {
		return errpos(err.Col, "close bracket "+err.Right+" with no open bracket")
	}
	if err.Right == "" {
		return errpos(err.Col, "open bracket "+err.Left+" with no close bracket")
	}
	return errpos(err.Col, "mismatched bracket: "+err.Left+"expr"+err.Right)
}

func (err *BracketError) Pos() int {
	return err.Col
}

func (err *BracketError) Is(target error) bool {
	return target == ErrMalformedExpression
}

// SeparatorError is an error indicating an illegal use of a comma or semicolon
// separator. It implements InputError.
type SeparatorError struct {
	// Col is the position of the separator.
	Col int
	// Sep is the separator.
	Sep string
}

func (err *SeparatorError) Error() string {
	return errpos(err.Col, "invalid occurrence of separator "+strconv.Quote(err.Sep))
}

func (err *SeparatorError) Pos() int {
	return err.Col
}

func (err *SeparatorError) Is(target error) bool {
	return target == ErrMalformedExpression
}

// OperandError is an error indicating an operand where an operator was
// expected, or an operator without enough operands. It implements InputError.
type OperandError struct {
	// Col is the position of the offending token.
	Col int
	// Token is the offending token text.
	Token string
	// Reason describes what was wrong.
	Reason string
}

func (err *OperandError) Error() string {
	return errpos(err.Col, err.Reason+" "+strconv.Quote(err.Token))
}

func (err *OperandError) Pos() int {
	return err.Col
}

func (err *OperandError) Is(target error) bool {
	return target == ErrMalformedExpression
}

// EmptyExpressionError is an error indicating an empty subexpression.
type EmptyExpressionError struct {
	// Col is the position of the token that ended the subexpression.
	Col int
	// End is the token that ended the subexpression.
	End string
}

func (err *EmptyExpressionError) Error() string {
	if err.End == "" {
		if err.Col <= 1 {
			return errpos(err.Col, "no expression")
		}
		return errpos(err.Col, "no expression at end")
	}
	return errpos(err.Col, "no expression up to "+strconv.Quote(err.End))
}

func (err *EmptyExpressionError) Pos() int {
	return err.Col
}

func (err *EmptyExpressionError) Is(target error) bool {
	return target == ErrMalformedExpression
}

// errpos is a shortcut to create an error message with a position.
func errpos(pos int, msg string) string {
	return strconv.Itoa(pos) + ": " + msg
}

// InputError is an error with position information. Every error resulting from
// invalid input implements InputError.
type InputError interface {
	error
	// Pos returns the position of the error as the number of runes up to and
	// including the start of the token that caused the error.
	Pos() int
}

var (
	_ InputError = (*OperatorError)(nil)
	_ InputError = (*BracketError)(nil)
	_ InputError = (*SeparatorError)(nil)
	_ InputError = (*OperandError)(nil)
	_ InputError = (*EmptyExpressionError)(nil)
	_ InputError = (*LexError)(nil)
)

// StructuralError reports a contraction step that would break the tree's
// invariants. It matches ErrStructuralViolation.
type StructuralError struct {
	// Round is the contraction round, starting at 1. It is 0 before the first
	// round and for the final reduction of a tree with no rounds.
	Round int
	// Node is the node at which the fault was detected.
	Node NodeID
	// Value is the value or operator symbol of Node.
	Value string
	// Reason describes the fault.
	Reason string
	// Tree is a rendering of the tree when the fault was detected.
	Tree string
}

func (err *StructuralError) Error() string {
	return "structural violation in round " + strconv.Itoa(err.Round) +
		" at " + err.Value + "#" + strconv.Itoa(int(err.Node)) + ": " + err.Reason +
		" (tree " + err.Tree + ")"
}

func (err *StructuralError) Is(target error) bool {
	return target == ErrStructuralViolation
}
