package treecontract

import (
	"io"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Expr = operand | Add | Mul | '(' Expr ')' | '[' Expr ']' | '{' Expr '}'
// Add = Expr '+' Expr
// Mul = Expr '*' Expr | Expr '×' Expr | Expr '·' Expr
// operand = digit | letter
//
// The parser also accepts '-', '/', '÷', and '^' with their usual precedence
// so that Build can report them as unsupported.

// Expr is a parsed expression that can be evaluated with a context.
type Expr struct {
	// tree is the expression tree, never contracted itself.
	tree *Tree
	// postfix is the expression's tokens in postfix order.
	postfix []Token
	// names is the list of variable names used in the expression.
	names []string
}

// Parse parses an expression and builds its tree so it can be evaluated with
// a context. The given options are applied in order.
func Parse(src io.RuneScanner, opts ...ParseOption) (*Expr, error) {
	toks, names, err := postfix(src, opts)
	if err != nil {
		return nil, err
	}
	t, err := Build(toks)
	if err != nil {
		return nil, err
	}
	return &Expr{tree: t, postfix: toks, names: names}, nil
}

// ParseString is a shortcut to parse a string expression.
func ParseString(src string, opts ...ParseOption) (*Expr, error) {
	return Parse(strings.NewReader(src), opts...)
}

// Postfix parses an infix expression into tokens in postfix order, with
// operators following their operands. Brackets do not appear in the result.
func Postfix(src io.RuneScanner, opts ...ParseOption) ([]Token, error) {
	toks, _, err := postfix(src, opts)
	return toks, err
}

// PostfixString is a shortcut to convert a string expression to postfix.
func PostfixString(src string, opts ...ParseOption) ([]Token, error) {
	return Postfix(strings.NewReader(src), opts...)
}

func postfix(src io.RuneScanner, opts []ParseOption) ([]Token, []string, error) {
	scan := lex(src)
	p := parsectx{
		names: make(map[string]bool),
	}
	for _, opt := range opts {
		p = opt.parseOption(p)
	}
	if err := parseterm(scan, &p, exprprec); err != nil {
		return nil, nil, err
	}
	switch tok := scan.must(); tok.Kind {
	case TokenEOF:
	case TokenSep:
		switch {
		case p.ceof && tok.Text == ",":
		case p.seof && tok.Text == ";":
		default:
			return nil, nil, itShouldNotHaveEndedThisWay(tok, -1)
		}
	default:
		return nil, nil, itShouldNotHaveEndedThisWay(tok, -1)
	}
	names := make([]string, 0, len(p.names))
	for k := range p.names {
		names = append(names, k)
	}
	slices.Sort(names)
	return p.out, names, nil
}

// parseterm parses a term, appending its postfix tokens to p.out. If there is
// no error, then parseterm pushes the last token it scans, including EOF.
func parseterm(scan *lexer, p *parsectx, until operator) error {
	if err := parselhs(scan, p); err != nil {
		return err
	}
	for {
		tok, err := scan.next(p.wseof)
		if err != nil {
			return err
		}
		switch tok.Kind {
		case TokenOperand, TokenOpen:
			// Operands are single runes, and juxtaposition is not
			// multiplication, so 23 and 2(3) are both errors.
			return &OperandError{Col: tok.Pos, Token: tok.Text, Reason: "expected operator before"}
		case TokenOperator:
			prec := binop(tok.Text)
			if !prec.moreBinding(until) {
				scan.push(tok)
				return nil
			}
			if err := parseterm(scan, p, prec); err != nil {
				return err
			}
			p.out = append(p.out, tok)
		case TokenClose, TokenSep, TokenEOF:
			// End of expression.
			scan.push(tok)
			return nil
		default:
			panic("treecontract: unknown token: " + tok.String())
		}
	}
}

// parselhs parses the first component of a term: an operand or a bracketed
// subexpression. Whitespace normally lexed as EOF is ignored.
func parselhs(scan *lexer, p *parsectx) error {
	// Don't use EOF whitespace for LHS.
	tok, err := scan.next("")
	if err != nil {
		return err
	}
	switch tok.Kind {
	case TokenOperand:
		if r, _ := utf8.DecodeRuneInString(tok.Text); r < '0' || r > '9' {
			p.names[tok.Text] = true
		}
		p.out = append(p.out, tok)
	case TokenOpen:
		match := rightbracket(tok.Text)
		if err := parseterm(scan, p, exprprec); err != nil {
			return err
		}
		end := scan.must()
		if end.Kind != TokenClose || end.Text != closebrackets[match] {
			return itShouldNotHaveEndedThisWay(end, match)
		}
	case TokenOperator:
		// There are no unary operators; -2 is not a number.
		return &OperandError{Col: tok.Pos, Token: tok.Text, Reason: "expected operand before"}
	case TokenClose:
		return &EmptyExpressionError{Col: tok.Pos, End: tok.Text}
	case TokenSep:
		switch tok.Text {
		case ",":
			if p.ceof {
				return &EmptyExpressionError{Col: tok.Pos, End: tok.Text}
			}
		case ";":
			if p.seof {
				return &EmptyExpressionError{Col: tok.Pos, End: tok.Text}
			}
		default:
			panic("treecontract: invalid separator " + strconv.Quote(tok.Text))
		}
		return &SeparatorError{Col: tok.Pos, Sep: tok.Text}
	case TokenEOF:
		return &EmptyExpressionError{Col: tok.Pos, End: ""}
	default:
		panic("treecontract: unknown token: " + tok.String())
	}
	return nil
}

// rightbracket gets the closing bracket index for an opening bracket.
func rightbracket(left string) int {
	r, sz := utf8.DecodeRuneInString(left)
	k := strings.IndexRune(OpenBrackets, r)
	if k < 0 || sz != len(left) {
		panic("treecontract: invalid bracket " + strconv.Quote(left))
	}
	return k
}

// leftbracket gets the opening bracket matching right. If right is no bracket,
// then the result is the empty string.
func leftbracket(right int) string {
	if right == -1 {
		return ""
	}
	return openbrackets[right]
}

// itShouldNotHaveEndedThisWay returns an error appropriate for an unexpected
// token at the end of a subexpression. match is the bracket rune index that
// the expression should have matched, or -1 if none.
func itShouldNotHaveEndedThisWay(tok Token, match int) error {
	switch tok.Kind {
	case TokenEOF:
		// Unexpected EOF implies an open bracket that was not closed.
		return &BracketError{Col: tok.Pos, Left: leftbracket(match), Right: ""}
	case TokenClose:
		// A bracket could be the wrong bracket for the opening brace or any
		// bracket at the end of an input.
		return &BracketError{Col: tok.Pos, Left: leftbracket(match), Right: tok.Text}
	case TokenSep:
		// Separator inside brackets.
		return &SeparatorError{Col: tok.Pos, Sep: tok.Text}
	default:
		panic("treecontract: it really should not have ended this way: " + tok.String())
	}
}

// Vars returns the variable names used when evaluating the expression.
func (e *Expr) Vars() []string {
	return append(([]string)(nil), e.names...)
}

// Postfix returns the expression's tokens in postfix order.
func (e *Expr) Postfix() []Token {
	return append(([]Token)(nil), e.postfix...)
}

// Tree returns a copy of the expression's tree.
func (e *Expr) Tree() *Tree {
	return e.tree.Clone()
}

// String creates a string representation of the parsed expression, with
// alternating round and square brackets grouping each term.
func (e *Expr) String() string {
	var b strings.Builder
	e.tree.fmt(&b, e.tree.root, false, true)
	return b.String()
}

type operator struct {
	// prec is the precedence value. Higher is more binding.
	prec int8
	// right indicates right-associativity.
	right bool
}

func (p operator) moreBinding(than operator) bool {
	if p.prec != than.prec {
		return p.prec > than.prec
	}
	return p.right
}

// binop gets a binary operator for a token string.
func binop(text string) operator {
	switch text {
	case "+", "-":
		return operator{1, false}
	case "*", "/", "×", "÷", "·":
		return operator{5, false}
	case "^":
		return operator{15, true}
	default:
		panic("treecontract: unknown operator " + strconv.Quote(text))
	}
}

// exprprec is the precedence required to parse an entire subexpression.
var exprprec = operator{-128, true}
