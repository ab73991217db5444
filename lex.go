package treecontract

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Token is a lexical token of an expression. Postfix token sequences given to
// Build contain only operands and operators.
type Token struct {
	// Text is the token's text, always a single rune.
	Text string
	// Kind is the kind of token.
	Kind TokenKind
	// Pos is the 1-based rune column of the token in its source.
	Pos int
}

func (t Token) String() string {
	return t.Kind.String() + ":" + t.Text + "@" + strconv.Itoa(t.Pos)
}

// TokenKind is the kind of a Token.
type TokenKind int8

const (
	TokenNone TokenKind = iota
	// TokenEOF indicates the end of the input.
	TokenEOF
	// TokenOperand is a single digit or letter.
	TokenOperand
	// TokenOperator is an operator.
	TokenOperator
	// TokenOpen is an open bracket, e.g. (.
	TokenOpen
	// TokenClose is a close bracket, e.g. ).
	TokenClose
	// TokenSep is an expression separator, either , or ;.
	TokenSep
)

func (k TokenKind) String() string {
	switch k {
	case TokenNone:
		return "None"
	case TokenEOF:
		return "EOF"
	case TokenOperand:
		return "Operand"
	case TokenOperator:
		return "Operator"
	case TokenOpen:
		return "Open"
	case TokenClose:
		return "Close"
	case TokenSep:
		return "Sep"
	default:
		return "TokenKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Operators contains the runes which are considered to be operators. Only
// addition and multiplication can be evaluated; the rest are recognized so
// that they can be reported as unsupported.
const Operators = "+-*/^×÷·"

// OpenBrackets and CloseBrackets contain the runes which group expressions.
// The parser checks that a bracket in byte position k in OpenBrackets is
// matched with the bracket in byte position k in ClosedBrackets.
const (
	OpenBrackets  = "([{"
	CloseBrackets = ")]}"
)

func runestrs(s string) []string {
	v := make([]string, 0, len(s))
	for _, r := range s {
		v = append(v, string(r))
	}
	return v
}

var (
	operstrs      = runestrs(Operators)
	openbrackets  = runestrs(OpenBrackets)
	closebrackets = runestrs(CloseBrackets)
)

type lexer struct {
	src  io.RuneScanner
	rune int
	p    Token
	eof  bool
}

func lex(src io.RuneScanner) *lexer {
	return &lexer{
		src:  src,
		rune: 1,
	}
}

// push unreads a token so that it is the next token returned from next. Panics
// if there is already a pushed token.
func (l *lexer) push(tok Token) {
	if l.p.Kind != TokenNone {
		panic("treecontract: double push")
	}
	l.p = tok
}

// must scans the pushed token. Panics if there is no pushed token.
func (l *lexer) must() Token {
	tok := l.p
	if tok.Kind == TokenNone {
		panic("treecontract: no pushed token")
	}
	l.p = Token{}
	return tok
}

// readRune reads a rune from the src and updates the lexer's position info.
// Runes outside ASCII are NFKC-normalized when they normalize to a single
// rune, so that e.g. fullwidth digits and operators read as their ASCII forms.
func (l *lexer) readRune() (r rune, err error) {
	r, sz, err := l.src.ReadRune()
	if sz > 0 {
		l.rune++
	}
	if err == nil && r >= utf8.RuneSelf {
		s := norm.NFKC.String(string(r))
		if utf8.RuneCountInString(s) == 1 {
			r, _ = utf8.DecodeRuneInString(s)
		}
	}
	return r, err
}

// next scans the next token from the input. The first time EOF is encountered
// before any non-whitespace characters, the result is an EOF token with a nil
// error. Subsequent times, if the EOF token is not pushed, the result is an
// empty token with io.EOF. Whitespace runes in wseof end the input.
func (l *lexer) next(wseof string) (Token, error) {
	if l.p.Kind != TokenNone {
		tok := l.p
		l.p = Token{}
		return tok, nil
	}
	if l.eof {
		return Token{}, io.EOF
	}
	tok := Token{Pos: l.rune}
	for {
		r, err := l.readRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				tok.Kind = TokenEOF
				l.eof = true
				return tok, nil
			}
			return tok, err
		}
		switch {
		case unicode.IsSpace(r):
			if strings.ContainsRune(wseof, r) {
				tok.Kind = TokenEOF
				l.eof = true
				return tok, nil
			}
			tok.Pos++
			continue
		case '0' <= r && r <= '9', unicode.IsLetter(r):
			tok.Text = string(r)
			tok.Kind = TokenOperand
			return tok, nil
		case r == ',' || r == ';':
			tok.Text = string(r)
			tok.Kind = TokenSep
			return tok, nil
		default:
			if k := strings.IndexRune(Operators, r); k >= 0 {
				tok.Text = operstrs[utf8.RuneCountInString(Operators[:k])]
				tok.Kind = TokenOperator
				return tok, nil
			}
			if k := strings.IndexRune(OpenBrackets, r); k >= 0 {
				tok.Text = openbrackets[k]
				tok.Kind = TokenOpen
				return tok, nil
			}
			if k := strings.IndexRune(CloseBrackets, r); k >= 0 {
				tok.Text = closebrackets[k]
				tok.Kind = TokenClose
				return tok, nil
			}
			return tok, &LexError{Text: string(r), Col: l.rune - 1}
		}
	}
}

// LexError indicates an invalid rune in the input. It implements InputError.
type LexError struct {
	// Text is the invalid rune.
	Text string
	// Col is the column of the invalid rune.
	Col int
}

func (err *LexError) Error() string {
	return "invalid token at column " + strconv.Itoa(err.Col) + ": " + strconv.Quote(err.Text)
}

func (err *LexError) Pos() int {
	return err.Col
}

// Is reports whether target is ErrMalformedExpression.
func (err *LexError) Is(target error) bool {
	return target == ErrMalformedExpression
}
