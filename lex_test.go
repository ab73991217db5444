package treecontract

import (
	"io"
	"strings"
	"testing"
)

func TestLex(t *testing.T) {
	cases := []struct {
		src    string
		tokens []Token
		errs   int
	}{
		// spaces
		{"", nil, 0},
		{" \t \r\n ", nil, 0},
		// operands
		{"0", []Token{{Text: "0", Kind: TokenOperand, Pos: 1}}, 0},
		{"x", []Token{{Text: "x", Kind: TokenOperand, Pos: 1}}, 0},
		{"π", []Token{{Text: "π", Kind: TokenOperand, Pos: 1}}, 0},
		{"23", []Token{{Text: "2", Kind: TokenOperand, Pos: 1}, {Text: "3", Kind: TokenOperand, Pos: 2}}, 0},
		{" 2 *\tx", []Token{{Text: "2", Kind: TokenOperand, Pos: 2}, {Text: "*", Kind: TokenOperator, Pos: 4}, {Text: "x", Kind: TokenOperand, Pos: 6}}, 0},
		// operators
		{"2+3", []Token{{Text: "2", Kind: TokenOperand, Pos: 1}, {Text: "+", Kind: TokenOperator, Pos: 2}, {Text: "3", Kind: TokenOperand, Pos: 3}}, 0},
		{"2·3", []Token{{Text: "2", Kind: TokenOperand, Pos: 1}, {Text: "·", Kind: TokenOperator, Pos: 2}, {Text: "3", Kind: TokenOperand, Pos: 3}}, 0},
		{"-/^÷", []Token{{Text: "-", Kind: TokenOperator, Pos: 1}, {Text: "/", Kind: TokenOperator, Pos: 2}, {Text: "^", Kind: TokenOperator, Pos: 3}, {Text: "÷", Kind: TokenOperator, Pos: 4}}, 0},
		// fullwidth forms normalize
		{"２＋３", []Token{{Text: "2", Kind: TokenOperand, Pos: 1}, {Text: "+", Kind: TokenOperator, Pos: 2}, {Text: "3", Kind: TokenOperand, Pos: 3}}, 0},
		// brackets
		{"(a×b)", []Token{{Text: "(", Kind: TokenOpen, Pos: 1}, {Text: "a", Kind: TokenOperand, Pos: 2}, {Text: "×", Kind: TokenOperator, Pos: 3}, {Text: "b", Kind: TokenOperand, Pos: 4}, {Text: ")", Kind: TokenClose, Pos: 5}}, 0},
		{"[{}]", []Token{{Text: "[", Kind: TokenOpen, Pos: 1}, {Text: "{", Kind: TokenOpen, Pos: 2}, {Text: "}", Kind: TokenClose, Pos: 3}, {Text: "]", Kind: TokenClose, Pos: 4}}, 0},
		// separators
		{"2,3;", []Token{{Text: "2", Kind: TokenOperand, Pos: 1}, {Text: ",", Kind: TokenSep, Pos: 2}, {Text: "3", Kind: TokenOperand, Pos: 3}, {Text: ";", Kind: TokenSep, Pos: 4}}, 0},
		// erroneous symbols
		{"$", nil, 1},
		{"2$", []Token{{Text: "2", Kind: TokenOperand, Pos: 1}}, 1},
		{"$2", []Token{{Text: "2", Kind: TokenOperand, Pos: 2}}, 1},
		{"$$", nil, 2},
		{"2.5", []Token{{Text: "2", Kind: TokenOperand, Pos: 1}, {Text: "5", Kind: TokenOperand, Pos: 3}}, 1},
	}

	for _, c := range cases {
		scan := lex(strings.NewReader(c.src))
		var got []Token
		errs := 0
		for {
			tok, err := scan.next("")
			if err == io.EOF {
				t.Errorf("scanning %q: EOF error before EOF token", c.src)
				break
			}
			if err != nil {
				if _, ok := err.(*LexError); !ok {
					t.Errorf("scanning %q: error %v is not a LexError", c.src, err)
				}
				errs++
				continue
			}
			if tok.Kind == TokenEOF {
				break
			}
			got = append(got, tok)
		}
		if len(got) != len(c.tokens) {
			t.Errorf("scanning %q: want %v, got %v", c.src, c.tokens, got)
		} else {
			for i := range got {
				if got[i] != c.tokens[i] {
					t.Errorf("scanning %q: token %d: want %v, got %v", c.src, i, c.tokens[i], got[i])
				}
			}
		}
		if errs != c.errs {
			t.Errorf("scanning %q: want %d errors, got %d", c.src, c.errs, errs)
		}
	}
}

func TestLexEOF(t *testing.T) {
	scan := lex(strings.NewReader("2\n3"))
	tok, err := scan.next("\n")
	if err != nil || tok.Kind != TokenOperand {
		t.Fatalf("want operand, got %v, %v", tok, err)
	}
	tok, err = scan.next("\n")
	if err != nil || tok.Kind != TokenEOF {
		t.Fatalf("want EOF at newline, got %v, %v", tok, err)
	}
	if _, err := scan.next("\n"); err != io.EOF {
		t.Errorf("want io.EOF after EOF token, got %v", err)
	}
}

func TestLexPush(t *testing.T) {
	scan := lex(strings.NewReader("+"))
	tok, err := scan.next("")
	if err != nil {
		t.Fatal(err)
	}
	scan.push(tok)
	if got := scan.must(); got != tok {
		t.Errorf("must returned %v, want %v", got, tok)
	}
	defer func() {
		if recover() == nil {
			t.Error("must without push did not panic")
		}
	}()
	scan.must()
}
