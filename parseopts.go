package treecontract

import (
	"slices"
	"strconv"
	"unicode"
)

// ParseOption is an option for parsing.
type ParseOption interface {
	parseOption(parsectx) parsectx
}

type eofopt struct {
	c, s bool
	ws   string
}

// parsectx holds general data for parsing.
type parsectx struct {
	// names is the set of variable names that have been seen this parse.
	names map[string]bool
	// out is the postfix token sequence produced so far.
	out []Token
	// wseof is a string containing the whitespace characters that trigger an
	// EOF token from the lexer.
	wseof string
	// ceof and seof indicate whether commas and semicolons, respectively, are
	// allowed at the end of an expression.
	ceof, seof bool
}

// StopOn lets one input hold several expressions. Each rune in chars ends the
// current expression when it appears where an operator could follow. The
// terminating rune is consumed and the rest of the input is left unread.
// Besides ',' and ';', the runes must be whitespace, e.g. '\n' to read one
// expression per line. Whitespace after an operator or an opening bracket is
// skipped as usual, so an expression may still continue onto the next line
// there.
//
// A later StopOn replaces an earlier one. StopOn with no runes parses to EOF.
// StopOn panics on any other rune.
func StopOn(chars ...rune) ParseOption {
	var o eofopt
	var ws []rune
	for _, r := range chars {
		switch {
		case r == ',':
			o.c = true
		case r == ';':
			o.s = true
		case unicode.IsSpace(r):
			if !slices.Contains(ws, r) {
				ws = append(ws, r)
			}
		default:
			panic("treecontract: cannot stop on " + strconv.QuoteRune(r))
		}
	}
	o.ws = string(ws)
	return &o
}

func (o *eofopt) parseOption(p parsectx) parsectx {
	p.ceof = o.c
	p.seof = o.s
	p.wseof = o.ws
	return p
}
