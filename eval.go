package treecontract

import (
	"io"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
)

// Context is a context for evaluating expressions. It is not safe to use a
// Context concurrently.
type Context struct {
	stack    []*big.Float
	names    map[string]*big.Float
	prec     uint
	parallel bool
	obs      Observer
	log      *slog.Logger

	res   *big.Float
	err   error
	stats Stats
}

// ContextOption is an option used when creating a context.
type ContextOption interface {
	ctxOption()
}

type (
	varopt struct {
		name string
		val  *big.Float
	}
	varsopt     map[string]*big.Float
	precopt     uint
	parallelopt bool
	observeopt  struct{ obs Observer }
	loggeropt   struct{ log *slog.Logger }
)

func (varopt) ctxOption()      {}
func (varsopt) ctxOption()     {}
func (precopt) ctxOption()     {}
func (parallelopt) ctxOption() {}
func (observeopt) ctxOption()  {}
func (loggeropt) ctxOption()   {}

// SetVar sets the value of a variable in the context.
func SetVar(name string, val *big.Float) ContextOption {
	return varopt{name, val}
}

// SetVars sets the values of any number of variables in the context.
func SetVars(vars map[string]*big.Float) ContextOption {
	return varsopt(vars)
}

// Prec sets the precision of calculations.
func Prec(prec uint) ContextOption {
	return precopt(prec)
}

// Parallel sets whether the rakes of phase A in each contraction round run
// concurrently. Results and events are the same either way.
func Parallel(on bool) ContextOption {
	return parallelopt(on)
}

// Observe sets an observer to receive contraction events. A nil observer
// disables events.
func Observe(obs Observer) ContextOption {
	return observeopt{obs}
}

// Logger sets the logger for contraction progress, which is logged at debug
// level. The default is slog.Default().
func Logger(log *slog.Logger) ContextOption {
	return loggeropt{log}
}

// NewContext creates a new evaluation context. If no precision is given, the
// default is 64.
func NewContext(opts ...ContextOption) *Context {
	ctx := Context{prec: 64, log: slog.Default()}
	return ctx.Clone(opts...)
}

// Clone creates a copy of a context and applies options to it. The returned
// context has no Result.
func (ctx *Context) Clone(opts ...ContextOption) *Context {
	n := Context{
		names:    make(map[string]*big.Float, len(ctx.names)),
		prec:     ctx.prec,
		parallel: ctx.parallel,
		obs:      ctx.obs,
		log:      ctx.log,
	}
	// First, check for a precision setting. Loop backward so we apply the last
	// precision.
	for i := len(opts) - 1; i >= 0; i-- {
		if p, ok := opts[i].(precopt); ok {
			n.prec = uint(p)
			break
		}
	}
	// Copy variables. (We always need a copy in case of Set.) If we have the
	// same precision, we can just copy pointers.
	if n.prec == ctx.prec {
		for name, val := range ctx.names {
			n.names[name] = val
		}
	} else {
		for name, val := range ctx.names {
			n.names[name] = new(big.Float).SetPrec(n.prec).Set(val)
		}
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		switch opt := opt.(type) {
		case varopt:
			n.names[opt.name] = new(big.Float).SetPrec(n.prec).Set(opt.val)
		case varsopt:
			for k, v := range opt {
				n.names[k] = new(big.Float).SetPrec(n.prec).Set(v)
			}
		case precopt:
			// Already done. Do nothing.
		case parallelopt:
			n.parallel = bool(opt)
		case observeopt:
			n.obs = opt.obs
		case loggeropt:
			n.log = opt.log
			if n.log == nil {
				n.log = slog.Default()
			}
		default:
			panic("treecontract: unknown option type")
		}
	}
	return &n
}

// Eval evaluates an expression by contracting a copy of its tree and returns
// the result. The expression may be evaluated again. If an error occurs, e.g.
// a missing variable definition, then the result is nil and ctx.Err returns
// the error.
func (ctx *Context) Eval(e *Expr) *big.Float {
	return ctx.Contract(e.tree.Clone())
}

// Contract evaluates the expression tree t by tree contraction. t is consumed:
// on return it holds only the root and its two surviving leaves. If an error
// occurs, then the result is nil and ctx.Err returns the error.
func (ctx *Context) Contract(t *Tree) *big.Float {
	ctx.res, ctx.err, ctx.stats = nil, nil, Stats{}
	c, err := newContraction(ctx, t)
	if err == nil {
		ctx.res, err = c.run()
		ctx.stats = c.stats
	}
	ctx.err = err
	observeContraction(ctx.stats, err)
	if err != nil {
		ctx.res = nil
	}
	return ctx.res
}

// EvalPostfix evaluates postfix tokens directly with a value stack, without
// building a tree. It gives the same results as contraction and serves as a
// reference for it.
func (ctx *Context) EvalPostfix(tokens []Token) *big.Float {
	ctx.res, ctx.err, ctx.stats = nil, nil, Stats{}
	ctx.stack = ctx.stack[:0]
	for _, tok := range tokens {
		switch tok.Kind {
		case TokenOperand:
			v, err := ctx.operand(tok.Text)
			if err != nil {
				ctx.err = err
				return nil
			}
			ctx.push().Set(v)
		case TokenOperator:
			op := opFor(tok.Text)
			if op == OpNone {
				ctx.err = &OperatorError{Col: tok.Pos, Operator: tok.Text}
				return nil
			}
			if len(ctx.stack) < 2 {
				ctx.err = &OperandError{Col: tok.Pos, Token: tok.Text, Reason: "not enough operands for"}
				return nil
			}
			r := ctx.pop()
			l := ctx.top()
			switch op {
			case OpAdd:
				l.Add(l, r)
			case OpMul:
				l.Mul(l, r)
			}
		default:
			ctx.err = &OperandError{Col: tok.Pos, Token: tok.Text, Reason: "unexpected " + tok.Kind.String() + " token"}
			return nil
		}
	}
	switch len(ctx.stack) {
	case 0:
		ctx.err = &EmptyExpressionError{Col: 1}
		return nil
	case 1:
		ctx.res = new(big.Float).Copy(ctx.stack[0])
		return ctx.res
	default:
		last := tokens[len(tokens)-1]
		ctx.err = &OperandError{Col: last.Pos, Token: last.Text, Reason: strconv.Itoa(len(ctx.stack)) + " values left after"}
		return nil
	}
}

// Result returns the result obtained after evaluating an expression. Returns
// nil if no expression has been evaluated or an error occurred.
func (ctx *Context) Result() *big.Float {
	return ctx.res
}

// Err returns the error that occurred in the last evaluation, if any.
func (ctx *Context) Err() error {
	return ctx.err
}

// Stats returns statistics of the last contraction.
func (ctx *Context) Stats() Stats {
	return ctx.stats
}

// Set sets the value of a variable. Returns ctx for chaining.
func (ctx *Context) Set(name string, value *big.Float) *Context {
	if ctx.names == nil {
		ctx.names = make(map[string]*big.Float)
	}
	ctx.names[name] = new(big.Float).SetPrec(ctx.prec).Set(value)
	return ctx
}

// Lookup returns a copy of the value of a variable. If there is no such
// variable in the context, then the result is nil.
func (ctx *Context) Lookup(name string) *big.Float {
	v := ctx.names[name]
	if v == nil {
		return nil
	}
	return new(big.Float).Copy(v)
}

// Prec returns the precision to which values are computed in the context.
func (ctx *Context) Prec() uint {
	return ctx.prec
}

// operand gets the value of an operand token: a digit or a variable.
func (ctx *Context) operand(text string) (*big.Float, error) {
	if len(text) == 1 && '0' <= text[0] && text[0] <= '9' {
		return new(big.Float).SetPrec(ctx.prec).SetInt64(int64(text[0] - '0')), nil
	}
	v := ctx.names[text]
	if v == nil {
		return nil, &NameError{Name: text}
	}
	return v, nil
}

// push ensures a settable value on the stack.
func (ctx *Context) push() *big.Float {
	if len(ctx.stack) < cap(ctx.stack) {
		ctx.stack = ctx.stack[:len(ctx.stack)+1]
		if ctx.stack[len(ctx.stack)-1] == nil {
			ctx.stack[len(ctx.stack)-1] = new(big.Float)
		}
		ctx.stack[len(ctx.stack)-1].SetPrec(ctx.prec)
	} else {
		ctx.stack = append(ctx.stack, new(big.Float).SetPrec(ctx.prec))
	}
	return ctx.stack[len(ctx.stack)-1]
}

// pop removes the top from the stack and returns it. The returned value may be
// modified by future pushes.
func (ctx *Context) pop() *big.Float {
	r := ctx.stack[len(ctx.stack)-1]
	ctx.stack = ctx.stack[:len(ctx.stack)-1]
	return r
}

// top is a shortcut to get the top element of the stack.
func (ctx *Context) top() *big.Float {
	return ctx.stack[len(ctx.stack)-1]
}

// Contract is a shortcut to contract a tree in a new context.
func Contract(t *Tree, opts ...ContextOption) (*big.Float, error) {
	ctx := NewContext(opts...)
	ctx.Contract(t)
	return ctx.Result(), ctx.Err()
}

// Eval is a shortcut to parse an expression and return its result.
func Eval(src io.RuneScanner, opts ...ContextOption) (*big.Float, error) {
	ctx := NewContext(opts...)
	a, err := Parse(src)
	if err != nil {
		return nil, err
	}
	ctx.Eval(a)
	return ctx.Result(), ctx.Err()
}

// EvalString is a shortcut to parse and evaluate a string expression.
func EvalString(src string, opts ...ContextOption) (*big.Float, error) {
	return Eval(strings.NewReader(src), opts...)
}

// NameError is an error from a lookup for a variable that is missing from the
// evaluation context.
type NameError struct {
	// Name is the name that was missing.
	Name string
}

func (err *NameError) Error() string {
	return "undefined variable: " + strconv.Quote(err.Name)
}
