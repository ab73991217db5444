package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zephyrtronium/treecontract"
	"github.com/zephyrtronium/treecontract/internal/tracelog"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Prec     uint
	Given    []string
	Parallel bool
	Trace    bool
	Check    bool
	Lines    bool
	Echo     bool
	In       string
	Verb     string
	Database string
}

// EvalResult is the outcome of evaluating one expression.
type EvalResult struct {
	Expr   string   `json:"expr" yaml:"expr"`
	Tree   string   `json:"tree,omitempty" yaml:"tree,omitempty"`
	Result string   `json:"result,omitempty" yaml:"result,omitempty"`
	Code   string   `json:"code,omitempty" yaml:"code,omitempty"`
	Error  string   `json:"error,omitempty" yaml:"error,omitempty"`
	Rounds int      `json:"rounds" yaml:"rounds"`
	Rakes  int      `json:"rakes" yaml:"rakes"`
	Trace  []string `json:"trace,omitempty" yaml:"trace,omitempty"`
	RunID  string   `json:"run_id,omitempty" yaml:"run_id,omitempty"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval [expr...]",
		Short: "Evaluate expressions by tree contraction",
		Long: `Evaluate each argument as an expression. With no arguments, read
expressions from --in or standard input.

Each expression is built into a tree and contracted in rounds. --trace prints
every rake and the final reduction. --check also evaluates the postfix form
directly and fails if the results differ.

Examples:
  treecontract eval '((2+3)*2)+((4*2)+2)'
  treecontract eval --trace '2+3*2'
  treecontract eval --given x=3 --given 'y=x*x' 'x+y'
  treecontract eval -n --db runs.db < exprs.txt`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, cmd, args)
		},
	}

	cmd.Flags().UintVarP(&opts.Prec, "prec", "p", 64, "precision of calculations in bits")
	cmd.Flags().StringArrayVar(&opts.Given, "given", nil, "name=expr variable definition (any number of times)")
	cmd.Flags().BoolVar(&opts.Parallel, "parallel", false, "rake phase A leaves concurrently")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "print each contraction step")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "compare against direct postfix evaluation")
	cmd.Flags().BoolVarP(&opts.Lines, "lines", "n", false, "parse separate input lines as separate expressions")
	cmd.Flags().BoolVar(&opts.Echo, "echo", false, "print parse trees")
	cmd.Flags().StringVar(&opts.In, "in", "", "input file (default stdin if no args given)")
	cmd.Flags().StringVar(&opts.Verb, "fmt", "%g", "result formatting verb")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace log to record runs in")

	return cmd
}

func runEval(opts *EvalOptions, cmd *cobra.Command, args []string) error {
	cfg := opts.settings()
	log := opts.logger()
	flags := cmd.Flags()
	if !flags.Changed("prec") && cfg.Prec != 0 {
		opts.Prec = cfg.Prec
	}
	if !flags.Changed("parallel") && cfg.Parallel {
		opts.Parallel = true
	}
	if !flags.Changed("db") && cfg.Database != "" {
		opts.Database = cfg.Database
	}
	if opts.Prec == 0 {
		return NewExitError(ExitCommandError, "precision must be positive")
	}

	ctx := treecontract.NewContext(
		treecontract.Prec(opts.Prec),
		treecontract.Parallel(opts.Parallel),
		treecontract.Logger(log),
	)
	if err := setVars(ctx, cfg.Vars, opts.Given); err != nil {
		return err
	}

	ins, closeIn, err := evalInputs(opts, cmd, args)
	if err != nil {
		return err
	}
	defer closeIn()

	var st *tracelog.Store
	if opts.Database != "" {
		st, err = tracelog.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
	}

	var popts []treecontract.ParseOption
	if opts.Lines {
		popts = append(popts, treecontract.StopOn('\n'))
	}

	w := cmd.OutOrStdout()
	var results []EvalResult
	failed := 0
	emit := func(res EvalResult) {
		if res.Error != "" {
			failed++
		}
		if opts.Format == "text" {
			printEvalText(w, res)
			return
		}
		results = append(results, res)
	}
	for _, in := range ins {
		for {
			more, err := in.more()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read input", err)
			}
			if !more {
				break
			}
			e, err := treecontract.Parse(in, popts...)
			text := in.take()
			if err != nil {
				log.Debug("parse failed", "expr", text, "err", err)
				emit(EvalResult{Expr: text, Code: errorCode(err), Error: err.Error()})
				// The rest of this input cannot be resynchronized.
				break
			}
			res, err := evalOne(cmd.Context(), opts, ctx, e, text, st)
			if err != nil {
				return err
			}
			emit(res)
		}
	}

	if opts.Format != "text" {
		out := &OutputFormatter{Format: opts.Format, Writer: w}
		if results == nil {
			results = []EvalResult{}
		}
		if err := out.Success(results); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d expression(s) failed", failed))
	}
	return nil
}

// evalOne contracts one parsed expression. The returned error is non-nil only
// for failures of the trace log.
func evalOne(ctx context.Context, opts *EvalOptions, ectx *treecontract.Context, e *treecontract.Expr, text string, st *tracelog.Store) (EvalResult, error) {
	ctx, span := otel.Tracer("treecontract").Start(ctx, "cli.eval",
		trace.WithAttributes(
			attribute.String("expr", text),
			attribute.Bool("parallel", opts.Parallel),
			attribute.Int("prec", int(opts.Prec)),
		),
	)
	defer span.End()

	var events []treecontract.Event
	obs := treecontract.ObserverFunc(func(ev treecontract.Event) {
		events = append(events, ev)
	})
	c := ectx.Clone(treecontract.Observe(obs))

	res := EvalResult{Expr: text}
	if opts.Echo {
		res.Tree = e.String()
	}
	r := c.Eval(e)
	stats := c.Stats()
	res.Rounds, res.Rakes = stats.Rounds, stats.Rakes
	if opts.Trace {
		for _, ev := range events {
			res.Trace = append(res.Trace, ev.String())
		}
	}
	if r == nil {
		err := c.Err()
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		res.Code, res.Error = errorCode(err), err.Error()
		return res, nil
	}
	res.Result = fmt.Sprintf(opts.Verb, r)
	span.SetAttributes(
		attribute.Int("rounds", stats.Rounds),
		attribute.Int("rakes", stats.Rakes),
	)

	if opts.Check {
		span.AddEvent("checking")
		want := c.EvalPostfix(e.Postfix())
		if want == nil || want.Cmp(r) != 0 {
			res.Code = CodeCheck
			res.Error = fmt.Sprintf("contraction gave %s, stack evaluation gave %s", res.Result, fmt.Sprintf(opts.Verb, want))
			span.SetStatus(codes.Error, "check failed")
			return res, nil
		}
	}

	if st != nil {
		run := tracelog.Run{
			Expr:   text,
			Result: r.Text('g', -1),
			Rounds: stats.Rounds,
			Rakes:  stats.Rakes,
		}
		if err := st.CreateRun(ctx, &run); err != nil {
			span.RecordError(err)
			return res, WrapExitError(ExitCommandError, "failed to record run", err)
		}
		if err := st.AppendEvents(ctx, run.ID, logEvents(events)); err != nil {
			span.RecordError(err)
			return res, WrapExitError(ExitCommandError, "failed to record events", err)
		}
		res.RunID = run.ID
		opts.logger().Debug("run recorded", "id", run.ID, "events", len(events))
	}
	span.SetStatus(codes.Ok, "")
	return res, nil
}

func logEvents(events []treecontract.Event) []tracelog.Event {
	r := make([]tracelog.Event, len(events))
	for i, ev := range events {
		r[i] = tracelog.Event{
			Kind:  ev.Kind.String(),
			Round: ev.Round,
			Phase: ev.Phase.String(),
			Line:  ev.String(),
		}
	}
	return r
}

func printEvalText(w io.Writer, res EvalResult) {
	for _, line := range res.Trace {
		fmt.Fprintln(w, line)
	}
	if res.Tree != "" {
		fmt.Fprintf(w, "%s : ", res.Tree)
	}
	if res.Error != "" {
		fmt.Fprintf(w, "Error [%s]: %s\n", res.Code, res.Error)
		return
	}
	fmt.Fprintln(w, res.Result)
}

// errorCode classifies an evaluation error.
func errorCode(err error) string {
	switch {
	case errors.Is(err, treecontract.ErrStructuralViolation):
		return CodeViolation
	case errors.Is(err, treecontract.ErrUnsupportedOperator):
		return CodeOperator
	default:
		return CodeInput
	}
}

// setVars evaluates variable definitions from the config file, in name
// order, and then from --given flags, in flag order. Later definitions may
// use earlier ones.
func setVars(ctx *treecontract.Context, vars map[string]string, given []string) error {
	type def struct{ name, expr string }
	var defs []def
	for _, name := range slices.Sorted(maps.Keys(vars)) {
		defs = append(defs, def{name, vars[name]})
	}
	for _, g := range given {
		name, expr, ok := strings.Cut(g, "=")
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf(`variable definitions must be "name=expr", not %q`, g))
		}
		defs = append(defs, def{strings.TrimSpace(name), strings.TrimSpace(expr)})
	}
	for _, d := range defs {
		r, _ := utf8.DecodeRuneInString(d.name)
		if utf8.RuneCountInString(d.name) != 1 || !unicode.IsLetter(r) {
			return NewExitError(ExitCommandError, fmt.Sprintf("variable name %q is not a single letter", d.name))
		}
		e, err := treecontract.ParseString(d.expr)
		if err != nil {
			return WrapExitError(ExitCommandError, "setting "+d.name, err)
		}
		v := ctx.Eval(e)
		if v == nil {
			return WrapExitError(ExitCommandError, "setting "+d.name, ctx.Err())
		}
		ctx.Set(d.name, v)
	}
	return nil
}

// evalInputs opens the inputs named by flags and arguments. The returned
// function closes any opened file.
func evalInputs(opts *EvalOptions, cmd *cobra.Command, args []string) ([]*recorder, func(), error) {
	var ins []*recorder
	closer := func() {}
	switch {
	case opts.In != "" && opts.In != "-":
		f, err := os.Open(opts.In)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to open input", err)
		}
		closer = func() { f.Close() }
		ins = append(ins, &recorder{src: bufio.NewReader(f)})
	case opts.In == "-", len(args) == 0:
		ins = append(ins, &recorder{src: bufio.NewReader(cmd.InOrStdin())})
	}
	for _, arg := range args {
		ins = append(ins, &recorder{src: strings.NewReader(arg)})
	}
	return ins, closer, nil
}

// recorder is an io.RuneScanner that keeps the text read through it, so each
// expression's source can be reported.
type recorder struct {
	src io.RuneScanner
	buf []rune
}

func (r *recorder) ReadRune() (rune, int, error) {
	c, sz, err := r.src.ReadRune()
	if err == nil {
		r.buf = append(r.buf, c)
	}
	return c, sz, err
}

func (r *recorder) UnreadRune() error {
	err := r.src.UnreadRune()
	if err == nil && len(r.buf) > 0 {
		r.buf = r.buf[:len(r.buf)-1]
	}
	return err
}

// more skips whitespace and reports whether any input remains.
func (r *recorder) more() (bool, error) {
	for {
		c, _, err := r.src.ReadRune()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !unicode.IsSpace(c) {
			return true, r.src.UnreadRune()
		}
	}
}

// take returns the text read since the last take, trimmed of spaces.
func (r *recorder) take() string {
	s := strings.TrimSpace(string(r.buf))
	r.buf = r.buf[:0]
	return s
}
