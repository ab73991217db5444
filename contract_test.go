package treecontract

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// record contracts tree in a context with opts and returns the event lines.
func record(t *testing.T, tree *Tree, opts ...ContextOption) (*Context, []string) {
	t.Helper()
	var lines []string
	obs := ObserverFunc(func(ev Event) { lines = append(lines, ev.String()) })
	ctx := NewContext(append(opts, Observe(obs))...)
	ctx.Contract(tree)
	return ctx, lines
}

// randExpr returns a random fully bracketed expression with n operands drawn
// from names. Splits favor chains a third of the time each way.
func randExpr(r *rand.Rand, n int, names string) string {
	if n == 1 {
		return string(names[r.IntN(len(names))])
	}
	var k int
	switch r.IntN(3) {
	case 0:
		k = 1
	case 1:
		k = n - 1
	default:
		k = 1 + r.IntN(n-1)
	}
	op := "+"
	if r.IntN(2) == 0 {
		op = "*"
	}
	return "(" + randExpr(r, k, names) + op + randExpr(r, n-k, names) + ")"
}

func TestContractCases(t *testing.T) {
	cases := []struct {
		src    string
		want   int64
		rounds int
		rakes  int
	}{
		{"7", 7, 0, 0},
		{"2+3", 5, 0, 0},
		{"2*3", 6, 0, 0},
		{"2+3*2", 8, 1, 1},
		{"2*3+2", 8, 1, 1},
		{"(1+2)*(3+4)", 21, 2, 2},
		{"((2+3)*2)+((4*2)+2)", 20, 3, 4},
		{"1+2+3+4+5", 15, -1, 3},
		{"1*2*3*4*5", 120, -1, 3},
		{"1+(2+(3+(4+5)))", 15, -1, 3},
		{"((1+1)*(1+1))*((1+1)*(1+1))", 16, -1, 6},
		{"0*9+9*0", 0, -1, 2},
	}
	for _, c := range cases {
		t.Run(c.src, func(t *testing.T) {
			tree := mustBuild(t, c.src)
			ctx := NewContext()
			r := ctx.Contract(tree)
			require.NoError(t, ctx.Err())
			require.NotNil(t, r)
			assertNum(t, c.want, r)
			assert.Same(t, r, ctx.Result())
			st := ctx.Stats()
			if c.rounds >= 0 {
				assert.Equal(t, c.rounds, st.Rounds)
			}
			assert.Equal(t, c.rakes, st.Rakes)
			assert.Len(t, st.Triples, st.Rakes)
			assert.LessOrEqual(t, st.Rounds, RoundBound(len(slices.Collect(mustBuild(t, c.src).Leaves()))))
		})
	}
}

func TestContractWorkedTriples(t *testing.T) {
	ctx, lines := record(t, mustBuild(t, "((2+3)*2)+((4*2)+2)"))
	require.NoError(t, ctx.Err())
	assertNum(t, 20, ctx.Result())
	want := []string{
		"round 1 phase A: rake 4#5 under *#7 into 2#6: (1, 0) -> (4, 0)",
		"round 1 phase B: rake 3#1 under +#2 into 2#0: (1, 0) -> (1, 3)",
		"round 2 phase B: rake 2#3 under *#4 into 2#0: (1, 3) -> (2, 6)",
		"round 3 phase A: rake 2#6 under +#9 into 2#8: (1, 0) -> (1, 8)",
		"reduce +#10: 10 + 10 = 20",
	}
	assert.Equal(t, want, lines)

	st := ctx.Stats()
	type triple struct {
		v    string
		a, b int64
	}
	wantTriples := []triple{{"2", 4, 0}, {"2", 1, 3}, {"2", 2, 6}, {"2", 1, 8}}
	require.Len(t, st.Triples, len(wantTriples))
	for i, w := range wantTriples {
		assert.Equal(t, w.v, st.Triples[i].Value)
		assertNum(t, w.a, st.Triples[i].A)
		assertNum(t, w.b, st.Triples[i].B)
	}
	assert.Equal(t, "2", st.Survivors[0].Value)
	assertNum(t, 2, st.Survivors[0].A)
	assertNum(t, 6, st.Survivors[0].B)
	assert.Equal(t, "2", st.Survivors[1].Value)
	assertNum(t, 1, st.Survivors[1].A)
	assertNum(t, 8, st.Survivors[1].B)
}

func TestContractNoRakes(t *testing.T) {
	ctx, lines := record(t, mustBuild(t, "2+3"))
	require.NoError(t, ctx.Err())
	assertNum(t, 5, ctx.Result())
	assert.Equal(t, []string{"reduce +#2: 2 + 3 = 5"}, lines)
	st := ctx.Stats()
	assert.Zero(t, st.Rounds)
	assert.Empty(t, st.Triples)
	for _, s := range st.Survivors {
		assertNum(t, 1, s.A)
		assertNum(t, 0, s.B)
	}
}

func TestContractSingleOperand(t *testing.T) {
	ctx, lines := record(t, mustBuild(t, "x"), SetVar("x", big.NewFloat(-4)))
	require.NoError(t, ctx.Err())
	assertNum(t, -4, ctx.Result())
	assert.Empty(t, lines)
}

func TestContractConsumesTree(t *testing.T) {
	tree := mustBuild(t, "((2+3)*2)+((4*2)+2)")
	first, last := NodeID(0), NodeID(8)
	_, err := Contract(tree)
	require.NoError(t, err)
	assert.Equal(t, 3, tree.Len())
	l, r := tree.Children(tree.Root())
	assert.Equal(t, first, l)
	assert.Equal(t, last, r)
	assert.Equal(t, []NodeID{first, last}, slices.Collect(tree.Leaves()))
}

func TestContractIdentityBeforeRakes(t *testing.T) {
	tree := mustBuild(t, "((2+3)*2)+((4*2)+2)")
	c, err := newContraction(NewContext(), tree)
	require.NoError(t, err)
	for id := range tree.Postorder(nil) {
		assertNum(t, 1, c.affine[id].A)
		assertNum(t, 0, c.affine[id].B)
	}
	assert.Equal(t, NodeID(0), c.first)
	assert.Equal(t, NodeID(8), c.last)
}

func TestContractVariables(t *testing.T) {
	tree := mustBuild(t, "a*(b+c)+d")
	r, err := Contract(tree, SetVars(map[string]*big.Float{
		"a": big.NewFloat(2),
		"b": big.NewFloat(3),
		"c": big.NewFloat(4),
		"d": big.NewFloat(5),
	}))
	require.NoError(t, err)
	assertNum(t, 19, r)
}

func TestContractNameError(t *testing.T) {
	r, err := Contract(mustBuild(t, "x+1"))
	assert.Nil(t, r)
	var ne *NameError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "x", ne.Name)
}

func TestContractEmpty(t *testing.T) {
	for _, tree := range []*Tree{nil, {root: Nil}} {
		r, err := Contract(tree)
		assert.Nil(t, r)
		assert.ErrorIs(t, err, ErrMalformedExpression)
	}
}

func TestContractViolations(t *testing.T) {
	t.Run("orphan", func(t *testing.T) {
		tree := mustBuild(t, "2+3*2")
		tree.nodes[1].parent = Nil
		r, err := Contract(tree)
		assert.Nil(t, r)
		var se *StructuralError
		require.ErrorAs(t, err, &se)
		assert.ErrorIs(t, err, ErrStructuralViolation)
		assert.Equal(t, 1, se.Round)
		assert.Equal(t, NodeID(1), se.Node)
		assert.Equal(t, "3", se.Value)
		assert.NotEmpty(t, se.Tree)
		assert.Contains(t, err.Error(), se.Reason)
	})
	t.Run("root", func(t *testing.T) {
		// With the middle leaf as an anchor, the first leaf would be raked
		// out from under the root.
		tree := mustBuild(t, "2+3*2")
		c, err := newContraction(NewContext(), tree)
		require.NoError(t, err)
		c.first = 1
		_, err = c.run()
		var se *StructuralError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, NodeID(0), se.Node)
		assert.Equal(t, 5, tree.Len(), "violating rake must not modify the tree")
	})
	t.Run("survivors", func(t *testing.T) {
		tree := mustBuild(t, "2+3")
		c, err := newContraction(NewContext(), tree)
		require.NoError(t, err)
		c.first, c.last = c.last, c.first
		_, err = c.run()
		var se *StructuralError
		require.ErrorAs(t, err, &se)
		assert.Zero(t, se.Round)
		assert.Equal(t, tree.Root(), se.Node)
	})
	t.Run("context", func(t *testing.T) {
		tree := mustBuild(t, "2+3*2")
		tree.nodes[1].parent = Nil
		ctx := NewContext()
		assert.Nil(t, ctx.Contract(tree))
		assert.Nil(t, ctx.Result())
		assert.ErrorIs(t, ctx.Err(), ErrStructuralViolation)
		assert.False(t, errors.Is(ctx.Err(), ErrMalformedExpression))
	})
}

func TestContractStaleRake(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(map[bool]string{false: "sequential", true: "parallel"}[parallel], func(t *testing.T) {
			r := rand.New(rand.NewPCG(5, 6))
			relinked := Nil
			for range 50 {
				tree := mustBuild(t, randExpr(r, 40, "123456789"))
				c, err := newContraction(NewContext(Parallel(parallel)), tree)
				require.NoError(t, err)
				c.onBatch = func(round int, batch []rake) {
					if relinked != Nil || len(batch) < 2 {
						return
					}
					relinked = batch[len(batch)-1].v
					tree.nodes[relinked].parent = Nil
				}
				_, err = c.run()
				if relinked == Nil {
					require.NoError(t, err)
					continue
				}
				var se *StructuralError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, relinked, se.Node)
				assert.Contains(t, se.Reason, "no longer matches")
				return
			}
			t.Fatal("no phase A batch had two rakes")
		})
	}
}

func TestContractEventsOwnNumbers(t *testing.T) {
	obs := ObserverFunc(func(ev Event) {
		for _, x := range []*big.Float{ev.Before.A, ev.Before.B, ev.After.A, ev.After.B, ev.Result} {
			if x != nil {
				x.SetInt64(99)
			}
		}
	})
	ctx := NewContext(Observe(obs))
	r := ctx.Contract(mustBuild(t, "2+3*2"))
	require.NoError(t, ctx.Err())
	assertNum(t, 8, r)
	st := ctx.Stats()
	require.Len(t, st.Triples, 1)
	assertNum(t, 3, st.Triples[0].A)
	assertNum(t, 0, st.Triples[0].B)
	assertNum(t, 1, st.Survivors[0].A)
	assertNum(t, 0, st.Survivors[0].B)
	assertNum(t, 3, st.Survivors[1].A)
	assertNum(t, 0, st.Survivors[1].B)
}

// countHandler counts handled records and keeps the values logged under
// the "event" key without resolving them.
type countHandler struct {
	level   slog.Level
	handled int
	events  []slog.Value
}

func (h *countHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level }

func (h *countHandler) Handle(_ context.Context, r slog.Record) error {
	h.handled++
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "event" {
			h.events = append(h.events, a.Value)
		}
		return true
	})
	return nil
}

func (h *countHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *countHandler) WithGroup(string) slog.Handler      { return h }

func TestContractLogging(t *testing.T) {
	t.Run("info", func(t *testing.T) {
		h := &countHandler{level: slog.LevelInfo}
		ctx := NewContext(Logger(slog.New(h)))
		assertNum(t, 20, ctx.Contract(mustBuild(t, "((2+3)*2)+((4*2)+2)")))
		assert.Zero(t, h.handled)
	})
	t.Run("debug", func(t *testing.T) {
		h := &countHandler{level: slog.LevelDebug}
		ctx, lines := record(t, mustBuild(t, "((2+3)*2)+((4*2)+2)"), Logger(slog.New(h)))
		require.NoError(t, ctx.Err())
		require.Len(t, h.events, len(lines))
		for i, v := range h.events {
			// Events are rendered only when a handler resolves them.
			assert.Equal(t, slog.KindLogValuer, v.Kind())
			assert.Equal(t, lines[i], v.Resolve().String())
		}
	})
	t.Run("violation", func(t *testing.T) {
		h := &countHandler{level: slog.LevelInfo}
		tree := mustBuild(t, "2+3*2")
		tree.nodes[1].parent = Nil
		ctx := NewContext(Logger(slog.New(h)))
		assert.Nil(t, ctx.Contract(tree))
		assert.ErrorIs(t, ctx.Err(), ErrStructuralViolation)
		assert.Zero(t, h.handled, "violations are returned, not logged")
	})
}

func TestEventLogValue(t *testing.T) {
	ev := Event{Kind: EventReduce, Op: OpAdd, Parent: 2, Left: big.NewFloat(2), Right: big.NewFloat(3), Result: big.NewFloat(5)}
	v := ev.LogValue()
	assert.Equal(t, slog.KindString, v.Kind())
	assert.Equal(t, "reduce +#2: 2 + 3 = 5", v.String())
}

func TestContractRandom(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for range 300 {
		n := 1 + r.IntN(40)
		src := randExpr(r, n, "0123456789")
		toks, err := Postfix(strings.NewReader(src))
		require.NoError(t, err, "%q", src)
		tree, err := Build(toks)
		require.NoError(t, err, "%q", src)

		ref := NewContext(Prec(512))
		want := ref.EvalPostfix(toks)
		require.NoError(t, ref.Err(), "%q", src)

		seq, seqLines := record(t, tree.Clone(), Prec(512))
		require.NoError(t, seq.Err(), "%q", src)
		assert.Zerof(t, want.Cmp(seq.Result()), "%q: want %s, got %s", src, num(want), num(seq.Result()))

		par, parLines := record(t, tree.Clone(), Prec(512), Parallel(true))
		require.NoError(t, par.Err(), "%q", src)
		assert.Zero(t, want.Cmp(par.Result()), "%q", src)
		assert.Equal(t, seqLines, parLines, "%q", src)

		st := seq.Stats()
		assert.LessOrEqual(t, st.Rounds, RoundBound(n), "%q", src)
		if n > 1 {
			assert.Equal(t, n-2, st.Rakes, "%q", src)
			assert.Len(t, seqLines, n-1, "%q", src)
		}
	}
}

// TestPhaseABatches checks that the rakes of every phase A batch have
// distinct parents and that no rake's parent is another's grandparent.
func TestPhaseABatches(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for range 200 {
		n := 2 + r.IntN(60)
		src := randExpr(r, n, "123456789")
		tree := mustBuild(t, src)
		c, err := newContraction(NewContext(Prec(512)), tree)
		require.NoError(t, err)
		batches := 0
		c.onBatch = func(round int, batch []rake) {
			batches++
			parents := make(map[NodeID]bool, len(batch))
			for _, k := range batch {
				assert.False(t, parents[k.u], "%q round %d: shared parent %d", src, round, k.u)
				parents[k.u] = true
				assert.Equal(t, k.u, tree.Parent(k.v))
				assert.Equal(t, k.v, tree.Left(k.u))
			}
			for _, k := range batch {
				assert.False(t, parents[k.g], "%q round %d: parent %d is a grandparent", src, round, k.g)
			}
		}
		_, err = c.run()
		require.NoError(t, err, "%q", src)
		if c.stats.Rakes > 0 {
			assert.LessOrEqual(t, batches, c.stats.Rounds)
		}
	}
}

func TestRoundBound(t *testing.T) {
	cases := []struct {
		k, want int
	}{
		{0, 0},
		{1, 0},
		{2, 2},
		{3, 3},
		{4, 4},
		{10, 6},
		{100, 12},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, RoundBound(c.k), "k=%d", c.k)
	}
	prev := 0
	for k := 1; k <= 1000; k++ {
		b := RoundBound(k)
		assert.GreaterOrEqual(t, b, prev, "k=%d", k)
		prev = b
	}
}

func TestRoundBoundBalanced(t *testing.T) {
	// A complete tree with 2^d leaves contracts well within the bound.
	src := "1"
	for range 6 {
		src = "(" + src + "+" + src + ")"
	}
	ctx := NewContext()
	ctx.Contract(mustBuild(t, src))
	require.NoError(t, ctx.Err())
	assertNum(t, 64, ctx.Result())
	assert.LessOrEqual(t, ctx.Stats().Rounds, RoundBound(64))
}

func TestSplit(t *testing.T) {
	odd, even := split([]NodeID{1, 2, 3, 4, 5})
	assert.Equal(t, []NodeID{1, 3, 5}, odd)
	assert.Equal(t, []NodeID{2, 4}, even)
	odd, even = split(nil)
	assert.Empty(t, odd)
	assert.Empty(t, even)
}

func TestIndependent(t *testing.T) {
	cases := []struct {
		name  string
		batch []rake
		ok    bool
	}{
		{"empty", nil, true},
		{"disjoint", []rake{{v: 1, u: 2, w: 0, g: 4, left: true}, {v: 5, u: 7, w: 6, g: 9, left: true}}, true},
		{"sibling-is-grandparent", []rake{{v: 1, u: 2, w: 3, g: 9, left: true}, {v: 4, u: 5, w: 6, g: 3, left: false}}, true},
		{"shared-grandparent", []rake{{v: 1, u: 2, w: 0, g: 9, left: true}, {v: 4, u: 5, w: 6, g: 9, left: false}}, true},
		{"shared-parent", []rake{{v: 1, u: 2, w: 0, g: 4, left: true}, {v: 0, u: 2, w: 1, g: 4, left: true}}, false},
		{"parent-is-grandparent", []rake{{v: 1, u: 2, w: 3, g: 5, left: true}, {v: 6, u: 5, w: 7, g: 8, left: false}}, false},
		{"leaf-is-sibling", []rake{{v: 1, u: 2, w: 3, g: 5, left: true}, {v: 6, u: 7, w: 1, g: 8, left: false}}, false},
		{"shared-sibling", []rake{{v: 1, u: 2, w: 3, g: 5, left: true}, {v: 6, u: 7, w: 3, g: 8, left: false}}, false},
		{"shared-slot", []rake{{v: 1, u: 2, w: 3, g: 5, left: true}, {v: 6, u: 7, w: 4, g: 5, left: true}}, false},
	}
	for _, c := range cases {
		id, ok := independent(c.batch)
		assert.Equal(t, c.ok, ok, c.name)
		if ok {
			assert.Equal(t, Nil, id, c.name)
		} else {
			assert.NotEqual(t, Nil, id, c.name)
		}
	}
}

func BenchmarkContract(b *testing.B) {
	r := rand.New(rand.NewPCG(5, 6))
	src := randExpr(r, 500, "123456789")
	tree := mustBuild(b, src)
	for _, par := range []bool{false, true} {
		name := "sequential"
		if par {
			name = "parallel"
		}
		b.Run(name, func(b *testing.B) {
			ctx := NewContext(Prec(512), Parallel(par))
			for b.Loop() {
				ctx.Contract(tree.Clone())
				if ctx.Err() != nil {
					b.Fatal(ctx.Err())
				}
			}
		})
	}
}
