package treecontract

import (
	"errors"
	"log/slog"
	"math/big"
	"runtime"
	"slices"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// contraction is the mutable state of one contraction of a tree.
type contraction struct {
	t        *Tree
	prec     uint
	parallel bool
	obs      Observer
	log      *slog.Logger

	// affine is the transform of each node, indexed by NodeID.
	affine []Affine
	// vals is the value of each operand, indexed by NodeID.
	vals []*big.Float
	// first and last are the boundary leaves, which are never raked.
	first, last NodeID

	round int
	stats Stats

	// onBatch, if set, sees each phase A batch after it is checked.
	onBatch func(round int, batch []rake)
}

func newContraction(ctx *Context, t *Tree) (*contraction, error) {
	if t == nil || t.root == Nil {
		return nil, &EmptyExpressionError{Col: 1}
	}
	c := contraction{
		t:        t,
		prec:     ctx.prec,
		parallel: ctx.parallel,
		obs:      ctx.obs,
		log:      ctx.log,
		affine:   make([]Affine, t.Cap()),
		vals:     make([]*big.Float, t.Cap()),
		first:    Nil,
		last:     Nil,
	}
	for id := range t.Postorder(nil) {
		c.affine[id] = identity(c.prec)
		if !t.IsLeaf(id) {
			continue
		}
		v, err := ctx.operand(t.Value(id))
		if err != nil {
			return nil, err
		}
		c.vals[id] = v
		if c.first == Nil {
			c.first = id
		}
		c.last = id
	}
	return &c, nil
}

// run contracts the tree and returns its value.
func (c *contraction) run() (*big.Float, error) {
	t := c.t
	if t.IsLeaf(t.root) {
		return c.affine[t.root].Apply(c.vals[t.root], c.prec), nil
	}
	leaves := slices.Collect(t.Leaves())
	bound := RoundBound(len(leaves))
	cand := c.candidates()
	for len(cand) > 0 {
		c.round++
		if c.round > bound {
			return nil, c.violation(cand[0], "contraction exceeded round bound")
		}
		odd, even := split(cand)
		c.log.Debug("contraction round",
			"round", c.round,
			"candidates", len(cand),
			"rake", len(odd),
		)
		deferred, err := c.phaseA(odd)
		if err != nil {
			return nil, err
		}
		if err := c.phaseB(deferred); err != nil {
			return nil, err
		}
		// Raking never reorders leaves, so the remaining candidates must be
		// exactly the ones held back this round.
		cand = c.candidates()
		if !slices.Equal(cand, even) {
			return nil, c.violation(t.root, "live leaves differ from held-back leaves")
		}
	}
	c.stats.Rounds = c.round
	return c.reduce()
}

// candidates returns the live leaves in postorder, excluding the boundary
// leaves.
func (c *contraction) candidates() []NodeID {
	var r []NodeID
	for id := range c.t.Leaves() {
		if id != c.first && id != c.last {
			r = append(r, id)
		}
	}
	return r
}

// phaseA rakes the leaves in odd that are left children and returns the rest.
func (c *contraction) phaseA(odd []NodeID) ([]NodeID, error) {
	t := c.t
	var batch []rake
	var deferred []NodeID
	for _, v := range odd {
		u := t.Parent(v)
		if u == Nil {
			return nil, c.violation(v, "candidate leaf has no parent")
		}
		if t.Left(u) == Nil {
			return nil, c.violation(u, "parent has no left child")
		}
		if t.Left(u) != v {
			deferred = append(deferred, v)
			continue
		}
		r, err := c.plan(v)
		if err != nil {
			return nil, err
		}
		batch = append(batch, r)
	}
	if id, ok := independent(batch); !ok {
		return nil, c.violation(id, "phase A rakes are not independent")
	}
	if c.onBatch != nil {
		c.onBatch(c.round, batch)
	}
	events := make([]Event, len(batch))
	if c.parallel && len(batch) > 1 {
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i, r := range batch {
			g.Go(func() error {
				if err := c.stale(r); err != nil {
					return err
				}
				events[i] = c.apply(r, PhaseA)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			var s *staleRake
			if errors.As(err, &s) {
				return nil, c.violation(s.v, "planned rake no longer matches the tree")
			}
			return nil, err
		}
	} else {
		for i, r := range batch {
			if err := c.stale(r); err != nil {
				return nil, c.violation(r.v, "planned rake no longer matches the tree")
			}
			events[i] = c.apply(r, PhaseA)
		}
	}
	for _, ev := range events {
		c.record(ev)
	}
	return deferred, nil
}

// phaseB rakes each deferred leaf in turn.
func (c *contraction) phaseB(deferred []NodeID) error {
	for _, v := range deferred {
		r, err := c.plan(v)
		if err != nil {
			return err
		}
		c.record(c.apply(r, PhaseB))
	}
	return nil
}

// plan locates the nodes involved in raking v.
func (c *contraction) plan(v NodeID) (rake, error) {
	t := c.t
	u := t.Parent(v)
	if u == Nil {
		return rake{}, c.violation(v, "rake of a leaf with no parent")
	}
	g := t.Parent(u)
	if g == Nil {
		return rake{}, c.violation(v, "rake would remove the root")
	}
	w := t.Sibling(v)
	if w == Nil {
		return rake{}, c.violation(v, "rake of a leaf with no sibling")
	}
	return rake{v: v, u: u, w: w, g: g, left: t.Left(g) == u}, nil
}

// staleRake is a planned rake whose nodes were relinked before it ran.
type staleRake struct {
	v NodeID
}

func (err *staleRake) Error() string {
	return "stale rake of node " + strconv.Itoa(int(err.v))
}

// stale checks that the links r was planned from still hold. It reads only
// nodes owned by r.
func (c *contraction) stale(r rake) error {
	t := c.t
	if t.Parent(r.v) != r.u || t.Parent(r.u) != r.g {
		return &staleRake{v: r.v}
	}
	return nil
}

// apply performs a planned rake. It reads and writes only the state of the
// nodes in r, so independent rakes may be applied concurrently.
func (c *contraction) apply(r rake, phase Phase) Event {
	t := c.t
	op := t.Op(r.u)
	before := c.affine[r.w]
	after := compose(op, c.affine[r.u], c.affine[r.v], c.vals[r.v], before, c.prec)
	c.affine[r.w] = after
	t.splice(r.v, r.u, r.w, r.g, r.left)
	return Event{
		Kind:      EventRake,
		Round:     c.round,
		Phase:     phase,
		Op:        op,
		Parent:    r.u,
		Leaf:      r.v,
		LeafValue: t.Value(r.v),
		Sibling:   r.w,
		Value:     t.Value(r.w),
		Before:    before.Copy(),
		After:     after.Copy(),
	}
}

func (c *contraction) record(ev Event) {
	if ev.Kind == EventRake {
		c.stats.Rakes++
		c.stats.Triples = append(c.stats.Triples, ev.Triple())
		observeRake(ev.Phase)
	}
	c.log.Debug("contraction step", "event", ev)
	if c.obs != nil {
		c.obs.Observe(ev)
	}
}

// reduce combines the root's two children through the root operator. Both
// must be the boundary leaves.
func (c *contraction) reduce() (*big.Float, error) {
	t := c.t
	root := t.root
	l, r := t.Children(root)
	switch {
	case l == Nil || r == Nil:
		return nil, c.violation(root, "root lost a child")
	case !t.IsLeaf(l) || !t.IsLeaf(r):
		return nil, c.violation(root, "survivors are not both leaves")
	case l != c.first || r != c.last:
		return nil, c.violation(root, "survivors are not the boundary leaves")
	}
	x := c.affine[l].Apply(c.vals[l], c.prec)
	y := c.affine[r].Apply(c.vals[r], c.prec)
	res := combine(t.Op(root), x, y, c.prec)
	c.stats.Survivors = [2]Triple{
		{Value: t.Value(l), A: c.affine[l].A, B: c.affine[l].B},
		{Value: t.Value(r), A: c.affine[r].A, B: c.affine[r].B},
	}
	c.record(Event{
		Kind:      EventReduce,
		Round:     c.round,
		Phase:     PhaseFinal,
		Op:        t.Op(root),
		Parent:    root,
		Leaf:      l,
		LeafValue: t.Value(l),
		Sibling:   r,
		Value:     t.Value(r),
		Before:    c.affine[l].Copy(),
		After:     c.affine[r].Copy(),
		Left:      x,
		Right:     y,
		Result:    new(big.Float).Copy(res),
	})
	return res, nil
}

func (c *contraction) violation(id NodeID, reason string) error {
	err := &StructuralError{
		Round:  c.round,
		Node:   id,
		Value:  c.t.Value(id),
		Reason: reason,
		Tree:   c.t.String(),
	}
	c.log.Debug("contraction fault",
		"round", c.round,
		"node", id,
		"reason", reason,
	)
	return err
}
