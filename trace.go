package treecontract

import (
	"fmt"
	"log/slog"
	"math/big"
)

// EventKind is the kind of a contraction Event.
type EventKind int8

const (
	// EventRake is the removal of a leaf and its parent.
	EventRake EventKind = iota + 1
	// EventReduce is the final combination of the two survivors through the
	// root operator.
	EventReduce
)

func (k EventKind) String() string {
	switch k {
	case EventRake:
		return "rake"
	case EventReduce:
		return "reduce"
	default:
		return fmt.Sprintf("EventKind(%d)", int8(k))
	}
}

// Phase is the part of a round in which a rake happens.
type Phase int8

const (
	// PhaseA rakes leaves that are left children.
	PhaseA Phase = iota + 1
	// PhaseB rakes the leaves deferred from phase A.
	PhaseB
	// PhaseFinal is the reduction after the last round.
	PhaseFinal
)

func (p Phase) String() string {
	switch p {
	case PhaseA:
		return "A"
	case PhaseB:
		return "B"
	case PhaseFinal:
		return "final"
	default:
		return fmt.Sprintf("Phase(%d)", int8(p))
	}
}

// Event describes one step of a contraction. Its numbers are copies that the
// receiver may keep or modify.
type Event struct {
	Kind  EventKind
	Round int
	Phase Phase
	// Op is the operator of Parent.
	Op Op
	// Parent is the removed operation for rakes and the root for reductions.
	Parent NodeID
	// Leaf is the raked leaf, or the left survivor for reductions.
	Leaf      NodeID
	LeafValue string
	// Sibling is the node that takes Parent's place, or the right survivor
	// for reductions.
	Sibling NodeID
	// Value is the value or operator symbol of Sibling.
	Value string
	// Before and After are Sibling's transform around a rake.
	Before, After Affine
	// Left, Right, and Result are the reduced survivor values and their
	// combination for reductions.
	Left, Right, Result *big.Float
}

// Triple returns the (value, a, b) triple recorded for a rake.
func (e Event) Triple() Triple {
	return Triple{Value: e.Value, A: new(big.Float).Copy(e.After.A), B: new(big.Float).Copy(e.After.B)}
}

func (e Event) String() string {
	switch e.Kind {
	case EventRake:
		return fmt.Sprintf("round %d phase %v: rake %s#%d under %v#%d into %s#%d: (%s, %s) -> (%s, %s)",
			e.Round, e.Phase, e.LeafValue, e.Leaf, e.Op, e.Parent, e.Value, e.Sibling,
			num(e.Before.A), num(e.Before.B), num(e.After.A), num(e.After.B))
	case EventReduce:
		return fmt.Sprintf("reduce %v#%d: %s %v %s = %s",
			e.Op, e.Parent, num(e.Left), e.Op, num(e.Right), num(e.Result))
	default:
		return e.Kind.String()
	}
}

// LogValue renders e only when a handler actually emits it.
func (e Event) LogValue() slog.Value {
	return slog.StringValue(e.String())
}

// num formats a number in the shortest form that reads back exactly.
func num(x *big.Float) string {
	if x == nil {
		return "<nil>"
	}
	return x.Text('g', -1)
}

// Triple is the record of one rake: the value or symbol of the sibling that
// absorbed the raked leaf, and the sibling's new transform.
type Triple struct {
	Value string
	A, B  *big.Float
}

// Observer receives contraction events in order. Events are delivered from
// the goroutine that called for contraction.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) {
	f(e)
}

// Stats summarizes a contraction.
type Stats struct {
	// Rounds is the number of contraction rounds.
	Rounds int
	// Rakes is the number of rakes, not counting the final reduction.
	Rakes int
	// Triples holds the result of each rake in order.
	Triples []Triple
	// Survivors holds the values and transforms of the root's two children at
	// the final reduction.
	Survivors [2]Triple
}
