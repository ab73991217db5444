package treecontract_test

import (
	"fmt"
	"math/big"

	"github.com/zephyrtronium/treecontract"
)

func Example() {
	ctx := treecontract.NewContext()
	e, _ := treecontract.ParseString("x*(x+1)+2")
	for i := range 4 {
		ctx := ctx.Clone(treecontract.SetVar("x", big.NewFloat(float64(i))))
		fmt.Printf("x = %d  y = %v\n", i, ctx.Eval(e))
	}

	// Output:
	// x = 0  y = 2
	// x = 1  y = 4
	// x = 2  y = 8
	// x = 3  y = 14
}

func Example_trace() {
	e, _ := treecontract.ParseString("((2+3)*2)+((4*2)+2)")
	obs := treecontract.ObserverFunc(func(ev treecontract.Event) {
		fmt.Println(ev)
	})
	ctx := treecontract.NewContext(treecontract.Observe(obs))
	r := ctx.Eval(e)
	fmt.Println(r, "after", ctx.Stats().Rounds, "rounds")

	// Output:
	// round 1 phase A: rake 4#5 under *#7 into 2#6: (1, 0) -> (4, 0)
	// round 1 phase B: rake 3#1 under +#2 into 2#0: (1, 0) -> (1, 3)
	// round 2 phase B: rake 2#3 under *#4 into 2#0: (1, 3) -> (2, 6)
	// round 3 phase A: rake 2#6 under +#9 into 2#8: (1, 0) -> (1, 8)
	// reduce +#10: 10 + 10 = 20
	// 20 after 3 rounds
}

func ExamplePostfix() {
	toks, _ := treecontract.PostfixString("[2+3]·4+x")
	for _, tok := range toks {
		fmt.Print(tok.Text, " ")
	}
	fmt.Println()

	// Output:
	// 2 3 + 4 · x +
}

func ExampleExpr_String() {
	e, _ := treecontract.ParseString("2+3*2")
	fmt.Println(e)

	// Output:
	// ([2] + [(3) × (2)])
}
