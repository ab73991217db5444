// Command treecontract evaluates expressions by parallel tree contraction.
package main

import (
	"fmt"
	"os"

	"github.com/zephyrtronium/treecontract/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "treecontract:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
