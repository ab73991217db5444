// Package cli implements the treecontract command line.
//
// Commands:
//   - eval: evaluate expressions by tree contraction, optionally printing the
//     trace and recording runs in a SQLite trace log
//   - postfix: print expressions in postfix order
//   - history: list recorded runs or show one run's trace
//
// Every command accepts --format text|json|yaml. Structured output is wrapped
// in a CLIResponse envelope. Exit code 1 means an expression failed; exit code
// 2 means the command itself could not run.
package cli
