// Package tracelog stores contraction runs and their event traces in SQLite.
//
// Each run records the expression, its result, and round and rake counts.
// Events are kept in contraction order as their one-line renderings, so a
// stored trace reads exactly as the CLI prints it.
package tracelog
