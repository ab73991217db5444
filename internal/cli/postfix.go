package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zephyrtronium/treecontract"
)

// PostfixResult is the postfix form of one expression.
type PostfixResult struct {
	Expr    string   `json:"expr" yaml:"expr"`
	Postfix []string `json:"postfix,omitempty" yaml:"postfix,omitempty"`
	Code    string   `json:"code,omitempty" yaml:"code,omitempty"`
	Error   string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewPostfixCommand creates the postfix command.
func NewPostfixCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "postfix expr...",
		Short: "Print expressions in postfix order",
		Long: `Parse each argument and print its tokens in postfix order, with
operators following their operands. This is the order in which the
expression tree's leaves are numbered.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPostfix(rootOpts, cmd, args)
		},
	}
	return cmd
}

func runPostfix(opts *RootOptions, cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	results := make([]PostfixResult, 0, len(args))
	failed := 0
	for _, arg := range args {
		res := PostfixResult{Expr: arg}
		toks, err := treecontract.PostfixString(arg)
		if err != nil {
			failed++
			res.Code, res.Error = errorCode(err), err.Error()
		}
		for _, tok := range toks {
			res.Postfix = append(res.Postfix, tok.Text)
		}
		results = append(results, res)
	}

	if opts.Format == "text" {
		for _, res := range results {
			if res.Error != "" {
				fmt.Fprintf(w, "Error [%s]: %s\n", res.Code, res.Error)
				continue
			}
			fmt.Fprintln(w, strings.Join(res.Postfix, " "))
		}
	} else {
		out := &OutputFormatter{Format: opts.Format, Writer: w}
		if err := out.Success(results); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d expression(s) failed", failed))
	}
	return nil
}
