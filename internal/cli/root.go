package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/zephyrtronium/treecontract/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json" | "yaml"
	Config  string // path to a YAML config file

	// Settings and Logger are filled in before a subcommand runs.
	Settings *config.Config
	Logger   *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the treecontract CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "treecontract",
		Short: "Evaluate expressions by parallel tree contraction",
		Long: `Evaluate sums and products of single-character operands by raking
the leaves of their expression trees in synchronous rounds.

Digits are numbers. Letters are variables, set with --given or in the
config file's vars.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to YAML config file")

	cmd.AddCommand(NewEvalCommand(opts))
	cmd.AddCommand(NewPostfixCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// setup loads the config file and installs the logger. Flags given on the
// command line take precedence over the config file.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	o.Settings = &config.Config{}
	if o.Config != "" {
		cfg, err := config.Load(o.Config)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		o.Settings = cfg
	}
	if !cmd.Flags().Changed("format") && o.Settings.Format != "" {
		o.Format = o.Settings.Format
	}
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	level := slog.LevelInfo
	switch {
	case o.Verbose:
		level = slog.LevelDebug
	case o.Settings.LogLevel != "":
		if err := level.UnmarshalText([]byte(o.Settings.LogLevel)); err != nil {
			return WrapExitError(ExitCommandError, "invalid log level", err)
		}
	}
	o.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

// settings returns the loaded config, or an empty one when no setup ran.
func (o *RootOptions) settings() *config.Config {
	if o.Settings == nil {
		return &config.Config{}
	}
	return o.Settings
}

// logger returns the configured logger, or one that discards everything when
// no setup ran.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
