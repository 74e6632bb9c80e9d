package main

import (
	"github.com/spf13/cobra"

	"github.com/friedelschoen/go-textmate-doc/internal/logging"
)

type options struct {
	debug       bool
	configPath  string
	color       string
	syntax      string
	theme       string
	transparent bool
	verify      bool
	edits       []string
}

func newRootCommand() *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "colorcat [file]",
		Short: "Print a file highlighted with a TextMate grammar",
		Long: `colorcat tokenizes a file (or stdin) line by line with a TextMate grammar
and prints it with the colors of a theme.

Edits given with --edit are applied to the buffer one by one before printing,
retokenizing only the lines they affect.`,
		Args: cobra.MaximumNArgs(1),
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if opts.debug {
				logging.SetLevel("debug")
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHighlight(cmd, &opts, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.StringVar(&opts.configPath, "config", "", "path to config file")
	flags.StringVar(&opts.color, "color", "auto", "colorize output: auto, always, never")
	flags.StringVar(&opts.syntax, "syntax", "", "file type of the grammar to use")
	flags.StringVar(&opts.theme, "theme", "", "theme name (overrides the config)")
	flags.BoolVar(&opts.transparent, "transparent", false, "do not paint the theme's default colors")
	flags.BoolVar(&opts.verify, "verify", false, "check all line records after every edit")
	flags.StringArrayVar(&opts.edits, "edit", nil, "apply an edit `offset:removed:text` before printing (repeatable)")

	rootCmd.AddCommand(newListCommand(&opts))
	rootCmd.AddCommand(newScopesCommand(&opts))

	return rootCmd
}
