package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newScopesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "scopes [file]",
		Short: "Print the analysis of every line",
		Long: `scopes prints, for every line, the comment depth at its start and end,
the round, square and curly bracket diffs and the scope stack at its end.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, _, err := opts.openDocument(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i := range doc.LineCount() {
				info, _ := doc.Info(i)
				state, _ := doc.ScopeStack(i)
				fmt.Fprintf(out, "%d\t%d>%d\t(%+d [%+d {%+d\t%s\n", i,
					info.CommentDepthStart, info.CommentDepthEnd,
					info.RoundBracketDiff, info.SquareBracketDiff, info.CurlyBracketDiff,
					state)
			}
			return nil
		},
	}
}
