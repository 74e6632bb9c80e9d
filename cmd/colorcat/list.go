package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

func newListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the file types of all available grammars",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			loader, err := loadGrammars(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "File Types:")
			names := maps.Collect(loader.FileTypeNames())
			for _, ft := range slices.Sorted(maps.Keys(names)) {
				fmt.Fprintf(out, "- %s: %s\n", ft, strings.Join(names[ft], ", "))
			}
			return nil
		},
	}
}
