package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	textmate "github.com/friedelschoen/go-textmate-doc"
	"github.com/friedelschoen/go-textmate-doc/document"
	"github.com/friedelschoen/go-textmate-doc/theme"
)

// isColorEnabled determines if color should be enabled based on mode and writer.
// In auto mode, color is enabled only if the writer is a TTY and NO_COLOR is not set.
func isColorEnabled(mode string, writer io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	default:
		if os.Getenv("NO_COLOR") != "" {
			return false
		}
		if f, ok := writer.(*os.File); ok {
			return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
		return false
	}
}

func newRenderer(mode string, w io.Writer) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(w)
	profile := termenv.Ascii
	if isColorEnabled(mode, w) {
		profile = termenv.EnvColorProfile()
		if profile == termenv.Ascii {
			profile = termenv.TrueColor
		}
	}
	r.SetColorProfile(profile)
	return r
}

func runHighlight(cmd *cobra.Command, opts *options, args []string) error {
	doc, cfg, err := opts.openDocument(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	th := &theme.Theme{}
	if isColorEnabled(opts.color, cmd.OutOrStdout()) {
		pathname, ok := cfg.ThemePath(cfg.Theme)
		if !ok {
			return fmt.Errorf("theme `%s` not found in %v", cfg.Theme, cfg.Themes)
		}
		if th, err = theme.Load(pathname); err != nil {
			return err
		}
	}

	return render(cmd.OutOrStdout(), newRenderer(opts.color, cmd.OutOrStdout()), doc, th, opts.transparent)
}

// render writes every line of doc, styling each run of equal token sets.
// Output always ends in exactly one newline.
func render(w io.Writer, r *lipgloss.Renderer, doc *document.Document, th *theme.Theme, transparent bool) error {
	base := doc.Grammar().ScopeName
	plain := th.Style(r, theme.TokenColor{}, transparent)
	for i := range doc.LineCount() {
		text, _ := doc.Text(i)
		runes := []rune(text)
		matched, _ := doc.Matched(i)

		mapper := make(textmate.Mapper, len(runes))
		for j := range matched {
			mapper.Add(&matched[j])
		}

		style, start := plain, 0
		for _, m := range th.MapTokens(base, mapper.Iter()) {
			if _, err := io.WriteString(w, style.Render(string(runes[start:m.Offset]))); err != nil {
				return err
			}
			style, start = th.Style(r, m.TokenColor, transparent), m.Offset
		}
		if _, err := io.WriteString(w, style.Render(string(runes[start:]))); err != nil {
			return err
		}
		if i < doc.LineCount()-1 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
	}
	if strings.HasSuffix(doc.Content(), "\n") {
		return nil
	}
	_, err := io.WriteString(w, "\n")
	return err
}
