// Package theme maps TextMate scopes to colors and font styles.
package theme

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var ErrColor = errors.New("invalid color")

type ThemeJSON struct {
	Name    string           `json:"name"`
	Default TokenColorJSON   `json:"default"`
	Tokens  []TokenColorJSON `json:"tokens"`
}

type TokenColorJSON struct {
	Scope    any `json:"scope"`
	Settings struct {
		Foreground string `json:"foreground"`
		Background string `json:"background"`
		FontStyle  string `json:"fontStyle"`
	} `json:"settings"`
}

type FontStyle int

const (
	Bold FontStyle = 1 << iota
	Italic
	Underline
	Strikethrough
)

func (s FontStyle) Has(has FontStyle) bool {
	return s&has == has
}

type TokenColor struct {
	Foreground color.Color
	Background color.Color
	FontStyle  FontStyle
	// Children holds selectors that additionally require an enclosing scope,
	// keyed by that scope.
	Children map[string]TokenColor

	defined bool
}

type Theme struct {
	TokenColor
	Name   string
	Tokens map[string]TokenColor
}

// setName stores col under a selector like "meta.function entity.name".
// The innermost scope is the top-level key, enclosing scopes nest below it.
func setName(dest map[string]TokenColor, scope string, col TokenColor) {
	parts := strings.Fields(scope)
	current := dest

	for i := len(parts) - 1; i >= 0; i-- {
		part := parts[i]
		c := current[part]
		if i == 0 {
			c.Foreground = col.Foreground
			c.Background = col.Background
			c.FontStyle = col.FontStyle
			c.defined = true
		}
		if c.Children == nil {
			c.Children = make(map[string]TokenColor)
		}
		current[part] = c
		current = c.Children
	}
}

// parseColor accepts #rgb, #rrggbb and #rrggbbaa.
func parseColor(s string) (color.RGBA, error) {
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return color.RGBA{}, fmt.Errorf("%w: `%s`", ErrColor, s)
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("%w: `%s`", ErrColor, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: `%s`", ErrColor, s)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func parseToken(jc TokenColorJSON) (col TokenColor) {
	if jc.Settings.Foreground != "" {
		if c, err := parseColor(jc.Settings.Foreground); err == nil {
			col.Foreground = c
		}
	}
	if jc.Settings.Background != "" {
		if c, err := parseColor(jc.Settings.Background); err == nil {
			col.Background = c
		}
	}
	for field := range strings.FieldsSeq(jc.Settings.FontStyle) {
		switch field {
		case "bold":
			col.FontStyle |= Bold
		case "italic":
			col.FontStyle |= Italic
		case "underline":
			col.FontStyle |= Underline
		case "strikethrough":
			col.FontStyle |= Strikethrough
		}
	}
	return
}

func ParseTheme(j ThemeJSON) *Theme {
	tokens := make(map[string]TokenColor)
	for _, jc := range j.Tokens {
		col := parseToken(jc)
		switch name := jc.Scope.(type) {
		case string:
			for sel := range strings.SplitSeq(name, ",") {
				setName(tokens, strings.TrimSpace(sel), col)
			}
		case []any:
			for _, name := range name {
				if nstr, ok := name.(string); ok {
					setName(tokens, nstr, col)
				}
			}
		}
	}

	return &Theme{
		TokenColor: parseToken(j.Default),
		Name:       j.Name,
		Tokens:     tokens,
	}
}

// Load reads a JSON theme file.
func Load(pathname string) (*Theme, error) {
	content, err := os.ReadFile(pathname)
	if err != nil {
		return nil, err
	}
	var j ThemeJSON
	if err := json.Unmarshal(content, &j); err != nil {
		return nil, fmt.Errorf("parsing theme %s: %w", pathname, err)
	}
	return ParseTheme(j), nil
}

func hexColor(c color.Color) lipgloss.Color {
	r, g, b, _ := c.RGBA()
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8))
}

// Style converts a token color into a lipgloss style of renderer r. Unless
// transparent, missing colors fall back to the theme defaults.
func (t *Theme) Style(r *lipgloss.Renderer, tc TokenColor, transparent bool) lipgloss.Style {
	if !transparent {
		if tc.Foreground == nil {
			tc.Foreground = t.Foreground
		}
		if tc.Background == nil {
			tc.Background = t.Background
		}
	}

	style := r.NewStyle().
		TabWidth(lipgloss.NoTabConversion).
		Bold(tc.FontStyle.Has(Bold)).
		Italic(tc.FontStyle.Has(Italic)).
		Underline(tc.FontStyle.Has(Underline)).
		Strikethrough(tc.FontStyle.Has(Strikethrough))
	if tc.Foreground != nil {
		style = style.Foreground(hexColor(tc.Foreground))
	}
	if tc.Background != nil {
		style = style.Background(hexColor(tc.Background))
	}
	return style
}
