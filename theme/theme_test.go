package theme

import (
	"encoding/json"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"

	textmate "github.com/friedelschoen/go-textmate-doc"
)

const testTheme = `{
	"name": "test",
	"default": {"settings": {"foreground": "#ccc", "background": "#000000"}},
	"tokens": [
		{"scope": "comment", "settings": {"foreground": "#808080", "fontStyle": "italic"}},
		{"scope": "string, constant.numeric", "settings": {"foreground": "#00ff00"}},
		{"scope": ["keyword", "storage"], "settings": {"foreground": "#ff0000", "fontStyle": "bold underline"}},
		{"scope": "meta.function entity.name", "settings": {"foreground": "#0000ffff"}},
		{"scope": "bogus", "settings": {"foreground": "red"}}
	]
}`

func parse(t *testing.T) *Theme {
	t.Helper()
	var j ThemeJSON
	require.NoError(t, json.Unmarshal([]byte(testTheme), &j))
	return ParseTheme(j)
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
	}{
		{"#fff", color.RGBA{255, 255, 255, 255}},
		{"#102030", color.RGBA{0x10, 0x20, 0x30, 0xff}},
		{"#10203040", color.RGBA{0x10, 0x20, 0x30, 0x40}},
	}
	for _, tt := range tests {
		got, err := parseColor(tt.in)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
	for _, in := range []string{"", "fff", "#ff", "#gggggg", "#1234567"} {
		_, err := parseColor(in)
		require.ErrorIs(t, err, ErrColor, in)
	}
}

func TestLookup(t *testing.T) {
	th := parse(t)
	require.Equal(t, "test", th.Name)
	require.Equal(t, color.RGBA{0xcc, 0xcc, 0xcc, 0xff}, th.Foreground)

	c, ok := th.Lookup([]string{"source.c", "comment.block.c"})
	require.True(t, ok)
	require.Equal(t, color.RGBA{0x80, 0x80, 0x80, 0xff}, c.Foreground)
	require.True(t, c.FontStyle.Has(Italic))

	c, ok = th.Lookup([]string{"source.c", "constant.numeric.c"})
	require.True(t, ok)
	require.Equal(t, color.RGBA{0, 0xff, 0, 0xff}, c.Foreground)

	c, ok = th.Lookup([]string{"source.c", "storage.type"})
	require.True(t, ok)
	require.True(t, c.FontStyle.Has(Bold|Underline))

	/* descendant selector only applies inside its ancestor */
	_, ok = th.Lookup([]string{"source.c", "entity.name.function"})
	require.False(t, ok)
	c, ok = th.Lookup([]string{"source.c", "meta.function.c", "entity.name.function"})
	require.True(t, ok)
	require.Equal(t, color.RGBA{0, 0, 0xff, 0xff}, c.Foreground)

	/* innermost known scope wins */
	c, ok = th.Lookup([]string{"source.c", "comment.block", "unknown.scope"})
	require.True(t, ok)
	require.True(t, c.FontStyle.Has(Italic))

	c, ok = th.Lookup([]string{"bogus"})
	require.True(t, ok)
	require.Nil(t, c.Foreground)
}

func TestMapTokens(t *testing.T) {
	th := parse(t)
	matched := []textmate.Token{
		{Scope: "comment.block.c", Start: 2, Length: 4, Depth: 2},
		{Scope: "keyword.todo", Start: 3, Length: 1, Depth: 3},
	}
	mapper := make(textmate.Mapper, 6)
	for i := range matched {
		mapper.Add(&matched[i])
	}

	res := th.MapTokens("source.c", mapper.Iter())
	require.Len(t, res, 3)
	require.Equal(t, 2, res[0].Offset)
	require.True(t, res[0].FontStyle.Has(Italic))
	require.Equal(t, 3, res[1].Offset)
	require.True(t, res[1].FontStyle.Has(Bold))
	require.Equal(t, 4, res[2].Offset)
	require.True(t, res[2].FontStyle.Has(Italic))
}

func TestStyle(t *testing.T) {
	th := parse(t)
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.TrueColor)

	c, _ := th.Lookup([]string{"keyword.control"})
	style := th.Style(r, c, false)
	require.Equal(t, lipgloss.Color("#ff0000"), style.GetForeground())
	require.Equal(t, lipgloss.Color("#000000"), style.GetBackground())
	require.True(t, style.GetBold())
	require.True(t, style.GetUnderline())
	require.False(t, style.GetItalic())

	style = th.Style(r, TokenColor{}, true)
	require.Equal(t, lipgloss.NoColor{}, style.GetForeground())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	pathname := filepath.Join(dir, "test.json")
	require.NoError(t, os.WriteFile(pathname, []byte(testTheme), 0o644))

	th, err := Load(pathname)
	require.NoError(t, err)
	require.Equal(t, "test", th.Name)

	require.NoError(t, os.WriteFile(pathname, []byte("{"), 0o644))
	_, err = Load(pathname)
	require.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
