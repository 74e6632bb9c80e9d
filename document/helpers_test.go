package document

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	textmate "github.com/friedelschoen/go-textmate-doc"
	"github.com/friedelschoen/go-textmate-doc/internal/logging"
)

const testGrammar = `{
	"scopeName": "source.test",
	"patterns": [
		{
			"name": "comment.block.test",
			"begin": "/\\*",
			"end": "\\*/",
			"captures": {"0": {"name": "punctuation.definition.comment.test"}}
		},
		{"name": "comment.line.test", "match": "//.*"},
		{
			"name": "string.quoted.double.test",
			"begin": "\"",
			"end": "\"|$",
			"patterns": [{"name": "constant.character.escape.test", "match": "\\\\."}]
		},
		{"name": "keyword.control.test", "match": "\\b(?:if|else)\\b"},
		{"name": "constant.numeric.test", "match": "\\b[0-9]+\\b"}
	]
}`

func grammar(t testing.TB) *textmate.Grammar {
	t.Helper()
	g, err := textmate.ParseGrammar([]byte(testGrammar))
	require.NoError(t, err)
	require.Empty(t, g.Problems)
	return g
}

func newDocument(t testing.TB, content string, opts ...Option) *Document {
	t.Helper()
	opts = append([]Option{
		WithLogger(logging.Discard()),
		WithRescanHandler(func(err error) {
			t.Fatalf("unexpected rescan: %v", err)
		}),
	}, opts...)
	return New(content, grammar(t), opts...)
}

// numbered returns n lines "line 0" .. "line n-1" joined by line breaks.
func numbered(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i)
	}
	return strings.Join(lines, "\n")
}

// lineStart returns the character offset at which line i starts.
func lineStart(t testing.TB, d *Document, i int) int {
	t.Helper()
	l, ok := d.Line(i)
	require.True(t, ok)
	return l.Start
}

// requireFresh compares d line by line with a document built from scratch
// over the same content.
func requireFresh(t require.TestingT, d *Document) {
	fresh := New(d.Content(), d.Grammar(), WithLogger(logging.Discard()))
	require.Equal(t, fresh.LineCount(), d.LineCount())
	for i := range d.LineCount() {
		want, _ := fresh.Line(i)
		got, _ := d.Line(i)
		got.Info.Messages = nil
		require.Equal(t, want, got, "line %d", i)

		wantTokens, _ := fresh.Tokens(i)
		gotTokens, _ := d.Tokens(i)
		require.Equal(t, wantTokens, gotTokens, "tokens of line %d", i)

		wantMatched, _ := fresh.Matched(i)
		gotMatched, _ := d.Matched(i)
		require.Equal(t, wantMatched, gotMatched, "matched of line %d", i)

		wantState, _ := fresh.ScopeStack(i)
		gotState, _ := d.ScopeStack(i)
		require.True(t, wantState.Equal(gotState), "state of line %d: want %s, got %s", i, wantState, gotState)
	}
}
