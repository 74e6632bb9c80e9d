package textmate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const cGrammar = `{
	"name": "C-ish",
	"scopeName": "source.c",
	"fileTypes": ["c", ".h"],
	"patterns": [
		{"include": "#comments"},
		{
			"name": "string.quoted.double.c",
			"begin": "\"",
			"end": "\"",
			"patterns": [{"name": "constant.character.escape.c", "match": "\\\\."}]
		},
		{"name": "keyword.control.c", "match": "\\b(?:if|else|return)\\b"},
		{"name": "constant.numeric.c", "match": "\\b[0-9]+\\b"},
		{
			"match": "\\b([a-z_]+)\\s*(\\()",
			"captures": {
				"1": {"name": "entity.name.function.c"},
				"2": {"name": "punctuation.paren.open.c"}
			}
		}
	],
	"repository": {
		"comments": {
			"patterns": [
				{
					"name": "comment.block.c",
					"begin": "/\\*",
					"end": "\\*/",
					"captures": {"0": {"name": "punctuation.definition.comment.c"}}
				},
				{"name": "comment.line.double-slash.c", "match": "//.*"}
			]
		}
	}
}`

func mustGrammar(t *testing.T, src string) *Grammar {
	t.Helper()
	g, err := ParseGrammar([]byte(src))
	require.NoError(t, err)
	return g
}

// tokenizeLines tokenizes lines in sequence and returns every result.
func tokenizeLines(g *Grammar, lines ...string) []TokenizeResult {
	var state *StackItem
	res := make([]TokenizeResult, len(lines))
	for i, line := range lines {
		res[i] = g.TokenizeLine(line, state)
		state = res[i].State
	}
	return res
}
