package theme

import (
	"cmp"
	"iter"
	"slices"
	"strings"

	textmate "github.com/friedelschoen/go-textmate-doc"
)

type ColorMapping struct {
	TokenColor
	Offset int
}

// getSplitted looks name up, dropping trailing components until a selector
// matches ("string.quoted.double" falls back to "string").
func getSplitted(current map[string]TokenColor, name string) (TokenColor, bool) {
	for name != "" {
		s, ok := current[name]
		if ok {
			return s, true
		}
		i := strings.LastIndexByte(name, '.')
		if i == -1 {
			break
		}
		name = name[:i]
	}
	return TokenColor{}, false
}

// Lookup returns the color of the innermost of scopes (outermost first)
// that the theme knows, refined by selectors naming its enclosing scopes.
func (t *Theme) Lookup(scopes []string) (TokenColor, bool) {
	for i := len(scopes) - 1; i >= 0; i-- {
		c, ok := getSplitted(t.Tokens, scopes[i])
		if !ok {
			continue
		}
		last, found := c, c.defined
		current := c.Children
		for j := i - 1; j >= 0 && len(current) > 0; j-- {
			cc, ok := getSplitted(current, scopes[j])
			if !ok {
				continue
			}
			if cc.defined {
				last, found = cc, true
			}
			current = cc.Children
		}
		if found {
			return last, true
		}
	}
	return TokenColor{}, false
}

// MapTokens resolves the colors of a line. base is the scope every position
// lies in, usually the grammar's scope name; tokens yields the tokens
// covering each position where they change (see textmate.Mapper.Iter).
func (t *Theme) MapTokens(base string, tokens iter.Seq2[int, []*textmate.Token]) []ColorMapping {
	var res []ColorMapping
	for off, toks := range tokens {
		toks = slices.Clone(toks)
		slices.SortStableFunc(toks, func(a, b *textmate.Token) int {
			return cmp.Compare(a.Depth, b.Depth)
		})
		scopes := []string{base}
		for _, tok := range toks {
			scopes = append(scopes, strings.Fields(tok.Scope)...)
		}
		s, _ := t.Lookup(scopes)
		res = append(res, ColorMapping{s, off})
	}
	return res
}
