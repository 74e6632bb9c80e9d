// Package regexp implements the pattern matching capability used by grammars.
// It is backed by regexp2, whose syntax (lookbehind, atomic groups,
// backreferences, inline options) covers what TextMate grammars rely on.
// All positions are rune offsets.
package regexp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

var (
	ErrRegexpSyntax = errors.New("syntax error")
)

type Regexp struct {
	re      *regexp2.Regexp
	pattern string
}

// Range is a half-open rune span of a match or capture group.
// Groups that did not participate in the match have the zero Range.
type Range struct {
	Start, End int
}

func (r Range) Len() int {
	return r.End - r.Start
}

func (r Range) Text(text []rune) string {
	return string(text[r.Start:r.End])
}

type Option regexp2.RegexOptions

const (
	OptionNone       Option = Option(regexp2.None)
	OptionIgnorecase Option = Option(regexp2.IgnoreCase)
	OptionExtend     Option = Option(regexp2.IgnorePatternWhitespace)
	OptionMultiline  Option = Option(regexp2.Multiline)
	OptionSingleline Option = Option(regexp2.Singleline)
)

// Compile compiles pattern so that it only matches at the position handed to
// Match, the way a scanner walking a line expects.
func Compile(pattern string, option Option) (*Regexp, error) {
	if len(pattern) == 0 {
		return nil, fmt.Errorf("%w: empty pattern", ErrRegexpSyntax)
	}

	/* the wrapping group could pair up with stray parens, so check the pattern alone */
	if _, err := regexp2.Compile(pattern, regexp2.RegexOptions(option)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegexpSyntax, err)
	}

	/* in extended mode a trailing comment would swallow the closing paren */
	tail := ")"
	if option&OptionExtend != 0 || strings.Contains(pattern, "(?x") {
		tail = "\n)"
	}

	re, err := regexp2.Compile(`\G(?:`+pattern+tail, regexp2.RegexOptions(option))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegexpSyntax, err)
	}
	return &Regexp{re: re, pattern: pattern}, nil
}

func MustCompile(pattern string, option Option) *Regexp {
	re, err := Compile(pattern, option)
	if err != nil {
		panic(err)
	}
	return re
}

// QuoteMeta escapes all metacharacters in s.
func QuoteMeta(s string) string {
	return regexp2.Escape(s)
}

func (re *Regexp) String() string {
	return re.pattern
}

// Match tries to match at text[at:], with the whole of text visible to
// lookbehind and anchors. It returns nil when there is no match.
func (re *Regexp) Match(text []rune, at int) ([]Range, error) {
	if at < 0 || at > len(text) {
		return nil, nil
	}
	m, err := re.re.FindRunesMatchStartingAt(text, at)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegexpSyntax, err)
	}
	if m == nil || m.Index != at {
		return nil, nil
	}

	groups := m.Groups()
	res := make([]Range, len(groups))
	for i, g := range groups {
		if len(g.Captures) == 0 {
			continue
		}
		res[i] = Range{g.Index, g.Index + g.Length}
	}
	return res, nil
}
