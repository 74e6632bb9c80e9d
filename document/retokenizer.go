package document

import (
	"fmt"
	"slices"
	"strings"

	textmate "github.com/friedelschoen/go-textmate-doc"
)

type entry struct {
	// state is nil for lines that were never tokenized.
	state   *textmate.StackItem
	tokens  []textmate.Token
	matched []textmate.Token
}

// Retokenizer keeps the tokenizer output of every line, including the
// scope stack at its end, and recomputes it after edits. Its entries are
// spliced together with the records of the LineMap it writes to.
type Retokenizer struct {
	grammar *textmate.Grammar
	lines   *LineMap
	entries []entry
}

func NewRetokenizer(grammar *textmate.Grammar, lines *LineMap) *Retokenizer {
	return &Retokenizer{
		grammar: grammar,
		lines:   lines,
		entries: make([]entry, lines.LineCount()),
	}
}

// Splice replaces the entries of the pre-edit lines in old by n entries
// that were never tokenized. The last of them keeps the state recorded at
// the end of old, which the line after it was tokenized with.
func (r *Retokenizer) Splice(old LineRange, n int) {
	fresh := make([]entry, n)
	if n > 0 {
		fresh[n-1].state = r.entries[old.Last].state
	}
	r.entries = slices.Replace(r.entries, old.First, old.Last+1, fresh...)
}

// Full tokenizes every line of content from scratch.
func (r *Retokenizer) Full(content string) {
	r.entries = make([]entry, r.lines.LineCount())
	var state *textmate.StackItem
	for i := range r.entries {
		r.tokenize(content, i, state)
		state = r.entries[i].state
	}
}

// Run retokenizes the lines in affected, then keeps going downstream for
// as long as the state at the end of a line differs from the one recorded
// before the edit. It returns the lines it tokenized.
func (r *Retokenizer) Run(content string, affected LineRange) (LineRange, error) {
	var incoming *textmate.StackItem
	cursor := affected.First
	if cursor > 0 {
		incoming = r.entries[cursor-1].state
	}
	last := r.lines.LineCount() - 1
	for {
		changed := r.tokenize(content, cursor, incoming)
		if cursor == last || !changed && cursor >= affected.Last {
			break
		}
		incoming = r.entries[cursor].state
		cursor++
	}

	if cursor < last {
		if err := r.checkDepth(cursor + 1); err != nil {
			return LineRange{}, err
		}
	}
	return LineRange{First: affected.First, Last: cursor}, nil
}

func (r *Retokenizer) checkDepth(line int) error {
	prev, cur := r.lines.info(line-1), r.lines.info(line)
	if r.entries[line].state == nil || cur.CommentDepthStart != prev.CommentDepthEnd {
		return fmt.Errorf("%w: line %d starts at %d, line %d ends at %d",
			ErrDepthPropagation, line, cur.CommentDepthStart, line-1, prev.CommentDepthEnd)
	}
	return nil
}

// Verify checks comment depth propagation over all lines.
func (r *Retokenizer) Verify() error {
	for line := 1; line < len(r.entries); line++ {
		if err := r.checkDepth(line); err != nil {
			return err
		}
	}
	return nil
}

// tokenize runs the tokenizer over line i and stores its output and the
// derived line info. It reports whether the state at the end of the line
// changed.
func (r *Retokenizer) tokenize(content string, i int, incoming *textmate.StackItem) bool {
	text := strings.TrimSuffix(r.lines.Text(content, i), "\n")
	text = strings.TrimSuffix(text, "\r")
	res := r.grammar.TokenizeLine(text, incoming)

	old := r.entries[i].state
	r.entries[i] = entry{state: res.State, tokens: res.Tokens, matched: res.Matched}

	info := r.lines.info(i)
	info.CommentDepthStart = commentDepth(incoming)
	info.CommentDepthEnd = commentDepth(res.State)
	info.RoundBracketDiff, info.SquareBracketDiff, info.CurlyBracketDiff = bracketDiffs([]rune(text), res.Matched)

	return old == nil || !old.Equal(res.State)
}

func (r *Retokenizer) Tokens(i int) ([]textmate.Token, bool) {
	if i < 0 || i >= len(r.entries) {
		return nil, false
	}
	return r.entries[i].tokens, true
}

func (r *Retokenizer) Matched(i int) ([]textmate.Token, bool) {
	if i < 0 || i >= len(r.entries) {
		return nil, false
	}
	return r.entries[i].matched, true
}

// State returns the scope stack at the end of line i.
func (r *Retokenizer) State(i int) (*textmate.StackItem, bool) {
	if i < 0 || i >= len(r.entries) {
		return nil, false
	}
	return r.entries[i].state, true
}
