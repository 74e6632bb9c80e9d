package textmate

import (
	"bufio"
	"bytes"
	"io"
	"slices"
	"strings"

	"github.com/friedelschoen/go-textmate-doc/regexp"
)

// Token describes a scoped span in a line. Start and Length count runes.
// Matched tokens may overlap; render the token with the highest Depth at a position.
type Token struct {
	// Scope given by grammar, empty for plain text
	Scope string
	// Index in text of start
	Start int
	// Length of the token
	Length int
	// Depth, if tokens overlap each other, the token with a higher depth should be used
	Depth int
}

func CompareToken(left *Token, right *Token) int {
	if left.Start != right.Start {
		return left.Start - right.Start
	}
	if left.Length != right.Length {
		return left.Length - right.Length
	}
	return left.Depth - right.Depth
}

func (tok Token) End() int {
	return tok.Start + tok.Length
}

// StackItem is one frame on the scope stack. A chain of frames is the
// state threaded from the end of one line into the next. Frames are
// immutable and refer to their rule by id, so a chain can be shared and
// compared freely.
type StackItem struct {
	grammar   *Grammar
	rule      RuleID
	end       *regexp.Regexp
	endSource string
	depth     int
	previous  *StackItem
}

// StackItem constructs a root frame for this grammar.
func (g *Grammar) StackItem() *StackItem {
	return &StackItem{grammar: g, rule: g.root, depth: 1}
}

// Depth returns the nesting depth of this frame (used for token priority).
func (si *StackItem) Depth() int {
	if si == nil {
		return 0
	}
	return si.depth
}

func (si *StackItem) Previous() *StackItem {
	return si.previous
}

// Name is the scope name of the frame's rule.
func (si *StackItem) Name() string {
	return si.grammar.rule(si.rule).name
}

// ContentName is the scope applied between the frame's begin and end matches.
func (si *StackItem) ContentName() string {
	return si.grammar.rule(si.rule).contentName
}

// Equal compares two states frame by frame: same grammar, rule and resolved end pattern.
func (si *StackItem) Equal(other *StackItem) bool {
	for si != nil && other != nil {
		if si == other {
			return true
		}
		if si.grammar != other.grammar || si.rule != other.rule || si.endSource != other.endSource {
			return false
		}
		si, other = si.previous, other.previous
	}
	return si == other
}

// Scopes returns the scope names of all frames, outermost first.
func (si *StackItem) Scopes() []string {
	var res []string
	for ; si != nil; si = si.previous {
		r := si.grammar.rule(si.rule)
		if r.contentName != "" {
			res = append(res, r.contentName)
		}
		if r.name != "" {
			res = append(res, r.name)
		}
	}
	slices.Reverse(res)
	return res
}

func (si *StackItem) String() string {
	return strings.Join(si.Scopes(), " ")
}

// Count returns the number of open frames (the root excluded) whose name or
// content name falls under scope, e.g. Count("comment") for comment nesting.
func (si *StackItem) Count(scope string) int {
	n := 0
	for ; si != nil && si.previous != nil; si = si.previous {
		r := si.grammar.rule(si.rule)
		if HasScope(r.name, scope) || HasScope(r.contentName, scope) {
			n++
		}
	}
	return n
}

// HasScope reports whether any of the space separated scopes in name is
// scope or a subscope of it ("comment.block" has "comment").
func HasScope(name string, scope string) bool {
	for part := range strings.FieldsSeq(name) {
		if part == scope || strings.HasPrefix(part, scope) && part[len(scope)] == '.' {
			return true
		}
	}
	return false
}

// TokenizeResult is the outcome of tokenizing one line.
type TokenizeResult struct {
	// State is the scope stack at the end of the line, to be fed into the next line.
	State *StackItem
	// Tokens covers the line without gaps or overlaps, each run carrying its innermost scope.
	Tokens []Token
	// Matched holds the scoped spans produced by rule matches, sorted with CompareToken.
	Matched []Token
}

type openFrame struct {
	item    *StackItem
	start   int
	content int
}

type candidate struct {
	grammar   *Grammar
	rule      RuleID
	groups    []regexp.Range
	end       bool
	pattern   *regexp.Regexp
	endSource string
}

type ruleKey struct {
	grammar *Grammar
	rule    RuleID
}

type tokenizer struct {
	base    *Grammar
	text    []rune
	open    []openFrame
	matched []Token
	zeroAt  int
}

func (t *tokenizer) top() *StackItem {
	return t.open[len(t.open)-1].item
}

// TokenizeLine tokenizes a single line (without its terminator) starting
// from state, which is the State of the previous line or nil for the first
// line. A scope left open at the end of the line is carried in the returned
// State and resumed on the next line without reapplying its begin pattern.
func (g *Grammar) TokenizeLine(text string, state *StackItem) TokenizeResult {
	if state == nil {
		state = g.StackItem()
	}
	t := tokenizer{base: g, text: []rune(text), zeroAt: -1}
	for si := state; si != nil; si = si.previous {
		t.open = append(t.open, openFrame{item: si})
	}
	slices.Reverse(t.open)

	t.run(0)
	t.close(len(t.text))

	slices.SortStableFunc(t.matched, func(a, b Token) int {
		return CompareToken(&a, &b)
	})
	return TokenizeResult{
		State:   t.top(),
		Tokens:  flatten(len(t.text), t.matched),
		Matched: t.matched,
	}
}

// run walks the text from pos, always making progress: when nothing matches
// the character at the cursor is plain text and the cursor moves on.
func (t *tokenizer) run(pos int) {
	for {
		if c, ok := t.next(pos); ok {
			t.apply(c, pos)
			pos = c.groups[0].End
			continue
		}
		if pos >= len(t.text) {
			return
		}
		pos++
	}
}

// allowed rejects a zero-width begin or match at a position where one was
// already applied. Zero-width end matches only shrink the stack and are
// always allowed.
func (t *tokenizer) allowed(groups []regexp.Range, pos int, end bool) bool {
	return groups[0].Len() > 0 || end || t.zeroAt != pos
}

func (t *tokenizer) tryEnd(pos int) (candidate, bool) {
	top := t.top()
	if top.end == nil {
		return candidate{}, false
	}
	groups, err := top.end.Match(t.text, pos)
	if err != nil || groups == nil || !t.allowed(groups, pos, true) {
		return candidate{}, false
	}
	return candidate{grammar: top.grammar, rule: top.rule, groups: groups, end: true}, true
}

// next finds the rule to apply at pos: the end pattern of the innermost
// scope first (last with applyEndPatternLast), then the visible rules.
func (t *tokenizer) next(pos int) (candidate, bool) {
	top := t.top()
	endLast := top.grammar.rule(top.rule).endLast
	if !endLast {
		if c, ok := t.tryEnd(pos); ok {
			return c, true
		}
	}

	var best candidate
	found := false
	t.visible(top, func(g *Grammar, id RuleID) bool {
		r := g.rule(id)
		groups, err := r.pattern.Match(t.text, pos)
		if err != nil || groups == nil || !t.allowed(groups, pos, false) {
			return true
		}
		if found && groups[0].Len() <= best.groups[0].Len() {
			return true
		}
		c := candidate{grammar: g, rule: id, groups: groups}
		if r.operation == OperationPush {
			c.pattern, c.endSource = g.endPattern(r, t.text, groups)
			if c.pattern == nil {
				return true
			}
		}
		best, found = c, true
		return t.base.TieBreak == TieBreakLongest
	})
	if found {
		return best, true
	}

	if endLast {
		return t.tryEnd(pos)
	}
	return candidate{}, false
}

// visible yields the rules that may match inside frame, in declaration
// order, falling back to the enclosing frame when frame is not exclusive.
func (t *tokenizer) visible(frame *StackItem, yield func(*Grammar, RuleID) bool) {
	var path []ruleKey
	for frame != nil {
		r := frame.grammar.rule(frame.rule)
		for _, child := range r.rules {
			if !t.expand(frame.grammar, child, path, yield) {
				return
			}
		}
		if r.exclusive {
			return
		}
		frame = frame.previous
	}
}

func (t *tokenizer) expand(g *Grammar, id RuleID, path []ruleKey, yield func(*Grammar, RuleID) bool) bool {
	key := ruleKey{g, id}
	if slices.Contains(path, key) {
		/* include cycle */
		return true
	}
	r := g.rule(id)
	switch r.operation {
	case OperationInclude:
		other, target, ok := g.resolve(id, t.base)
		if !ok {
			return true
		}
		return t.expand(other, target, append(path, key), yield)
	case OperationExpand:
		for _, child := range r.rules {
			if !t.expand(g, child, append(path, key), yield) {
				return false
			}
		}
		return true
	}
	if r.broken || r.pattern == nil {
		return true
	}
	return yield(g, id)
}

func (t *tokenizer) emit(scope string, start, end, depth int) {
	if scope == "" || end <= start {
		return
	}
	t.matched = append(t.matched, Token{
		Scope:  scope,
		Start:  start,
		Length: end - start,
		Depth:  depth,
	})
}

func (t *tokenizer) apply(c candidate, pos int) {
	g := c.grammar
	r := g.rule(c.rule)
	m := c.groups[0]
	if m.Len() == 0 && !c.end {
		t.zeroAt = pos
	}

	top := t.top()
	switch {
	case c.end:
		f := t.open[len(t.open)-1]
		t.captures(g, r.endCaptures, c.groups, top.depth+1)
		t.emit(r.contentName, f.content, m.Start, top.depth)
		t.emit(r.name, f.start, m.End, top.depth)
		t.open = t.open[:len(t.open)-1]
	case r.operation == OperationPush:
		item := &StackItem{
			grammar:   g,
			rule:      c.rule,
			end:       c.pattern,
			endSource: c.endSource,
			depth:     top.depth + 1,
			previous:  top,
		}
		t.captures(g, r.captures, c.groups, item.depth+1)
		t.open = append(t.open, openFrame{item: item, start: m.Start, content: m.End})
	default:
		t.emit(r.name, m.Start, m.End, top.depth+1)
		t.captures(g, r.captures, c.groups, top.depth+2)
	}
}

// captures emits the capture scopes of a match and tokenizes captures that
// carry their own patterns within the captured span.
func (t *tokenizer) captures(g *Grammar, caps []capture, groups []regexp.Range, depth int) {
	for i, rng := range groups {
		if i >= len(caps) {
			break
		}
		if rng.Len() == 0 {
			continue
		}
		cap := caps[i]
		t.emit(cap.name, rng.Start, rng.End, depth)

		if cap.rules != noRule {
			sub := tokenizer{base: t.base, text: t.text[:rng.End], zeroAt: -1}
			sub.open = []openFrame{{
				item:    &StackItem{grammar: g, rule: cap.rules, depth: depth},
				start:   rng.Start,
				content: rng.Start,
			}}
			sub.run(rng.Start)
			sub.close(rng.End)
			t.matched = append(t.matched, sub.matched...)
		}
	}
}

// close emits the spans of scopes still open at end, the outermost frame excluded.
func (t *tokenizer) close(end int) {
	for _, f := range t.open[1:] {
		r := f.item.grammar.rule(f.item.rule)
		t.emit(r.contentName, f.content, end, f.item.depth)
		t.emit(r.name, f.start, end, f.item.depth)
	}
}

// innermost picks the token that wins at a position: highest depth, then
// the latest start, then the shortest.
func innermost(toks []*Token) *Token {
	var best *Token
	for _, tok := range toks {
		switch {
		case best == nil, tok.Depth > best.Depth:
			best = tok
		case tok.Depth < best.Depth:
		case tok.Start > best.Start, tok.Start == best.Start && tok.Length < best.Length:
			best = tok
		}
	}
	return best
}

// flatten turns overlapping matched tokens into consecutive runs covering n runes.
func flatten(n int, matched []Token) []Token {
	if n == 0 {
		return nil
	}
	mapper := make(Mapper, n)
	for i := range matched {
		mapper.Add(&matched[i])
	}

	var res []Token
	cur := Token{}
	push := func(end int) {
		cur.Length = end - cur.Start
		if cur.Length <= 0 {
			return
		}
		if last := len(res) - 1; last >= 0 && res[last].Scope == cur.Scope && res[last].Depth == cur.Depth {
			res[last].Length += cur.Length
			return
		}
		res = append(res, cur)
	}
	for pos, toks := range mapper.Iter() {
		push(pos)
		cur = Token{Start: pos}
		if tok := innermost(toks); tok != nil {
			cur.Scope, cur.Depth = tok.Scope, tok.Depth
		}
	}
	push(n)
	return res
}

// TokenizeReader is a reference implementation that scans line-by-line.
// Offsets are global rune offsets across lines; line terminators are plain text.
func (g *Grammar) TokenizeReader(reader io.Reader) ([]Token, error) {
	var state *StackItem
	var tokens []Token

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(nil, 1<<30)
	scanner.Split(func(data []byte, atEOF bool) (int, []byte, error) {
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			return i + 1, data[:i+1], nil
		}
		if atEOF && len(data) > 0 {
			return len(data), data, nil
		}
		return 0, nil, nil
	})

	offset := 0
	for scanner.Scan() {
		line := scanner.Text()
		content := strings.TrimSuffix(line, "\n")
		res := g.TokenizeLine(content, state)
		for _, tok := range res.Matched {
			tok.Start += offset
			tokens = append(tokens, tok)
		}
		state = res.State
		offset += len([]rune(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(tokens, func(a, b Token) int {
		return CompareToken(&a, &b)
	})

	return tokens, nil
}
