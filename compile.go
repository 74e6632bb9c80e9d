// Package textmate tokenizes source lines using TextMate grammars, intended for syntax highlighting.
// Workflow:
// 1) Decode a JSON or plist grammar and compile it into a rule arena (Grammar)
// 2) Tokenize line by line, threading the scope stack (StackItem) from one line into the next
package textmate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/friedelschoen/go-textmate-doc/internal/logging"
	"github.com/friedelschoen/go-textmate-doc/regexp"
)

var (
	ErrScopeName      = errors.New("unexpected `scopeName`")
	ErrRuleShape      = errors.New("malformed rule")
	ErrUnknownInclude = errors.New("unknown include")
)

// GrammarExtension is the expected extension for grammar files (used for "source.*" includes).
var GrammarExtension = ".tmLanguage.json"

// Operation tells the tokenizer what a rule does when it is reached.
// Expand tries subrules only; Push opens a scope that lives until its end pattern matches.
type Operation int

const (
	OperationNOP Operation = iota
	OperationPush
	OperationExpand
	OperationInclude
)

// TieBreak decides between several rules matching at the same cursor position.
type TieBreak int

const (
	// TieBreakDeclaration picks the first matching rule in declaration order.
	TieBreakDeclaration TieBreak = iota
	// TieBreakLongest picks the longest match, declaration order among equals.
	TieBreakLongest
)

func ParseTieBreak(s string) (TieBreak, error) {
	switch strings.ToLower(s) {
	case "", "declaration":
		return TieBreakDeclaration, nil
	case "longest":
		return TieBreakLongest, nil
	}
	return TieBreakDeclaration, fmt.Errorf("unknown tie-break `%s`", s)
}

func (tb TieBreak) String() string {
	if tb == TieBreakLongest {
		return "longest"
	}
	return "declaration"
}

// Flag is a boolean that also accepts the integer encoding found in plist grammars.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "true", "1":
		*f = true
	case "false", "0", "null":
		*f = false
	default:
		return fmt.Errorf("invalid flag %s", b)
	}
	return nil
}

func (f *Flag) UnmarshalPlist(unmarshal func(any) error) error {
	var v any
	if err := unmarshal(&v); err != nil {
		return err
	}
	switch v := v.(type) {
	case bool:
		*f = Flag(v)
	case uint64:
		*f = v != 0
	case int64:
		*f = v != 0
	case string:
		*f = v == "1" || v == "true"
	default:
		return fmt.Errorf("invalid flag %v", v)
	}
	return nil
}

// GrammarJSON mirrors the (subset of) TextMate JSON/Plist grammar on disk.
// It is decoded as-is and later compiled into Grammar.
type GrammarJSON struct {
	Name         string              `json:"name" plist:"name"`
	ScopeName    string              `json:"scopeName" plist:"scopeName"`
	FileTypes    []string            `json:"fileTypes" plist:"fileTypes"`
	FoldingStart string              `json:"foldingStartMarker" plist:"foldingStartMarker"`
	FoldingEnd   string              `json:"foldingStopMarker" plist:"foldingStopMarker"`
	FirstLine    string              `json:"firstLineMatch" plist:"firstLineMatch"`
	Repository   map[string]RuleJSON `json:"repository" plist:"repository"`
	Patterns     []RuleJSON          `json:"patterns" plist:"patterns"`
}

// RuleJSON is a raw grammar rule (as found in the JSON file).
// Note: capture groups are addressed by string indices "1","2",...
// Exclusive is an extension: a begin/end rule with `"exclusive": false`
// lets the rules of its enclosing scope match inside it.
type RuleJSON struct {
	Name                string              `json:"name" plist:"name"`
	ContentName         string              `json:"contentName" plist:"contentName"`
	Match               string              `json:"match" plist:"match"`
	Begin               string              `json:"begin" plist:"begin"`
	End                 string              `json:"end" plist:"end"`
	Patterns            []RuleJSON          `json:"patterns" plist:"patterns"`
	Captures            map[string]RuleJSON `json:"captures" plist:"captures"`
	BeginCaptures       map[string]RuleJSON `json:"beginCaptures" plist:"beginCaptures"`
	EndCaptures         map[string]RuleJSON `json:"endCaptures" plist:"endCaptures"`
	Include             string              `json:"include" plist:"include"`
	ApplyEndPatternLast Flag                `json:"applyEndPatternLast" plist:"applyEndPatternLast"`
	Exclusive           *Flag               `json:"exclusive" plist:"exclusive"`
}

// RuleID addresses a rule within the arena of its Grammar.
type RuleID int

const noRule RuleID = -1

type capture struct {
	name  string
	rules RuleID
}

// rule is an executable rule. Rules never point at each other; they refer
// to their children and include targets by RuleID within the same grammar.
type rule struct {
	name        string
	contentName string
	operation   Operation
	pattern     *regexp.Regexp
	end         *regexp.Regexp
	endSource   string
	endDynamic  bool
	captures    []capture
	endCaptures []capture
	rules       []RuleID
	include     string
	target      RuleID
	exclusive   bool
	endLast     bool
	broken      bool
}

// Grammar is the compiled grammar with precompiled regexes and a rule arena.
// A Grammar is immutable after compilation apart from internal caches and
// may be shared between documents.
type Grammar struct {
	Directory    string
	Name         string
	ScopeName    string
	FileTypes    []string
	FoldingStart *regexp.Regexp
	FoldingEnd   *regexp.Regexp
	FirstLine    *regexp.Regexp
	// TieBreak applies when this grammar is the base grammar of a tokenization.
	TieBreak TieBreak
	// Problems lists the rules that were ignored because they could not be compiled.
	Problems []error

	rules      []rule
	root       RuleID
	repository map[string]RuleID
	loader     *Loader
	logger     *log.Logger

	mu       sync.Mutex
	external map[string]includeTarget
	dynamic  map[string]*regexp.Regexp
}

type includeTarget struct {
	grammar *Grammar
	rule    RuleID
}

// LoadGrammar reads a *.tmLanguage.json (or plist) file, validates scopeName
// vs filename, and compiles it into a usable Grammar.
func LoadGrammar(pathname string) (*Grammar, error) {
	encoded, err := loadFile(pathname)
	if err != nil {
		return nil, err
	}

	filesource := path.Base(pathname)
	filesource, _ = strings.CutSuffix(filesource, GrammarExtension)
	filesource, _ = strings.CutSuffix(filesource, ".tmLanguage")
	jsonsource, _ := strings.CutPrefix(encoded.ScopeName, "source.")
	jsonsource, _ = strings.CutPrefix(jsonsource, "text.")
	if jsonsource != filesource {
		return nil, fmt.Errorf("%w: expected 'source.%s', got '%s'", ErrScopeName, filesource, encoded.ScopeName)
	}

	g, err := CompileGrammar(*encoded, nil)
	if err != nil {
		return nil, err
	}
	g.Directory = path.Dir(pathname)
	return g, nil
}

// ParseGrammar decodes a JSON grammar and compiles it without a loader.
func ParseGrammar(content []byte) (*Grammar, error) {
	var encoded GrammarJSON
	if err := json.Unmarshal(content, &encoded); err != nil {
		return nil, err
	}
	return CompileGrammar(encoded, nil)
}

// CompileGrammar compiles a decoded GrammarJSON into an executable Grammar.
// loader resolves 'source.*' includes and may be nil. Rules that fail to
// compile are recorded in Problems and never match.
func CompileGrammar(j GrammarJSON, loader *Loader) (*Grammar, error) {
	if j.ScopeName == "" {
		return nil, fmt.Errorf("%w: missing", ErrScopeName)
	}

	res := &Grammar{
		Directory:  ".",
		Name:       j.Name,
		ScopeName:  j.ScopeName,
		FileTypes:  j.FileTypes,
		repository: make(map[string]RuleID, len(j.Repository)),
		loader:     loader,
		logger:     logging.Default(),
		external:   make(map[string]includeTarget),
		dynamic:    make(map[string]*regexp.Regexp),
	}
	if loader != nil {
		res.logger = loader.logger
		res.TieBreak = loader.tieBreak
	}

	c := compiler{g: res}
	res.FoldingStart = c.optional(j.FoldingStart, "foldingStartMarker")
	res.FoldingEnd = c.optional(j.FoldingEnd, "foldingStopMarker")
	res.FirstLine = c.optional(j.FirstLine, "firstLineMatch")

	rules := make([]RuleID, len(j.Patterns))
	for i, jp := range j.Patterns {
		rules[i] = c.compileRule(jp, fmt.Sprintf("patterns[%d]", i))
	}
	res.root = c.add(rule{name: j.ScopeName, operation: OperationExpand, rules: rules, target: noRule, exclusive: true})
	for name, jp := range j.Repository {
		res.repository[name] = c.compileRule(jp, "#"+name)
	}
	c.link()

	return res, nil
}

type compiler struct {
	g *Grammar
}

func (c *compiler) add(r rule) RuleID {
	c.g.rules = append(c.g.rules, r)
	return RuleID(len(c.g.rules) - 1)
}

func (c *compiler) problem(where string, err error) {
	c.g.logger.Warn("ignoring malformed rule", logging.FieldGrammar, c.g.ScopeName, logging.FieldRule, where, logging.FieldError, err)
	c.g.Problems = append(c.g.Problems, fmt.Errorf("%s: %w", where, err))
}

func (c *compiler) pattern(src string, where string) *regexp.Regexp {
	expr, err := regexp.Compile(src, regexp.OptionNone)
	if err != nil {
		c.problem(where, err)
		return nil
	}
	return expr
}

func (c *compiler) optional(src string, where string) *regexp.Regexp {
	if src == "" {
		return nil
	}
	return c.pattern(src, where)
}

// compileCaptures converts string-indexed captures ("1","2",...) to a slice
// sized 0..maxIndex, leaving missing indices empty.
// Each capture may carry a scope name and/or subrules.
func (c *compiler) compileCaptures(j map[string]RuleJSON, where string) []capture {
	if len(j) == 0 {
		return nil
	}

	maxcaptures := -1
	for num := range j {
		i, err := strconv.Atoi(num)
		if err != nil || i < 0 {
			c.problem(where, fmt.Errorf("%w: capture index `%s`", ErrRuleShape, num))
			continue
		}
		maxcaptures = max(maxcaptures, i)
	}

	res := make([]capture, maxcaptures+1)
	for i := range res {
		res[i].rules = noRule
	}
	for num, jp := range j {
		i, err := strconv.Atoi(num)
		if err != nil || i < 0 {
			continue
		}
		res[i].name = jp.Name
		if len(jp.Patterns) > 0 {
			res[i].rules = c.container(jp.Patterns, fmt.Sprintf("%s[%s]", where, num))
		}
	}
	return res
}

func (c *compiler) container(patterns []RuleJSON, where string) RuleID {
	rules := make([]RuleID, len(patterns))
	for i, jp := range patterns {
		rules[i] = c.compileRule(jp, fmt.Sprintf("%s.patterns[%d]", where, i))
	}
	return c.add(rule{operation: OperationExpand, rules: rules, target: noRule, exclusive: true})
}

// compileRule compiles a single RuleJSON into the arena.
// Case order follows TM conventions: Include, Match, Begin/End, Container.
func (c *compiler) compileRule(j RuleJSON, where string) RuleID {
	switch {
	case j.Include != "":
		return c.add(rule{
			operation: OperationInclude,
			include:   j.Include,
			target:    noRule,
		})
	case j.Match != "":
		match := c.pattern(j.Match, where+".match")
		return c.add(rule{
			name:      j.Name,
			operation: OperationNOP,
			pattern:   match,
			captures:  c.compileCaptures(j.Captures, where+".captures"),
			target:    noRule,
			broken:    match == nil,
		})
	case j.Begin != "" && j.End != "":
		r := rule{
			name:        j.Name,
			contentName: j.ContentName,
			operation:   OperationPush,
			pattern:     c.pattern(j.Begin, where+".begin"),
			endSource:   j.End,
			endDynamic:  hasBackReference(j.End),
			target:      noRule,
			exclusive:   j.Exclusive == nil || bool(*j.Exclusive),
			endLast:     bool(j.ApplyEndPatternLast),
		}
		if r.endDynamic {
			/* validate the shape with empty back-references */
			if _, err := regexp.Compile(substituteBackReferences(j.End, nil, nil), regexp.OptionNone); err != nil {
				c.problem(where+".end", err)
				r.broken = true
			}
		} else {
			r.end = c.pattern(j.End, where+".end")
			r.broken = r.end == nil
		}
		r.broken = r.broken || r.pattern == nil

		if len(j.Captures) > 0 {
			r.captures = c.compileCaptures(j.Captures, where+".captures")
			r.endCaptures = r.captures
		} else {
			r.captures = c.compileCaptures(j.BeginCaptures, where+".beginCaptures")
			r.endCaptures = c.compileCaptures(j.EndCaptures, where+".endCaptures")
		}

		r.rules = make([]RuleID, len(j.Patterns))
		for i, jp := range j.Patterns {
			r.rules[i] = c.compileRule(jp, fmt.Sprintf("%s.patterns[%d]", where, i))
		}
		return c.add(r)
	case j.Begin != "" || j.End != "":
		c.problem(where, fmt.Errorf("%w: begin or end omitted", ErrRuleShape))
		return c.add(rule{operation: OperationNOP, target: noRule, broken: true})
	default:
		id := c.container(j.Patterns, where)
		c.g.rules[id].name = j.Name
		return id
	}
}

// link resolves includes that stay within this grammar.
// Includes of other grammars and of $base are resolved while tokenizing.
func (c *compiler) link() {
	g := c.g
	for id := range g.rules {
		r := &g.rules[id]
		if r.operation != OperationInclude {
			continue
		}
		scope, name, hasName := strings.Cut(r.include, "#")
		switch {
		case scope == "$base":
			continue
		case scope == "$self" || scope == g.ScopeName || (scope == "" && !hasName):
			r.target = g.root
		case scope != "":
			continue
		}
		if hasName && (scope == "" || scope == g.ScopeName) {
			target, ok := g.repository[name]
			if !ok {
				c.problem("include", fmt.Errorf("%w: `%s`", ErrUnknownInclude, r.include))
				r.broken = true
				continue
			}
			r.target = target
		}
	}
}

// hasBackReference reports whether an end pattern refers to begin captures (\1..\9).
func hasBackReference(src string) bool {
	for i := 0; i+1 < len(src); i++ {
		if src[i] != '\\' {
			continue
		}
		if src[i+1] >= '1' && src[i+1] <= '9' {
			return true
		}
		i++
	}
	return false
}

// substituteBackReferences replaces \1..\9 by the quoted text of the begin captures.
func substituteBackReferences(src string, text []rune, groups []regexp.Range) string {
	var b strings.Builder
	for i := 0; i < len(src); i++ {
		if src[i] != '\\' || i+1 >= len(src) {
			b.WriteByte(src[i])
			continue
		}
		next := src[i+1]
		if next >= '1' && next <= '9' {
			n := int(next - '0')
			if n < len(groups) && groups[n].Len() > 0 {
				b.WriteString(regexp.QuoteMeta(groups[n].Text(text)))
			}
		} else {
			b.WriteByte('\\')
			b.WriteByte(next)
		}
		i++
	}
	return b.String()
}

func (g *Grammar) rule(id RuleID) *rule {
	return &g.rules[id]
}

// Root returns the rule id of the grammar's top-level patterns.
func (g *Grammar) Root() RuleID {
	return g.root
}

// Lookup returns the rule id of a repository entry.
func (g *Grammar) Lookup(name string) (RuleID, bool) {
	id, ok := g.repository[name]
	return id, ok
}

// resolve follows an include rule to its target, loading other grammars through the loader.
func (g *Grammar) resolve(id RuleID, base *Grammar) (*Grammar, RuleID, bool) {
	r := g.rule(id)
	if r.broken {
		return nil, noRule, false
	}
	if r.target != noRule {
		return g, r.target, true
	}
	scope, name, hasName := strings.Cut(r.include, "#")
	if scope == "$base" {
		if base == nil {
			base = g
		}
		if hasName {
			target, ok := base.repository[name]
			return base, target, ok
		}
		return base, base.root, true
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.external[r.include]; ok {
		return t.grammar, t.rule, t.grammar != nil
	}

	var t includeTarget
	other, err := g.includeGrammar(scope)
	if err == nil {
		t = includeTarget{other, other.root}
		if hasName {
			target, ok := other.repository[name]
			if ok {
				t.rule = target
			} else {
				t, err = includeTarget{}, fmt.Errorf("%w: unknown rule `%s`", ErrUnknownInclude, name)
			}
		}
	}
	if err != nil {
		g.logger.Warn("unable to include", logging.FieldGrammar, g.ScopeName, logging.FieldInclude, r.include, logging.FieldError, err)
	}
	g.external[r.include] = t
	return t.grammar, t.rule, t.grammar != nil
}

func (g *Grammar) includeGrammar(scope string) (*Grammar, error) {
	if g.loader == nil {
		return nil, fmt.Errorf("%w: no loader for `%s`", ErrUnknownInclude, scope)
	}
	other, err := g.loader.FromScope(scope)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: `%s`", ErrUnknownInclude, scope)
		}
		return nil, err
	}
	return other, nil
}

// endPattern returns the end pattern of a begin/end rule after its begin
// pattern matched, substituting back-references when needed.
func (g *Grammar) endPattern(r *rule, text []rune, groups []regexp.Range) (*regexp.Regexp, string) {
	if !r.endDynamic {
		return r.end, r.endSource
	}
	src := substituteBackReferences(r.endSource, text, groups)

	g.mu.Lock()
	defer g.mu.Unlock()
	if expr, ok := g.dynamic[src]; ok {
		return expr, src
	}
	expr, err := regexp.Compile(src, regexp.OptionNone)
	if err != nil {
		g.logger.Warn("unable to compile end pattern", logging.FieldGrammar, g.ScopeName, logging.FieldPattern, src, logging.FieldError, err)
		expr = nil
	}
	g.dynamic[src] = expr
	return expr, src
}
