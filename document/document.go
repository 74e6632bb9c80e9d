// Package document keeps a text buffer split into lines together with the
// per-line analysis a grammar yields: tokens, the scope stack at the end of
// each line, comment depths, bracket diffs and attached diagnostics.
//
// A Document is owned by a single editing session. Edits are applied
// synchronously and in order; nothing in this package locks or spawns
// goroutines.
package document

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/log"

	textmate "github.com/friedelschoen/go-textmate-doc"
	"github.com/friedelschoen/go-textmate-doc/internal/logging"
)

// Edit describes one text mutation. Offset, Removed and Inserted count
// characters; Content is the whole buffer after the mutation.
type Edit struct {
	Offset   int
	Removed  int
	Inserted int
	Content  string
}

type EditResult struct {
	// Affected is the post-edit range of the rescanned lines.
	Affected LineRange
	// Retokenized is the range of lines the tokenizer ran over.
	Retokenized LineRange
	// Evicted holds the bundles that were attached to the lines the edit touched.
	Evicted []BundleID
	// Rescanned is set when the edit could not be applied incrementally and
	// the whole buffer was rebuilt.
	Rescanned bool
}

type Document struct {
	content  string
	grammar  *textmate.Grammar
	lines    *LineMap
	tokens   *Retokenizer
	logger   *log.Logger
	verify   bool
	onRescan func(error)
	evicted  []BundleID
}

type Option func(*Document)

func WithLogger(logger *log.Logger) Option {
	return func(d *Document) {
		d.logger = logger
	}
}

// WithVerify checks every line record and the depth propagation of every
// line after each edit instead of only the cheap checks.
func WithVerify(verify bool) Option {
	return func(d *Document) {
		d.verify = verify
	}
}

// WithRescanHandler registers fn to be called with the reason whenever the
// document falls back to a full rescan.
func WithRescanHandler(fn func(error)) Option {
	return func(d *Document) {
		d.onRescan = fn
	}
}

// New creates a document over content and tokenizes all of it.
func New(content string, grammar *textmate.Grammar, opts ...Option) *Document {
	d := &Document{
		content: content,
		grammar: grammar,
		lines:   NewLineMap(content),
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.tokens = NewRetokenizer(grammar, d.lines)
	d.tokens.Full(content)
	return d
}

func (d *Document) Grammar() *textmate.Grammar {
	return d.grammar
}

func (d *Document) Content() string {
	return d.content
}

// Size is the length of the buffer in characters.
func (d *Document) Size() int {
	return d.lines.Size()
}

// Apply brings the document up to date with an edit: the touched lines are
// rescanned with fresh line infos, their bundles are evicted, and lines are
// retokenized until the scope stack stops changing. An edit that does not
// match its content, or any broken invariant, results in a full rescan.
func (d *Document) Apply(e Edit) EditResult {
	if e.Offset < 0 || e.Removed < 0 || e.Inserted < 0 || e.Offset+e.Removed > d.lines.Size() {
		return d.rescan(e.Content, fmt.Errorf("%w: removing %d at %d from %d characters", ErrEditMismatch, e.Removed, e.Offset, d.lines.Size()), nil)
	}

	old := d.lines.Affected(e.Offset, e.Removed, e.Inserted)
	var evicted []BundleID
	for i := old.First; i <= old.Last; i++ {
		if b := d.lines.info(i).Messages; b != nil {
			evicted = append(evicted, b.ID)
		}
	}

	affected, err := d.lines.Update(e.Content, e.Offset, e.Removed, e.Inserted)
	if err != nil {
		return d.rescan(e.Content, err, evicted)
	}
	d.content = e.Content
	d.tokens.Splice(old, affected.Len())

	retokenized, err := d.tokens.Run(e.Content, affected)
	if err == nil && d.verify {
		err = d.Verify()
	}
	if err != nil {
		return d.rescan(e.Content, err, evicted)
	}

	d.evicted = evicted
	d.logger.Debug("applied edit",
		logging.FieldOffset, e.Offset,
		logging.FieldRemoved, e.Removed,
		logging.FieldInserted, e.Inserted,
		logging.FieldAffected, affected,
		logging.FieldRetokenized, retokenized,
		logging.FieldEvicted, len(evicted))
	return EditResult{
		Affected:    affected,
		Retokenized: retokenized,
		Evicted:     evicted,
	}
}

// Replace removes removed characters at offset, inserts text there and
// applies the resulting edit. A rejected edit leaves the content untouched
// and evicts nothing.
func (d *Document) Replace(offset, removed int, text string) (EditResult, error) {
	runes := []rune(d.content)
	if offset < 0 || removed < 0 || offset+removed > len(runes) {
		d.evicted = nil
		return EditResult{}, fmt.Errorf("%w: removing %d at %d from %d characters", ErrOutOfRange, removed, offset, len(runes))
	}
	inserted := []rune(text)
	content := string(slices.Concat(runes[:offset], inserted, runes[offset+removed:]))
	return d.Apply(Edit{
		Offset:   offset,
		Removed:  removed,
		Inserted: len(inserted),
		Content:  content,
	}), nil
}

// rescan rebuilds the document from content. Every bundle attached before,
// and the ones in pending, are evicted.
func (d *Document) rescan(content string, reason error, pending []BundleID) EditResult {
	var evicted []BundleID
	for _, l := range d.lines.All() {
		if b := l.Info.Messages; b != nil {
			evicted = append(evicted, b.ID)
		}
	}
	for _, id := range pending {
		if !slices.Contains(evicted, id) {
			evicted = append(evicted, id)
		}
	}

	d.logger.Warn("rescanning document", logging.FieldError, reason)
	d.content = content
	d.lines.Reset(content)
	d.tokens.Full(content)
	d.evicted = evicted
	if d.onRescan != nil {
		d.onRescan(reason)
	}

	all := LineRange{First: 0, Last: d.lines.LineCount() - 1}
	return EditResult{
		Affected:    all,
		Retokenized: all,
		Evicted:     evicted,
		Rescanned:   true,
	}
}

// Verify checks that the line records tile the buffer and that comment
// depths propagate from line to line.
func (d *Document) Verify() error {
	if err := d.lines.Verify(d.content); err != nil {
		return err
	}
	return d.tokens.Verify()
}

// LastEvictedMessageIDs returns the bundles evicted by the last edit.
func (d *Document) LastEvictedMessageIDs() []BundleID {
	return d.evicted
}

func (d *Document) LineCount() int {
	return d.lines.LineCount()
}

// LineOf returns the line containing the character offset.
func (d *Document) LineOf(offset int) (int, bool) {
	return d.lines.LineOf(offset)
}

func (d *Document) Line(i int) (Line, bool) {
	return d.lines.Line(i)
}

// Affected returns the lines an edit would touch in the current buffer.
func (d *Document) Affected(offset, removed, inserted int) LineRange {
	return d.lines.Affected(offset, removed, inserted)
}

func (d *Document) Info(i int) (LineInfo, bool) {
	l, ok := d.lines.Line(i)
	return l.Info, ok
}

// Text returns the text of line i without its line terminator.
func (d *Document) Text(i int) (string, bool) {
	if i < 0 || i >= d.lines.LineCount() {
		return "", false
	}
	text := d.lines.Text(d.content, i)
	if len(text) > 0 && text[len(text)-1] == '\n' {
		text = text[:len(text)-1]
	}
	return text, true
}

// Tokens returns the tokens of line i. They cover the line without gaps,
// offsets relative to the start of the line.
func (d *Document) Tokens(i int) ([]textmate.Token, bool) {
	return d.tokens.Tokens(i)
}

// Matched returns the possibly overlapping scoped spans of line i.
func (d *Document) Matched(i int) ([]textmate.Token, bool) {
	return d.tokens.Matched(i)
}

// ScopeStack returns the scope stack at the end of line i.
func (d *Document) ScopeStack(i int) (*textmate.StackItem, bool) {
	return d.tokens.State(i)
}
