package document

import (
	"slices"

	"github.com/google/uuid"

	textmate "github.com/friedelschoen/go-textmate-doc"
)

// LineInfo is the analysis state of one line. Comment depths count the open
// comment scopes at the start and end of the line. Bracket diffs are the net
// nesting change of the line alone, brackets inside comments and strings
// excluded.
type LineInfo struct {
	CommentDepthStart int
	CommentDepthEnd   int
	RoundBracketDiff  int
	SquareBracketDiff int
	CurlyBracketDiff  int
	// Messages is nil when no bundle is attached. An empty bundle is still a bundle.
	Messages *MessageBundle
}

// Severity of a diagnostic message.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
	SeverityHint
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityHint:
		return "hint"
	}
	return "unknown"
}

// Message is a diagnostic on a line. Column and Length count characters.
type Message struct {
	Severity Severity
	Text     string
	Column   int
	Length   int
	Source   string
}

// BundleID identifies a message bundle for its whole lifetime, regardless
// of the line it is attached to.
type BundleID uuid.UUID

func (id BundleID) String() string {
	return uuid.UUID(id).String()
}

type MessageBundle struct {
	ID       BundleID
	Messages []Message
}

// NewMessageBundle creates a bundle with a fresh id.
func NewMessageBundle(msgs []Message) *MessageBundle {
	return &MessageBundle{
		ID:       BundleID(uuid.New()),
		Messages: slices.Clone(msgs),
	}
}

func commentDepth(state *textmate.StackItem) int {
	return state.Count("comment")
}

// bracketDiffs counts the brackets of text that are not covered by a
// comment or string scope of matched.
func bracketDiffs(text []rune, matched []textmate.Token) (round, square, curly int) {
	if !slices.ContainsFunc(text, isBracket) {
		return 0, 0, 0
	}
	mapper := make(textmate.Mapper, len(text))
	for i := range matched {
		mapper.Add(&matched[i])
	}
	for pos, r := range text {
		if !isBracket(r) || mapper.Covered(pos, "comment") || mapper.Covered(pos, "string") {
			continue
		}
		switch r {
		case '(':
			round++
		case ')':
			round--
		case '[':
			square++
		case ']':
			square--
		case '{':
			curly++
		case '}':
			curly--
		}
	}
	return round, square, curly
}

func isBracket(r rune) bool {
	switch r {
	case '(', ')', '[', ']', '{', '}':
		return true
	}
	return false
}
