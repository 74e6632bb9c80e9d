package document

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/friedelschoen/go-textmate-doc/internal/logging"
)

func TestBlockCommentSpansLines(t *testing.T) {
	d := newDocument(t, "a /* x\nb */ c")
	require.Equal(t, 2, d.LineCount())

	info, ok := d.Info(0)
	require.True(t, ok)
	require.Zero(t, info.CommentDepthStart)
	require.Equal(t, 1, info.CommentDepthEnd)

	info, _ = d.Info(1)
	require.Equal(t, 1, info.CommentDepthStart)
	require.Zero(t, info.CommentDepthEnd)

	state, ok := d.ScopeStack(0)
	require.True(t, ok)
	require.Equal(t, []string{"source.test", "comment.block.test"}, state.Scopes())
	state, _ = d.ScopeStack(1)
	require.Equal(t, []string{"source.test"}, state.Scopes())
}

func TestSingleCharacterInsert(t *testing.T) {
	d := newDocument(t, numbered(100))
	first, _ := d.AttachMessages(0, []Message{{Severity: SeverityError, Text: "bad"}})
	fifth, _ := d.AttachMessages(5, nil)

	res, err := d.Replace(0, 0, "x")
	require.NoError(t, err)
	require.Equal(t, LineRange{0, 0}, res.Affected)
	require.Equal(t, LineRange{0, 0}, res.Retokenized)
	require.Equal(t, []BundleID{first}, res.Evicted)
	require.Equal(t, []BundleID{first}, d.LastEvictedMessageIDs())
	require.False(t, res.Rescanned)

	_, ok := d.Bundle(0)
	require.False(t, ok)
	line, ok := d.FindBundle(fifth)
	require.True(t, ok)
	require.Equal(t, 5, line)

	text, _ := d.Text(0)
	require.Equal(t, "xline 0", text)
	require.Equal(t, 8, lineStart(t, d, 1), "following lines shift")
}

func TestMergeLines(t *testing.T) {
	d := newDocument(t, numbered(10))
	var ids []BundleID
	for line := 3; line <= 5; line++ {
		id, ok := d.AttachMessages(line, []Message{{Text: "note"}})
		require.True(t, ok)
		ids = append(ids, id)
	}

	offset := lineStart(t, d, 4) - 1
	require.Equal(t, LineRange{3, 4}, d.Affected(offset, 1, 0))

	res, err := d.Replace(offset, 1, "")
	require.NoError(t, err)
	require.Equal(t, 9, d.LineCount())
	require.Equal(t, LineRange{3, 3}, res.Affected)
	require.ElementsMatch(t, ids[:2], res.Evicted)

	text, _ := d.Text(3)
	require.Equal(t, "line 3line 4", text)
	line, ok := d.FindBundle(ids[2])
	require.True(t, ok)
	require.Equal(t, 4, line)
	text, _ = d.Text(line)
	require.Equal(t, "line 5", text)
}

func TestUnterminatedCommentPropagates(t *testing.T) {
	d := newDocument(t, numbered(10))

	res, err := d.Replace(lineStart(t, d, 3)+2, 0, "/* open")
	require.NoError(t, err)
	require.Equal(t, LineRange{3, 9}, res.Retokenized)
	for line := 4; line < 10; line++ {
		info, _ := d.Info(line)
		require.Equal(t, 1, info.CommentDepthStart, "line %d", line)
		require.Equal(t, 1, info.CommentDepthEnd, "line %d", line)
	}

	/* closing it again propagates back to the end */
	res, err = d.Replace(lineStart(t, d, 6)-1, 0, " */")
	require.NoError(t, err)
	require.Equal(t, LineRange{5, 9}, res.Retokenized)
	info, _ := d.Info(5)
	require.Equal(t, 1, info.CommentDepthStart)
	require.Zero(t, info.CommentDepthEnd)
	for line := 6; line < 10; line++ {
		info, _ := d.Info(line)
		require.Zero(t, info.CommentDepthStart, "line %d", line)
	}
	requireFresh(t, d)
}

func TestCommentPropagationStopsAtClose(t *testing.T) {
	lines := []string{"a", "b", "c", "d", "e f", "g", "h", "z */ w", "i", "j"}
	d := newDocument(t, strings.Join(lines, "\n"))

	res, err := d.Replace(lineStart(t, d, 4)+1, 0, "/* y")
	require.NoError(t, err)
	require.Equal(t, LineRange{4, 4}, res.Affected)
	require.Equal(t, LineRange{4, 7}, res.Retokenized)

	for line, want := range []struct{ start, end int }{
		4: {0, 1}, 5: {1, 1}, 6: {1, 1}, 7: {1, 0}, 8: {0, 0}, 9: {0, 0},
	} {
		if line < 4 {
			continue
		}
		info, _ := d.Info(line)
		require.Equal(t, want.start, info.CommentDepthStart, "line %d", line)
		require.Equal(t, want.end, info.CommentDepthEnd, "line %d", line)
	}
	requireFresh(t, d)
}

func TestBracketDiffs(t *testing.T) {
	d := newDocument(t, "f(a[1], \"(\" /* { */) {\n}\n// )")

	info, _ := d.Info(0)
	require.Equal(t, 0, info.RoundBracketDiff)
	require.Equal(t, 0, info.SquareBracketDiff)
	require.Equal(t, 1, info.CurlyBracketDiff)

	info, _ = d.Info(1)
	require.Equal(t, -1, info.CurlyBracketDiff)

	info, _ = d.Info(2)
	require.Zero(t, info.RoundBracketDiff)
}

func TestEmptyDocument(t *testing.T) {
	d := newDocument(t, "")
	require.Equal(t, 1, d.LineCount())
	tokens, ok := d.Tokens(0)
	require.True(t, ok)
	require.Empty(t, tokens)
	text, ok := d.Text(0)
	require.True(t, ok)
	require.Empty(t, text)

	_, err := d.Replace(0, 0, "if 1\n")
	require.NoError(t, err)
	require.Equal(t, 2, d.LineCount())

	_, err = d.Replace(0, 5, "")
	require.NoError(t, err)
	require.Equal(t, 1, d.LineCount())
	l, _ := d.Line(0)
	require.Zero(t, l.Length)
}

func TestOutOfRangeQueries(t *testing.T) {
	d := newDocument(t, "a\nb")
	for _, line := range []int{-1, 2, 100} {
		_, ok := d.Line(line)
		require.False(t, ok)
		_, ok = d.Info(line)
		require.False(t, ok)
		_, ok = d.Tokens(line)
		require.False(t, ok)
		_, ok = d.ScopeStack(line)
		require.False(t, ok)
		_, ok = d.Text(line)
		require.False(t, ok)
		_, ok = d.AttachMessages(line, nil)
		require.False(t, ok)
	}
	_, ok := d.LineOf(4)
	require.False(t, ok)

	_, err := d.Replace(2, 5, "")
	require.ErrorIs(t, err, ErrOutOfRange)
	require.Equal(t, "a\nb", d.Content())
}

func TestRejectedEditEvictsNothing(t *testing.T) {
	d := newDocument(t, "a\nb")
	id, ok := d.AttachMessages(0, nil)
	require.True(t, ok)

	_, err := d.Replace(0, 1, "x")
	require.NoError(t, err)
	require.Equal(t, []BundleID{id}, d.LastEvictedMessageIDs())

	_, err = d.Replace(-1, 0, "")
	require.ErrorIs(t, err, ErrOutOfRange)
	require.Empty(t, d.LastEvictedMessageIDs())
	require.Equal(t, "x\nb", d.Content())
}

func TestCarriageReturnIsNotTokenized(t *testing.T) {
	d := newDocument(t, "a /*\r\nb */")
	tokens, _ := d.Tokens(0)
	require.Equal(t, 4, tokens[len(tokens)-1].End())
	text, _ := d.Text(0)
	require.Equal(t, "a /*\r", text)
	info, _ := d.Info(1)
	require.Equal(t, 1, info.CommentDepthStart)
}

func TestMessageBundles(t *testing.T) {
	d := newDocument(t, "a\nb\nc")

	empty, ok := d.AttachMessages(1, nil)
	require.True(t, ok)
	b, ok := d.Bundle(1)
	require.True(t, ok)
	require.Equal(t, empty, b.ID)
	require.Empty(t, b.Messages)
	_, ok = d.Bundle(0)
	require.False(t, ok)

	msgs := []Message{{Severity: SeverityWarning, Text: "unused", Column: 0, Length: 1, Source: "vet"}}
	replaced, ok := d.AttachMessages(1, msgs)
	require.True(t, ok)
	require.NotEqual(t, empty, replaced)
	_, ok = d.FindBundle(empty)
	require.False(t, ok)

	msgs[0].Text = "changed"
	b, _ = d.Bundle(1)
	require.Equal(t, "unused", b.Messages[0].Text, "bundle owns a copy")

	id, ok := d.DetachMessages(1)
	require.True(t, ok)
	require.Equal(t, replaced, id)
	_, ok = d.DetachMessages(1)
	require.False(t, ok)
	_, ok = d.FindBundle(replaced)
	require.False(t, ok)

	require.Equal(t, "warning", SeverityWarning.String())
	require.Len(t, replaced.String(), 36)
}

func TestBundlesSurviveRetokenization(t *testing.T) {
	d := newDocument(t, numbered(6))
	id, _ := d.AttachMessages(4, []Message{{Text: "keep"}})

	res, err := d.Replace(lineStart(t, d, 1), 0, "/*")
	require.NoError(t, err)
	require.Equal(t, LineRange{1, 5}, res.Retokenized)
	require.Empty(t, res.Evicted)

	line, ok := d.FindBundle(id)
	require.True(t, ok)
	require.Equal(t, 4, line)
	info, _ := d.Info(4)
	require.Equal(t, 1, info.CommentDepthStart)
}

func TestMismatchedEditRescans(t *testing.T) {
	var reasons []error
	var logs bytes.Buffer
	d := New("ab\ncd", grammar(t),
		WithLogger(logging.NewWithWriter(&logs, "warn")),
		WithRescanHandler(func(err error) {
			reasons = append(reasons, err)
		}))
	first, _ := d.AttachMessages(0, nil)
	second, _ := d.AttachMessages(1, nil)

	/* claims an insertion the content does not have */
	res := d.Apply(Edit{Offset: 0, Inserted: 1, Content: "ab\ncd"})
	require.True(t, res.Rescanned)
	require.ElementsMatch(t, []BundleID{first, second}, res.Evicted)
	require.Equal(t, LineRange{0, 1}, res.Retokenized)
	require.Len(t, reasons, 1)
	require.ErrorIs(t, reasons[0], ErrEditMismatch)
	require.Contains(t, logs.String(), "rescanning document")

	res = d.Apply(Edit{Offset: 10, Inserted: 3, Content: "/* x"})
	require.True(t, res.Rescanned)
	require.Empty(t, res.Evicted)
	require.Len(t, reasons, 2)
	require.Equal(t, "/* x", d.Content())
	info, _ := d.Info(0)
	require.Equal(t, 1, info.CommentDepthEnd)
	requireFresh(t, d)
}

func TestBrokenInvariantRescans(t *testing.T) {
	var reason error
	d := New("a\nb\nc", grammar(t),
		WithLogger(logging.Discard()),
		WithVerify(true),
		WithRescanHandler(func(err error) { reason = err }))

	d.lines.info(2).CommentDepthStart = 7
	res, err := d.Replace(0, 0, "x")
	require.NoError(t, err)
	require.True(t, res.Rescanned)
	require.True(t, errors.Is(reason, ErrDepthPropagation), "got %v", reason)
	require.NoError(t, d.Verify())
}

var alphabet = []rune("ab1 if/*\n\"\\(){}é")

func TestEditsMatchFullRescan(t *testing.T) {
	g := grammar(t)
	rapid.Check(t, func(t *rapid.T) {
		content := rapid.StringOf(rapid.SampledFrom(alphabet)).Draw(t, "content")
		d := New(content, g,
			WithLogger(logging.Discard()),
			WithRescanHandler(func(err error) {
				t.Fatalf("unexpected rescan: %v", err)
			}))

		for range rapid.IntRange(1, 6).Draw(t, "edits") {
			texts := make(map[BundleID]string)
			for line := range d.LineCount() {
				if rapid.Bool().Draw(t, "attach") {
					d.AttachMessages(line, []Message{{Text: "m"}})
				}
				if b, ok := d.Bundle(line); ok {
					texts[b.ID], _ = d.Text(line)
				}
			}

			size := len([]rune(d.Content()))
			offset := rapid.IntRange(0, size).Draw(t, "offset")
			removed := rapid.IntRange(0, size-offset).Draw(t, "removed")
			text := rapid.StringOf(rapid.SampledFrom(alphabet)).Draw(t, "text")

			var want []BundleID
			affected := d.Affected(offset, removed, len([]rune(text)))
			for line := affected.First; line <= affected.Last; line++ {
				if b, ok := d.Bundle(line); ok {
					want = append(want, b.ID)
				}
			}

			res, err := d.Replace(offset, removed, text)
			require.NoError(t, err)
			require.False(t, res.Rescanned)
			require.ElementsMatch(t, want, res.Evicted)
			require.Equal(t, res.Evicted, d.LastEvictedMessageIDs())
			require.LessOrEqual(t, res.Retokenized.First, res.Affected.First)
			require.GreaterOrEqual(t, res.Retokenized.Last, res.Affected.Last)

			for id, before := range texts {
				line, ok := d.FindBundle(id)
				if slices.Contains(want, id) {
					require.False(t, ok)
					continue
				}
				require.True(t, ok)
				got, _ := d.Text(line)
				require.Equal(t, before, got)
			}

			require.NoError(t, d.Verify())
			requireFresh(t, d)
		}
	})
}

func TestLineMapMatchesScan(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		content := rapid.StringOf(rapid.SampledFrom(alphabet)).Draw(t, "content")
		m := NewLineMap(content)
		for range rapid.IntRange(1, 10).Draw(t, "edits") {
			runes := []rune(content)
			offset := rapid.IntRange(0, len(runes)).Draw(t, "offset")
			removed := rapid.IntRange(0, len(runes)-offset).Draw(t, "removed")
			inserted := []rune(rapid.StringOf(rapid.SampledFrom(alphabet)).Draw(t, "text"))
			content = string(slices.Concat(runes[:offset], inserted, runes[offset+removed:]))

			_, err := m.Update(content, offset, removed, len(inserted))
			require.NoError(t, err)
			require.NoError(t, m.Verify(content))

			for i := 1; i < m.LineCount(); i++ {
				prev, _ := m.Line(i - 1)
				cur, _ := m.Line(i)
				require.Equal(t, prev.End(), cur.Start)
			}
		}
	})
}
