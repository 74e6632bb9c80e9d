package document

import (
	"fmt"
	"iter"
	"slices"
	"sort"
	"unicode/utf8"
)

// Line is a line record. Start and Length count characters (runes);
// Length includes the terminating "\n" when the line has one.
type Line struct {
	Start  int
	Length int
	Info   LineInfo

	byteStart int
	byteLen   int
}

func (l Line) End() int {
	return l.Start + l.Length
}

// LineRange is an inclusive range of line indices.
type LineRange struct {
	First int
	Last  int
}

func (r LineRange) Len() int {
	return r.Last - r.First + 1
}

func (r LineRange) Contains(line int) bool {
	return line >= r.First && line <= r.Last
}

func (r LineRange) String() string {
	return fmt.Sprintf("[%d,%d]", r.First, r.Last)
}

// LineMap keeps the line records of a buffer. An empty buffer has one
// zero-length line and a buffer ending in "\n" has a zero-length last line,
// so there is always at least one record.
type LineMap struct {
	lines []Line
	size  int
	bytes int
}

func NewLineMap(content string) *LineMap {
	m := &LineMap{}
	m.Reset(content)
	return m
}

// Reset rebuilds every record from content. All line infos are lost.
func (m *LineMap) Reset(content string) {
	m.lines, m.bytes, _ = scan(content, 0, 0, -1)
	m.size = m.lines[len(m.lines)-1].End()
}

// scan splits content from byte offset from into line records, the first
// starting at character offset start. With want < 0 it scans to the end of
// content and always yields a last, possibly empty, line. Otherwise it
// consumes exactly want characters, which must end on a line terminator.
func scan(content string, from, start, want int) ([]Line, int, error) {
	var lines []Line
	line := Line{Start: start, byteStart: from}
	i, n := from, 0
	for i < len(content) && (want < 0 || n < want) {
		r, size := utf8.DecodeRuneInString(content[i:])
		i += size
		n++
		line.Length++
		line.byteLen += size
		if r == '\n' {
			lines = append(lines, line)
			line = Line{Start: line.End(), byteStart: i}
		}
	}
	if want < 0 {
		return append(lines, line), i, nil
	}
	if n != want || line.Length != 0 {
		return nil, 0, fmt.Errorf("%w: expected %d characters up to a line break at %d", ErrEditMismatch, want, start)
	}
	return lines, i, nil
}

func (m *LineMap) LineCount() int {
	return len(m.lines)
}

// Size is the length of the buffer in characters.
func (m *LineMap) Size() int {
	return m.size
}

// Line returns the record of line i.
func (m *LineMap) Line(i int) (Line, bool) {
	if i < 0 || i >= len(m.lines) {
		return Line{}, false
	}
	return m.lines[i], true
}

// All yields every line record in order.
func (m *LineMap) All() iter.Seq2[int, Line] {
	return func(yield func(int, Line) bool) {
		for i, l := range m.lines {
			if !yield(i, l) {
				return
			}
		}
	}
}

func (m *LineMap) info(i int) *LineInfo {
	return &m.lines[i].Info
}

// LineOf returns the line containing offset. The end of the buffer belongs
// to the last line.
func (m *LineMap) LineOf(offset int) (int, bool) {
	if offset < 0 || offset > m.size {
		return 0, false
	}
	return m.lineAt(offset), true
}

func (m *LineMap) lineAt(offset int) int {
	offset = min(max(offset, 0), m.size)
	return sort.Search(len(m.lines), func(i int) bool {
		return m.lines[i].Start > offset
	}) - 1
}

// Affected returns the lines an edit structurally touches: the line
// containing offset through the line containing offset+removed. The
// inserted length never widens the range as inserted text lands inside the
// first line.
func (m *LineMap) Affected(offset, removed, inserted int) LineRange {
	return LineRange{
		First: m.lineAt(offset),
		Last:  m.lineAt(offset + max(removed, 0)),
	}
}

// Text returns the text of line i within content, terminator included.
func (m *LineMap) Text(content string, i int) string {
	l := m.lines[i]
	return content[l.byteStart : l.byteStart+l.byteLen]
}

// Update rescans the affected lines of an edit in content, the buffer after
// the edit, and shifts the records below them. The replaced lines get fresh
// infos. It returns the post-edit range of the rescanned lines. The map is
// left untouched when the edit does not match content.
func (m *LineMap) Update(content string, offset, removed, inserted int) (LineRange, error) {
	if offset < 0 || removed < 0 || inserted < 0 || offset+removed > m.size {
		return LineRange{}, fmt.Errorf("%w: removing %d at %d from %d characters", ErrEditMismatch, removed, offset, m.size)
	}
	affected := m.Affected(offset, removed, inserted)
	delta := inserted - removed
	first, last := m.lines[affected.First], m.lines[affected.Last]
	final := affected.Last == len(m.lines)-1

	want := last.End() + delta - first.Start
	if final {
		want = -1
	}
	fresh, end, err := scan(content, first.byteStart, first.Start, want)
	if err != nil {
		return LineRange{}, err
	}
	if final && fresh[len(fresh)-1].End() != m.size+delta {
		return LineRange{}, fmt.Errorf("%w: expected %d characters, got %d", ErrEditMismatch, m.size+delta, fresh[len(fresh)-1].End())
	}

	byteDelta := end - (last.byteStart + last.byteLen)
	for i := affected.Last + 1; i < len(m.lines); i++ {
		m.lines[i].Start += delta
		m.lines[i].byteStart += byteDelta
	}
	m.lines = slices.Replace(m.lines, affected.First, affected.Last+1, fresh...)
	m.size += delta
	m.bytes = len(content)

	if err := m.check(); err != nil {
		return LineRange{}, err
	}
	return LineRange{First: affected.First, Last: affected.First + len(fresh) - 1}, nil
}

// check compares the end of the last line with the buffer length, which
// catches any drift of the shifted records in constant time.
func (m *LineMap) check() error {
	last := m.lines[len(m.lines)-1]
	if last.End() != m.size || last.byteStart+last.byteLen != m.bytes {
		return fmt.Errorf("%w: last line ends at %d (byte %d), buffer has %d (byte %d)",
			ErrContiguity, last.End(), last.byteStart+last.byteLen, m.size, m.bytes)
	}
	return nil
}

// Verify checks every record against a fresh scan of content.
func (m *LineMap) Verify(content string) error {
	want := NewLineMap(content)
	if len(want.lines) != len(m.lines) {
		return fmt.Errorf("%w: %d lines, content has %d", ErrContiguity, len(m.lines), len(want.lines))
	}
	for i, l := range m.lines {
		w := want.lines[i]
		if l.Start != w.Start || l.Length != w.Length || l.byteStart != w.byteStart || l.byteLen != w.byteLen {
			return fmt.Errorf("%w: line %d spans %d+%d, content has %d+%d", ErrContiguity, i, l.Start, l.Length, w.Start, w.Length)
		}
	}
	return m.check()
}
