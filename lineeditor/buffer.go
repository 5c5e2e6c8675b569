// Package lineeditor implements the interactive line editor: a cursor-
// and wrap-aware buffer, a redraw contract that keeps the terminal cursor
// correctly positioned across wrapped lines, tab completion, a raw stdin
// bridge for interactive commands, and persistent history with classic
// `!n`/`!!` expansion.
package lineeditor

// Buffer is the in-progress input line: the rune content plus the
// cursor's position within it. Editing always happens in terms of runes,
// not bytes, so multi-byte UTF-8 input never splits a character.
type Buffer struct {
	runes  []rune
	cursor int
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// String returns the buffer's full contents.
func (b *Buffer) String() string { return string(b.runes) }

// Len returns the number of runes in the buffer.
func (b *Buffer) Len() int { return len(b.runes) }

// Cursor returns the current cursor offset, in runes.
func (b *Buffer) Cursor() int { return b.cursor }

// Reset clears the buffer back to empty.
func (b *Buffer) Reset() {
	b.runes = b.runes[:0]
	b.cursor = 0
}

// SetContent replaces the buffer wholesale, placing the cursor at the end.
func (b *Buffer) SetContent(s string) {
	b.runes = []rune(s)
	b.cursor = len(b.runes)
}

// InsertString inserts s at the cursor, advancing the cursor past it.
func (b *Buffer) InsertString(s string) {
	for _, r := range s {
		b.InsertRune(r)
	}
}

// InsertRune inserts one rune at the cursor.
func (b *Buffer) InsertRune(r rune) {
	b.runes = append(b.runes, 0)
	copy(b.runes[b.cursor+1:], b.runes[b.cursor:])
	b.runes[b.cursor] = r
	b.cursor++
}

// DeleteBackward removes the rune before the cursor (Backspace).
func (b *Buffer) DeleteBackward() bool {
	if b.cursor == 0 {
		return false
	}
	b.runes = append(b.runes[:b.cursor-1], b.runes[b.cursor:]...)
	b.cursor--
	return true
}

// DeleteForward removes the rune at the cursor (Delete).
func (b *Buffer) DeleteForward() bool {
	if b.cursor >= len(b.runes) {
		return false
	}
	b.runes = append(b.runes[:b.cursor], b.runes[b.cursor+1:]...)
	return true
}

// DeleteToStart removes everything from the start of the line to the
// cursor (Ctrl-U).
func (b *Buffer) DeleteToStart() {
	b.runes = append([]rune{}, b.runes[b.cursor:]...)
	b.cursor = 0
}

// MoveLeft moves the cursor one rune left, if possible.
func (b *Buffer) MoveLeft() {
	if b.cursor > 0 {
		b.cursor--
	}
}

// MoveRight moves the cursor one rune right, if possible.
func (b *Buffer) MoveRight() {
	if b.cursor < len(b.runes) {
		b.cursor++
	}
}

// Home moves the cursor to the start of the line (Home, Ctrl-A).
func (b *Buffer) Home() { b.cursor = 0 }

// End moves the cursor to the end of the line (End, Ctrl-E).
func (b *Buffer) End() { b.cursor = len(b.runes) }

// ReplaceRange replaces runes [start,end) with s, placing the cursor
// right after the inserted text — used by tab completion to swap the
// word under the cursor for a completion candidate.
func (b *Buffer) ReplaceRange(start, end int, s string) {
	if start < 0 {
		start = 0
	}
	if end > len(b.runes) {
		end = len(b.runes)
	}
	if start > end {
		start = end
	}
	tail := append([]rune{}, b.runes[end:]...)
	b.runes = append(b.runes[:start], []rune(s)...)
	b.runes = append(b.runes, tail...)
	b.cursor = start + len([]rune(s))
}
