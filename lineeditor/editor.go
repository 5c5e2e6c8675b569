package lineeditor

import (
	"fmt"
	"strings"

	"github.com/lifosh/lifosh/command"
	"github.com/lifosh/lifosh/vfs"
)

// FeedContext carries the per-keystroke state Feed needs but the editor
// itself doesn't own: the live cwd/env (they change as commands like `cd`
// and `export` run) and the callbacks that drive the rest of the shell.
type FeedContext struct {
	Cwd      string
	Env      map[string]string
	OnSubmit func(line string)
	OnEOF    func()
}

type tabState struct {
	word string
}

// Editor is the interactive line editor: a wrap-aware buffer plus the
// redraw contract, tab completion, paste handling, and raw-mode bridging
// a terminal front end drives it through. It knows nothing about the
// concrete terminal — callers supply Write and a Cols value, and forward
// every input chunk to Feed.
type Editor struct {
	Cols   int
	Prompt string

	buf     *Buffer
	history *History

	registry     *command.Registry
	builtinNames []string
	vfs          *vfs.FS

	write func(string)

	screenCursorRow int
	tab             tabState

	raw     bool
	rawSink func(string)
}

// NewEditor wires an editor around a command registry (for tab
// completion), a VFS (for path completion), a history store, and a
// write func the terminal front end supplies.
func NewEditor(cols int, prompt string, fs *vfs.FS, registry *command.Registry, builtinNames []string, history *History, write func(string)) *Editor {
	return &Editor{
		Cols:         cols,
		Prompt:       prompt,
		buf:          NewBuffer(),
		history:      history,
		registry:     registry,
		builtinNames: builtinNames,
		vfs:          fs,
		write:        write,
	}
}

// Buffer exposes the live buffer for callers that need to inspect it
// (tests, or a status line showing the in-progress command).
func (e *Editor) Buffer() *Buffer { return e.buf }

// Redraw repaints the prompt and buffer; call it once after construction
// or after a resize to establish the initial screen state.
func (e *Editor) Redraw() { e.redraw() }

// EnterRawMode switches the editor into raw passthrough: every Feed call
// is forwarded verbatim to sink instead of being interpreted as line
// editing input, for commands that read their own keystrokes.
func (e *Editor) EnterRawMode(sink func(string)) {
	e.raw = true
	e.rawSink = sink
}

// ExitRawMode returns to normal line editing and repaints the prompt.
func (e *Editor) ExitRawMode() {
	e.raw = false
	e.rawSink = nil
	e.redraw()
}

// Feed delivers one chunk of terminal input (a single keystroke, an
// escape sequence, or a multi-line paste) to the editor.
func (e *Editor) Feed(data string, fctx FeedContext) {
	if e.raw {
		if e.rawSink != nil {
			e.rawSink(data)
		}
		return
	}
	if isPaste(data) {
		e.feedPaste(data, fctx)
		return
	}
	e.handleOne(data, fctx)
}

func isPaste(data string) bool {
	return len(data) > 1 && strings.ContainsAny(data, "\n\r")
}

// feedPaste splits pasted data into complete lines and a possibly-partial
// trailing fragment. Each complete line is appended to the buffer and
// submitted immediately; the trailing fragment (if any) is left in the
// buffer for further editing.
func (e *Editor) feedPaste(data string, fctx FeedContext) {
	normalized := strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(data)
	parts := strings.Split(normalized, "\n")
	trailing := parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		e.buf.InsertString(line)
		e.submitCurrent(fctx)
	}
	if trailing != "" {
		e.buf.InsertString(trailing)
		e.redraw()
	}
}

func (e *Editor) submitCurrent(fctx FeedContext) {
	line := e.history.Expand(e.buf.String())
	e.buf.Reset()
	e.history.Add(line)
	e.history.ResetBrowse()
	e.tab = tabState{}
	e.screenCursorRow = 0
	e.write("\r\n")
	if fctx.OnSubmit != nil {
		fctx.OnSubmit(line)
	}
	e.redraw()
}

func (e *Editor) handleOne(data string, fctx FeedContext) {
	switch data {
	case "\r", "\n":
		e.submitCurrent(fctx)
	case "\x7f", "\x08":
		if e.buf.DeleteBackward() {
			e.redraw()
		} else {
			e.bell()
		}
	case "\x01":
		e.buf.Home()
		e.redraw()
	case "\x05":
		e.buf.End()
		e.redraw()
	case "\x15":
		e.buf.DeleteToStart()
		e.redraw()
	case "\x03":
		e.buf.Reset()
		e.history.ResetBrowse()
		e.write("^C\r\n")
		e.screenCursorRow = 0
		e.redraw()
	case "\x04":
		if e.buf.Len() == 0 {
			if fctx.OnEOF != nil {
				fctx.OnEOF()
			}
			return
		}
		if e.buf.DeleteForward() {
			e.redraw()
		}
	case "\t":
		e.handleTab(fctx)
	case "\x1b[A":
		if line, ok := e.history.Prev(e.buf.String()); ok {
			e.buf.SetContent(line)
			e.redraw()
		}
	case "\x1b[B":
		if line, ok := e.history.Next(); ok {
			e.buf.SetContent(line)
			e.redraw()
		}
	case "\x1b[C":
		e.buf.MoveRight()
		e.redraw()
	case "\x1b[D":
		e.buf.MoveLeft()
		e.redraw()
	case "\x1b[H", "\x1bOH":
		e.buf.Home()
		e.redraw()
	case "\x1b[F", "\x1bOF":
		e.buf.End()
		e.redraw()
	case "\x1b[3~":
		if e.buf.DeleteForward() {
			e.redraw()
		}
	default:
		if data == "" || data[0] == 0x1b {
			return
		}
		e.buf.InsertString(data)
		e.tab = tabState{}
		e.redraw()
	}
}

func (e *Editor) handleTab(fctx FeedContext) {
	line := e.buf.String()
	result := Complete(line, e.buf.Cursor(), fctx.Cwd, fctx.Env, e.vfs, e.registry, e.builtinNames)

	switch len(result.Completions) {
	case 0:
		e.bell()
	case 1:
		repl := result.Completions[0]
		e.buf.ReplaceRange(result.ReplacementStart, result.ReplacementEnd, repl)
		if !strings.HasSuffix(repl, "/") {
			e.buf.InsertString(" ")
		}
		e.tab = tabState{}
		e.redraw()
	default:
		word := line[result.ReplacementStart:result.ReplacementEnd]
		if len(result.CommonPrefix) > len(word) {
			e.buf.ReplaceRange(result.ReplacementStart, result.ReplacementEnd, result.CommonPrefix)
			e.redraw()
			return
		}
		if e.tab.word == word {
			e.write("\r\n" + strings.Join(result.Completions, "  ") + "\r\n")
			e.tab = tabState{}
			e.redraw()
		} else {
			e.bell()
			e.tab = tabState{word: word}
		}
	}
}

func (e *Editor) bell() { e.write("\a") }

// redraw implements the wrap-aware redraw contract: move up to the
// prompt's first screen row, clear to end of screen, reprint prompt and
// buffer, then reposition the cursor by computing both the buffer's end
// row and the cursor's own row/column under terminal auto-wrap.
func (e *Editor) redraw() {
	cols := e.Cols
	if cols <= 0 {
		cols = 80
	}

	var b strings.Builder
	if e.screenCursorRow > 0 {
		fmt.Fprintf(&b, "\x1b[%dA", e.screenCursorRow)
	}
	b.WriteString("\r\x1b[J")
	b.WriteString(e.Prompt)
	b.WriteString(e.buf.String())

	// Row index under auto-wrap: printing exactly cols*k characters wraps
	// the cursor to row k, which integer division already gives directly.
	totalLen := len(e.Prompt) + e.buf.Len()
	endRow := totalLen / cols

	cursorPos := len(e.Prompt) + e.buf.Cursor()
	desiredRow := cursorPos / cols
	desiredCol := cursorPos % cols

	if endRow > desiredRow {
		fmt.Fprintf(&b, "\x1b[%dA", endRow-desiredRow)
	} else if desiredRow > endRow {
		fmt.Fprintf(&b, "\x1b[%dB", desiredRow-endRow)
	}
	fmt.Fprintf(&b, "\r\x1b[%dC", desiredCol)

	e.screenCursorRow = desiredRow
	e.write(b.String())
}
