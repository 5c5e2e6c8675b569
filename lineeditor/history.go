package lineeditor

import (
	"strconv"
	"strings"

	"github.com/lifosh/lifosh/vfs"
)

// historyFileName is where history persists, relative to the user's home
// directory (spec: `~/.lifo_history`).
const historyFileName = ".lifo_history"

// History holds the last N submitted lines and a browse cursor for
// Up/Down navigation, persisted to the VFS.
type History struct {
	vfs     *vfs.FS
	path    string
	maxSize int
	entries []string
	cursor  int    // index into entries while browsing; len(entries) means "not browsing"
	saved   string // buffer contents saved when browsing starts
}

// NewHistory loads existing history from home/.lifo_history, if present,
// capping retained entries at maxSize.
func NewHistory(fs *vfs.FS, home string, maxSize int) *History {
	if maxSize <= 0 {
		maxSize = 1000
	}
	h := &History{vfs: fs, path: home + "/" + historyFileName, maxSize: maxSize}
	if content, err := fs.ReadFileString(h.path); err == nil {
		for _, line := range strings.Split(content, "\n") {
			if line != "" {
				h.entries = append(h.entries, line)
			}
		}
	}
	h.cursor = len(h.entries)
	return h
}

// Entries returns every retained history line, oldest first.
func (h *History) Entries() []string {
	return append([]string{}, h.entries...)
}

// Add appends line to history (skipping blanks and immediate repeats),
// persists the trimmed list, and resets the browse cursor to the end.
func (h *History) Add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if len(h.entries) > 0 && h.entries[len(h.entries)-1] == line {
		h.cursor = len(h.entries)
		return
	}
	h.entries = append(h.entries, line)
	if len(h.entries) > h.maxSize {
		h.entries = h.entries[len(h.entries)-h.maxSize:]
	}
	h.cursor = len(h.entries)
	h.persist()
}

func (h *History) persist() {
	_ = h.vfs.WriteFile(h.path, []byte(strings.Join(h.entries, "\n")+"\n"))
}

// Prev moves the browse cursor back one entry (Up arrow), returning the
// entry text and whether it moved. current is the live buffer contents,
// saved the first time browsing starts so Down can return to it.
func (h *History) Prev(current string) (string, bool) {
	if len(h.entries) == 0 || h.cursor == 0 {
		return "", false
	}
	if h.cursor == len(h.entries) {
		h.saved = current
	}
	h.cursor--
	return h.entries[h.cursor], true
}

// Next moves the browse cursor forward one entry (Down arrow), returning
// to the saved live buffer once the cursor reaches the end.
func (h *History) Next() (string, bool) {
	if h.cursor >= len(h.entries) {
		return "", false
	}
	h.cursor++
	if h.cursor == len(h.entries) {
		return h.saved, true
	}
	return h.entries[h.cursor], true
}

// ResetBrowse returns the cursor to "not browsing" — called once a line is
// submitted.
func (h *History) ResetBrowse() {
	h.cursor = len(h.entries)
}

// Expand resolves classic `!!` (the previous command) and `!n` (the nth
// command, 1-based) references at the start of line. A line with no `!`
// reference, or one that can't be resolved, is returned unchanged.
func (h *History) Expand(line string) string {
	if !strings.HasPrefix(line, "!") {
		return line
	}
	rest := line[1:]
	if rest == "!" {
		if len(h.entries) == 0 {
			return line
		}
		return h.entries[len(h.entries)-1]
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || n > len(h.entries) {
		return line
	}
	return h.entries[n-1]
}
