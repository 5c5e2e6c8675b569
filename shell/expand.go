package shell

import (
	"path"
	"sort"
	"strings"

	"github.com/lifosh/lifosh/vfs"
)

// Expander resolves the variable, tilde, glob, and command-substitution
// expansions a word can carry before it reaches a command as a plain
// argument. Home and CommandSubst are supplied by the interpreter, since
// they depend on the running process's environment and its ability to
// recursively execute a subshell.
type Expander struct {
	Env  map[string]string
	Cwd  string
	Home string
	VFS  *vfs.FS

	// CommandSubst executes src as a full command sequence and returns its
	// captured standard output, trailing newlines stripped. Nil disables
	// $(...) expansion (it then passes through literally).
	CommandSubst func(src string) (string, error)
}

// ExpandWord applies variable and command-substitution expansion to a
// lexed word, then (unless it was quoted) tilde expansion and globbing,
// returning the resulting argv entries — globbing can turn one word into
// several; expanded values are not word-split.
func (e *Expander) ExpandWord(tok Token) ([]string, error) {
	text := tok.Value
	if !tok.Quoted || tok.DoubleQ {
		var err error
		text, err = e.expandSubstitutions(text)
		if err != nil {
			return nil, err
		}
	}

	if tok.Quoted {
		return []string{text}, nil
	}

	text = e.expandTilde(text)

	if !strings.ContainsAny(text, "*?[") {
		return []string{text}, nil
	}
	matches := e.glob(text)
	if len(matches) == 0 {
		return []string{text}, nil
	}
	return matches, nil
}

// expandSubstitutions resolves $VAR, ${VAR}, and $(...) within text. Plain
// single-quoted words never reach here (ExpandWord skips them entirely);
// double-quoted and unquoted words both go through it.
func (e *Expander) expandSubstitutions(text string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(text); {
		c := text[i]
		if c != '$' {
			b.WriteByte(c)
			i++
			continue
		}
		if i+1 < len(text) && text[i+1] == '(' {
			end := matchParen(text, i+1)
			if end < 0 {
				b.WriteByte(c)
				i++
				continue
			}
			inner := text[i+2 : end]
			if e.CommandSubst == nil {
				b.WriteString(text[i : end+1])
				i = end + 1
				continue
			}
			out, err := e.CommandSubst(inner)
			if err != nil {
				return "", err
			}
			b.WriteString(strings.TrimRight(out, "\n"))
			i = end + 1
			continue
		}
		if i+1 < len(text) && text[i+1] == '{' {
			end := strings.IndexByte(text[i+2:], '}')
			if end < 0 {
				b.WriteByte(c)
				i++
				continue
			}
			name := text[i+2 : i+2+end]
			b.WriteString(e.Env[name])
			i = i + 2 + end + 1
			continue
		}
		name, rest := scanVarName(text[i+1:])
		if name == "" {
			b.WriteByte(c)
			i++
			continue
		}
		b.WriteString(e.Env[name])
		i = len(text) - len(rest)
	}
	return b.String(), nil
}

// scanVarName reads a bare $NAME identifier (letters, digits, underscore,
// not starting with a digit) and returns it plus the unconsumed remainder.
func scanVarName(s string) (name, rest string) {
	n := 0
	for n < len(s) {
		c := s[n]
		isAlnum := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !isAlnum {
			break
		}
		if n == 0 && c >= '0' && c <= '9' {
			break
		}
		n++
	}
	return s[:n], s[n:]
}

// matchParen returns the index of the ')' matching the '(' at open,
// honoring nested parens, or -1 if unterminated.
func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// expandTilde replaces a leading ~ or ~/... with Home.
func (e *Expander) expandTilde(text string) string {
	if text == "~" {
		return e.Home
	}
	if strings.HasPrefix(text, "~/") {
		return e.Home + text[1:]
	}
	return text
}

// glob expands a single pattern word against the directory it names.
// Only the final path component is matched against live VFS entries; the
// directory part is read literally, so pattern characters in it match
// nothing. Patterns that match nothing return no results, leaving the
// caller to fall back to the literal word.
func (e *Expander) glob(pattern string) []string {
	abs := pattern
	if !strings.HasPrefix(abs, "/") {
		abs = path.Join(e.Cwd, abs)
	}
	dir, base := path.Split(abs)
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		dir = "/"
	}

	entries, err := e.VFS.ReadDir(dir)
	if err != nil {
		return nil
	}

	var out []string
	for _, ent := range entries {
		ok, err := path.Match(base, ent.Name)
		if err != nil || !ok {
			continue
		}
		if strings.HasPrefix(ent.Name, ".") && !strings.HasPrefix(base, ".") {
			continue
		}
		full := path.Join(dir, ent.Name)
		if !strings.HasPrefix(pattern, "/") {
			if rel, ok := strings.CutPrefix(full, e.Cwd+"/"); ok {
				full = rel
			} else if full == e.Cwd {
				full = "."
			}
		}
		out = append(out, full)
	}
	sort.Strings(out)
	return out
}
