package lineeditor

import (
	"path"
	"sort"
	"strings"

	"github.com/posener/complete"

	"github.com/lifosh/lifosh/command"
	"github.com/lifosh/lifosh/vfs"
)

// CompletionResult is what a completion pass returns to the editor: the
// candidate set plus the [replacementStart, replacementEnd) span of the
// line they replace, and the longest prefix shared by all candidates (the
// text a single Tab press can safely insert even with many matches).
type CompletionResult struct {
	Completions      []string
	ReplacementStart int
	ReplacementEnd   int
	CommonPrefix     string
}

// Complete resolves tab completion for line at cursorPos: command-name
// completion in the first word, VFS path completion everywhere else.
// Candidate sets are built with complete.PredictSet, reused here outside its
// usual CLI-flag-completion role, and filtered by the word's prefix.
func Complete(line string, cursorPos int, cwd string, env map[string]string, fs *vfs.FS, registry *command.Registry, builtinNames []string) CompletionResult {
	start, end := currentWordRange(line, cursorPos)
	word := line[start:end]
	atHead := strings.TrimLeft(line[:start], " \t") == ""

	var candidates []string
	if atHead {
		candidates = completeCommandName(word, registry, builtinNames)
	} else {
		candidates = completePath(word, cwd, fs)
	}

	sort.Strings(candidates)
	return CompletionResult{
		Completions:     candidates,
		ReplacementStart: start,
		ReplacementEnd:   end,
		CommonPrefix:     commonPrefix(candidates),
	}
}

func completeCommandName(word string, registry *command.Registry, builtinNames []string) []string {
	names := append([]string{}, builtinNames...)
	names = append(names, registry.Names()...)
	predictor := complete.PredictSet(names...)
	var out []string
	for _, n := range predictor.Predict(complete.Args{Last: word}) {
		if strings.HasPrefix(n, word) {
			out = append(out, n)
		}
	}
	return out
}

// completePath splits word into a directory part and a basename prefix,
// lists the directory's VFS entries, and filters by that prefix.
func completePath(word, cwd string, fs *vfs.FS) []string {
	dirPart, basePart := path.Split(word)
	lookupDir := dirPart
	if lookupDir == "" {
		lookupDir = "."
	}
	abs := lookupDir
	if !path.IsAbs(abs) {
		abs = path.Join(cwd, lookupDir)
	}

	entries, err := fs.ReadDir(abs)
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))
	isDir := map[string]bool{}
	for _, e := range entries {
		names = append(names, e.Name)
		isDir[e.Name] = e.Type == vfs.TypeDirectory
	}

	predictor := complete.PredictSet(names...)
	matches := predictor.Predict(complete.Args{Last: basePart})

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if !strings.HasPrefix(m, basePart) {
			continue
		}
		full := dirPart + m
		if isDir[m] {
			full += "/"
		}
		out = append(out, full)
	}
	return out
}

// currentWordRange finds the [start,end) span of the whitespace-delimited
// word containing cursorPos.
func currentWordRange(line string, cursorPos int) (int, int) {
	if cursorPos > len(line) {
		cursorPos = len(line)
	}
	start := cursorPos
	for start > 0 && line[start-1] != ' ' && line[start-1] != '\t' {
		start--
	}
	end := cursorPos
	for end < len(line) && line[end] != ' ' && line[end] != '\t' {
		end++
	}
	return start, end
}

// commonPrefix returns the longest prefix shared by every string in ss.
func commonPrefix(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	prefix := ss[0]
	for _, s := range ss[1:] {
		i := 0
		for i < len(prefix) && i < len(s) && prefix[i] == s[i] {
			i++
		}
		prefix = prefix[:i]
		if prefix == "" {
			break
		}
	}
	return prefix
}
