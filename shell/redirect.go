package shell

import (
	"bytes"
	"fmt"
	"path"

	"github.com/lifosh/lifosh/vfs"
)

// boundStreams is the resolved set of I/O destinations a single stage in a
// pipeline writes to and reads from, after redirections have been applied
// on top of whatever the pipeline itself wired up (a peer stage's pipe, or
// the top-level shell's stdio).
type boundStreams struct {
	stdout *bytes.Buffer // non-nil when a redirect captures stdout into a file
	stderr *bytes.Buffer // non-nil when a redirect captures stderr into a file
	stdin  string        // non-nil content when a redirect replaces stdin
	hasIn  bool
}

// applyRedirects opens/reads whatever a command's redirection list names.
// File targets are resolved relative to cwd. Output redirects are buffered
// in memory and flushed to the VFS by the caller once the command exits,
// since vfs.FS exposes whole-file writes rather than a streaming handle.
func applyRedirects(fs *vfs.FS, cwd string, redirects []Redirect) (*boundStreams, error) {
	b := &boundStreams{}
	for _, r := range redirects {
		switch r.Kind {
		case RedirTruncate:
			b.stdout = &bytes.Buffer{}
		case RedirAppend:
			if b.stdout == nil {
				b.stdout = &bytes.Buffer{}
			}
			if existing, err := fs.ReadFile(resolvePath(cwd, r.Target)); err == nil {
				b.stdout.Write(existing)
			}
		case RedirErrTruncate:
			b.stderr = &bytes.Buffer{}
		case RedirErrAppend:
			if b.stderr == nil {
				b.stderr = &bytes.Buffer{}
			}
			if existing, err := fs.ReadFile(resolvePath(cwd, r.Target)); err == nil {
				b.stderr.Write(existing)
			}
		case RedirBoth:
			buf := &bytes.Buffer{}
			b.stdout = buf
			b.stderr = buf
		case RedirInput:
			content, err := fs.ReadFileString(resolvePath(cwd, r.Target))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", r.Target, err)
			}
			b.stdin = content
			b.hasIn = true
		default:
			return nil, fmt.Errorf("unsupported redirection")
		}
	}
	return b, nil
}

// flushRedirects writes any buffered output redirects to the VFS. Append
// redirects were pre-seeded with the file's existing contents in
// applyRedirects, so every flush here is a plain (re)write.
func flushRedirects(fs *vfs.FS, cwd string, redirects []Redirect, b *boundStreams) error {
	for _, r := range redirects {
		switch r.Kind {
		case RedirTruncate, RedirAppend:
			if err := fs.WriteFile(resolvePath(cwd, r.Target), b.stdout.Bytes()); err != nil {
				return err
			}
		case RedirErrTruncate, RedirErrAppend:
			if err := fs.WriteFile(resolvePath(cwd, r.Target), b.stderr.Bytes()); err != nil {
				return err
			}
		case RedirBoth:
			if err := fs.WriteFile(resolvePath(cwd, r.Target), b.stdout.Bytes()); err != nil {
				return err
			}
		}
	}
	return nil
}

func resolvePath(cwd, p string) string {
	if path.IsAbs(p) {
		return p
	}
	return path.Join(cwd, p)
}
