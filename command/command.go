// Package command implements the name→function registry every shell
// builtin and external command is looked up through: a small surface
// (Register, Lookup, Names) over a plain map, mirroring the node-compat
// registry's lazy-lookup shape but without memoization, since commands are
// stateless functions rather than constructed shim instances.
package command

import (
	"context"
	"io"

	"github.com/lifosh/lifosh/vfs"
)

// Stream is the minimal reader/writer a command's stdio is bound to.
type Stream interface {
	io.Writer
}

// Stdin is the read side of a command's stdio: one buffered chunk at a
// time, or io.EOF when the pipe/terminal closes.
type Stdin interface {
	// Read returns the next available chunk, or (nil, io.EOF) at end of
	// input.
	Read() ([]byte, error)
	// ReadAll drains and returns everything remaining.
	ReadAll() (string, error)
}

// Context is the full execution context passed to every command function:
// args, an environment snapshot, the working directory, the shared VFS,
// stdio streams, and an abort signal scoped to the enclosing pipeline.
type Context struct {
	Args   []string
	Env    map[string]string
	Cwd    string
	VFS    *vfs.FS
	Stdin  Stdin
	Stdout Stream
	Stderr Stream
	Ctx    context.Context
}

// Func is a command's entry point. It resolves with an exit code — 0 for
// success, nonzero for failure — convention matching the builtins.
type Func func(ctx *Context) (int, error)

// Registry maps command name to Func. Registration is name-based; a later
// Register call for the same name overrides the earlier one.
type Registry struct {
	commands map[string]Func
}

// NewRegistry returns an empty command registry.
func NewRegistry() *Registry {
	return &Registry{commands: map[string]Func{}}
}

// Register installs fn under name, replacing any existing registration.
func (r *Registry) Register(name string, fn Func) {
	r.commands[name] = fn
}

// Lookup returns the Func registered under name, if any.
func (r *Registry) Lookup(name string) (Func, bool) {
	fn, ok := r.commands[name]
	return fn, ok
}

// Names lists every registered command name.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.commands))
	for name := range r.commands {
		out = append(out, name)
	}
	return out
}
