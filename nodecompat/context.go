// Package nodecompat provides one small shim package per Node.js builtin
// module the runtime needs to support, following a one-interface-per-concern
// style: a small surface, one implementation, a constructor function,
// injected rather than looked up globally.
package nodecompat

import (
	"github.com/dop251/goja"

	"github.com/lifosh/lifosh/httpplane"
	"github.com/lifosh/lifosh/vfs"
)

// Stream is the minimal writer every shim's stdout/stderr target implements,
// matching the shell's ExecContext stream interfaces.
type Stream interface {
	Write(p string) (n int, err error)
}

// Context is the bundle of ambient values every
// shim factory closes over. The executor keeps one base Context per node
// command and hands each module (and each builtin lookup) a copy with its
// own Cwd, Filename and Dirname; shells are independent but share the
// kernel's VFS and port registry.
type Context struct {
	VFS          *vfs.FS
	Cwd          string
	Env          map[string]string
	Stdout       Stream
	Stderr       Stream
	Argv         []string
	Filename     string
	Dirname      string
	PID          int
	Signal       <-chan struct{}
	PortRegistry *httpplane.Registry

	// Runtime is the goja VM the shim values are bound into. Shims that
	// need to construct goja.Value objects (not just Go functions, which
	// goja wraps automatically) use this.
	Runtime *goja.Runtime

	// Require resolves and executes specifier as seen from fromDir,
	// returning its exports. The executor installs this after constructing
	// Context, giving the `module` shim's createRequire(filename) a way to
	// call back into module resolution without nodecompat importing
	// noderuntime (which would be circular).
	Require func(specifier, fromDir string) (goja.Value, error)

	// BuiltinNames lists every registered builtin shim name, for
	// `module.builtinModules`.
	BuiltinNames []string
}

// Factory builds a shim's exported value for ctx.
type Factory func(ctx *Context) goja.Value

// Registry is the builtin-name → Factory map the module resolver consults
// first in its resolution order. Instances are memoized lazily per
// Registry, keyed by name only: a shim closes over the Context it was
// first requested with.
type Registry struct {
	factories map[string]Factory
	cache     map[string]goja.Value
}

// NewRegistry builds the standard builtin set.
func NewRegistry() *Registry {
	r := &Registry{
		factories: map[string]Factory{},
		cache:     map[string]goja.Value{},
	}
	r.Register("fs", NewFS)
	r.Register("path", NewPath)
	r.Register("os", NewOS)
	r.Register("process", NewProcess)
	r.Register("http", NewHTTP)
	r.Register("dns", NewDNS)
	r.Register("module", NewModule)
	r.Register("buffer", NewBuffer)
	r.Register("events", NewEvents)
	r.Register("stream", NewStream)
	r.Register("url", NewURL)
	r.Register("querystring", NewQuerystring)
	r.Register("crypto", NewCrypto)
	r.Register("util", NewUtil)
	r.Register("console", NewConsole)
	return r
}

// Register installs or overrides the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Has reports whether name is a known builtin.
func (r *Registry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

// Names lists every builtin module name, used for `module.builtinModules`.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	return out
}

// Get returns the (lazily constructed, then memoized) shim value for name.
func (r *Registry) Get(name string, ctx *Context) (goja.Value, bool) {
	if v, ok := r.cache[name]; ok {
		return v, true
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	v := factory(ctx)
	r.cache[name] = v
	return v, true
}
