// Package lifosh is the composition root of the virtual operating system:
// it owns the in-memory filesystem, the port registry, and the process and
// job tables, and wires a shell session (with its own command registry) or
// a Node runtime invocation on demand. Nothing in this package reaches for a package-level
// global — every dependency is constructor-injected, the same discipline
// the sandbox manager this module grew out of already followed.
package lifosh

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dop251/goja"

	"github.com/lifosh/lifosh/command"
	"github.com/lifosh/lifosh/httpplane"
	"github.com/lifosh/lifosh/job"
	"github.com/lifosh/lifosh/nodecompat"
	"github.com/lifosh/lifosh/noderuntime"
	"github.com/lifosh/lifosh/process"
	"github.com/lifosh/lifosh/shell"
	"github.com/lifosh/lifosh/vfs"
)

// Kernel is the single shared owner of every virtual-OS subsystem. Every
// shell session and every `node` invocation it spawns reads and writes
// through this one instance, the way Boxer is the sandbox manager's one
// shared owner of its sqlDB/queries/provisioner.
type Kernel struct {
	mu sync.Mutex

	vfs     *vfs.FS
	ports   *httpplane.Registry
	procs   *process.Registry
	jobs    *job.Table
	logger  *slog.Logger
	nextPID int
}

// KernelOption configures a Kernel at construction time.
type KernelOption func(*Kernel)

// WithLogger overrides the kernel's logger, which otherwise defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) KernelOption {
	return func(k *Kernel) { k.logger = logger }
}

// WithVFS seeds the kernel with a pre-populated filesystem instead of a
// fresh vfs.New(), for tests that want fixture files already in place.
func WithVFS(fs *vfs.FS) KernelOption {
	return func(k *Kernel) { k.vfs = fs }
}

// NewKernel constructs a Kernel with a fresh VFS, port registry, process
// registry, and job table, applying any options over those defaults.
func NewKernel(opts ...KernelOption) *Kernel {
	k := &Kernel{
		ports:  httpplane.NewRegistry(),
		procs:  process.NewRegistry(),
		jobs:   job.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.vfs == nil {
		k.vfs = vfs.New()
	}
	return k
}

// VFS returns the kernel's shared filesystem.
func (k *Kernel) VFS() *vfs.FS { return k.vfs }

// Ports returns the kernel's shared virtual HTTP port registry.
func (k *Kernel) Ports() *httpplane.Registry { return k.ports }

// Processes returns the kernel's shared process table.
func (k *Kernel) Processes() *process.Registry { return k.procs }

// Jobs returns the kernel's shared job table.
func (k *Kernel) Jobs() *job.Table { return k.jobs }

// Session is one shell session bound to the kernel's shared subsystems: its
// own command registry, environment, and cwd, but the kernel's VFS, ports,
// processes, and jobs.
type Session struct {
	Interp *shell.Interpreter
	Cmds   *command.Registry
}

// NewSession starts a shell session against the kernel and registers a
// `node` builtin that runs a script through the Node-compatible runtime,
// sharing this session's VFS/ports/process/job wiring.
func (k *Kernel) NewSession(history shell.History) *Session {
	cmds := command.NewRegistry()
	interp := shell.NewInterpreter(k.vfs, cmds, k.procs, k.jobs)
	interp.History = history
	sess := &Session{Interp: interp, Cmds: cmds}
	cmds.Register("node", k.nodeBuiltin())
	return sess
}

// nodeBuiltin returns a command.Func that runs a script file through a
// fresh goja.Runtime/nodecompat.Registry/noderuntime.Executor triple, one
// per invocation, matching the interpreter's model of commands as stateless
// functions rather than long-lived processes with their own VM.
func (k *Kernel) nodeBuiltin() command.Func {
	return func(ctx *command.Context) (int, error) {
		args := ctx.Args
		if len(args) >= 1 && (args[0] == "-e" || args[0] == "--eval") {
			if len(args) < 2 {
				fmt.Fprintf(ctx.Stderr, "node: %s requires an argument\n", args[0])
				return 1, nil
			}
			exec := k.newExecutor(ctx)
			code, err := exec.RunSource(args[1], args[2:])
			if err != nil {
				fmt.Fprintf(ctx.Stderr, "node: %v\n", err)
				return 1, nil
			}
			return code, nil
		}

		if len(args) < 1 {
			fmt.Fprintln(ctx.Stderr, "node: missing script operand")
			return 1, nil
		}
		entry := args[0]
		if entry != "" && entry[0] != '/' {
			entry = resolveAgainstCwd(ctx.Cwd, entry)
		}

		exec := k.newExecutor(ctx)
		code, err := exec.Run(entry, args[1:])
		if err != nil {
			fmt.Fprintf(ctx.Stderr, "node: %v\n", err)
			return 1, nil
		}
		return code, nil
	}
}

// newExecutor builds a fresh goja.Runtime/nodecompat.Registry/noderuntime.Executor
// triple for one `node` invocation, shared by both the file and `-e`/`--eval`
// entry points.
func (k *Kernel) newExecutor(ctx *command.Context) *noderuntime.Executor {
	vm := goja.New()
	builtins := nodecompat.NewRegistry()
	base := &nodecompat.Context{
		VFS:          k.vfs,
		Cwd:          ctx.Cwd,
		Env:          ctx.Env,
		Stdout:       writerStream{ctx.Stdout},
		Stderr:       writerStream{ctx.Stderr},
		PortRegistry: k.ports,
	}
	return noderuntime.NewExecutor(vm, k.vfs, builtins, k.ports, base)
}

func resolveAgainstCwd(cwd, p string) string {
	if cwd == "" {
		cwd = "/"
	}
	if cwd == "/" {
		return "/" + p
	}
	return cwd + "/" + p
}

// writerStream adapts a command.Stream (io.Writer with our narrower
// signature) to nodecompat.Stream's Write(p string) (int, error) shape.
type writerStream struct {
	w io.Writer
}

func (s writerStream) Write(p string) (int, error) {
	return s.w.Write([]byte(p))
}
