// Package shell implements a Bourne-style interpreter over the in-memory
// virtual filesystem and the process/job registries: a lexer, a recursive
// descent parser, and an interpreter that walks the resulting AST
// expanding words, wiring pipelines through in-process pipes, and
// dispatching each stage through a command.Registry.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/lifosh/lifosh/command"
	"github.com/lifosh/lifosh/job"
	"github.com/lifosh/lifosh/process"
	"github.com/lifosh/lifosh/vfs"
)

// History is the minimal view of command history the `history` builtin
// needs; the line editor owns the concrete implementation and its
// persistence to disk.
type History interface {
	Entries() []string
}

// Interpreter holds everything a running shell session needs across
// commands: the registries it dispatches into, and the mutable state
// (cwd, env, aliases) every builtin reads or writes.
type Interpreter struct {
	mu sync.Mutex

	VFS      *vfs.FS
	Commands *command.Registry
	Procs    *process.Registry
	Jobs     *job.Table
	History  History

	Cwd    string
	OldCwd string
	Env    map[string]string
	Home   string
	PPID   int

	Aliases map[string]string

	LastExitCode int
}

// NewInterpreter wires a fresh interpreter around the given registries and
// registers its builtins into cmds.
func NewInterpreter(fs *vfs.FS, cmds *command.Registry, procs *process.Registry, jobs *job.Table) *Interpreter {
	ip := &Interpreter{
		VFS:      fs,
		Commands: cmds,
		Procs:    procs,
		Jobs:     jobs,
		Cwd:      "/",
		OldCwd:   "/",
		Home:     "/root",
		Env:      map[string]string{"HOME": "/root", "PWD": "/", "SHELL": "/bin/lifosh"},
		Aliases:  map[string]string{},
	}
	registerBuiltins(ip, cmds)
	return ip
}

// RunLine parses and executes one line of input against stdio.
func (ip *Interpreter) RunLine(ctx context.Context, line string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	seq, err := Parse(line)
	if err != nil {
		fmt.Fprintf(stderr, "lifosh: %v\n", err)
		return 2, nil
	}
	return ip.RunSequence(ctx, seq, stdin, stdout, stderr)
}

// RunSequence executes every and-or list in seq in order, short-circuiting
// each chain on && / || as dictated by the preceding pipeline's exit code.
func (ip *Interpreter) RunSequence(ctx context.Context, seq *Sequence, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	code := 0
	for _, node := range seq.Lists {
		for node != nil {
			var err error
			code, err = ip.runPipeline(ctx, node.Pipeline, stdin, stdout, stderr)
			if err != nil {
				return code, err
			}
			for node.Next != nil && ((node.Op == OpAnd && code != 0) || (node.Op == OpOr && code == 0)) {
				node = node.Next
			}
			node = node.Next
		}
	}
	ip.mu.Lock()
	ip.LastExitCode = code
	ip.mu.Unlock()
	return code, nil
}

// captureOutput runs src as a full sequence in a subshell-like scope that
// shares this interpreter's cwd/env/aliases but captures stdout instead of
// writing to the caller's terminal, backing $(...) command substitution.
func (ip *Interpreter) captureOutput(src string) (string, error) {
	var buf bytes.Buffer
	_, err := ip.RunLine(context.Background(), src, strings.NewReader(""), &buf, io.Discard)
	return buf.String(), err
}

func (ip *Interpreter) expander() *Expander {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	env := make(map[string]string, len(ip.Env))
	for k, v := range ip.Env {
		env[k] = v
	}
	return &Expander{
		Env:          env,
		Cwd:          ip.Cwd,
		Home:         ip.Home,
		VFS:          ip.VFS,
		CommandSubst: ip.captureOutput,
	}
}

// runPipeline executes a single pipeline. A backgrounded pipeline is
// registered with the process and job tables and runs asynchronously,
// resolving immediately with exit code 0 (the shell does not wait for it).
func (ip *Interpreter) runPipeline(ctx context.Context, pl *Pipeline, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	if pl.Background {
		return ip.runBackground(pl, stdin, stdout, stderr)
	}
	return ip.runPipelineSync(ctx, pl, stdin, stdout, stderr)
}

func (ip *Interpreter) runBackground(pl *Pipeline, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	result := make(chan process.Result, 1)
	pid := ip.Procs.Spawn(process.SpawnRequest{
		Command:      pipelineLabel(pl),
		Cwd:          ip.Cwd,
		PPID:         ip.PPID,
		IsForeground: false,
		Promise:      result,
	})
	proc, _ := ip.Procs.Get(pid)
	jobID := ip.Jobs.Add(pid, pipelineLabel(pl))
	ip.Procs.SetJobID(pid, jobID)

	go func() {
		code, err := ip.runPipelineSync(proc.Context(), pl, stdin, io.Discard, io.Discard)
		result <- process.Result{ExitCode: code, Err: err}
		status := job.Done
		ip.Jobs.SetStatus(jobID, status)
	}()

	fmt.Fprintf(stdout, "[%d] %d\n", jobID, pid)
	return 0, nil
}

func pipelineLabel(pl *Pipeline) string {
	parts := make([]string, len(pl.Stages))
	for i, s := range pl.Stages {
		parts[i] = s.Name
	}
	return strings.Join(parts, " | ")
}

type stageOutcome struct {
	code int
	err  error
}

// runPipelineSync wires pl.Stages through in-process pipes (stage i's
// stdout feeds stage i+1's stdin) and runs every stage concurrently,
// mirroring how a real shell pipeline's processes run in parallel rather
// than stage-by-stage.
func (ip *Interpreter) runPipelineSync(ctx context.Context, pl *Pipeline, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	n := len(pl.Stages)
	if n == 0 {
		return 0, nil
	}

	readers := make([]io.Reader, n)
	writers := make([]io.WriteCloser, n)
	readers[0] = stdin
	for i := 0; i < n-1; i++ {
		pr, pw := io.Pipe()
		readers[i+1] = pr
		writers[i] = pw
	}

	outcomes := make([]stageOutcome, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		stageOut := stdout
		if writers[i] != nil {
			stageOut = writers[i]
		}
		go func() {
			defer wg.Done()
			if writers[i] != nil {
				defer writers[i].Close()
			}
			outcomes[i].code, outcomes[i].err = ip.runStage(ctx, pl.Stages[i], readers[i], stageOut, stderr)
		}()
	}
	wg.Wait()

	last := outcomes[n-1]
	return last.code, last.err
}

// runStage expands one simple command's name and arguments, applies its
// redirections, and dispatches it through the command registry.
func (ip *Interpreter) runStage(ctx context.Context, sc *SimpleCommand, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	ip.mu.Lock()
	cwd := ip.Cwd
	env := make(map[string]string, len(ip.Env))
	for k, v := range ip.Env {
		env[k] = v
	}
	name := sc.Name
	if expanded, ok := ip.Aliases[name]; ok {
		name = expanded
	}
	ip.mu.Unlock()

	exp := ip.expander()
	args, err := expandArgs(exp, name, sc.Args)
	if err != nil {
		fmt.Fprintf(stderr, "lifosh: %v\n", err)
		return 1, nil
	}
	if len(args) == 0 {
		return 0, nil
	}
	name, args = args[0], args[1:]

	bound, err := applyRedirects(ip.VFS, cwd, sc.Redirects)
	if err != nil {
		fmt.Fprintf(stderr, "lifosh: %v\n", err)
		return 1, nil
	}
	effStdout := stdout
	if bound.stdout != nil {
		effStdout = bound.stdout
	}
	effStderr := stderr
	if bound.stderr != nil {
		effStderr = bound.stderr
	}
	effStdin := io.Reader(stdin)
	if bound.hasIn {
		effStdin = strings.NewReader(bound.stdin)
	}

	fn, ok := ip.Commands.Lookup(name)
	if !ok {
		fmt.Fprintf(effStderr, "lifosh: %s: command not found\n", name)
		flushRedirects(ip.VFS, cwd, sc.Redirects, bound)
		return 127, nil
	}

	cctx := &command.Context{
		Args:   args,
		Env:    env,
		Cwd:    cwd,
		VFS:    ip.VFS,
		Stdin:  &readerStdin{r: bufReader(effStdin)},
		Stdout: effStdout,
		Stderr: effStderr,
		Ctx:    ctx,
	}
	code, err := fn(cctx)
	if flushErr := flushRedirects(ip.VFS, cwd, sc.Redirects, bound); flushErr != nil && err == nil {
		err = flushErr
	}
	return code, err
}

// expandArgs applies word expansion to a command's name and argument
// words, flattening any glob matches into additional argv entries.
func expandArgs(exp *Expander, name string, rest []string) ([]string, error) {
	words, err := exp.ExpandWord(Token{Value: name})
	if err != nil {
		return nil, err
	}
	for _, r := range rest {
		more, err := exp.ExpandWord(Token{Value: r})
		if err != nil {
			return nil, err
		}
		words = append(words, more...)
	}
	return words, nil
}

// sortedKeys is a small helper shared by builtins that print maps in a
// stable order (export, alias).
func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
