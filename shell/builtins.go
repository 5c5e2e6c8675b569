package shell

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/lifosh/lifosh/command"
	"github.com/lifosh/lifosh/job"
	"github.com/lifosh/lifosh/vfs"
)

// ExitRequested is returned by the `exit` builtin to unwind out of the
// interpreter's run loop with a specific exit code; the REPL front-end
// recovers it with errors.As rather than treating it as a failure.
type ExitRequested struct {
	Code int
}

func (e *ExitRequested) Error() string { return fmt.Sprintf("exit %d", e.Code) }

// registerBuiltins installs every builtin command into reg, each closing
// over ip for the cwd/env/alias/job state a plain command.Func can't see.
func registerBuiltins(ip *Interpreter, reg *command.Registry) {
	reg.Register("cd", ip.builtinCd)
	reg.Register("pwd", ip.builtinPwd)
	reg.Register("echo", ip.builtinEcho)
	reg.Register("clear", ip.builtinClear)
	reg.Register("export", ip.builtinExport)
	reg.Register("exit", ip.builtinExit)
	reg.Register("true", func(*command.Context) (int, error) { return 0, nil })
	reg.Register("false", func(*command.Context) (int, error) { return 1, nil })
	reg.Register("jobs", ip.builtinJobs)
	reg.Register("fg", ip.builtinFg)
	reg.Register("bg", ip.builtinBg)
	reg.Register("history", ip.builtinHistory)
	reg.Register("source", ip.builtinSource)
	reg.Register(".", ip.builtinSource)
	reg.Register("alias", ip.builtinAlias)
	reg.Register("unalias", ip.builtinUnalias)
	reg.Register("test", ip.builtinTest)
	reg.Register("[", ip.builtinBracketTest)
	reg.Register("kill", ip.builtinKill)
}

func (ip *Interpreter) builtinCd(ctx *command.Context) (int, error) {
	ip.mu.Lock()
	defer ip.mu.Unlock()

	target := ip.Home
	toOldCwd := false
	switch {
	case len(ctx.Args) == 0:
		// default to Home, already set above
	case ctx.Args[0] == "-":
		target = ip.OldCwd
		toOldCwd = true
	case strings.HasPrefix(ctx.Args[0], "~"):
		target = ip.Home + strings.TrimPrefix(ctx.Args[0], "~")
	default:
		target = ctx.Args[0]
	}
	if !path.IsAbs(target) {
		target = path.Join(ip.Cwd, target)
	}
	target = path.Clean(target)

	st, err := ip.VFS.Stat(target)
	if err != nil {
		fmt.Fprintf(ctx.Stderr, "cd: %s: no such file or directory\n", target)
		return 1, nil
	}
	if st.Type != vfs.TypeDirectory {
		fmt.Fprintf(ctx.Stderr, "cd: %s: not a directory\n", target)
		return 1, nil
	}

	ip.OldCwd = ip.Cwd
	ip.Cwd = target
	ip.Env["PWD"] = target
	if toOldCwd {
		fmt.Fprintln(ctx.Stdout, target)
	}
	return 0, nil
}

func (ip *Interpreter) builtinPwd(ctx *command.Context) (int, error) {
	fmt.Fprintln(ctx.Stdout, ctx.Cwd)
	return 0, nil
}

func (ip *Interpreter) builtinEcho(ctx *command.Context) (int, error) {
	newline := true
	args := ctx.Args
	if len(args) > 0 && args[0] == "-n" {
		newline = false
		args = args[1:]
	}
	fmt.Fprint(ctx.Stdout, strings.Join(args, " "))
	if newline {
		fmt.Fprintln(ctx.Stdout)
	}
	return 0, nil
}

func (ip *Interpreter) builtinClear(ctx *command.Context) (int, error) {
	fmt.Fprint(ctx.Stdout, "\x1b[2J\x1b[H")
	return 0, nil
}

func (ip *Interpreter) builtinExport(ctx *command.Context) (int, error) {
	ip.mu.Lock()
	defer ip.mu.Unlock()

	if len(ctx.Args) == 0 {
		for _, k := range sortedKeys(ip.Env) {
			fmt.Fprintf(ctx.Stdout, "export %s=%s\n", k, ip.Env[k])
		}
		return 0, nil
	}
	for _, arg := range ctx.Args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			continue
		}
		ip.Env[name] = value
	}
	return 0, nil
}

func (ip *Interpreter) builtinExit(ctx *command.Context) (int, error) {
	code := 0
	if len(ctx.Args) > 0 {
		if n, err := strconv.Atoi(ctx.Args[0]); err == nil {
			code = n
		}
	}
	return code, &ExitRequested{Code: code}
}

func (ip *Interpreter) builtinJobs(ctx *command.Context) (int, error) {
	for _, j := range ip.Jobs.List() {
		fmt.Fprintf(ctx.Stdout, "[%d]  %-10s %s\n", j.ID, j.Status, j.Command)
	}
	return 0, nil
}

func (ip *Interpreter) resolveJobArg(args []string) (*job.Job, error) {
	if len(args) == 0 {
		j, ok := ip.Jobs.Most()
		if !ok {
			return nil, fmt.Errorf("no current job")
		}
		return j, nil
	}
	id, err := strconv.Atoi(strings.TrimPrefix(args[0], "%"))
	if err != nil {
		return nil, fmt.Errorf("invalid job id: %s", args[0])
	}
	j, ok := ip.Jobs.Get(id)
	if !ok {
		return nil, fmt.Errorf("no such job: %d", id)
	}
	return j, nil
}

func (ip *Interpreter) builtinFg(ctx *command.Context) (int, error) {
	j, err := ip.resolveJobArg(ctx.Args)
	if err != nil {
		fmt.Fprintf(ctx.Stderr, "fg: %v\n", err)
		return 1, nil
	}
	fmt.Fprintln(ctx.Stdout, j.Command)
	for {
		cur, ok := ip.Jobs.Get(j.ID)
		if !ok || cur.Status == job.Done {
			return 0, nil
		}
		select {
		case <-ctx.Ctx.Done():
			return 130, nil
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func (ip *Interpreter) builtinBg(ctx *command.Context) (int, error) {
	j, err := ip.resolveJobArg(ctx.Args)
	if err != nil {
		fmt.Fprintf(ctx.Stderr, "bg: %v\n", err)
		return 1, nil
	}
	ip.Jobs.SetStatus(j.ID, job.Running)
	fmt.Fprintf(ctx.Stdout, "[%d] %s &\n", j.ID, j.Command)
	return 0, nil
}

func (ip *Interpreter) resolveKillTarget(arg string) (int, error) {
	if strings.HasPrefix(arg, "%") {
		id, err := strconv.Atoi(strings.TrimPrefix(arg, "%"))
		if err != nil {
			return 0, fmt.Errorf("invalid job id: %s", arg)
		}
		j, ok := ip.Jobs.Get(id)
		if !ok {
			return 0, fmt.Errorf("no such job: %d", id)
		}
		return j.PID, nil
	}
	pid, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid pid: %s", arg)
	}
	return pid, nil
}

func (ip *Interpreter) builtinKill(ctx *command.Context) (int, error) {
	args := ctx.Args
	if len(args) == 0 {
		fmt.Fprintln(ctx.Stderr, "kill: usage: kill [-SIGNAL] <pid|%job> ...")
		return 1, nil
	}
	signal := "TERM"
	if strings.HasPrefix(args[0], "-") {
		signal = strings.TrimPrefix(args[0], "-")
		args = args[1:]
	}
	if len(args) == 0 {
		fmt.Fprintln(ctx.Stderr, "kill: usage: kill [-SIGNAL] <pid|%job> ...")
		return 1, nil
	}
	code := 0
	for _, arg := range args {
		pid, err := ip.resolveKillTarget(arg)
		if err != nil {
			fmt.Fprintf(ctx.Stderr, "kill: %v\n", err)
			code = 1
			continue
		}
		if err := ip.Procs.Kill(pid, signal); err != nil {
			fmt.Fprintf(ctx.Stderr, "kill: (%s) - %v\n", arg, err)
			code = 1
		}
	}
	return code, nil
}

func (ip *Interpreter) builtinHistory(ctx *command.Context) (int, error) {
	if ip.History == nil {
		return 0, nil
	}
	for i, line := range ip.History.Entries() {
		fmt.Fprintf(ctx.Stdout, "%5d  %s\n", i+1, line)
	}
	return 0, nil
}

func (ip *Interpreter) builtinSource(ctx *command.Context) (int, error) {
	if len(ctx.Args) == 0 {
		fmt.Fprintln(ctx.Stderr, "source: filename argument required")
		return 1, nil
	}
	target := resolvePath(ctx.Cwd, ctx.Args[0])
	content, err := ip.VFS.ReadFileString(target)
	if err != nil {
		fmt.Fprintf(ctx.Stderr, "source: %s: %v\n", target, err)
		return 1, nil
	}
	code := 0
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		code, err = ip.RunLine(ctx.Ctx, line, nil, ctx.Stdout, ctx.Stderr)
		if err != nil {
			return code, err
		}
	}
	return code, nil
}

func (ip *Interpreter) builtinAlias(ctx *command.Context) (int, error) {
	ip.mu.Lock()
	defer ip.mu.Unlock()

	if len(ctx.Args) == 0 {
		for _, name := range sortedKeys(ip.Aliases) {
			fmt.Fprintf(ctx.Stdout, "alias %s='%s'\n", name, ip.Aliases[name])
		}
		return 0, nil
	}
	for _, arg := range ctx.Args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			if v, exists := ip.Aliases[arg]; exists {
				fmt.Fprintf(ctx.Stdout, "alias %s='%s'\n", arg, v)
			}
			continue
		}
		ip.Aliases[name] = strings.Trim(value, "'\"")
	}
	return 0, nil
}

func (ip *Interpreter) builtinUnalias(ctx *command.Context) (int, error) {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	for _, name := range ctx.Args {
		delete(ip.Aliases, name)
	}
	return 0, nil
}
