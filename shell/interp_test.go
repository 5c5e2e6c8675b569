package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lifosh/lifosh/command"
	"github.com/lifosh/lifosh/job"
	"github.com/lifosh/lifosh/process"
	"github.com/lifosh/lifosh/vfs"
)

func newTestInterpreter(t *testing.T) *Interpreter {
	t.Helper()
	fs := vfs.New()
	if err := fs.Mkdir("/root", true); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	cmds := command.NewRegistry()
	ip := NewInterpreter(fs, cmds, process.NewRegistry(), job.New())
	ip.Cwd = "/root"
	return ip
}

func run(t *testing.T, ip *Interpreter, line string) (string, string, int) {
	t.Helper()
	var stdout, stderr strings.Builder
	code, err := ip.RunLine(context.Background(), line, strings.NewReader(""), &stdout, &stderr)
	if err != nil {
		var exitReq *ExitRequested
		if !errors.As(err, &exitReq) {
			t.Fatalf("RunLine(%q): %v", line, err)
		}
	}
	return stdout.String(), stderr.String(), code
}

func TestEchoBuiltin(t *testing.T) {
	ip := newTestInterpreter(t)
	out, _, code := run(t, ip, "echo hello world")
	if code != 0 || out != "hello world\n" {
		t.Fatalf("got out=%q code=%d", out, code)
	}
}

func TestCdAndPwd(t *testing.T) {
	ip := newTestInterpreter(t)
	if err := ip.VFS.Mkdir("/root/sub", true); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	_, _, code := run(t, ip, "cd sub")
	if code != 0 {
		t.Fatalf("cd failed: code=%d", code)
	}
	out, _, _ := run(t, ip, "pwd")
	if out != "/root/sub\n" {
		t.Fatalf("got %q", out)
	}
}

func TestCdDashReturnsToOldCwd(t *testing.T) {
	ip := newTestInterpreter(t)
	if err := ip.VFS.Mkdir("/root/sub", true); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	run(t, ip, "cd sub")
	out, _, code := run(t, ip, "cd -")
	if code != 0 || strings.TrimSpace(out) != "/root" {
		t.Fatalf("got out=%q code=%d", out, code)
	}
}

func TestCdMissingDirFails(t *testing.T) {
	ip := newTestInterpreter(t)
	_, stderr, code := run(t, ip, "cd /nope")
	if code == 0 || stderr == "" {
		t.Fatalf("expected failure, got code=%d stderr=%q", code, stderr)
	}
}

func TestExportAndVariableExpansion(t *testing.T) {
	ip := newTestInterpreter(t)
	run(t, ip, "export NAME=ada")
	out, _, _ := run(t, ip, "echo hi $NAME")
	if out != "hi ada\n" {
		t.Fatalf("got %q", out)
	}
}

func TestAndOrShortCircuit(t *testing.T) {
	ip := newTestInterpreter(t)
	out, _, code := run(t, ip, "true && echo yes || echo no")
	if code != 0 || out != "yes\n" {
		t.Fatalf("got out=%q code=%d", out, code)
	}
	out, _, code = run(t, ip, "false && echo yes || echo no")
	if code != 0 || out != "no\n" {
		t.Fatalf("got out=%q code=%d", out, code)
	}
}

func TestRedirectionTruncateAndAppend(t *testing.T) {
	ip := newTestInterpreter(t)
	run(t, ip, "echo one > /root/out.txt")
	run(t, ip, "echo two >> /root/out.txt")
	content, err := ip.VFS.ReadFileString("/root/out.txt")
	if err != nil {
		t.Fatalf("ReadFileString: %v", err)
	}
	if content != "one\ntwo\n" {
		t.Fatalf("got %q", content)
	}
}

func TestRedirectionInput(t *testing.T) {
	ip := newTestInterpreter(t)
	if err := ip.VFS.WriteFile("/root/in.txt", []byte("piped content")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	ip.Commands.Register("catstdin", func(ctx *command.Context) (int, error) {
		data, err := ctx.Stdin.ReadAll()
		if err != nil {
			return 1, err
		}
		ctx.Stdout.Write([]byte(data))
		return 0, nil
	})
	out, _, code := run(t, ip, "catstdin < /root/in.txt")
	if code != 0 || out != "piped content" {
		t.Fatalf("got out=%q code=%d", out, code)
	}
}

func TestPipelineConnectsStages(t *testing.T) {
	ip := newTestInterpreter(t)
	ip.Commands.Register("upper", func(ctx *command.Context) (int, error) {
		data, err := ctx.Stdin.ReadAll()
		if err != nil {
			return 1, err
		}
		ctx.Stdout.Write([]byte(strings.ToUpper(data)))
		return 0, nil
	})
	ip.Commands.Register("emit", func(ctx *command.Context) (int, error) {
		ctx.Stdout.Write([]byte("hello"))
		return 0, nil
	})
	out, _, code := run(t, ip, "emit | upper")
	if code != 0 || out != "HELLO" {
		t.Fatalf("got out=%q code=%d", out, code)
	}
}

func TestCommandNotFoundReturns127(t *testing.T) {
	ip := newTestInterpreter(t)
	_, stderr, code := run(t, ip, "nope-command")
	if code != 127 || !strings.Contains(stderr, "command not found") {
		t.Fatalf("got code=%d stderr=%q", code, stderr)
	}
}

func TestAliasExpandsOnceAtHead(t *testing.T) {
	ip := newTestInterpreter(t)
	run(t, ip, "alias ll=echo")
	out, _, code := run(t, ip, "ll hi")
	if code != 0 || out != "hi\n" {
		t.Fatalf("got out=%q code=%d", out, code)
	}
}

func TestExitReturnsSentinel(t *testing.T) {
	ip := newTestInterpreter(t)
	seq, err := Parse("exit 3")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var stdout, stderr strings.Builder
	_, err = ip.RunSequence(context.Background(), seq, nil, &stdout, &stderr)
	var exitReq *ExitRequested
	if !errors.As(err, &exitReq) || exitReq.Code != 3 {
		t.Fatalf("expected ExitRequested{3}, got %v", err)
	}
}

func TestBackgroundPipelineReturnsImmediately(t *testing.T) {
	ip := newTestInterpreter(t)
	ip.Commands.Register("slow", func(ctx *command.Context) (int, error) {
		time.Sleep(30 * time.Millisecond)
		return 0, nil
	})
	out, _, code := run(t, ip, "slow &")
	if code != 0 || !strings.HasPrefix(out, "[1] ") {
		t.Fatalf("got out=%q code=%d", out, code)
	}
	if len(ip.Jobs.List()) != 1 {
		t.Fatalf("expected 1 job registered, got %d", len(ip.Jobs.List()))
	}
}

func TestTestBuiltinFileChecks(t *testing.T) {
	ip := newTestInterpreter(t)
	if err := ip.VFS.WriteFile("/root/f.txt", []byte("x")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, _, code := run(t, ip, "test -f /root/f.txt"); code != 0 {
		t.Fatalf("expected success, got %d", code)
	}
	if _, _, code := run(t, ip, "test -d /root/f.txt"); code == 0 {
		t.Fatalf("expected failure for -d on a file")
	}
	if _, _, code := run(t, ip, "[ -e /root/f.txt ]"); code != 0 {
		t.Fatalf("expected success for [ -e ... ]")
	}
	if _, _, code := run(t, ip, "test 2 -lt 3"); code != 0 {
		t.Fatalf("expected 2 -lt 3 to succeed")
	}
	if _, _, code := run(t, ip, "test foo = bar"); code == 0 {
		t.Fatalf("expected foo = bar to fail")
	}
}

func TestCommandSubstitution(t *testing.T) {
	ip := newTestInterpreter(t)
	ip.Commands.Register("greet", func(ctx *command.Context) (int, error) {
		ctx.Stdout.Write([]byte("world\n"))
		return 0, nil
	})
	out, _, code := run(t, ip, `echo hello $(greet)`)
	if code != 0 || out != "hello world\n" {
		t.Fatalf("got out=%q code=%d", out, code)
	}
}

func TestSingleQuotePreventsExpansion(t *testing.T) {
	ip := newTestInterpreter(t)
	run(t, ip, "export NAME=ada")
	out, _, _ := run(t, ip, `echo '$NAME'`)
	if out != "$NAME\n" {
		t.Fatalf("got %q", out)
	}
}

func TestKillBuiltinByJobIDStopsBackgroundPipeline(t *testing.T) {
	ip := newTestInterpreter(t)
	started := make(chan struct{})
	ip.Commands.Register("spin", func(ctx *command.Context) (int, error) {
		close(started)
		<-ctx.Ctx.Done()
		return 130, ctx.Ctx.Err()
	})
	run(t, ip, "spin &")
	<-started

	jobs := ip.Jobs.List()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}

	_, stderr, code := run(t, ip, fmt.Sprintf("kill %%%d", jobs[0].ID))
	if code != 0 || stderr != "" {
		t.Fatalf("kill failed: code=%d stderr=%q", code, stderr)
	}

	proc, ok := ip.Procs.Get(jobs[0].PID)
	if !ok {
		t.Fatalf("process %d not found after kill", jobs[0].PID)
	}
	select {
	case <-proc.Context().Done():
	case <-time.After(time.Second):
		t.Fatalf("killed process context was never cancelled")
	}
}

func TestKillBuiltinAcceptsBarePID(t *testing.T) {
	ip := newTestInterpreter(t)
	ip.Commands.Register("spin", func(ctx *command.Context) (int, error) {
		<-ctx.Ctx.Done()
		return 130, ctx.Ctx.Err()
	})
	run(t, ip, "spin &")
	jobs := ip.Jobs.List()

	_, _, code := run(t, ip, fmt.Sprintf("kill %d", jobs[0].PID))
	if code != 0 {
		t.Fatalf("expected kill by bare pid to succeed, got code=%d", code)
	}
}

func TestKillBuiltinUnknownJobReportsError(t *testing.T) {
	ip := newTestInterpreter(t)
	_, stderr, code := run(t, ip, "kill %99")
	if code == 0 || !strings.Contains(stderr, "no such job") {
		t.Fatalf("got code=%d stderr=%q", code, stderr)
	}
}

func TestKillBuiltinNoArgsReportsUsage(t *testing.T) {
	ip := newTestInterpreter(t)
	_, stderr, code := run(t, ip, "kill")
	if code != 1 || !strings.Contains(stderr, "usage") {
		t.Fatalf("got code=%d stderr=%q", code, stderr)
	}
}

func TestSourceExecutesEachLine(t *testing.T) {
	ip := newTestInterpreter(t)
	if err := ip.VFS.WriteFile("/root/script.sh", []byte("export X=1\necho got-$X\n")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	out, _, code := run(t, ip, "source /root/script.sh")
	if code != 0 || out != "got-1\n" {
		t.Fatalf("got out=%q code=%d", out, code)
	}
}
