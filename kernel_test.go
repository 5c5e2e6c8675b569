package lifosh

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type noopHistory struct{}

func (noopHistory) Entries() []string { return nil }

func newTestSession(t *testing.T) *Session {
	t.Helper()
	k := NewKernel()
	if err := k.VFS().Mkdir("/root", true); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	sess := k.NewSession(noopHistory{})
	sess.Interp.Cwd = "/root"
	return sess
}

func runLine(t *testing.T, sess *Session, line string) (string, string, int) {
	t.Helper()
	var stdout, stderr strings.Builder
	code, err := sess.Interp.RunLine(context.Background(), line, strings.NewReader(""), &stdout, &stderr)
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Logf("RunLine(%q) returned err: %v", line, err)
	}
	return stdout.String(), stderr.String(), code
}

func TestSessionSharesVFSAcrossShellCommands(t *testing.T) {
	sess := newTestSession(t)
	runLine(t, sess, "echo hi > out.txt")
	out, _, _ := runLine(t, sess, "cat out.txt")
	if out != "hi\n" {
		t.Fatalf("got %q", out)
	}
}

func TestNodeBuiltinRunsScriptAgainstSharedVFS(t *testing.T) {
	sess := newTestSession(t)
	script := `const fs = require('fs'); fs.writeFileSync('/root/from-node.txt', 'hello from node');`
	if err := sess.Interp.VFS.WriteFile("/root/script.js", []byte(script)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, stderr, code := runLine(t, sess, "node script.js")
	if code != 0 {
		t.Fatalf("node script.js failed: code=%d stderr=%q", code, stderr)
	}
	content, err := sess.Interp.VFS.ReadFileString("/root/from-node.txt")
	if err != nil {
		t.Fatalf("ReadFileString: %v", err)
	}
	if content != "hello from node" {
		t.Fatalf("got %q", content)
	}
}

func TestNodeBuiltinMissingOperandReportsError(t *testing.T) {
	sess := newTestSession(t)
	_, stderr, code := runLine(t, sess, "node")
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr, "missing script operand") {
		t.Fatalf("got stderr %q", stderr)
	}
}

func TestNodeBuiltinEvalRunsInlineScript(t *testing.T) {
	sess := newTestSession(t)
	out, stderr, code := runLine(t, sess, `node -e 'console.log(require("path").join("/a","b"))'`)
	if code != 0 {
		t.Fatalf("node -e failed: code=%d stderr=%q", code, stderr)
	}
	if out != "/a/b\n" {
		t.Fatalf("got %q", out)
	}
}

func TestNodeBuiltinEvalProcessExit(t *testing.T) {
	sess := newTestSession(t)
	_, _, code := runLine(t, sess, `node -e 'process.exit(42)'`)
	if code != 42 {
		t.Fatalf("expected exit code 42, got %d", code)
	}
}

func TestNodeBuiltinEvalMissingArgumentReportsError(t *testing.T) {
	sess := newTestSession(t)
	_, stderr, code := runLine(t, sess, "node -e")
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr, "requires an argument") {
		t.Fatalf("got stderr %q", stderr)
	}
}

func TestTwoSessionsShareKernelVFS(t *testing.T) {
	k := NewKernel()
	if err := k.VFS().Mkdir("/root", true); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	s1 := k.NewSession(noopHistory{})
	s1.Interp.Cwd = "/root"
	s2 := k.NewSession(noopHistory{})
	s2.Interp.Cwd = "/root"

	runLine(t, s1, "echo from-session-one > shared.txt")
	out, _, _ := runLine(t, s2, "cat shared.txt")
	if out != "from-session-one\n" {
		t.Fatalf("got %q", out)
	}
}
