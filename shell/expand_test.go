package shell

import (
	"fmt"
	"testing"

	"github.com/lifosh/lifosh/vfs"
)

func newExpander(t *testing.T) (*Expander, *vfs.FS) {
	t.Helper()
	fs := vfs.New()
	if err := fs.Mkdir("/home/user", true); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	return &Expander{
		Env:  map[string]string{"USER": "ada", "GREETING": "hello"},
		Cwd:  "/home/user",
		Home: "/home/user",
		VFS:  fs,
	}, fs
}

func TestExpandBareVariable(t *testing.T) {
	e, _ := newExpander(t)
	out, err := e.expandSubstitutions("hi $USER!")
	if err != nil {
		t.Fatalf("expandSubstitutions: %v", err)
	}
	if out != "hi ada!" {
		t.Fatalf("got %q", out)
	}
}

func TestExpandBracedVariable(t *testing.T) {
	e, _ := newExpander(t)
	out, err := e.expandSubstitutions("${USER}_suffix")
	if err != nil {
		t.Fatalf("expandSubstitutions: %v", err)
	}
	if out != "ada_suffix" {
		t.Fatalf("got %q", out)
	}
}

func TestExpandUndefinedVariableIsEmpty(t *testing.T) {
	e, _ := newExpander(t)
	out, err := e.expandSubstitutions("[$NOPE]")
	if err != nil {
		t.Fatalf("expandSubstitutions: %v", err)
	}
	if out != "[]" {
		t.Fatalf("got %q", out)
	}
}

func TestExpandCommandSubstitution(t *testing.T) {
	e, _ := newExpander(t)
	e.CommandSubst = func(src string) (string, error) {
		return fmt.Sprintf("ran(%s)\n", src), nil
	}
	out, err := e.expandSubstitutions("result: $(echo hi)")
	if err != nil {
		t.Fatalf("expandSubstitutions: %v", err)
	}
	if out != "result: ran(echo hi)" {
		t.Fatalf("got %q", out)
	}
}

func TestExpandTilde(t *testing.T) {
	e, _ := newExpander(t)
	if got := e.expandTilde("~"); got != "/home/user" {
		t.Fatalf("got %q", got)
	}
	if got := e.expandTilde("~/docs"); got != "/home/user/docs" {
		t.Fatalf("got %q", got)
	}
	if got := e.expandTilde("notilde"); got != "notilde" {
		t.Fatalf("got %q", got)
	}
}

func TestExpandWordSingleQuotedSkipsAll(t *testing.T) {
	e, _ := newExpander(t)
	out, err := e.ExpandWord(Token{Value: "$USER/*", Quoted: true})
	if err != nil {
		t.Fatalf("ExpandWord: %v", err)
	}
	if len(out) != 1 || out[0] != "$USER/*" {
		t.Fatalf("got %v", out)
	}
}

func TestExpandWordGlobMatchesFiles(t *testing.T) {
	e, fs := newExpander(t)
	if err := fs.WriteFile("/home/user/a.txt", []byte("x")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := fs.WriteFile("/home/user/b.txt", []byte("y")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := fs.WriteFile("/home/user/c.md", []byte("z")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out, err := e.ExpandWord(Token{Value: "*.txt"})
	if err != nil {
		t.Fatalf("ExpandWord: %v", err)
	}
	if len(out) != 2 || out[0] != "a.txt" || out[1] != "b.txt" {
		t.Fatalf("got %v", out)
	}
}

func TestExpandWordGlobNoMatchFallsBackToLiteral(t *testing.T) {
	e, _ := newExpander(t)
	out, err := e.ExpandWord(Token{Value: "*.nope"})
	if err != nil {
		t.Fatalf("ExpandWord: %v", err)
	}
	if len(out) != 1 || out[0] != "*.nope" {
		t.Fatalf("got %v", out)
	}
}
