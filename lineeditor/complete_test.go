package lineeditor

import (
	"testing"

	"github.com/lifosh/lifosh/command"
	"github.com/lifosh/lifosh/vfs"
)

func TestCompleteCommandNameHead(t *testing.T) {
	fs := vfs.New()
	reg := command.NewRegistry()
	reg.Register("greet", func(*command.Context) (int, error) { return 0, nil })
	result := Complete("gr", 2, "/root", nil, fs, reg, []string{"echo", "cd"})
	found := false
	for _, c := range result.Completions {
		if c == "greet" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected greet among completions, got %v", result.Completions)
	}
	if result.ReplacementStart != 0 || result.ReplacementEnd != 2 {
		t.Fatalf("got start=%d end=%d", result.ReplacementStart, result.ReplacementEnd)
	}
}

func TestCompletePathNonHead(t *testing.T) {
	fs := vfs.New()
	if err := fs.Mkdir("/root/projects", true); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fs.WriteFile("/root/project-notes.txt", []byte("x")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	reg := command.NewRegistry()
	result := Complete("cat proj", 8, "/root", nil, fs, reg, nil)
	if len(result.Completions) != 2 {
		t.Fatalf("got %v", result.Completions)
	}
	hasDir := false
	for _, c := range result.Completions {
		if c == "projects/" {
			hasDir = true
		}
	}
	if !hasDir {
		t.Fatalf("expected projects/ among completions, got %v", result.Completions)
	}
}

func TestCommonPrefixComputation(t *testing.T) {
	if got := commonPrefix([]string{"project-a", "project-b", "project-c"}); got != "project-" {
		t.Fatalf("got %q", got)
	}
	if got := commonPrefix([]string{"a", "b"}); got != "" {
		t.Fatalf("got %q", got)
	}
	if got := commonPrefix(nil); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestCurrentWordRange(t *testing.T) {
	start, end := currentWordRange("echo hello world", 7)
	if start != 5 || end != 10 {
		t.Fatalf("got start=%d end=%d", start, end)
	}
}
