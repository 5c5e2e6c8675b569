package shell

import "testing"

func TestParseSimpleCommand(t *testing.T) {
	seq, err := Parse("echo hello world")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(seq.Lists) != 1 {
		t.Fatalf("expected 1 list, got %d", len(seq.Lists))
	}
	cmd := seq.Lists[0].Pipeline.Stages[0]
	if cmd.Name != "echo" || len(cmd.Args) != 2 || cmd.Args[0] != "hello" || cmd.Args[1] != "world" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestParsePipeline(t *testing.T) {
	seq, err := Parse("cat file.txt | grep foo | wc -l")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	stages := seq.Lists[0].Pipeline.Stages
	if len(stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(stages))
	}
	if stages[0].Name != "cat" || stages[1].Name != "grep" || stages[2].Name != "wc" {
		t.Fatalf("unexpected stage names: %+v", stages)
	}
}

func TestParseAndOrShortCircuit(t *testing.T) {
	seq, err := Parse("mkdir foo && cd foo || echo failed")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	head := seq.Lists[0]
	if head.Pipeline.Stages[0].Name != "mkdir" || head.Op != OpAnd {
		t.Fatalf("unexpected head: %+v", head)
	}
	if head.Next.Pipeline.Stages[0].Name != "cd" || head.Next.Op != OpOr {
		t.Fatalf("unexpected second node: %+v", head.Next)
	}
	if head.Next.Next.Pipeline.Stages[0].Name != "echo" || head.Next.Next.Next != nil {
		t.Fatalf("unexpected tail: %+v", head.Next.Next)
	}
}

func TestParseSequenceWithSemicolons(t *testing.T) {
	seq, err := Parse("echo one; echo two; echo three")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(seq.Lists) != 3 {
		t.Fatalf("expected 3 lists, got %d", len(seq.Lists))
	}
	if seq.Lists[1].Pipeline.Stages[0].Args[0] != "two" {
		t.Fatalf("unexpected second list: %+v", seq.Lists[1])
	}
}

func TestParseBackgroundEndsListAndContinuesSequence(t *testing.T) {
	seq, err := Parse("sleep 5 & echo done")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(seq.Lists) != 2 {
		t.Fatalf("expected 2 lists, got %d", len(seq.Lists))
	}
	if !seq.Lists[0].Pipeline.Background {
		t.Fatalf("expected first pipeline backgrounded")
	}
	if seq.Lists[1].Pipeline.Background {
		t.Fatalf("second pipeline should not be backgrounded")
	}
}

func TestParseRedirections(t *testing.T) {
	seq, err := Parse("grep foo < in.txt > out.txt 2>> err.txt")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cmd := seq.Lists[0].Pipeline.Stages[0]
	if len(cmd.Redirects) != 3 {
		t.Fatalf("expected 3 redirects, got %d: %+v", len(cmd.Redirects), cmd.Redirects)
	}
	if cmd.Redirects[0].Kind != RedirInput || cmd.Redirects[0].Target != "in.txt" {
		t.Fatalf("unexpected first redirect: %+v", cmd.Redirects[0])
	}
	if cmd.Redirects[1].Kind != RedirTruncate || cmd.Redirects[1].Target != "out.txt" {
		t.Fatalf("unexpected second redirect: %+v", cmd.Redirects[1])
	}
	if cmd.Redirects[2].Kind != RedirErrAppend || cmd.Redirects[2].Target != "err.txt" {
		t.Fatalf("unexpected third redirect: %+v", cmd.Redirects[2])
	}
}

func TestParseMissingRedirectTargetErrors(t *testing.T) {
	if _, err := Parse("echo foo >"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseEmptyAndOrErrors(t *testing.T) {
	if _, err := Parse("echo foo &&"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseLeadingOperatorErrors(t *testing.T) {
	if _, err := Parse("| echo foo"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseSubshellUnsupported(t *testing.T) {
	if _, err := Parse("(echo foo)"); err == nil {
		t.Fatalf("expected error for subshell grouping")
	}
}

func TestParseEmptyLineYieldsEmptySequence(t *testing.T) {
	seq, err := Parse("   ")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(seq.Lists) != 0 {
		t.Fatalf("expected empty sequence, got %+v", seq)
	}
}
