package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/lifosh/lifosh"
	"github.com/lifosh/lifosh/job"
	"github.com/lifosh/lifosh/lineeditor"
)

// ReplCmd starts an interactive shell session against a freshly constructed
// Kernel, reading keystrokes from stdin and driving a lineeditor.Editor the
// way a real terminal front end would.
type ReplCmd struct {
	Cwd string `default:"/home/user" placeholder:"<path>" help:"starting working directory inside the virtual filesystem"`
}

func (c *ReplCmd) Run(cctx *Context) error {
	kernel := lifosh.NewKernel()
	if err := kernel.VFS().Mkdir(c.Cwd, true); err != nil {
		return fmt.Errorf("creating starting directory: %w", err)
	}
	history := lineeditor.NewHistory(kernel.VFS(), c.Cwd, 1000)
	sess := kernel.NewSession(history)
	sess.Interp.Cwd = c.Cwd

	cols := 80
	raw := isatty.IsTerminal(os.Stdin.Fd())
	var restore func()
	if raw {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			cols = w
		}
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("entering raw terminal mode: %w", err)
		}
		restore = func() { term.Restore(int(os.Stdin.Fd()), oldState) }
		defer restore()
	}

	ed := lineeditor.NewEditor(cols, promptFor(sess), kernel.VFS(), sess.Cmds, builtinNames(sess), history, func(s string) {
		fmt.Fprint(os.Stdout, s)
	})
	ed.Redraw()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	feedCtx := lineeditor.FeedContext{
		OnSubmit: func(line string) {
			runSubmittedLine(ctx, sess, line)
			ed.Prompt = promptFor(sess)
		},
		OnEOF: func() { close(done) },
	}

	if raw {
		return readRawLoop(os.Stdin, ed, &feedCtx, sess, done)
	}
	return readLineLoop(os.Stdin, ed, &feedCtx, sess, done)
}

func promptFor(sess *lifosh.Session) string {
	return sess.Interp.Cwd + " $ "
}

func builtinNames(sess *lifosh.Session) []string {
	return append([]string{"cd", "pwd", "echo", "clear", "export", "exit", "jobs", "fg", "bg", "history", "source", "alias", "unalias", "test", "kill", "node"}, sess.Cmds.Names()...)
}

// collectAndReportDone runs the zombie/done-job reap that a real shell
// performs at the top of every prompt cycle, printing a "[n]+ Done cmd" line
// to w for each job that finished since the last prompt was drawn.
func collectAndReportDone(sess *lifosh.Session, w io.Writer) {
	sess.Interp.Procs.CollectZombies()
	for _, j := range sess.Interp.Jobs.DrainDone() {
		fmt.Fprintln(w, job.FormatDoneLine(j))
	}
}

func runSubmittedLine(ctx context.Context, sess *lifosh.Session, line string) {
	collectAndReportDone(sess, os.Stdout)
	stdin := os.Stdin
	_, err := sess.Interp.RunLine(ctx, line, stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lifosh: %v\n", err)
	}
}

func readRawLoop(in *os.File, ed *lineeditor.Editor, feedCtx *lineeditor.FeedContext, sess *lifosh.Session, done chan struct{}) error {
	buf := make([]byte, 256)
	for {
		select {
		case <-done:
			return nil
		default:
		}
		n, err := in.Read(buf)
		if err != nil {
			return nil
		}
		feedCtx.Cwd = sess.Interp.Cwd
		feedCtx.Env = sess.Interp.Env
		ed.Feed(string(buf[:n]), *feedCtx)
	}
}

func readLineLoop(in *os.File, ed *lineeditor.Editor, feedCtx *lineeditor.FeedContext, sess *lifosh.Session, done chan struct{}) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case <-done:
			return nil
		default:
		}
		feedCtx.Cwd = sess.Interp.Cwd
		feedCtx.Env = sess.Interp.Env
		ed.Feed(scanner.Text(), *feedCtx)
		ed.Feed("\r", *feedCtx)
	}
	return scanner.Err()
}
