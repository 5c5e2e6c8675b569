package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lifosh/lifosh"
)

// RunCmd runs a single script file non-interactively against a freshly
// constructed Kernel: a `.sh` file through the shell interpreter, anything
// else through the `node` builtin.
type RunCmd struct {
	Script string   `arg:"" help:"path to a script file on the host filesystem to load into the virtual filesystem and run"`
	Args   []string `arg:"" optional:"" passthrough:"" help:"arguments passed to the script"`
}

func (c *RunCmd) Run(cctx *Context) error {
	data, err := os.ReadFile(c.Script)
	if err != nil {
		return fmt.Errorf("reading script: %w", err)
	}

	kernel := lifosh.NewKernel()
	if err := kernel.VFS().Mkdir("/home/user", true); err != nil {
		return err
	}
	vPath := filepath.Join("/home/user", filepath.Base(c.Script))
	if err := kernel.VFS().WriteFile(vPath, data); err != nil {
		return fmt.Errorf("loading script into virtual filesystem: %w", err)
	}

	sess := kernel.NewSession(nil)
	sess.Interp.Cwd = "/home/user"

	line := "node " + vPath
	if filepath.Ext(c.Script) == ".sh" {
		line = "source " + vPath
	}
	for _, a := range c.Args {
		line += " " + a
	}

	code, err := sess.Interp.RunLine(context.Background(), line, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lifosh run: %v\n", err)
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}
