package main

import "github.com/alecthomas/kong"

// DocCmd prints the full command tree as markdown, generated straight from
// the CLI's own kong model rather than hand-maintained docs.
type DocCmd struct{}

func (c *DocCmd) Run(cctx *Context, kctx *kong.Context) error {
	return MarkdownHelpPrinter(kong.HelpOptions{}, kctx)
}
