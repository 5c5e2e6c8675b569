package nodecompat

import "github.com/dop251/goja"

// NewConsole implements Node's `console` shim: log/error/warn/info
// write formatted, space-joined arguments to the command context's stdout
// or stderr, mirroring util.inspect-style formatting without reimplementing
// it (informed by goja_nodejs's own console module, per the grounding
// ledger).
func NewConsole(ctx *Context) goja.Value {
	vm := ctx.Runtime
	obj := vm.NewObject()

	writeLine := func(s Stream, args []goja.Value) {
		if s == nil {
			return
		}
		_, _ = s.Write(formatArgs(args) + "\n")
	}

	obj.Set("log", func(call goja.FunctionCall) goja.Value {
		writeLine(ctx.Stdout, call.Arguments)
		return goja.Undefined()
	})
	obj.Set("info", obj.Get("log"))
	obj.Set("debug", obj.Get("log"))
	obj.Set("error", func(call goja.FunctionCall) goja.Value {
		writeLine(ctx.Stderr, call.Arguments)
		return goja.Undefined()
	})
	obj.Set("warn", obj.Get("error"))

	return obj
}
