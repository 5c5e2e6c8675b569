package nodecompat

import (
	"fmt"

	"github.com/dop251/goja"
)

// NewUtil implements Node's `util` shim: format and inspect,
// enough for console's formatting and common library code that calls
// util.format(...)/util.inspect(...) directly.
func NewUtil(ctx *Context) goja.Value {
	vm := ctx.Runtime
	obj := vm.NewObject()

	obj.Set("format", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(formatArgs(call.Arguments))
	})
	obj.Set("inspect", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue("undefined")
		}
		return vm.ToValue(inspectValue(call.Arguments[0]))
	})
	obj.Set("promisify", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Arguments[0])
		if !ok {
			return goja.Undefined()
		}
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			p, resolve, reject := vm.NewPromise()
			args := append(call.Arguments, vm.ToValue(func(cbCall goja.FunctionCall) goja.Value {
				if len(cbCall.Arguments) > 0 && !goja.IsNull(cbCall.Arguments[0]) && !goja.IsUndefined(cbCall.Arguments[0]) {
					_ = reject(cbCall.Arguments[0])
				} else if len(cbCall.Arguments) > 1 {
					_ = resolve(cbCall.Arguments[1])
				} else {
					_ = resolve(goja.Undefined())
				}
				return goja.Undefined()
			}))
			_, _ = fn(goja.Undefined(), args...)
			return vm.ToValue(p)
		})
	})

	return obj
}

func formatArgs(args []goja.Value) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += inspectValue(a)
	}
	return out
}

func inspectValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	switch v.ExportType().Kind().String() {
	case "string":
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
