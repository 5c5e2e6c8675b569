package nodecompat

import (
	"fmt"

	"github.com/dop251/goja"
)

// ExitError is the sentinel process.exit(code) throws. The executor
// recovers this specific type to end the module run with Code rather than
// surfacing it as an uncaught script error.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("process.exit(%d)", e.Code) }

// NewProcess implements Node's `process` shim: argv, env, cwd/chdir,
// exit, stdout/stderr mapped to the command context's streams, platform,
// pid, versions.
func NewProcess(ctx *Context) goja.Value {
	vm := ctx.Runtime
	obj := vm.NewObject()

	argv := make([]interface{}, 0, len(ctx.Argv)+1)
	argv = append(argv, "node")
	for _, a := range ctx.Argv {
		argv = append(argv, a)
	}
	obj.Set("argv", vm.ToValue(argv))

	env := vm.NewObject()
	for k, v := range ctx.Env {
		env.Set(k, v)
	}
	obj.Set("env", env)

	cwd := ctx.Cwd
	obj.Set("cwd", func(goja.FunctionCall) goja.Value { return vm.ToValue(cwd) })
	obj.Set("chdir", func(call goja.FunctionCall) goja.Value {
		cwd = arg(call, 0)
		ctx.Cwd = cwd
		return goja.Undefined()
	})

	obj.Set("exit", func(call goja.FunctionCall) goja.Value {
		code := 0
		if len(call.Arguments) > 0 {
			code = int(call.Arguments[0].ToInteger())
		}
		panic(vm.NewGoError(&ExitError{Code: code}))
	})

	obj.Set("stdout", streamObject(vm, ctx.Stdout))
	obj.Set("stderr", streamObject(vm, ctx.Stderr))

	obj.Set("platform", "linux")
	obj.Set("pid", ctx.PID)
	versions := vm.NewObject()
	versions.Set("node", "20.0.0-lifosh")
	obj.Set("versions", versions)

	return obj
}

func streamObject(vm *goja.Runtime, s Stream) *goja.Object {
	obj := vm.NewObject()
	obj.Set("write", func(call goja.FunctionCall) goja.Value {
		if s != nil && len(call.Arguments) > 0 {
			_, _ = s.Write(call.Arguments[0].String())
		}
		return vm.ToValue(true)
	})
	return obj
}
