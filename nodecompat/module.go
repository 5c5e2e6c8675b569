package nodecompat

import (
	"path"

	"github.com/dop251/goja"
)

// NewModule implements Node's `module` shim: createRequire(filename)
// returns the current scope's require, builtinModules lists the shim set.
func NewModule(ctx *Context) goja.Value {
	vm := ctx.Runtime
	obj := vm.NewObject()

	obj.Set("createRequire", func(call goja.FunctionCall) goja.Value {
		filename := arg(call, 0)
		dir := path.Dir(filename)
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			spec := arg(call, 0)
			if ctx.Require == nil {
				panic(vm.ToValue("Cannot find module '" + spec + "'"))
			}
			v, err := ctx.Require(spec, dir)
			if err != nil {
				panic(vm.ToValue(err.Error()))
			}
			return v
		})
	})

	names := make([]interface{}, len(ctx.BuiltinNames))
	for i, n := range ctx.BuiltinNames {
		names[i] = n
	}
	obj.Set("builtinModules", vm.ToValue(names))

	return obj
}
