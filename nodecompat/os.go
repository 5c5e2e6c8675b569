package nodecompat

import "github.com/dop251/goja"

// NewOS implements the small subset of Node's `os` module
// names: hostname, platform, tmpdir, homedir, cpus, EOL. There is no real
// host to report on, so these return the fixed values a browser-resident VM
// would plausibly report for itself.
func NewOS(ctx *Context) goja.Value {
	vm := ctx.Runtime
	obj := vm.NewObject()

	obj.Set("EOL", "\n")
	obj.Set("hostname", func(goja.FunctionCall) goja.Value { return vm.ToValue("lifosh") })
	obj.Set("platform", func(goja.FunctionCall) goja.Value { return vm.ToValue("linux") })
	obj.Set("tmpdir", func(goja.FunctionCall) goja.Value { return vm.ToValue("/tmp") })
	obj.Set("homedir", func(goja.FunctionCall) goja.Value {
		home := ctx.Env["HOME"]
		if home == "" {
			home = "/home/user"
		}
		return vm.ToValue(home)
	})
	obj.Set("cpus", func(goja.FunctionCall) goja.Value {
		cpu := vm.NewObject()
		cpu.Set("model", "lifosh-virtual-cpu")
		cpu.Set("speed", 1000)
		return vm.ToValue([]goja.Value{cpu})
	})
	obj.Set("arch", func(goja.FunctionCall) goja.Value { return vm.ToValue("wasm") })
	obj.Set("type", func(goja.FunctionCall) goja.Value { return vm.ToValue("Linux") })
	obj.Set("release", func(goja.FunctionCall) goja.Value { return vm.ToValue("1.0.0-lifosh") })

	return obj
}
