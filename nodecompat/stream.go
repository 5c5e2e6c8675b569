package nodecompat

import "github.com/dop251/goja"

// NewStream implements a minimal Node `stream` module: Readable and
// Writable base classes built on the same EventEmitter shape, enough for
// code that subclasses them for simple buffering pipelines
// scopes `stream` to "minimal API surface sufficient for the shipped CLI
// targets").
func NewStream(ctx *Context) goja.Value {
	vm := ctx.Runtime
	exports := vm.NewObject()

	exports.Set("Readable", vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		this := newEventEmitter(vm, call.This)
		this.Set("push", func(call goja.FunctionCall) goja.Value {
			if emit, ok := goja.AssertFunction(this.Get("emit")); ok {
				if len(call.Arguments) == 0 || goja.IsNull(call.Arguments[0]) {
					_, _ = emit(this, vm.ToValue("end"))
				} else {
					_, _ = emit(this, vm.ToValue("data"), call.Arguments[0])
				}
			}
			return vm.ToValue(true)
		})
		this.Set("read", func(goja.FunctionCall) goja.Value { return goja.Null() })
		return this
	}))

	exports.Set("Writable", vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		this := newEventEmitter(vm, call.This)
		var buf []byte
		this.Set("write", func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) > 0 {
				buf = append(buf, bytesFromValue(call.Arguments[0])...)
			}
			return vm.ToValue(true)
		})
		this.Set("end", func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) > 0 {
				buf = append(buf, bytesFromValue(call.Arguments[0])...)
			}
			if emit, ok := goja.AssertFunction(this.Get("emit")); ok {
				_, _ = emit(this, vm.ToValue("finish"))
			}
			return goja.Undefined()
		})
		return this
	}))

	return exports
}
