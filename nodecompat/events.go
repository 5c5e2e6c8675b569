package nodecompat

import (
	"reflect"

	"github.com/dop251/goja"
)

// NewEvents implements a minimal Node `events` module: the EventEmitter
// class with on/once/off/emit, sufficient for the shipped CLI targets
// this module covers.
func NewEvents(ctx *Context) goja.Value {
	vm := ctx.Runtime
	exports := vm.NewObject()

	ctor := vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		return newEventEmitter(vm, call.This)
	})
	exports.Set("EventEmitter", ctor)
	return exports
}

func newEventEmitter(vm *goja.Runtime, this *goja.Object) *goja.Object {
	listeners := map[string][]goja.Callable{}

	this.Set("on", func(call goja.FunctionCall) goja.Value {
		event := arg(call, 0)
		if cb, ok := goja.AssertFunction(call.Arguments[1]); ok {
			listeners[event] = append(listeners[event], cb)
		}
		return this
	})
	this.Set("addListener", this.Get("on"))

	this.Set("once", func(call goja.FunctionCall) goja.Value {
		event := arg(call, 0)
		cb, ok := goja.AssertFunction(call.Arguments[1])
		if !ok {
			return this
		}
		var wrapper goja.Callable
		fired := false
		wrapper = func(fthis goja.Value, args ...goja.Value) (goja.Value, error) {
			if fired {
				return goja.Undefined(), nil
			}
			fired = true
			removeListener(listeners, event, wrapper)
			return cb(fthis, args...)
		}
		listeners[event] = append(listeners[event], wrapper)
		return this
	})

	this.Set("off", func(call goja.FunctionCall) goja.Value {
		event := arg(call, 0)
		if cb, ok := goja.AssertFunction(call.Arguments[1]); ok {
			removeListener(listeners, event, cb)
		}
		return this
	})
	this.Set("removeListener", this.Get("off"))

	this.Set("emit", func(call goja.FunctionCall) goja.Value {
		event := arg(call, 0)
		rest := call.Arguments[1:]
		handlers := listeners[event]
		for _, cb := range handlers {
			_, _ = cb(goja.Undefined(), rest...)
		}
		return vm.ToValue(len(handlers) > 0)
	})

	this.Set("listenerCount", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(len(listeners[arg(call, 0)]))
	})

	return this
}

// removeListener is a pointer-identity comparison; goja.Callable values
// wrap distinct closures so this only matches the exact function reference
// passed to on/once, mirroring Node's removeListener semantics.
func removeListener(listeners map[string][]goja.Callable, event string, target goja.Callable) {
	list := listeners[event]
	targetPtr := reflect.ValueOf(target).Pointer()
	out := make([]goja.Callable, 0, len(list))
	for _, cb := range list {
		if reflect.ValueOf(cb).Pointer() != targetPtr {
			out = append(out, cb)
		}
	}
	listeners[event] = out
}
