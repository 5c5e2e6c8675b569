package nodecompat

import "github.com/dop251/goja"

// NewDNS implements Node's `dns` shim: the callback API errors with
// ENOTFOUND for every name except localhost, which resolves to 127.0.0.1;
// there is no real network to resolve against inside the virtual machine.
func NewDNS(ctx *Context) goja.Value {
	vm := ctx.Runtime
	obj := vm.NewObject()

	lookup := func(hostname string) (string, bool) {
		if hostname == "localhost" {
			return "127.0.0.1", true
		}
		return "", false
	}

	obj.Set("lookup", func(call goja.FunctionCall) goja.Value {
		hostname := arg(call, 0)
		var cb goja.Callable
		for _, a := range call.Arguments[1:] {
			if c, ok := goja.AssertFunction(a); ok {
				cb = c
			}
		}
		addr, ok := lookup(hostname)
		if cb == nil {
			return goja.Undefined()
		}
		if !ok {
			_, _ = cb(goja.Undefined(), dnsNotFoundError(vm, hostname))
			return goja.Undefined()
		}
		_, _ = cb(goja.Undefined(), goja.Null(), vm.ToValue(addr), vm.ToValue(4))
		return goja.Undefined()
	})

	promises := vm.NewObject()
	promises.Set("lookup", func(call goja.FunctionCall) goja.Value {
		hostname := arg(call, 0)
		p, resolve, reject := vm.NewPromise()
		addr, ok := lookup(hostname)
		if !ok {
			_ = reject(dnsNotFoundError(vm, hostname))
		} else {
			result := vm.NewObject()
			result.Set("address", addr)
			result.Set("family", 4)
			_ = resolve(result)
		}
		return vm.ToValue(p)
	})
	obj.Set("promises", promises)

	return obj
}

func dnsNotFoundError(vm *goja.Runtime, hostname string) goja.Value {
	obj := vm.NewObject()
	obj.Set("code", "ENOTFOUND")
	obj.Set("hostname", hostname)
	obj.Set("message", "getaddrinfo ENOTFOUND "+hostname)
	return obj
}
