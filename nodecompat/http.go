package nodecompat

import (
	"github.com/dop251/goja"

	"github.com/lifosh/lifosh/httpplane"
)

// NewHTTP implements Node's `http` shim: createServer, request, get.
// Servers bind into the kernel's port registry instead of a
// real socket. request and get return a stub client request whose on,
// write and end do nothing: no request is dispatched through the registry
// and no response callback is called.
func NewHTTP(ctx *Context) goja.Value {
	vm := ctx.Runtime
	obj := vm.NewObject()

	obj.Set("createServer", func(call goja.FunctionCall) goja.Value {
		var listener goja.Callable
		if len(call.Arguments) > 0 {
			listener, _ = goja.AssertFunction(call.Arguments[0])
		}
		return newHTTPServer(vm, ctx, listener)
	})

	dispatch := func(call goja.FunctionCall) goja.Value {
		return httpRequest(vm, ctx, call)
	}
	obj.Set("request", dispatch)
	obj.Set("get", func(call goja.FunctionCall) goja.Value {
		res := httpRequest(vm, ctx, call)
		return res
	})

	return obj
}

func newHTTPServer(vm *goja.Runtime, ctx *Context, listener goja.Callable) *goja.Object {
	server := vm.NewObject()
	var port int
	var release httpplane.ReleaseFunc

	handler := func(req *httpplane.Request, res *httpplane.Response) {
		if listener == nil {
			return
		}
		jsReq := vm.NewObject()
		jsReq.Set("method", req.Method)
		jsReq.Set("url", req.URL)
		headers := vm.NewObject()
		for k, v := range req.Headers {
			headers.Set(k, v)
		}
		jsReq.Set("headers", headers)
		jsReq.Set("body", string(req.Body))

		jsRes := vm.NewObject()
		jsRes.Set("statusCode", 200)
		resHeaders := map[string]string{}
		var body []byte
		jsRes.Set("setHeader", func(call goja.FunctionCall) goja.Value {
			resHeaders[arg(call, 0)] = arg(call, 1)
			return goja.Undefined()
		})
		jsRes.Set("writeHead", func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) > 0 {
				res.StatusCode = int(call.Arguments[0].ToInteger())
			}
			return goja.Undefined()
		})
		jsRes.Set("write", func(call goja.FunctionCall) goja.Value {
			body = append(body, bytesFromValue(call.Arguments[0])...)
			return vm.ToValue(true)
		})
		jsRes.Set("end", func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) > 0 {
				body = append(body, bytesFromValue(call.Arguments[0])...)
			}
			res.Body = body
			res.Headers = resHeaders
			if sc := jsRes.Get("statusCode"); sc != nil {
				res.StatusCode = int(sc.ToInteger())
			}
			return goja.Undefined()
		})

		_, _ = listener(goja.Undefined(), jsReq, jsRes)
	}

	server.Set("listen", func(call goja.FunctionCall) goja.Value {
		p := int(call.Arguments[0].ToInteger())
		var cb goja.Callable
		for _, a := range call.Arguments[1:] {
			if c, ok := goja.AssertFunction(a); ok {
				cb = c
			}
		}
		r, err := ctx.PortRegistry.Register(p, handler)
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		port = p
		release = r
		if cb != nil {
			_, _ = cb(goja.Undefined())
		}
		return server
	})

	server.Set("close", func(call goja.FunctionCall) goja.Value {
		var cb goja.Callable
		if len(call.Arguments) > 0 {
			cb, _ = goja.AssertFunction(call.Arguments[0])
		}
		if release != nil {
			release()
		}
		if cb != nil {
			_, _ = cb(goja.Undefined())
		}
		return goja.Undefined()
	})

	server.Set("getPromise", func(goja.FunctionCall) goja.Value {
		p, resolve, _ := vm.NewPromise()
		go func() {
			<-ctx.PortRegistry.WaitClosed(port)
			_ = resolve(goja.Undefined())
		}()
		return vm.ToValue(p)
	})

	return server
}

func httpRequest(vm *goja.Runtime, ctx *Context, call goja.FunctionCall) goja.Value {
	// Stub client request: the target URL and options are not read and
	// nothing is sent through the port registry.
	req := vm.NewObject()
	req.Set("on", func(goja.FunctionCall) goja.Value { return req })
	req.Set("end", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	req.Set("write", func(goja.FunctionCall) goja.Value { return vm.ToValue(true) })
	return req
}
