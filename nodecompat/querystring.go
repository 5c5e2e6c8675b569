package nodecompat

import (
	"net/url"
	"strings"

	"github.com/dop251/goja"
)

// NewQuerystring implements Node's `querystring` shim: parse and
// stringify, backed by stdlib net/url's form encoding (the same
// application/x-www-form-urlencoded grammar Node's querystring targets).
func NewQuerystring(ctx *Context) goja.Value {
	vm := ctx.Runtime
	obj := vm.NewObject()

	obj.Set("parse", func(call goja.FunctionCall) goja.Value {
		values, err := url.ParseQuery(arg(call, 0))
		out := vm.NewObject()
		if err != nil {
			return out
		}
		for k, v := range values {
			if len(v) == 1 {
				out.Set(k, v[0])
			} else {
				vals := make([]interface{}, len(v))
				for i, s := range v {
					vals[i] = s
				}
				out.Set(k, vals)
			}
		}
		return out
	})

	obj.Set("stringify", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue("")
		}
		srcObj, ok := call.Arguments[0].(*goja.Object)
		if !ok {
			return vm.ToValue("")
		}
		var parts []string
		for _, key := range srcObj.Keys() {
			v := srcObj.Get(key)
			parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(v.String()))
		}
		return vm.ToValue(strings.Join(parts, "&"))
	})

	return obj
}
