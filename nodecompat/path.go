package nodecompat

import (
	"path"
	"strings"

	"github.com/dop251/goja"
)

// NewPath implements the POSIX subset of Node's `path` module: join,
// resolve, dirname, basename, extname, relative, normalize,
// parse, sep. Node's `path` is pure string manipulation, so this wraps
// stdlib `path` (already POSIX-only) rather than reimplementing join/clean.
func NewPath(ctx *Context) goja.Value {
	vm := ctx.Runtime
	obj := vm.NewObject()

	obj.Set("sep", "/")
	obj.Set("delimiter", ":")

	obj.Set("join", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			parts = append(parts, a.String())
		}
		return vm.ToValue(path.Join(parts...))
	})

	obj.Set("resolve", func(call goja.FunctionCall) goja.Value {
		result := ctx.Cwd
		for _, a := range call.Arguments {
			s := a.String()
			if strings.HasPrefix(s, "/") {
				result = s
			} else {
				result = path.Join(result, s)
			}
		}
		return vm.ToValue(path.Clean(result))
	})

	obj.Set("dirname", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(path.Dir(arg(call, 0)))
	})

	obj.Set("basename", func(call goja.FunctionCall) goja.Value {
		b := path.Base(arg(call, 0))
		if ext := arg(call, 1); ext != "" && strings.HasSuffix(b, ext) {
			b = strings.TrimSuffix(b, ext)
		}
		return vm.ToValue(b)
	})

	obj.Set("extname", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(path.Ext(arg(call, 0)))
	})

	obj.Set("normalize", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(path.Clean(arg(call, 0)))
	})

	obj.Set("relative", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(relativePOSIX(arg(call, 0), arg(call, 1)))
	})

	obj.Set("isAbsolute", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(strings.HasPrefix(arg(call, 0), "/"))
	})

	obj.Set("parse", func(call goja.FunctionCall) goja.Value {
		p := arg(call, 0)
		dir := path.Dir(p)
		base := path.Base(p)
		ext := path.Ext(base)
		name := strings.TrimSuffix(base, ext)
		out := vm.NewObject()
		out.Set("root", "/")
		out.Set("dir", dir)
		out.Set("base", base)
		out.Set("ext", ext)
		out.Set("name", name)
		return out
	})

	return obj
}

func arg(call goja.FunctionCall, i int) string {
	if i >= len(call.Arguments) {
		return ""
	}
	return call.Arguments[i].String()
}

// relativePOSIX computes the relative path from `from` to `to`, both
// absolute POSIX paths, the way Node's path.relative does.
func relativePOSIX(from, to string) string {
	from = path.Clean(from)
	to = path.Clean(to)
	if from == to {
		return ""
	}
	fromParts := strings.Split(strings.Trim(from, "/"), "/")
	toParts := strings.Split(strings.Trim(to, "/"), "/")

	common := 0
	for common < len(fromParts) && common < len(toParts) && fromParts[common] == toParts[common] {
		common++
	}

	var segs []string
	for i := common; i < len(fromParts); i++ {
		segs = append(segs, "..")
	}
	segs = append(segs, toParts[common:]...)
	if len(segs) == 0 {
		return "."
	}
	return strings.Join(segs, "/")
}
