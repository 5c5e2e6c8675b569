package nodecompat

import (
	"encoding/base64"
	"encoding/hex"

	"github.com/dop251/goja"
)

// bufferFrom wraps data as a Node-Buffer-shaped goja object: a
// Uint8Array-like indexable value with toString(encoding), length, and
// slice(), matching the convention that readFileSync without an encoding returns a
// Buffer (so .toString() decodes as UTF-8)".
func bufferFrom(vm *goja.Runtime, data []byte) *goja.Object {
	obj := vm.NewArray()
	for i, b := range data {
		obj.Set(itoa(i), int(b))
	}
	obj.Set("length", len(data))
	obj.Set("toString", func(call goja.FunctionCall) goja.Value {
		enc := "utf8"
		if len(call.Arguments) > 0 {
			enc = call.Arguments[0].String()
		}
		switch enc {
		case "hex":
			return vm.ToValue(hex.EncodeToString(data))
		case "base64":
			return vm.ToValue(base64.StdEncoding.EncodeToString(data))
		default:
			return vm.ToValue(string(data))
		}
	})
	obj.Set("slice", func(call goja.FunctionCall) goja.Value {
		start, end := 0, len(data)
		if len(call.Arguments) > 0 {
			start = int(call.Arguments[0].ToInteger())
		}
		if len(call.Arguments) > 1 {
			end = int(call.Arguments[1].ToInteger())
		}
		if start < 0 {
			start = 0
		}
		if end > len(data) {
			end = len(data)
		}
		if start > end {
			start = end
		}
		return bufferFrom(vm, data[start:end])
	})
	obj.Set("__isBuffer", true)
	return obj
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// bytesFromValue extracts raw bytes from a string or Buffer-shaped value,
// the two forms fs write operations accept.
func bytesFromValue(v goja.Value) []byte {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if obj, ok := v.(*goja.Object); ok {
		if lengthVal := obj.Get("length"); lengthVal != nil && obj.Get("__isBuffer") != nil {
			n := int(lengthVal.ToInteger())
			out := make([]byte, n)
			for i := 0; i < n; i++ {
				out[i] = byte(obj.Get(itoa(i)).ToInteger())
			}
			return out
		}
	}
	return []byte(v.String())
}

// NewBuffer implements the constructor surface of Node's `buffer` module:
// Buffer.from, Buffer.alloc, Buffer.isBuffer, enough for the shipped CLI
// targets this module covers.
func NewBuffer(ctx *Context) goja.Value {
	vm := ctx.Runtime
	bufferCtor := vm.NewObject()

	bufferCtor.Set("from", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return bufferFrom(vm, nil)
		}
		first := call.Arguments[0]
		if arr, ok := first.(*goja.Object); ok && arr.ClassName() == "Array" {
			length := arr.Get("length")
			n := 0
			if length != nil {
				n = int(length.ToInteger())
			}
			data := make([]byte, n)
			for i := 0; i < n; i++ {
				data[i] = byte(arr.Get(itoa(i)).ToInteger())
			}
			return bufferFrom(vm, data)
		}
		return bufferFrom(vm, []byte(first.String()))
	})
	bufferCtor.Set("alloc", func(call goja.FunctionCall) goja.Value {
		n := 0
		if len(call.Arguments) > 0 {
			n = int(call.Arguments[0].ToInteger())
		}
		return bufferFrom(vm, make([]byte, n))
	})
	bufferCtor.Set("isBuffer", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue(false)
		}
		obj, ok := call.Arguments[0].(*goja.Object)
		if !ok {
			return vm.ToValue(false)
		}
		return vm.ToValue(obj.Get("__isBuffer") != nil)
	})

	exports := vm.NewObject()
	exports.Set("Buffer", bufferCtor)
	return exports
}
