package nodecompat

import (
	"path"
	"sync"

	"github.com/dop251/goja"

	"github.com/lifosh/lifosh/vfs"
)

// fsError builds the {code, errno, syscall, path, message} shaped error
// object Node's fs errors conventionally carry.
func fsError(vm *goja.Runtime, syscall, p string, code vfs.Code) goja.Value {
	errno := map[vfs.Code]int{
		vfs.ENOENT:  -2,
		vfs.ENOTDIR: -20,
		vfs.EEXIST:  -17,
		vfs.EISDIR:  -21,
		vfs.EACCES:  -13,
		vfs.EBADF:   -9,
	}[code]
	obj := vm.NewObject()
	obj.Set("code", string(code))
	obj.Set("errno", errno)
	obj.Set("syscall", syscall)
	obj.Set("path", p)
	obj.Set("message", string(code)+": "+syscall+" "+p)
	return obj
}

func resolvePath(ctx *Context, p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Clean(path.Join(ctx.Cwd, p))
}

type fileHandle struct {
	path string
	data []byte
	pos  int64
}

// NewFS implements Node's `fs` module: sync, callback, and promise
// APIs over a file-descriptor table with position tracking, plus a VFS
// change-hook-backed watch().
func NewFS(ctx *Context) goja.Value {
	vm := ctx.Runtime
	obj := vm.NewObject()

	var mu sync.Mutex
	fds := map[int]*fileHandle{}
	nextFD := 3

	readFileSyncImpl := func(p string) ([]byte, error) {
		return ctx.VFS.ReadFile(resolvePath(ctx, p))
	}

	obj.Set("readFileSync", func(call goja.FunctionCall) goja.Value {
		p := arg(call, 0)
		data, err := readFileSyncImpl(p)
		if err != nil {
			code, _ := vfs.CodeOf(err)
			panic(vm.ToValue(fsError(vm, "open", p, code)))
		}
		if enc := arg(call, 1); enc != "" {
			return vm.ToValue(string(data))
		}
		return bufferFrom(vm, data)
	})

	obj.Set("writeFileSync", func(call goja.FunctionCall) goja.Value {
		p := resolvePath(ctx, arg(call, 0))
		data := bytesFromValue(call.Arguments[1])
		if err := ctx.VFS.WriteFile(p, data); err != nil {
			code, _ := vfs.CodeOf(err)
			panic(vm.ToValue(fsError(vm, "open", p, code)))
		}
		return goja.Undefined()
	})

	obj.Set("appendFileSync", func(call goja.FunctionCall) goja.Value {
		p := resolvePath(ctx, arg(call, 0))
		data := bytesFromValue(call.Arguments[1])
		if err := ctx.VFS.AppendFile(p, data); err != nil {
			code, _ := vfs.CodeOf(err)
			panic(vm.ToValue(fsError(vm, "open", p, code)))
		}
		return goja.Undefined()
	})

	obj.Set("existsSync", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(ctx.VFS.Exists(resolvePath(ctx, arg(call, 0))))
	})

	obj.Set("statSync", func(call goja.FunctionCall) goja.Value {
		p := resolvePath(ctx, arg(call, 0))
		st, err := ctx.VFS.Stat(p)
		if err != nil {
			code, _ := vfs.CodeOf(err)
			panic(vm.ToValue(fsError(vm, "stat", p, code)))
		}
		return statObject(vm, st)
	})

	obj.Set("readdirSync", func(call goja.FunctionCall) goja.Value {
		p := resolvePath(ctx, arg(call, 0))
		entries, err := ctx.VFS.ReadDir(p)
		if err != nil {
			code, _ := vfs.CodeOf(err)
			panic(vm.ToValue(fsError(vm, "scandir", p, code)))
		}
		names := make([]interface{}, len(entries))
		for i, e := range entries {
			names[i] = e.Name
		}
		return vm.ToValue(names)
	})

	obj.Set("mkdirSync", func(call goja.FunctionCall) goja.Value {
		p := resolvePath(ctx, arg(call, 0))
		recursive := false
		if len(call.Arguments) > 1 {
			if opts, ok := call.Arguments[1].(*goja.Object); ok {
				if r := opts.Get("recursive"); r != nil {
					recursive = r.ToBoolean()
				}
			}
		}
		if err := ctx.VFS.Mkdir(p, recursive); err != nil {
			code, _ := vfs.CodeOf(err)
			panic(vm.ToValue(fsError(vm, "mkdir", p, code)))
		}
		return goja.Undefined()
	})

	obj.Set("rmdirSync", func(call goja.FunctionCall) goja.Value {
		p := resolvePath(ctx, arg(call, 0))
		recursive := false
		if len(call.Arguments) > 1 {
			if opts, ok := call.Arguments[1].(*goja.Object); ok {
				if r := opts.Get("recursive"); r != nil {
					recursive = r.ToBoolean()
				}
			}
		}
		var err error
		if recursive {
			err = ctx.VFS.RmdirRecursive(p)
		} else {
			err = ctx.VFS.Rmdir(p)
		}
		if err != nil {
			code, _ := vfs.CodeOf(err)
			panic(vm.ToValue(fsError(vm, "rmdir", p, code)))
		}
		return goja.Undefined()
	})

	obj.Set("unlinkSync", func(call goja.FunctionCall) goja.Value {
		p := resolvePath(ctx, arg(call, 0))
		if err := ctx.VFS.Unlink(p); err != nil {
			code, _ := vfs.CodeOf(err)
			panic(vm.ToValue(fsError(vm, "unlink", p, code)))
		}
		return goja.Undefined()
	})

	obj.Set("renameSync", func(call goja.FunctionCall) goja.Value {
		from := resolvePath(ctx, arg(call, 0))
		to := resolvePath(ctx, arg(call, 1))
		if err := ctx.VFS.Rename(from, to); err != nil {
			code, _ := vfs.CodeOf(err)
			panic(vm.ToValue(fsError(vm, "rename", from, code)))
		}
		return goja.Undefined()
	})

	obj.Set("copyFileSync", func(call goja.FunctionCall) goja.Value {
		from := resolvePath(ctx, arg(call, 0))
		to := resolvePath(ctx, arg(call, 1))
		if err := ctx.VFS.CopyFile(from, to); err != nil {
			code, _ := vfs.CodeOf(err)
			panic(vm.ToValue(fsError(vm, "copyfile", from, code)))
		}
		return goja.Undefined()
	})

	obj.Set("openSync", func(call goja.FunctionCall) goja.Value {
		p := resolvePath(ctx, arg(call, 0))
		data, err := ctx.VFS.ReadFile(p)
		if err != nil {
			data = nil
		}
		mu.Lock()
		fd := nextFD
		nextFD++
		fds[fd] = &fileHandle{path: p, data: data}
		mu.Unlock()
		return vm.ToValue(fd)
	})

	obj.Set("closeSync", func(call goja.FunctionCall) goja.Value {
		fd := int(call.Arguments[0].ToInteger())
		mu.Lock()
		delete(fds, fd)
		mu.Unlock()
		return goja.Undefined()
	})

	obj.Set("readSync", func(call goja.FunctionCall) goja.Value {
		fd := int(call.Arguments[0].ToInteger())
		length := int(call.Arguments[2].ToInteger())
		mu.Lock()
		h, ok := fds[fd]
		mu.Unlock()
		if !ok {
			panic(vm.ToValue(fsError(vm, "read", "", vfs.EBADF)))
		}
		remaining := len(h.data) - int(h.pos)
		if remaining < 0 {
			remaining = 0
		}
		n := length
		if n > remaining {
			n = remaining
		}
		chunk := h.data[h.pos : int(h.pos)+n]
		h.pos += int64(n)
		buf := call.Arguments[1]
		if obj, ok := buf.(*goja.Object); ok {
			offset := 0
			if len(call.Arguments) > 3 {
				offset = int(call.Arguments[3].ToInteger())
			}
			for i, b := range chunk {
				obj.Set(itoa(offset+i), int(b))
			}
		}
		return vm.ToValue(n)
	})

	obj.Set("writeSync", func(call goja.FunctionCall) goja.Value {
		fd := int(call.Arguments[0].ToInteger())
		data := bytesFromValue(call.Arguments[1])
		mu.Lock()
		h, ok := fds[fd]
		mu.Unlock()
		if !ok {
			panic(vm.ToValue(fsError(vm, "write", "", vfs.EBADF)))
		}
		h.data = append(h.data[:h.pos], data...)
		h.pos += int64(len(data))
		_ = ctx.VFS.WriteFile(h.path, h.data)
		return vm.ToValue(len(data))
	})

	obj.Set("fstatSync", func(call goja.FunctionCall) goja.Value {
		fd := int(call.Arguments[0].ToInteger())
		mu.Lock()
		h, ok := fds[fd]
		mu.Unlock()
		if !ok {
			panic(vm.ToValue(fsError(vm, "fstat", "", vfs.EBADF)))
		}
		st, err := ctx.VFS.Stat(h.path)
		if err != nil {
			code, _ := vfs.CodeOf(err)
			panic(vm.ToValue(fsError(vm, "fstat", h.path, code)))
		}
		return statObject(vm, st)
	})

	obj.Set("ftruncateSync", func(call goja.FunctionCall) goja.Value {
		fd := int(call.Arguments[0].ToInteger())
		length := 0
		if len(call.Arguments) > 1 {
			length = int(call.Arguments[1].ToInteger())
		}
		mu.Lock()
		h, ok := fds[fd]
		mu.Unlock()
		if !ok {
			panic(vm.ToValue(fsError(vm, "ftruncate", "", vfs.EBADF)))
		}
		if length > len(h.data) {
			grown := make([]byte, length)
			copy(grown, h.data)
			h.data = grown
		} else {
			h.data = h.data[:length]
		}
		_ = ctx.VFS.WriteFile(h.path, h.data)
		return goja.Undefined()
	})

	obj.Set("createReadStream", func(call goja.FunctionCall) goja.Value {
		p := resolvePath(ctx, arg(call, 0))
		return newBufferedReadStream(vm, ctx.VFS, p)
	})

	obj.Set("createWriteStream", func(call goja.FunctionCall) goja.Value {
		p := resolvePath(ctx, arg(call, 0))
		return newBufferedWriteStream(vm, ctx.VFS, p)
	})

	obj.Set("watch", func(call goja.FunctionCall) goja.Value {
		p := resolvePath(ctx, arg(call, 0))
		var cb goja.Callable
		for _, a := range call.Arguments[1:] {
			if c, ok := goja.AssertFunction(a); ok {
				cb = c
				break
			}
		}
		var remove func()
		remove = ctx.VFS.OnChange(func(op, changedPath string) {
			if changedPath == p || path.Dir(changedPath) == p {
				if cb != nil {
					_, _ = cb(goja.Undefined(), vm.ToValue(op), vm.ToValue(path.Base(changedPath)))
				}
			}
		})
		watcher := vm.NewObject()
		watcher.Set("close", func(goja.FunctionCall) goja.Value {
			remove()
			return goja.Undefined()
		})
		return watcher
	})

	attachCallbackVariants(vm, obj)
	obj.Set("promises", buildPromisesAPI(vm, obj))

	return obj
}

func statObject(vm *goja.Runtime, st vfs.Stat) *goja.Object {
	obj := vm.NewObject()
	obj.Set("size", st.Size)
	obj.Set("mtime", st.Mtime)
	obj.Set("ctime", st.Ctime)
	obj.Set("mode", st.Mode)
	isDir := st.Type == vfs.TypeDirectory
	obj.Set("isDirectory", func(goja.FunctionCall) goja.Value { return vm.ToValue(isDir) })
	obj.Set("isFile", func(goja.FunctionCall) goja.Value { return vm.ToValue(!isDir) })
	return obj
}

// attachCallbackVariants wraps every "<x>Sync" method on obj as a
// Node-style callback method "<x>(...args, cb)" that invokes the
// synchronous implementation and reports (err, result) to cb, matching
// the synchronous, callback, and promise variants of the same operation.
func attachCallbackVariants(vm *goja.Runtime, obj *goja.Object) {
	for _, name := range []string{"readFile", "writeFile", "appendFile", "stat", "readdir", "mkdir", "rmdir", "unlink", "rename", "copyFile", "exists"} {
		syncName := name + "Sync"
		if name == "exists" {
			syncName = "existsSync"
		}
		syncFn, ok := goja.AssertFunction(obj.Get(syncName))
		if !ok {
			continue
		}
		localName, localSync := name, syncFn
		obj.Set(localName, func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) == 0 {
				return goja.Undefined()
			}
			cbArg := call.Arguments[len(call.Arguments)-1]
			cb, isCb := goja.AssertFunction(cbArg)
			callArgs := call.Arguments
			if isCb {
				callArgs = callArgs[:len(callArgs)-1]
			}
			result, err := localSync(goja.Undefined(), callArgs...)
			if !isCb {
				return result
			}
			if err != nil {
				if exc, ok := err.(*goja.Exception); ok {
					_, _ = cb(goja.Undefined(), exc.Value())
				} else {
					_, _ = cb(goja.Undefined(), vm.ToValue(err.Error()))
				}
				return goja.Undefined()
			}
			_, _ = cb(goja.Undefined(), goja.Null(), result)
			return goja.Undefined()
		})
	}
}

// buildPromisesAPI wraps the sync implementations as Promise-returning
// methods under fs.promises.
func buildPromisesAPI(vm *goja.Runtime, obj *goja.Object) *goja.Object {
	promises := vm.NewObject()
	for _, name := range []string{"readFile", "writeFile", "appendFile", "stat", "readdir", "mkdir", "rmdir", "unlink", "rename", "copyFile"} {
		syncFn, ok := goja.AssertFunction(obj.Get(name + "Sync"))
		if !ok {
			continue
		}
		localSync := syncFn
		promises.Set(name, func(call goja.FunctionCall) goja.Value {
			p, resolve, reject := vm.NewPromise()
			result, err := localSync(goja.Undefined(), call.Arguments...)
			if err != nil {
				if exc, ok := err.(*goja.Exception); ok {
					_ = reject(exc.Value())
				} else {
					_ = reject(vm.ToValue(err.Error()))
				}
			} else {
				_ = resolve(result)
			}
			return vm.ToValue(p)
		})
	}
	return promises
}

func newBufferedReadStream(vm *goja.Runtime, fsys *vfs.FS, p string) *goja.Object {
	stream := vm.NewObject()
	listeners := map[string][]goja.Callable{}
	stream.Set("on", func(call goja.FunctionCall) goja.Value {
		event := arg(call, 0)
		if cb, ok := goja.AssertFunction(call.Arguments[1]); ok {
			listeners[event] = append(listeners[event], cb)
		}
		data, err := fsys.ReadFile(p)
		if err != nil {
			for _, cb := range listeners["error"] {
				_, _ = cb(goja.Undefined(), vm.ToValue(err.Error()))
			}
			return stream
		}
		if event == "data" {
			for _, cb := range listeners["data"] {
				_, _ = cb(goja.Undefined(), bufferFrom(vm, data))
			}
		}
		return stream
	})
	return stream
}

func newBufferedWriteStream(vm *goja.Runtime, fsys *vfs.FS, p string) *goja.Object {
	stream := vm.NewObject()
	var buf []byte
	stream.Set("write", func(call goja.FunctionCall) goja.Value {
		buf = append(buf, bytesFromValue(call.Arguments[0])...)
		return vm.ToValue(true)
	})
	stream.Set("end", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			buf = append(buf, bytesFromValue(call.Arguments[0])...)
		}
		_ = fsys.WriteFile(p, buf)
		return goja.Undefined()
	})
	return stream
}
