package nodecompat

import (
	"errors"
	"strings"
	"testing"

	"github.com/dop251/goja"

	"github.com/lifosh/lifosh/httpplane"
	"github.com/lifosh/lifosh/vfs"
)

type bufStream struct{ strings.Builder }

func (b *bufStream) Write(p string) (int, error) { return b.Builder.WriteString(p) }

func newTestContext(vm *goja.Runtime) *Context {
	return &Context{
		VFS:          vfs.New(),
		Cwd:          "/home/user",
		Env:          map[string]string{"HOME": "/home/user"},
		Stdout:       &bufStream{},
		Stderr:       &bufStream{},
		PID:          2,
		PortRegistry: httpplane.NewRegistry(),
		Runtime:      vm,
	}
}

func TestPathJoinAndResolve(t *testing.T) {
	vm := goja.New()
	ctx := newTestContext(vm)
	vm.Set("path", NewPath(ctx))

	v, err := vm.RunString(`path.join('/a', 'b', '../c')`)
	if err != nil {
		t.Fatal(err)
	}
	if v.String() != "/a/c" {
		t.Fatalf("join = %q", v.String())
	}

	v, err = vm.RunString(`path.extname('index.test.js')`)
	if err != nil {
		t.Fatal(err)
	}
	if v.String() != ".js" {
		t.Fatalf("extname = %q", v.String())
	}
}

func TestFSWriteReadSyncRoundTrip(t *testing.T) {
	vm := goja.New()
	ctx := newTestContext(vm)
	vm.Set("fs", NewFS(ctx))

	_, err := vm.RunString(`fs.writeFileSync('/home/user/hello.txt', 'hi there')`)
	if err != nil {
		t.Fatal(err)
	}
	v, err := vm.RunString(`fs.readFileSync('/home/user/hello.txt', 'utf8')`)
	if err != nil {
		t.Fatal(err)
	}
	if v.String() != "hi there" {
		t.Fatalf("readFileSync = %q", v.String())
	}
}

func TestFSReadFileSyncMissingThrowsENOENT(t *testing.T) {
	vm := goja.New()
	ctx := newTestContext(vm)
	vm.Set("fs", NewFS(ctx))

	v, err := vm.RunString(`
		let code;
		try {
			fs.readFileSync('/nope.txt');
		} catch (e) {
			code = e.code;
		}
		code;
	`)
	if err != nil {
		t.Fatal(err)
	}
	if v.String() != "ENOENT" {
		t.Fatalf("e.code = %q, want ENOENT", v.String())
	}
}

func TestFSCallbackVariant(t *testing.T) {
	vm := goja.New()
	ctx := newTestContext(vm)
	vm.Set("fs", NewFS(ctx))

	_, err := vm.RunString(`fs.writeFileSync('/home/user/a.txt', 'x')`)
	if err != nil {
		t.Fatal(err)
	}
	v, err := vm.RunString(`
		let result;
		fs.readFile('/home/user/a.txt', 'utf8', (err, data) => { result = data; });
		result;
	`)
	if err != nil {
		t.Fatal(err)
	}
	if v.String() != "x" {
		t.Fatalf("callback readFile = %q", v.String())
	}
}

func TestProcessExitPanicsWithExitError(t *testing.T) {
	vm := goja.New()
	ctx := newTestContext(vm)
	vm.Set("process", NewProcess(ctx))

	// The native function's panic reaches the caller as a JS exception
	// wrapping the ExitError.
	_, err := vm.RunString(`process.exit(3)`)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 3 {
		t.Fatalf("RunString error = %v, want an ExitError with code 3", err)
	}
}

func TestConsoleLogWritesToStdout(t *testing.T) {
	vm := goja.New()
	ctx := newTestContext(vm)
	vm.Set("console", NewConsole(ctx))

	_, err := vm.RunString(`console.log('hello', 'world')`)
	if err != nil {
		t.Fatal(err)
	}
	out := ctx.Stdout.(*bufStream).String()
	if out != "hello world\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func TestEventsEmitterOnEmit(t *testing.T) {
	vm := goja.New()
	ctx := newTestContext(vm)
	vm.Set("events", NewEvents(ctx))

	v, err := vm.RunString(`
		const { EventEmitter } = events;
		const e = new EventEmitter();
		let got;
		e.on('msg', (x) => { got = x; });
		e.emit('msg', 42);
		got;
	`)
	if err != nil {
		t.Fatal(err)
	}
	if v.ToInteger() != 42 {
		t.Fatalf("got = %v", v)
	}
}

func TestRegistryLazilyMemoizesShims(t *testing.T) {
	vm := goja.New()
	ctx := newTestContext(vm)
	reg := NewRegistry()

	first, ok := reg.Get("path", ctx)
	if !ok {
		t.Fatalf("expected path builtin")
	}
	second, _ := reg.Get("path", ctx)
	if first != second {
		t.Fatalf("Get() did not memoize shim instance")
	}
}
