package noderuntime

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/lifosh/lifosh/httpplane"
	"github.com/lifosh/lifosh/nodecompat"
	"github.com/lifosh/lifosh/transform"
	"github.com/lifosh/lifosh/vfs"
)

const wrapperParamList = "exports, require, module, __filename, __dirname, console, process, Buffer, setTimeout, setInterval, clearTimeout, clearInterval, global, __importMetaUrl, __importMeta, __importMetaResolve"

var esmHeuristicRe = regexp.MustCompile(`(?m)^\s*(import\s+[^(]|import\s*\{|export\s+(default|const|let|var|function|class|\{|\*))`)

// Executor resolves and runs Node-shaped modules against one in-memory vfs,
// one goja.Runtime, and one builtin shim registry, matching Node's
// function-wrapped execution model: every module body runs inside
// `(function(exports, require, module, __filename, __dirname, ...) {...})`
// with its own `exports`/`module` pre-seeded in the module cache before
// invocation, so circular requires observe a partial module rather than
// recursing forever.
type Executor struct {
	vm       *goja.Runtime
	resolver *Resolver
	builtins *nodecompat.Registry
	vfs      *vfs.FS
	ports    *httpplane.Registry
	base     *nodecompat.Context
	timers   *timerQueue

	cache      map[string]goja.Value
	httpLoaded bool
	cacheSize  int
}

// NewExecutor builds an Executor sharing vm, fs, the builtin registry, the
// port registry, and a template Context (its Cwd/Env/Stdout/Stderr/PID/
// Signal are copied per module invocation; its Filename/Dirname/Runtime/
// Require are overwritten).
func NewExecutor(vm *goja.Runtime, fs *vfs.FS, builtins *nodecompat.Registry, ports *httpplane.Registry, base *nodecompat.Context) *Executor {
	e := &Executor{
		vm:       vm,
		resolver: NewResolver(fs, builtins),
		builtins: builtins,
		vfs:      fs,
		ports:    ports,
		base:     base,
		timers:   newTimerQueue(),
		cache:    map[string]goja.Value{},
	}
	base.Runtime = vm
	base.Require = e.requireFrom
	base.BuiltinNames = builtins.Names()
	return e
}

// decodeExit unwraps an *nodecompat.ExitError from a goja call error, as
// thrown by process.exit(code).
func decodeExit(err error) (int, bool) {
	var ex *goja.Exception
	if !errors.As(err, &ex) {
		return 0, false
	}
	goErr, ok := ex.Value().Export().(error)
	if !ok {
		return 0, false
	}
	var exitErr *nodecompat.ExitError
	if errors.As(goErr, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// Run executes entryPath as the main script (async-function-wrapped, so
// top-level await works) with argv set on process.argv, then performs the
// post-run server wait described for the Node runtime's main-script
// lifecycle.
func (e *Executor) Run(entryPath string, argv []string) (int, error) {
	e.base.Argv = argv
	source, err := e.vfs.ReadFileString(entryPath)
	if err != nil {
		return 1, err
	}
	esm := e.isESM(entryPath, source)

	_, err = e.loadFileBody(entryPath, source, esm, true)
	if err != nil {
		if code, ok := decodeExit(err); ok {
			return code, nil
		}
		return 1, err
	}

	e.waitForServers()
	return 0, nil
}

// RunSource executes source directly as the main script body, the `node -e
// <script>`/`--eval <script>` path: no VFS path is resolved, the string is
// compiled and run exactly as loadFileBody runs a file already read from
// disk, always as CommonJS (matching `node -e`'s default input type).
func (e *Executor) RunSource(source string, argv []string) (int, error) {
	e.base.Argv = argv
	_, err := e.loadFileBody("/[eval]", source, false, true)
	if err != nil {
		if code, ok := decodeExit(err); ok {
			return code, nil
		}
		return 1, err
	}
	return 0, nil
}

// requireFrom resolves specifier from fromDir and returns its (possibly
// cached) exports, used both by nodecompat's `module.createRequire` shim
// and internally for every require()/import rewrite.
func (e *Executor) requireFrom(specifier, fromDir string) (goja.Value, error) {
	res, err := e.resolver.Resolve(specifier, fromDir)
	if err != nil {
		return nil, err
	}

	if res.Builtin {
		e.trackBuiltinLoad(res.BuiltinName)
		ctx := e.contextFor(fromDir)
		v, ok := e.builtins.Get(res.BuiltinName, ctx)
		if !ok {
			return nil, &ErrModuleNotFound{Specifier: specifier}
		}
		return v, nil
	}

	if res.RollupNative {
		return e.rollupStub(res.RollupSpec), nil
	}

	if v, ok := e.cache[res.Path]; ok {
		return v, nil
	}

	source, err := e.vfs.ReadFileString(res.Path)
	if err != nil {
		return nil, &ErrModuleNotFound{Specifier: specifier}
	}
	esm := e.isESM(res.Path, source)
	return e.loadFileBody(res.Path, source, esm, false)
}

func (e *Executor) trackBuiltinLoad(name string) {
	if name == "http" {
		e.httpLoaded = true
	}
}

func (e *Executor) contextFor(dir string) *nodecompat.Context {
	c := *e.base
	c.Cwd = dir
	return &c
}

// isESM decides ESM-vs-CJS: .mjs is always ESM, .cjs is always CJS, any
// other path consults the nearest package.json "type" field, and when that
// settles nothing a regex heuristic over top-level import/export keywords
// decides.
func (e *Executor) isESM(absPath, source string) bool {
	switch path.Ext(absPath) {
	case ".mjs":
		return true
	case ".cjs":
		return false
	}
	if pkg, _, ok := e.resolver.findNearestPackageJSON(path.Dir(absPath)); ok {
		switch pkg.Type {
		case "module":
			return true
		case "commonjs":
			return false
		}
	}
	return esmHeuristicRe.MatchString(source)
}

func stripShebang(src string) string {
	if !strings.HasPrefix(src, "#!") {
		return src
	}
	if idx := strings.IndexByte(src, '\n'); idx >= 0 {
		return src[idx:]
	}
	return ""
}

func wrapSource(body string, isMain bool) string {
	kw := "function"
	if isMain {
		kw = "async function"
	}
	return fmt.Sprintf("(%s(%s) {\n%s\n})", kw, wrapperParamList, body)
}

// loadFileBody compiles and invokes absPath's body (already read as
// source), pre-caching an empty exports object for circular safety before
// the function runs.
func (e *Executor) loadFileBody(absPath, source string, esm, isMain bool) (goja.Value, error) {
	source = stripShebang(source)
	if esm {
		var err error
		source, err = transform.Transform(source)
		if err != nil {
			return nil, fmt.Errorf("[%s] %w", absPath, err)
		}
	}

	dir := path.Dir(absPath)
	moduleObj := e.vm.NewObject()
	exportsObj := e.vm.NewObject()
	_ = moduleObj.Set("exports", exportsObj)

	e.cache[absPath] = exportsObj
	e.cacheSize++

	wrapped := wrapSource(source, isMain)
	prog, err := e.compileWithLocalization(wrapped, absPath)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", absPath, err)
	}

	fnVal, err := e.vm.RunProgram(prog)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", absPath, err)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, fmt.Errorf("[%s] module body did not compile to a callable function", absPath)
	}

	ctx := e.contextFor(dir)
	ctx.Filename = absPath
	ctx.Dirname = dir

	consoleVal, _ := e.builtins.Get("console", ctx)
	processVal, _ := e.builtins.Get("process", ctx)
	bufferVal, _ := e.builtins.Get("buffer", ctx)
	setTimeoutVal, setIntervalVal, clearTimeoutVal, clearIntervalVal := installTimerFuncs(e.vm, e.timers)

	requireVal := e.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		spec := call.Argument(0).String()
		v, err := e.requireFrom(spec, dir)
		if err != nil {
			panic(e.vm.NewGoError(err))
		}
		return v
	})

	metaURL := "file://" + absPath
	importMeta := e.buildImportMeta(metaURL, dir)
	resolveVal := e.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		spec := call.Argument(0).String()
		res, err := e.resolver.Resolve(spec, dir)
		if err != nil || res.Path == "" {
			panic(e.vm.NewGoError(&ErrModuleNotFound{Specifier: spec}))
		}
		return e.vm.ToValue("file://" + res.Path)
	})

	e.vm.Set("process", processVal)
	e.vm.Set("Buffer", bufferVal)
	e.vm.Set("console", consoleVal)
	e.installRollupInterop()

	args := []goja.Value{
		exportsObj, requireVal, moduleObj,
		e.vm.ToValue(absPath), e.vm.ToValue(dir),
		consoleVal, processVal, bufferVal,
		setTimeoutVal, setIntervalVal, clearTimeoutVal, clearIntervalVal,
		e.vm.GlobalObject(),
		e.vm.ToValue(metaURL), importMeta, resolveVal,
	}

	ret, callErr := fn(goja.Undefined(), args...)
	if callErr != nil {
		return nil, callErr
	}
	if p, ok := ret.Export().(*goja.Promise); ok && p.State() == goja.PromiseStateRejected {
		reason := p.Result()
		if ex := e.vm.Try(func() { panic(reason) }); ex != nil {
			return nil, ex
		}
	}

	finalExports := moduleObj.Get("exports")
	if finalExports != nil && finalExports != exportsObj {
		e.cache[absPath] = finalExports
	}
	return e.cache[absPath], nil
}

func (e *Executor) buildImportMeta(url, dir string) goja.Value {
	obj := e.vm.NewObject()
	obj.Set("url", url)
	obj.Set("dirname", dir)
	obj.Set("filename", strings.TrimPrefix(url, "file://"))
	obj.Set("resolve", func(call goja.FunctionCall) goja.Value {
		spec := call.Argument(0).String()
		res, err := e.resolver.Resolve(spec, dir)
		if err != nil || res.Path == "" {
			panic(e.vm.NewGoError(&ErrModuleNotFound{Specifier: spec}))
		}
		return e.vm.ToValue("file://" + res.Path)
	})
	return obj
}

// installRollupInterop injects the handful of Rollup/esbuild CJS-interop
// helpers that bundled output calls without importing, matching what a
// real bundle expects to find on globalThis.
func (e *Executor) installRollupInterop() {
	global := e.vm.GlobalObject()
	if global.Get("getDefaultExportFromCjs") != nil {
		return
	}
	global.Set("getDefaultExportFromCjs", func(call goja.FunctionCall) goja.Value {
		mod := call.Argument(0)
		if obj, ok := mod.(*goja.Object); ok {
			if def := obj.Get("default"); def != nil {
				return def
			}
		}
		return mod
	})
	global.Set("getAugmentedNamespace", func(call goja.FunctionCall) goja.Value {
		return call.Argument(0)
	})
	global.Set("_mergeNamespaces", func(call goja.FunctionCall) goja.Value {
		base, ok := call.Argument(0).(*goja.Object)
		if !ok {
			return call.Argument(0)
		}
		if rest, ok := call.Argument(1).(*goja.Object); ok {
			for _, k := range rest.Keys() {
				if base.Get(k) == nil {
					base.Set(k, rest.Get(k))
				}
			}
		}
		return base
	})
}

// rollupStub returns a non-functional native-binary stand-in for
// @rollup/rollup-<platform>-* specifiers: bundlers probe for these
// optional native accelerators and fall back to a pure-JS parser when they
// fail, so a stub that returns deterministic pseudo-digests on hash calls
// is enough to satisfy the probe without a real parser.
func (e *Executor) rollupStub(specifier string) goja.Value {
	obj := e.vm.NewObject()
	obj.Set("__rollupNativeStub", true)
	obj.Set("parse", func(call goja.FunctionCall) goja.Value {
		panic(e.vm.NewGoError(fmt.Errorf("native parser unavailable for %s", specifier)))
	})
	hash := fnv32(specifier)
	obj.Set("xxhashBase64Url", func(goja.FunctionCall) goja.Value {
		return e.vm.ToValue(fmt.Sprintf("%08x", hash))
	})
	return obj
}

func fnv32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// compileWithLocalization compiles wrapped as filename. On failure it runs
// a binary search over the source's lines to localize which line first
// reproduces the exact same error message (matching on message, not just
// "did it fail", to avoid false positives from an unrelated unclosed
// bracket elsewhere in the file), then returns the original error.
func (e *Executor) compileWithLocalization(wrapped, filename string) (*goja.Program, error) {
	prog, err := goja.Compile(filename, wrapped, false)
	if err == nil {
		return prog, nil
	}
	line := binarySearchBadLine(wrapped, err.Error())
	context := surroundingLines(wrapped, line, 3)
	return nil, fmt.Errorf("%w\n%s", err, context)
}

func binarySearchBadLine(source, wantMsg string) int {
	lines := strings.Split(source, "\n")
	lo, hi := 1, len(lines)
	for lo < hi {
		mid := (lo + hi) / 2
		prefix := strings.Join(lines[:mid], "\n")
		_, err := goja.Compile("probe", prefix, false)
		if err != nil && err.Error() == wantMsg {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func surroundingLines(source string, line, radius int) string {
	lines := strings.Split(source, "\n")
	start := line - radius
	if start < 1 {
		start = 1
	}
	end := line + radius
	if end > len(lines) {
		end = len(lines)
	}
	var b strings.Builder
	for i := start; i <= end; i++ {
		fmt.Fprintf(&b, "%4d | %s\n", i, lines[i-1])
	}
	return b.String()
}

// waitForServers implements the main-script post-run yield: up to ~2s of
// 30ms ticks while the module cache is still growing (fire-and-forget async
// module-level work may still be registering servers), then, if http was
// loaded but no server has appeared yet, up to ~10s of 50ms ticks. Once any
// server is bound, it races all of their close-promises against the
// process abort signal, closing every server on abort.
func (e *Executor) waitForServers() {
	deadline := time.Now().Add(2 * time.Second)
	lastSize := e.cacheSize
	for time.Now().Before(deadline) {
		e.timers.tick()
		if len(e.ports.List()) > 0 {
			break
		}
		if e.cacheSize == lastSize {
			break
		}
		lastSize = e.cacheSize
		time.Sleep(30 * time.Millisecond)
	}

	if len(e.ports.List()) == 0 && e.httpLoaded {
		deadline = time.Now().Add(10 * time.Second)
		for time.Now().Before(deadline) && len(e.ports.List()) == 0 {
			e.timers.tick()
			time.Sleep(50 * time.Millisecond)
		}
	}

	ports := e.ports.List()
	if len(ports) == 0 {
		return
	}

	done := make(chan struct{})
	go func() {
		for _, p := range ports {
			<-e.ports.WaitClosed(p)
		}
		close(done)
	}()

	if e.base.Signal == nil {
		<-done
		return
	}
	select {
	case <-done:
	case <-e.base.Signal:
		e.ports.CloseAll()
	}
}
