package noderuntime

import (
	"path"
	"testing"

	"github.com/lifosh/lifosh/nodecompat"
	"github.com/lifosh/lifosh/vfs"
)

func mustWrite(t *testing.T, fs *vfs.FS, filePath, content string) {
	t.Helper()
	dir := path.Dir(filePath)
	if err := fs.Mkdir(dir, true); err != nil {
		t.Fatalf("Mkdir(%q) = %v", dir, err)
	}
	if err := fs.WriteFile(filePath, []byte(content)); err != nil {
		t.Fatalf("WriteFile(%q) = %v", filePath, err)
	}
}

func TestResolveNodePrefixBuiltin(t *testing.T) {
	r := NewResolver(vfs.New(), nodecompat.NewRegistry())
	res, err := r.Resolve("node:fs", "/home/user")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Builtin || res.BuiltinName != "fs" {
		t.Fatalf("Resolve(node:fs) = %+v", res)
	}
}

func TestResolveBareBuiltin(t *testing.T) {
	r := NewResolver(vfs.New(), nodecompat.NewRegistry())
	res, err := r.Resolve("path", "/home/user")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Builtin || res.BuiltinName != "path" {
		t.Fatalf("Resolve(path) = %+v", res)
	}
}

func TestResolveUnknownNodePrefixFails(t *testing.T) {
	r := NewResolver(vfs.New(), nodecompat.NewRegistry())
	if _, err := r.Resolve("node:not-a-real-builtin", "/home/user"); err == nil {
		t.Fatalf("expected error for unknown node: builtin")
	}
}

func TestResolveRelativeExactFile(t *testing.T) {
	fs := vfs.New()
	mustWrite(t, fs, "/home/user/lib.js", "module.exports = 1;")
	r := NewResolver(fs, nodecompat.NewRegistry())

	res, err := r.Resolve("./lib.js", "/home/user")
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "/home/user/lib.js" {
		t.Fatalf("Resolve(./lib.js) = %+v", res)
	}
}

func TestResolveRelativeExtensionFallback(t *testing.T) {
	fs := vfs.New()
	mustWrite(t, fs, "/home/user/lib.js", "module.exports = 1;")
	r := NewResolver(fs, nodecompat.NewRegistry())

	res, err := r.Resolve("./lib", "/home/user")
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "/home/user/lib.js" {
		t.Fatalf("Resolve(./lib) = %+v", res)
	}
}

func TestResolveRelativeIndexFallback(t *testing.T) {
	fs := vfs.New()
	mustWrite(t, fs, "/home/user/pkg/index.js", "module.exports = 1;")
	r := NewResolver(fs, nodecompat.NewRegistry())

	res, err := r.Resolve("./pkg", "/home/user")
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "/home/user/pkg/index.js" {
		t.Fatalf("Resolve(./pkg) = %+v", res)
	}
}

func TestResolveRelativeMissingFails(t *testing.T) {
	r := NewResolver(vfs.New(), nodecompat.NewRegistry())
	if _, err := r.Resolve("./nope", "/home/user"); err == nil {
		t.Fatalf("expected ErrModuleNotFound")
	} else if _, ok := err.(*ErrModuleNotFound); !ok {
		t.Fatalf("expected *ErrModuleNotFound, got %T", err)
	}
}

func TestResolveBareSpecifierWalksUpNodeModules(t *testing.T) {
	fs := vfs.New()
	mustWrite(t, fs, "/home/user/node_modules/left-pad/index.js", "module.exports = function(){};")
	r := NewResolver(fs, nodecompat.NewRegistry())

	res, err := r.Resolve("left-pad", "/home/user/src/deep/nested")
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "/home/user/node_modules/left-pad/index.js" {
		t.Fatalf("Resolve(left-pad) = %+v", res)
	}
}

func TestResolveBareSpecifierUsesPackageJSONMain(t *testing.T) {
	fs := vfs.New()
	mustWrite(t, fs, "/home/user/node_modules/foo/package.json", `{"main": "dist/foo.js"}`)
	mustWrite(t, fs, "/home/user/node_modules/foo/dist/foo.js", "module.exports = 1;")
	r := NewResolver(fs, nodecompat.NewRegistry())

	res, err := r.Resolve("foo", "/home/user")
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "/home/user/node_modules/foo/dist/foo.js" {
		t.Fatalf("Resolve(foo) = %+v", res)
	}
}

func TestResolveBareSpecifierExportsConditional(t *testing.T) {
	fs := vfs.New()
	mustWrite(t, fs, "/home/user/node_modules/bar/package.json",
		`{"exports": {".": {"require": "./cjs/index.js", "import": "./esm/index.js"}}}`)
	mustWrite(t, fs, "/home/user/node_modules/bar/cjs/index.js", "module.exports = 1;")
	r := NewResolver(fs, nodecompat.NewRegistry())

	res, err := r.Resolve("bar", "/home/user")
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "/home/user/node_modules/bar/cjs/index.js" {
		t.Fatalf("Resolve(bar) = %+v (want require-condition target)", res)
	}
}

func TestResolveBareSpecifierExportsSubpathGlob(t *testing.T) {
	fs := vfs.New()
	mustWrite(t, fs, "/home/user/node_modules/bar/package.json",
		`{"exports": {"./dist/*": "./lib/*.js"}}`)
	mustWrite(t, fs, "/home/user/node_modules/bar/lib/utils.js", "module.exports = 1;")
	r := NewResolver(fs, nodecompat.NewRegistry())

	res, err := r.Resolve("bar/dist/utils", "/home/user")
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "/home/user/node_modules/bar/lib/utils.js" {
		t.Fatalf("Resolve(bar/dist/utils) = %+v", res)
	}
}

func TestResolveScopedPackage(t *testing.T) {
	fs := vfs.New()
	mustWrite(t, fs, "/home/user/node_modules/@scope/pkg/index.js", "module.exports = 1;")
	r := NewResolver(fs, nodecompat.NewRegistry())

	res, err := r.Resolve("@scope/pkg", "/home/user")
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "/home/user/node_modules/@scope/pkg/index.js" {
		t.Fatalf("Resolve(@scope/pkg) = %+v", res)
	}
}

func TestResolveGlobalNodeModulesDir(t *testing.T) {
	fs := vfs.New()
	mustWrite(t, fs, "/usr/lib/node_modules/globby/index.js", "module.exports = 1;")
	r := NewResolver(fs, nodecompat.NewRegistry())

	res, err := r.Resolve("globby", "/home/user")
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "/usr/lib/node_modules/globby/index.js" {
		t.Fatalf("Resolve(globby) = %+v", res)
	}
}

func TestResolveImportsMapHashPrefix(t *testing.T) {
	fs := vfs.New()
	mustWrite(t, fs, "/home/user/package.json", `{"imports": {"#utils": "./internal/utils.js"}}`)
	mustWrite(t, fs, "/home/user/internal/utils.js", "module.exports = 1;")
	r := NewResolver(fs, nodecompat.NewRegistry())

	res, err := r.Resolve("#utils", "/home/user")
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "/home/user/internal/utils.js" {
		t.Fatalf("Resolve(#utils) = %+v", res)
	}
}

func TestResolveRollupNativeStub(t *testing.T) {
	r := NewResolver(vfs.New(), nodecompat.NewRegistry())
	res, err := r.Resolve("@rollup/rollup-linux-x64-gnu", "/home/user")
	if err != nil {
		t.Fatal(err)
	}
	if !res.RollupNative {
		t.Fatalf("expected rollup native stub resolution, got %+v", res)
	}
}
