// Package noderuntime implements Node's module resolution algorithm and a
// function-wrapped module executor on top of the in-memory vfs and the
// node-compat builtin shim set.
package noderuntime

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/lifosh/lifosh/nodecompat"
	"github.com/lifosh/lifosh/vfs"
)

// ErrModuleNotFound is raised when no resolution step locates specifier.
type ErrModuleNotFound struct{ Specifier string }

func (e *ErrModuleNotFound) Error() string {
	return fmt.Sprintf("Cannot find module '%s'", e.Specifier)
}

// Resolution is the outcome of resolving a specifier: either a builtin name
// (looked up in the nodecompat registry) or an absolute vfs path to a file
// module, possibly flagged as the synthetic rollup native-binary stub.
type Resolution struct {
	Builtin      bool
	BuiltinName  string
	Path         string
	RollupNative bool
	RollupSpec   string
}

type packageJSON struct {
	Name    string          `json:"name"`
	Main    string          `json:"main"`
	Type    string          `json:"type"`
	Exports json.RawMessage `json:"exports"`
	Imports json.RawMessage `json:"imports"`
}

// Resolver implements the resolution order: node: prefix, builtin shim,
// #imports conditional, relative path with extension/index fallback,
// bare-specifier node_modules walk-up, then the two global directories.
type Resolver struct {
	vfs      *vfs.FS
	builtins *nodecompat.Registry
}

// NewResolver builds a Resolver over fs, consulting builtins before ever
// touching the filesystem.
func NewResolver(fs *vfs.FS, builtins *nodecompat.Registry) *Resolver {
	return &Resolver{vfs: fs, builtins: builtins}
}

// Resolve resolves specifier as seen from the directory fromDir.
func (r *Resolver) Resolve(specifier, fromDir string) (*Resolution, error) {
	if strings.HasPrefix(specifier, "node:") {
		name := strings.TrimPrefix(specifier, "node:")
		if r.builtins.Has(name) {
			return &Resolution{Builtin: true, BuiltinName: name}, nil
		}
		return nil, &ErrModuleNotFound{Specifier: specifier}
	}

	if r.builtins.Has(specifier) {
		return &Resolution{Builtin: true, BuiltinName: specifier}, nil
	}

	if strings.HasPrefix(specifier, "#") {
		return r.resolveImportsMap(specifier, fromDir)
	}

	if strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") || strings.HasPrefix(specifier, "/") {
		abs := specifier
		if !path.IsAbs(abs) {
			abs = path.Join(fromDir, abs)
		}
		if p, ok := r.resolveFileCandidates(abs); ok {
			return &Resolution{Path: p}, nil
		}
		return nil, &ErrModuleNotFound{Specifier: specifier}
	}

	if strings.HasPrefix(specifier, "@rollup/rollup-") {
		return &Resolution{RollupNative: true, RollupSpec: specifier}, nil
	}

	return r.resolveBareSpecifier(specifier, fromDir)
}

// resolveFileCandidates tries, in order: the exact path, path/index.js, then
// path with .js/.mjs/.json appended.
func (r *Resolver) resolveFileCandidates(base string) (string, bool) {
	if r.vfs.Exists(base) {
		if st, err := r.vfs.Stat(base); err == nil && st.Type == vfs.TypeFile {
			return base, true
		}
	}
	candidates := []string{
		path.Join(base, "index.js"),
		base + ".js",
		base + ".mjs",
		base + ".json",
	}
	for _, c := range candidates {
		if r.vfs.Exists(c) {
			if st, err := r.vfs.Stat(c); err == nil && st.Type == vfs.TypeFile {
				return c, true
			}
		}
	}
	return "", false
}

// findNearestPackageJSON walks up from dir looking for a package.json.
func (r *Resolver) findNearestPackageJSON(dir string) (*packageJSON, string, bool) {
	for {
		candidate := path.Join(dir, "package.json")
		if r.vfs.Exists(candidate) {
			raw, err := r.vfs.ReadFile(candidate)
			if err == nil {
				var pkg packageJSON
				if json.Unmarshal(raw, &pkg) == nil {
					return &pkg, dir, true
				}
			}
		}
		if dir == "/" || dir == "" {
			return nil, "", false
		}
		dir = path.Dir(dir)
	}
}

func (r *Resolver) resolveImportsMap(specifier, fromDir string) (*Resolution, error) {
	pkg, pkgDir, ok := r.findNearestPackageJSON(fromDir)
	if !ok || len(pkg.Imports) == 0 {
		return nil, &ErrModuleNotFound{Specifier: specifier}
	}
	var imports map[string]json.RawMessage
	if err := json.Unmarshal(pkg.Imports, &imports); err != nil {
		return nil, &ErrModuleNotFound{Specifier: specifier}
	}
	raw, ok := imports[specifier]
	if !ok {
		return nil, &ErrModuleNotFound{Specifier: specifier}
	}
	target, ok := resolveConditions(raw)
	if !ok {
		return nil, &ErrModuleNotFound{Specifier: specifier}
	}
	abs := path.Join(pkgDir, target)
	if p, ok := r.resolveFileCandidates(abs); ok {
		return &Resolution{Path: p}, nil
	}
	return nil, &ErrModuleNotFound{Specifier: specifier}
}

// parseBareSpecifier splits "pkg/sub/path" into ("pkg", "sub/path") and
// "@scope/pkg/sub" into ("@scope/pkg", "sub"), respecting scoped packages.
func parseBareSpecifier(specifier string) (pkgName, subpath string) {
	parts := strings.SplitN(specifier, "/", 2)
	if strings.HasPrefix(specifier, "@") && len(parts) == 2 {
		scopedParts := strings.SplitN(parts[1], "/", 2)
		pkgName = parts[0] + "/" + scopedParts[0]
		if len(scopedParts) == 2 {
			subpath = scopedParts[1]
		}
		return
	}
	pkgName = parts[0]
	if len(parts) == 2 {
		subpath = parts[1]
	}
	return
}

var globalNodeModulesDirs = []string{
	"/usr/lib/node_modules",
	"/usr/share/pkg/node_modules",
}

func (r *Resolver) resolveBareSpecifier(specifier, fromDir string) (*Resolution, error) {
	pkgName, subpath := parseBareSpecifier(specifier)

	var candidateDirs []string
	dir := fromDir
	for {
		candidateDirs = append(candidateDirs, path.Join(dir, "node_modules", pkgName))
		if dir == "/" || dir == "" {
			break
		}
		dir = path.Dir(dir)
	}
	for _, g := range globalNodeModulesDirs {
		candidateDirs = append(candidateDirs, path.Join(g, pkgName))
	}

	for _, pkgDir := range candidateDirs {
		if !r.vfs.Exists(pkgDir) {
			continue
		}
		if res, ok := r.resolveWithinPackage(pkgDir, subpath); ok {
			return res, nil
		}
	}
	return nil, &ErrModuleNotFound{Specifier: specifier}
}

func (r *Resolver) resolveWithinPackage(pkgDir, subpath string) (*Resolution, bool) {
	pkgJSONPath := path.Join(pkgDir, "package.json")
	var pkg packageJSON
	if r.vfs.Exists(pkgJSONPath) {
		if raw, err := r.vfs.ReadFile(pkgJSONPath); err == nil {
			_ = json.Unmarshal(raw, &pkg)
		}
	}

	if subpath != "" {
		if len(pkg.Exports) > 0 {
			if target, ok := resolveExportsSubpath(pkg.Exports, "./"+subpath); ok {
				abs := path.Join(pkgDir, target)
				if p, ok := r.resolveFileCandidates(abs); ok {
					return &Resolution{Path: p}, true
				}
			}
		}
		abs := path.Join(pkgDir, subpath)
		if p, ok := r.resolveFileCandidates(abs); ok {
			return &Resolution{Path: p}, true
		}
		return nil, false
	}

	if len(pkg.Exports) > 0 {
		if target, ok := resolveExportsSubpath(pkg.Exports, "."); ok {
			abs := path.Join(pkgDir, target)
			if p, ok := r.resolveFileCandidates(abs); ok {
				return &Resolution{Path: p}, true
			}
		} else if target, ok := resolveConditions(pkg.Exports); ok {
			abs := path.Join(pkgDir, target)
			if p, ok := r.resolveFileCandidates(abs); ok {
				return &Resolution{Path: p}, true
			}
		}
	}

	if pkg.Main != "" {
		abs := path.Join(pkgDir, pkg.Main)
		if p, ok := r.resolveFileCandidates(abs); ok {
			return &Resolution{Path: p}, true
		}
	}

	if p, ok := r.resolveFileCandidates(path.Join(pkgDir, "index.js")); ok {
		return &Resolution{Path: p}, true
	}
	return nil, false
}

// resolveExportsSubpath looks up subpath (e.g. "." or "./dist/x") in the
// raw exports map, including "./dist/*" glob patterns, then applies
// conditional resolution to whatever it finds.
func resolveExportsSubpath(raw json.RawMessage, subpath string) (string, bool) {
	var asString string
	if json.Unmarshal(raw, &asString) == nil {
		if subpath == "." {
			return asString, true
		}
		return "", false
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", false
	}

	if node, ok := m[subpath]; ok {
		return resolveConditions(node)
	}

	for pattern, node := range m {
		if !strings.Contains(pattern, "*") {
			continue
		}
		prefix, suffix, ok := splitGlob(pattern)
		if !ok || !strings.HasPrefix(subpath, prefix) || !strings.HasSuffix(subpath, suffix) {
			continue
		}
		match := strings.TrimSuffix(strings.TrimPrefix(subpath, prefix), suffix)
		target, ok := resolveConditions(node)
		if !ok {
			continue
		}
		tPrefix, tSuffix, tOK := splitGlob(target)
		if !tOK {
			continue
		}
		return tPrefix + match + tSuffix, true
	}

	if subpath == "." {
		return resolveConditions(raw)
	}
	return "", false
}

func splitGlob(pattern string) (prefix, suffix string, ok bool) {
	idx := strings.Index(pattern, "*")
	if idx < 0 {
		return "", "", false
	}
	return pattern[:idx], pattern[idx+1:], true
}

// resolveConditions recursively picks require, then default, then import
// from a conditional exports/imports node, skipping "types". A plain string
// node is returned as-is.
func resolveConditions(raw json.RawMessage) (string, bool) {
	var asString string
	if json.Unmarshal(raw, &asString) == nil {
		return asString, true
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", false
	}
	for _, cond := range []string{"require", "default", "import"} {
		node, ok := m[cond]
		if !ok {
			continue
		}
		if target, ok := resolveConditions(node); ok {
			return target, true
		}
	}
	return "", false
}
