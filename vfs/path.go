package vfs

import (
	"strings"
)

// clean canonicalizes a VFS path: collapses "." and "..", removes duplicate
// separators, and always returns an absolute, "/"-rooted path.
//
// Every tree lookup and the mount table go through it, so both agree on
// what "the same path" means. It is internal to this package; the
// node-compat "path" shim and the shell use the standard library's
// path.Clean.
func clean(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	segs := strings.Split(p, "/")
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		switch s {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, s)
		}
	}
	return "/" + strings.Join(out, "/")
}

func splitParent(p string) (dir, base string) {
	p = clean(p)
	if p == "/" {
		return "/", ""
	}
	idx := strings.LastIndex(p, "/")
	dir = p[:idx]
	if dir == "" {
		dir = "/"
	}
	base = p[idx+1:]
	return dir, base
}

func segments(p string) []string {
	p = clean(p)
	if p == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}
