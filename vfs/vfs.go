// Package vfs implements the in-memory virtual filesystem: an inode
// tree with semantic type file|directory, a
// mount table that delegates operations to external providers by path
// prefix, and an onChange hook used by host-side observers (desktop icons,
// file explorers — out of scope here, only the hook is in scope).
package vfs

import (
	"sync"
	"time"
)

// NodeType is the semantic type of an inode.
type NodeType int

const (
	TypeFile NodeType = iota
	TypeDirectory
)

func (t NodeType) String() string {
	if t == TypeDirectory {
		return "directory"
	}
	return "file"
}

// Stat mirrors a stat() result.
type Stat struct {
	Type  NodeType
	Size  int64
	Mtime time.Time
	Ctime time.Time
	Mode  uint32
}

// DirEntry mirrors a readdir() result.
type DirEntry struct {
	Name string
	Type NodeType
}

// ChangeHook is invoked after every mutating operation.
type ChangeHook func(op, path string)

// inode is the tree node. Directories keep an ordered child table so
// readdir output is stable across runs without requiring a caller-visible
// sort; files keep content as a byte slice copy-on-write from the caller.
type inode struct {
	name     string
	typ      NodeType
	mode     uint32
	size     int64
	ctime    time.Time
	mtime    time.Time
	content  []byte
	children map[string]*inode
	order    []string
}

func newFileInode(name string, content []byte, mode uint32) *inode {
	now := time.Now()
	return &inode{
		name:    name,
		typ:     TypeFile,
		mode:    mode,
		size:    int64(len(content)),
		ctime:   now,
		mtime:   now,
		content: content,
	}
}

func newDirInode(name string, mode uint32) *inode {
	now := time.Now()
	return &inode{
		name:     name,
		typ:      TypeDirectory,
		mode:     mode,
		ctime:    now,
		mtime:    now,
		children: map[string]*inode{},
	}
}

func (n *inode) addChild(c *inode) {
	if _, exists := n.children[c.name]; !exists {
		n.order = append(n.order, c.name)
	}
	n.children[c.name] = c
}

func (n *inode) removeChild(name string) {
	delete(n.children, name)
	for i, v := range n.order {
		if v == name {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
}

// FS is the in-memory virtual filesystem. It also owns the mount table, so
// most operations first check whether the path falls under a mount prefix
// and delegate there before touching the in-memory tree at all.
type FS struct {
	mu      sync.RWMutex
	root    *inode
	mounts  map[string]MountProvider
	onChange []ChangeHook
}

// New creates an FS with the standard boot layout:
// /home/user, /tmp, /etc, /usr/lib/node_modules, /usr/share/pkg/node_modules,
// and /proc/version.
func New() *FS {
	fs := &FS{
		root:   newDirInode("/", 0o755),
		mounts: map[string]MountProvider{},
	}
	for _, d := range []string{
		"/home/user", "/tmp", "/etc",
		"/usr/lib/node_modules", "/usr/share/pkg/node_modules",
		"/proc",
	} {
		_ = fs.Mkdir(d, true)
	}
	_ = fs.WriteFile("/proc/version", []byte("lifosh 1.0.0 (posix-compatible virtual kernel)\n"))
	return fs
}

// OnChange registers a hook invoked after every mutating operation. The
// returned func deregisters it, used by fs.watch()'s close() in the
// node-compat shim.
func (fs *FS) OnChange(h ChangeHook) func() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	id := len(fs.onChange)
	fs.onChange = append(fs.onChange, h)
	return func() {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		if id < len(fs.onChange) {
			fs.onChange[id] = func(string, string) {}
		}
	}
}

func (fs *FS) notify(op, path string) {
	for _, h := range fs.onChange {
		if h != nil {
			h(op, path)
		}
	}
}

// lookup walks segs from the root, returning the node or nil. Caller must
// hold fs.mu.
func (fs *FS) lookup(p string) *inode {
	cur := fs.root
	for _, seg := range segments(p) {
		if cur.typ != TypeDirectory {
			return nil
		}
		next, ok := cur.children[seg]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}
