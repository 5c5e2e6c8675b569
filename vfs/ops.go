package vfs

import (
	"time"
)

// ReadFile returns the raw bytes stored at path.
func (fs *FS) ReadFile(path string) ([]byte, error) {
	if p, rel, ok := fs.mountFor(path); ok {
		return p.ReadFile(rel)
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	n := fs.lookup(path)
	if n == nil {
		return nil, newErr("readFile", path, ENOENT)
	}
	if n.typ != TypeFile {
		return nil, newErr("readFile", path, EISDIR)
	}
	out := make([]byte, len(n.content))
	copy(out, n.content)
	return out, nil
}

// ReadFileString decodes the file content as UTF-8.
func (fs *FS) ReadFileString(path string) (string, error) {
	b, err := fs.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteFile creates or truncates path with data. The parent directory must
// already exist.
func (fs *FS) WriteFile(path string, data []byte) error {
	if p, rel, ok := fs.mountFor(path); ok {
		if err := p.WriteFile(rel, data); err != nil {
			return err
		}
		fs.notify("writeFile", path)
		return nil
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir, base := splitParent(path)
	if base == "" {
		return newErr("writeFile", path, EISDIR)
	}
	parent := fs.lookup(dir)
	if parent == nil {
		return newErr("writeFile", path, ENOENT)
	}
	if parent.typ != TypeDirectory {
		return newErr("writeFile", path, ENOTDIR)
	}
	if existing, ok := parent.children[base]; ok {
		if existing.typ == TypeDirectory {
			return newErr("writeFile", path, EISDIR)
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		existing.content = cp
		existing.size = int64(len(cp))
		existing.mtime = time.Now()
	} else {
		cp := make([]byte, len(data))
		copy(cp, data)
		parent.addChild(newFileInode(base, cp, 0o644))
	}
	fs.notify("writeFile", path)
	return nil
}

// AppendFile appends data to the file at path, creating it if absent.
func (fs *FS) AppendFile(path string, data []byte) error {
	if p, rel, ok := fs.mountFor(path); ok {
		if err := p.AppendFile(rel, data); err != nil {
			return err
		}
		fs.notify("appendFile", path)
		return nil
	}
	existing, err := fs.ReadFile(path)
	if err != nil {
		if code, _ := CodeOf(err); code != ENOENT {
			return err
		}
		existing = nil
	}
	return fs.WriteFile(path, append(existing, data...))
}

// Exists reports whether path resolves to any inode.
func (fs *FS) Exists(path string) bool {
	if p, rel, ok := fs.mountFor(path); ok {
		return p.Exists(rel)
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.lookup(path) != nil
}

// Stat returns inode metadata.
func (fs *FS) Stat(path string) (Stat, error) {
	if p, rel, ok := fs.mountFor(path); ok {
		return p.Stat(rel)
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	n := fs.lookup(path)
	if n == nil {
		return Stat{}, newErr("stat", path, ENOENT)
	}
	return Stat{Type: n.typ, Size: n.size, Mtime: n.mtime, Ctime: n.ctime, Mode: n.mode}, nil
}

// ReadDir lists path's children. Order is insertion order, since
// insertion order is as good as any other stable order here.
func (fs *FS) ReadDir(path string) ([]DirEntry, error) {
	if p, rel, ok := fs.mountFor(path); ok {
		return p.ReadDir(rel)
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	n := fs.lookup(path)
	if n == nil {
		return nil, newErr("readdir", path, ENOENT)
	}
	if n.typ != TypeDirectory {
		return nil, newErr("readdir", path, ENOTDIR)
	}
	out := make([]DirEntry, 0, len(n.order))
	for _, name := range n.order {
		c := n.children[name]
		out = append(out, DirEntry{Name: c.name, Type: c.typ})
	}
	return out, nil
}

// Mkdir creates a directory. Without recursive, the parent must exist
// (ENOENT otherwise); with recursive, repeated calls succeed idempotently.
func (fs *FS) Mkdir(path string, recursive bool) error {
	if p, rel, ok := fs.mountFor(path); ok {
		if err := p.Mkdir(rel, recursive); err != nil {
			return err
		}
		fs.notify("mkdir", path)
		return nil
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !recursive {
		dir, base := splitParent(path)
		parent := fs.lookup(dir)
		if parent == nil {
			return newErr("mkdir", path, ENOENT)
		}
		if parent.typ != TypeDirectory {
			return newErr("mkdir", path, ENOTDIR)
		}
		if existing, ok := parent.children[base]; ok {
			if existing.typ == TypeDirectory {
				return newErr("mkdir", path, EEXIST)
			}
			return newErr("mkdir", path, EEXIST)
		}
		parent.addChild(newDirInode(base, 0o755))
		fs.notify("mkdir", path)
		return nil
	}

	cur := fs.root
	for _, seg := range segments(path) {
		next, ok := cur.children[seg]
		if !ok {
			next = newDirInode(seg, 0o755)
			cur.addChild(next)
		} else if next.typ != TypeDirectory {
			return newErr("mkdir", path, ENOTDIR)
		}
		cur = next
	}
	fs.notify("mkdir", path)
	return nil
}

// Rmdir removes an empty directory.
func (fs *FS) Rmdir(path string) error {
	if p, rel, ok := fs.mountFor(path); ok {
		if err := p.Rmdir(rel); err != nil {
			return err
		}
		fs.notify("rmdir", path)
		return nil
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dir, base := splitParent(path)
	parent := fs.lookup(dir)
	if parent == nil {
		return newErr("rmdir", path, ENOENT)
	}
	target, ok := parent.children[base]
	if !ok {
		return newErr("rmdir", path, ENOENT)
	}
	if target.typ != TypeDirectory {
		return newErr("rmdir", path, ENOTDIR)
	}
	if len(target.order) > 0 {
		return newErr("rmdir", path, EACCES)
	}
	parent.removeChild(base)
	fs.notify("rmdir", path)
	return nil
}

// RmdirRecursive removes a directory and everything under it.
func (fs *FS) RmdirRecursive(path string) error {
	if p, rel, ok := fs.mountFor(path); ok {
		if err := p.RmdirRecursive(rel); err != nil {
			return err
		}
		fs.notify("rmdirRecursive", path)
		return nil
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dir, base := splitParent(path)
	parent := fs.lookup(dir)
	if parent == nil {
		return newErr("rmdirRecursive", path, ENOENT)
	}
	target, ok := parent.children[base]
	if !ok {
		return newErr("rmdirRecursive", path, ENOENT)
	}
	if target.typ != TypeDirectory {
		return newErr("rmdirRecursive", path, ENOTDIR)
	}
	parent.removeChild(base)
	fs.notify("rmdirRecursive", path)
	return nil
}

// Unlink removes a file.
func (fs *FS) Unlink(path string) error {
	if p, rel, ok := fs.mountFor(path); ok {
		if err := p.Unlink(rel); err != nil {
			return err
		}
		fs.notify("unlink", path)
		return nil
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dir, base := splitParent(path)
	parent := fs.lookup(dir)
	if parent == nil {
		return newErr("unlink", path, ENOENT)
	}
	target, ok := parent.children[base]
	if !ok {
		return newErr("unlink", path, ENOENT)
	}
	if target.typ == TypeDirectory {
		return newErr("unlink", path, EISDIR)
	}
	parent.removeChild(base)
	fs.notify("unlink", path)
	return nil
}

// Rename moves from to to. If both paths fall under the same in-memory
// tree this is an atomic pointer move; across mount boundaries (or between
// a mount and the in-memory tree) it falls back to copy-then-unlink, as
// is conventional for an in-memory tree.
func (fs *FS) Rename(from, to string) error {
	fromProvider, fromRel, fromMounted := fs.mountFor(from)
	toProvider, toRel, toMounted := fs.mountFor(to)

	switch {
	case fromMounted && toMounted && fromProvider == toProvider:
		if err := fromProvider.Rename(fromRel, toRel); err != nil {
			return err
		}
		fs.notify("rename", to)
		return nil
	case !fromMounted && !toMounted:
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fromDir, fromBase := splitParent(from)
		parent := fs.lookup(fromDir)
		if parent == nil {
			return newErr("rename", from, ENOENT)
		}
		node, ok := parent.children[fromBase]
		if !ok {
			return newErr("rename", from, ENOENT)
		}
		toDir, toBase := splitParent(to)
		toParent := fs.lookup(toDir)
		if toParent == nil {
			return newErr("rename", to, ENOENT)
		}
		if toParent.typ != TypeDirectory {
			return newErr("rename", to, ENOTDIR)
		}
		parent.removeChild(fromBase)
		node.name = toBase
		toParent.addChild(node)
		fs.notify("rename", to)
		return nil
	default:
		if err := fs.CopyFile(from, to); err != nil {
			return err
		}
		if err := fs.Unlink(from); err != nil {
			return err
		}
		return nil
	}
}

// CopyFile copies the file content at from to to.
func (fs *FS) CopyFile(from, to string) error {
	data, err := fs.ReadFile(from)
	if err != nil {
		return err
	}
	return fs.WriteFile(to, data)
}
