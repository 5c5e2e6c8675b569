package vfs

import "strings"

// MountProvider implements the same operation surface as the in-memory
// store ("mount providers must implement the same operation set"), for any
// backing store a host wants to graft onto the tree with Mount. This
// package ships no provider of its own.
type MountProvider interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	AppendFile(path string, data []byte) error
	Exists(path string) bool
	Stat(path string) (Stat, error)
	ReadDir(path string) ([]DirEntry, error)
	Mkdir(path string, recursive bool) error
	Rmdir(path string) error
	RmdirRecursive(path string) error
	Unlink(path string) error
	Rename(from, to string) error
	CopyFile(from, to string) error
}

// Mount attaches provider at pathPrefix; every operation under that prefix
// is transparently delegated to it.
func (fs *FS) Mount(pathPrefix string, provider MountProvider) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.mounts[clean(pathPrefix)] = provider
}

// Unmount detaches the provider previously registered at pathPrefix.
func (fs *FS) Unmount(pathPrefix string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.mounts, clean(pathPrefix))
}

// mountFor returns the provider owning p (the longest matching prefix) and
// the path relative to that mount, or ok=false if p isn't mounted.
func (fs *FS) mountFor(p string) (provider MountProvider, rel string, ok bool) {
	p = clean(p)
	var bestPrefix string
	for prefix := range fs.mounts {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			if len(prefix) > len(bestPrefix) {
				bestPrefix = prefix
			}
		}
	}
	if bestPrefix == "" {
		return nil, "", false
	}
	rel = strings.TrimPrefix(p, bestPrefix)
	if rel == "" {
		rel = "/"
	}
	return fs.mounts[bestPrefix], rel, true
}
