package vfs

import "fmt"

// Code is a POSIX-style error code attached to every VFS failure.
type Code string

const (
	ENOENT  Code = "ENOENT"
	ENOTDIR Code = "ENOTDIR"
	EEXIST  Code = "EEXIST"
	EISDIR  Code = "EISDIR"
	EACCES  Code = "EACCES"
	EBADF   Code = "EBADF"
)

// PathError is the typed error every VFS and mount-provider operation raises.
type PathError struct {
	Op   string
	Path string
	Code Code
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Code)
}

func newErr(op, path string, code Code) error {
	return &PathError{Op: op, Path: path, Code: code}
}

// CodeOf extracts the POSIX code from err, if it is (or wraps) a *PathError.
func CodeOf(err error) (Code, bool) {
	var pe *PathError
	if pe, ok := asPathError(err); ok {
		return pe.Code, true
	}
	_ = pe
	return "", false
}

func asPathError(err error) (*PathError, bool) {
	for err != nil {
		if pe, ok := err.(*PathError); ok {
			return pe, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
