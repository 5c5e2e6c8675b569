package vfs

import (
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	tests := map[string]struct {
		path string
		data []byte
	}{
		"simple file":  {path: "/home/user/a.txt", data: []byte("hello")},
		"empty file":   {path: "/home/user/empty.txt", data: []byte{}},
		"nested path":  {path: "/home/user/a/b/c.txt", data: []byte("nested")},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			fs := New()
			if dir, _ := splitParent(tc.path); dir != "/" {
				if err := fs.Mkdir(dir, true); err != nil {
					t.Fatalf("Mkdir(%q) = %v", dir, err)
				}
			}
			if err := fs.WriteFile(tc.path, tc.data); err != nil {
				t.Fatalf("WriteFile() = %v", err)
			}
			got, err := fs.ReadFile(tc.path)
			if err != nil {
				t.Fatalf("ReadFile() = %v", err)
			}
			if string(got) != string(tc.data) {
				t.Errorf("ReadFile() = %q, want %q", got, tc.data)
			}
			st, err := fs.Stat(tc.path)
			if err != nil {
				t.Fatalf("Stat() = %v", err)
			}
			if st.Size != int64(len(tc.data)) {
				t.Errorf("Stat().Size = %d, want %d", st.Size, len(tc.data))
			}
		})
	}
}

func TestMkdirRecursiveIdempotent(t *testing.T) {
	fs := New()
	if err := fs.Mkdir("/a/b/c", true); err != nil {
		t.Fatalf("first Mkdir() = %v", err)
	}
	if err := fs.Mkdir("/a/b/c", true); err != nil {
		t.Fatalf("second Mkdir() = %v", err)
	}
}

func TestMkdirWithoutRecursiveRequiresParent(t *testing.T) {
	fs := New()
	err := fs.Mkdir("/missing/child", false)
	if code, ok := CodeOf(err); !ok || code != ENOENT {
		t.Fatalf("Mkdir() err = %v, want ENOENT", err)
	}
}

func TestRenameMovesAndInvalidatesOldPath(t *testing.T) {
	fs := New()
	if err := fs.WriteFile("/tmp/a.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Rename("/tmp/a.txt", "/tmp/b.txt"); err != nil {
		t.Fatalf("Rename() = %v", err)
	}
	if _, err := fs.Stat("/tmp/a.txt"); err == nil {
		t.Fatalf("Stat(old path) should fail after rename")
	}
	got, err := fs.ReadFile("/tmp/b.txt")
	if err != nil || string(got) != "x" {
		t.Fatalf("ReadFile(new path) = %q, %v", got, err)
	}
}

func TestReaddirOnFileIsNotADirectory(t *testing.T) {
	fs := New()
	if err := fs.WriteFile("/tmp/f.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}
	_, err := fs.ReadDir("/tmp/f.txt")
	if code, ok := CodeOf(err); !ok || code != ENOTDIR {
		t.Fatalf("ReadDir(file) err = %v, want ENOTDIR", err)
	}
}

func TestOnChangeFiresAfterMutation(t *testing.T) {
	fs := New()
	var ops []string
	fs.OnChange(func(op, path string) {
		ops = append(ops, op+":"+path)
	})
	if err := fs.WriteFile("/tmp/x.txt", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 || ops[0] != "writeFile:/tmp/x.txt" {
		t.Fatalf("onChange events = %v", ops)
	}
}
