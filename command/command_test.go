package command

import "testing"

func TestRegisterLookupOverride(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", func(ctx *Context) (int, error) { return 0, nil })
	if _, ok := r.Lookup("echo"); !ok {
		t.Fatalf("expected echo to be registered")
	}

	r.Register("echo", func(ctx *Context) (int, error) { return 1, nil })
	fn, _ := r.Lookup("echo")
	code, err := fn(&Context{})
	if err != nil || code != 1 {
		t.Fatalf("expected the second registration to win: code=%d err=%v", code, err)
	}
}

func TestLookupMissing(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup("nope"); ok {
		t.Fatalf("expected nope to be unregistered")
	}
}

func TestNamesListsAllRegistered(t *testing.T) {
	r := NewRegistry()
	r.Register("a", func(*Context) (int, error) { return 0, nil })
	r.Register("b", func(*Context) (int, error) { return 0, nil })
	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("Names() = %v, want 2 entries", names)
	}
}
