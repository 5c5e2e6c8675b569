package job

import "testing"

func TestAddAllocatesFromOne(t *testing.T) {
	tb := New()
	id1 := tb.Add(10, "sleep 5 &")
	id2 := tb.Add(11, "make &")
	if id1 != 1 || id2 != 2 {
		t.Fatalf("Add() ids = %d, %d, want 1, 2", id1, id2)
	}
}

func TestSetStatusAndDrainDone(t *testing.T) {
	tb := New()
	id := tb.Add(10, "sleep 5 &")
	tb.SetStatus(id, Done)

	done := tb.DrainDone()
	if len(done) != 1 || done[0].ID != id {
		t.Fatalf("DrainDone() = %+v", done)
	}
	if _, ok := tb.Get(id); ok {
		t.Fatalf("job still present after DrainDone()")
	}
}

func TestListOrderedByID(t *testing.T) {
	tb := New()
	tb.Add(1, "a")
	tb.Add(2, "b")
	tb.Add(3, "c")
	list := tb.List()
	for i, j := range list {
		if j.ID != i+1 {
			t.Fatalf("List() not ordered: %+v", list)
		}
	}
}

func TestMostReturnsHighestID(t *testing.T) {
	tb := New()
	tb.Add(1, "a")
	second := tb.Add(2, "b")
	most, ok := tb.Most()
	if !ok || most.ID != second {
		t.Fatalf("Most() = %+v, %v, want job %d", most, ok, second)
	}
}

func TestMostOnEmptyTable(t *testing.T) {
	tb := New()
	if _, ok := tb.Most(); ok {
		t.Fatalf("Most() on empty table should report ok=false")
	}
}
