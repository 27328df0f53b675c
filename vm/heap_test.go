package vm

import (
	"errors"
	"testing"
)

func TestHeapAllocateMonotonicIds(t *testing.T) {
	h := NewHeap()
	a := h.NewStringValue("a")
	b := h.NewStringValue("b")
	idA, _ := a.AsPtr()
	idB, _ := b.AsPtr()
	if idB <= idA {
		t.Fatalf("ids not increasing: %d then %d", idA, idB)
	}

	if err := h.Release(b); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	c := h.NewStringValue("c")
	idC, _ := c.AsPtr()
	if idC == idB {
		t.Errorf("id %d reused after release", idB)
	}
	if got := h.IDs(); len(got) != 2 || got[0] != idA || got[1] != idC {
		t.Errorf("IDs() = %v", got)
	}
}

func TestHeapRetainRelease(t *testing.T) {
	h := NewHeap()
	v := h.NewStringValue("x")
	id, _ := v.AsPtr()

	if err := h.Retain(v); err != nil {
		t.Fatalf("Retain failed: %v", err)
	}
	if h.RefCount(id) != 2 {
		t.Fatalf("refcount = %d, want 2", h.RefCount(id))
	}
	h.Release(v)
	if !h.Contains(id) {
		t.Fatal("object freed while still referenced")
	}
	h.Release(v)
	if h.Contains(id) {
		t.Fatal("object still live after last release")
	}
	if _, err := h.Lookup(id); !errors.Is(err, ErrUnknownHeapId) {
		t.Errorf("Lookup after free: expected UnknownHeapId, got %v", err)
	}
}

func TestHeapScalarsIgnored(t *testing.T) {
	h := NewHeap()
	for _, v := range []Value{Unit, True, Int(3), Prim("id"), None} {
		if err := h.Retain(v); err != nil {
			t.Errorf("Retain(%s): %v", v, err)
		}
		if err := h.Release(v); err != nil {
			t.Errorf("Release(%s): %v", v, err)
		}
	}
}

func TestHeapUnknownIds(t *testing.T) {
	h := NewHeap()
	if err := h.Retain(Ptr(7)); !errors.Is(err, ErrUnknownHeapId) {
		t.Errorf("Retain: expected UnknownHeapId, got %v", err)
	}
	if err := h.Release(Ptr(7)); !errors.Is(err, ErrUnknownHeapId) {
		t.Errorf("Release: expected UnknownHeapId, got %v", err)
	}
	if _, err := h.Deref(Int(7)); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Deref of int: expected TypeMismatch, got %v", err)
	}
}

func TestHeapReleaseIsRecursive(t *testing.T) {
	h := NewHeap()
	s := h.NewStringValue("shared")
	sid, _ := s.AsPtr()
	h.Retain(s) // one for the list, one kept here

	list := h.NewList(Int(1), s, Int(3))
	if h.Len() != 4 {
		t.Fatalf("heap has %d objects, want 4", h.Len())
	}
	items, err := h.ListValues(list)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}
	if len(items) != 3 || items[1] != s {
		t.Fatalf("items = %v", items)
	}

	if err := h.Release(list); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if h.Len() != 1 || h.RefCount(sid) != 1 {
		t.Errorf("after list release: len=%d refcount=%d", h.Len(), h.RefCount(sid))
	}
}

func TestHeapReleaseSharedTail(t *testing.T) {
	h := NewHeap()
	tail := h.NewList(Int(2))
	h.Retain(tail)
	a := h.Allocate(NewCons(Int(1), tail))
	b := h.Allocate(NewCons(Int(0), tail))

	h.Release(a)
	tid, _ := tail.AsPtr()
	if h.RefCount(tid) != 1 {
		t.Fatalf("tail refcount = %d, want 1", h.RefCount(tid))
	}
	h.Release(b)
	if h.Len() != 0 {
		t.Errorf("heap has %d objects, want 0", h.Len())
	}
}

func TestHeapLongListRelease(t *testing.T) {
	h := NewHeap()
	vs := make([]Value, 100000)
	for i := range vs {
		vs[i] = Int(int64(i))
	}
	list := h.NewList(vs...)
	if err := h.Release(list); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if h.Len() != 0 {
		t.Errorf("heap has %d objects", h.Len())
	}
}

func TestHeapReleaseStructAndSome(t *testing.T) {
	h := NewHeap()
	inner := h.NewStringValue("in")
	opt := h.Allocate(NewSome(inner))
	st := h.Allocate(NewStruct(Int(1), opt, True))

	if err := h.Release(st); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if h.Len() != 0 {
		t.Errorf("heap has %d objects, want 0", h.Len())
	}
}

func TestHeapBlockReleasesEnv(t *testing.T) {
	h := NewHeap()
	env := NewEnv()
	env.Bind("s", h.NewStringValue("captured"))

	blk := h.Allocate(NewBlockObject(NewBlock(NewCompiledCode("b", nil), env)))
	if env.Refs() != 2 {
		t.Fatalf("env refs = %d, want 2", env.Refs())
	}
	env.Release(h)
	if h.Len() != 2 {
		t.Fatalf("binding freed while block holds env")
	}
	h.Release(blk)
	if h.Len() != 0 {
		t.Errorf("heap has %d objects after block release", h.Len())
	}
}

func TestEmptyListIsNone(t *testing.T) {
	h := NewHeap()
	if v := h.NewList(); v != None {
		t.Errorf("NewList() = %s, want none", v)
	}
	items, err := h.ListValues(None)
	if err != nil || len(items) != 0 {
		t.Errorf("ListValues(none) = %v, %v", items, err)
	}
}
