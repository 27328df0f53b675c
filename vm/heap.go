package vm

import "sort"

// ---------------------------------------------------------------------------
// Heap: reference-counted object arena
// ---------------------------------------------------------------------------

// heapEntry is a live object and its reference count. count is always >= 1
// while the entry is in the table.
type heapEntry struct {
	count uint64
	obj   *Object
}

// Heap owns every Object. Ids are handed out in increasing order and never
// reused within one Heap; a Ptr is a shared reference counted by Retain and
// Release.
type Heap struct {
	entries map[uint64]*heapEntry
	nextID  uint64
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{
		entries: make(map[uint64]*heapEntry),
		nextID:  1,
	}
}

// Allocate stores obj with a refcount of 1 and returns a Ptr to it.
// The caller owns that single reference.
func (h *Heap) Allocate(obj *Object) Value {
	id := h.nextID
	h.nextID++
	h.entries[id] = &heapEntry{count: 1, obj: obj}
	return Ptr(id)
}

// Lookup returns the object stored under id.
func (h *Heap) Lookup(id uint64) (*Object, error) {
	e, ok := h.entries[id]
	if !ok {
		return nil, newError(UnknownHeapId, "heap id %d", id)
	}
	return e.obj, nil
}

// Deref is Lookup for a Value. Non-pointer values fail with TypeMismatch.
func (h *Heap) Deref(v Value) (*Object, error) {
	id, ok := v.AsPtr()
	if !ok {
		return nil, newError(TypeMismatch, "expected ptr, got %s", v.Kind())
	}
	return h.Lookup(id)
}

// RefCount returns the reference count of id, or 0 if it is not live.
func (h *Heap) RefCount(id uint64) uint64 {
	if e, ok := h.entries[id]; ok {
		return e.count
	}
	return 0
}

// Contains reports whether id is live.
func (h *Heap) Contains(id uint64) bool {
	_, ok := h.entries[id]
	return ok
}

// Len returns the number of live objects.
func (h *Heap) Len() int {
	return len(h.entries)
}

// IDs returns the live ids in ascending order.
func (h *Heap) IDs() []uint64 {
	ids := make([]uint64, 0, len(h.entries))
	for id := range h.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Retain adds a reference to v. Scalars are accepted and ignored.
func (h *Heap) Retain(v Value) error {
	id, ok := v.AsPtr()
	if !ok {
		return nil
	}
	e, ok := h.entries[id]
	if !ok {
		return newError(UnknownHeapId, "retain of heap id %d", id)
	}
	e.count++
	return nil
}

// RetainAll retains each value in vs.
func (h *Heap) RetainAll(vs []Value) error {
	for _, v := range vs {
		if err := h.Retain(v); err != nil {
			return err
		}
	}
	return nil
}

// Release drops a reference to v. Scalars are accepted and ignored.
//
// When the last reference goes, the entry is removed immediately and every
// value the object owns is released in turn: list head and tail, some
// payload, struct fields, a block's environment and code object, and a code
// object's constant pool. Release walks an explicit worklist so long lists
// do not grow the Go stack.
func (h *Heap) Release(v Value) error {
	id, ok := v.AsPtr()
	if !ok {
		return nil
	}
	if _, ok := h.entries[id]; !ok {
		return newError(UnknownHeapId, "release of heap id %d", id)
	}

	var firstErr error
	work := []Value{v}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]

		id, ok := cur.AsPtr()
		if !ok {
			continue
		}
		e, ok := h.entries[id]
		if !ok {
			if firstErr == nil {
				firstErr = newError(UnknownHeapId, "release of heap id %d", id)
			}
			continue
		}
		if e.count > 1 {
			e.count--
			continue
		}

		delete(h.entries, id)
		work = append(work, e.obj.children()...)
		if e.obj.Kind == ObjBlock && e.obj.Block != nil {
			if err := e.obj.Block.Env.Release(h); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ReleaseAll releases each value in vs, reporting the first failure.
func (h *Heap) ReleaseAll(vs []Value) error {
	var firstErr error
	for _, v := range vs {
		if err := h.Release(v); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ---------------------------------------------------------------------------
// Convenience allocators
// ---------------------------------------------------------------------------

// NewStringValue allocates a string object.
func (h *Heap) NewStringValue(s string) Value {
	return h.Allocate(NewString(s))
}

// NewList builds a list from vs, taking ownership of each element. An empty
// slice yields None.
func (h *Heap) NewList(vs ...Value) Value {
	rest := None
	for i := len(vs) - 1; i >= 0; i-- {
		rest = h.Allocate(NewCons(vs[i], rest))
	}
	return rest
}

// ListValues walks a list starting at v and returns its elements without
// touching refcounts. None is the empty list.
func (h *Heap) ListValues(v Value) ([]Value, error) {
	var out []Value
	for !v.IsNone() {
		obj, err := h.Deref(v)
		if err != nil {
			return nil, err
		}
		if obj.Kind != ObjList {
			return nil, newError(TypeMismatch, "expected list, got %s", obj.Kind)
		}
		out = append(out, obj.Head)
		if !obj.HasTail {
			break
		}
		v = Ptr(obj.Tail)
	}
	return out, nil
}
