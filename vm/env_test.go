package vm

import "testing"

func TestEnvBindAndGet(t *testing.T) {
	env := NewEnv()
	if _, ok := env.Get("x"); ok {
		t.Fatal("fresh env should be empty")
	}
	if _, had := env.Bind("x", Int(1)); had {
		t.Error("first bind reported a previous value")
	}
	old, had := env.Bind("x", Int(2))
	if !had || old != Int(1) {
		t.Errorf("rebind returned %s, %v", old, had)
	}
	if v, _ := env.Get("x"); v != Int(2) {
		t.Errorf("x = %s, want 2", v)
	}
}

func TestEnvParentChain(t *testing.T) {
	root := NewEnv()
	root.Bind("a", Int(1))
	child := root.Extend()
	child.Bind("b", Int(2))

	if root.Refs() != 2 {
		t.Fatalf("root refs = %d, want 2", root.Refs())
	}
	if v, ok := child.Get("a"); !ok || v != Int(1) {
		t.Errorf("child sees a = %s (%v)", v, ok)
	}
	if _, ok := root.Get("b"); ok {
		t.Error("parent sees child binding")
	}

	child.Bind("a", Int(10))
	if v, _ := root.Get("a"); v != Int(1) {
		t.Errorf("child bind leaked into parent: a = %s", v)
	}
	if names := child.Names(); len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("child names = %v", names)
	}
}

func TestEnvReleaseFreesBindings(t *testing.T) {
	h := NewHeap()
	root := NewEnv()
	root.Bind("s", h.NewStringValue("root"))
	child := root.Extend()
	child.Bind("t", h.NewStringValue("child"))
	root.Release(h) // the child still holds root

	if h.Len() != 2 {
		t.Fatalf("heap has %d objects, want 2", h.Len())
	}
	if err := child.Release(h); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if h.Len() != 0 {
		t.Errorf("heap has %d objects, want 0", h.Len())
	}
	if root.Refs() != 0 || child.Parent() != nil {
		t.Errorf("root refs = %d, parent = %v", root.Refs(), child.Parent())
	}
}

func TestEnvExtraReleaseIsHarmless(t *testing.T) {
	h := NewHeap()
	env := NewEnv()
	env.Release(h)
	if err := env.Release(h); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if env.Refs() != 0 {
		t.Errorf("refs = %d, want 0", env.Refs())
	}
}
