package vm

import (
	"errors"
	"testing"
)

func TestStackPushPop(t *testing.T) {
	s := NewStack(2)
	ctx := s.NewContext()
	for i := 0; i < 5; i++ {
		s.Push(ctx, Int(int64(i)))
	}
	if ctx.Index != 5 || s.Len() != 5 {
		t.Fatalf("index=%d len=%d", ctx.Index, s.Len())
	}
	for i := 4; i >= 0; i-- {
		v, err := s.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop failed: %v", err)
		}
		if v != Int(int64(i)) {
			t.Errorf("Pop = %s, want %d", v, i)
		}
	}
	if _, err := s.Pop(ctx); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("Expected StackUnderflow, got %v", err)
	}
	if _, err := s.Top(ctx); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("Top of empty frame: expected StackUnderflow, got %v", err)
	}
}

func TestStackGetStore(t *testing.T) {
	s := NewStack(0)
	ctx := s.NewContext()
	s.Push(ctx, Int(1))
	s.Push(ctx, Int(2))

	if err := s.Store(ctx, 0, True); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if v, _ := s.Get(ctx, 0); v != True {
		t.Errorf("slot 0 = %s", v)
	}
	if v, _ := s.Top(ctx); v != Int(2) {
		t.Errorf("top = %s", v)
	}
	for _, i := range []int{-1, 2, 10} {
		if _, err := s.Get(ctx, i); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Get(%d): expected IndexOutOfRange, got %v", i, err)
		}
		if err := s.Store(ctx, i, Unit); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Store(%d): expected IndexOutOfRange, got %v", i, err)
		}
	}
}

func TestStackFramesAreIsolated(t *testing.T) {
	s := NewStack(0)
	outer := s.NewContext()
	s.Push(outer, Int(1))
	s.Push(outer, Int(2))

	inner := s.NewContext()
	if inner.Base != 2 {
		t.Fatalf("inner base = %d, want 2", inner.Base)
	}
	if _, err := s.Pop(inner); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("inner frame should not see outer slots, got %v", err)
	}
	s.Push(inner, Int(3))
	if v, _ := s.Get(inner, 0); v != Int(3) {
		t.Errorf("inner slot 0 = %s", v)
	}

	left := s.Discard(inner)
	if len(left) != 1 || left[0] != Int(3) {
		t.Errorf("Discard = %v", left)
	}
	if s.Len() != 2 {
		t.Errorf("len after discard = %d, want 2", s.Len())
	}
	if v, _ := s.Top(outer); v != Int(2) {
		t.Errorf("outer top = %s", v)
	}
}
