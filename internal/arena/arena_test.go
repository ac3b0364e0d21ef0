// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package arena

import (
	"testing"
	"unsafe"
)

func TestAllocAlignment(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	for _, align := range []int{1, 2, 4, 8, 16} {
		p, err := a.Alloc(align, align)
		if err != nil {
			t.Fatalf("Alloc(align=%d): %v", align, err)
		}
		if uintptr(p)%uintptr(align) != 0 {
			t.Errorf("Alloc(align=%d) = %p, not aligned", align, p)
		}
	}
}

func TestAllocCrossesSlab(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	// Force a second slab by allocating more than one slab's worth in
	// small pieces.
	const chunk = 4096
	n := (slabSize / chunk) + 4
	var last unsafe.Pointer
	for i := 0; i < n; i++ {
		p, err := a.Alloc(chunk, 8)
		if err != nil {
			t.Fatalf("Alloc #%d: %v", i, err)
		}
		last = p
	}
	if len(a.slabs) < 2 {
		t.Errorf("len(slabs) = %d, want >= 2 after overflowing one slab", len(a.slabs))
	}
	if last == nil {
		t.Fatal("last allocation is nil")
	}
}

func TestAllocLargerThanSlab(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	p, err := a.Alloc(slabSize*2, 8)
	if err != nil {
		t.Fatalf("Alloc(oversized): %v", err)
	}
	if p == nil {
		t.Fatal("Alloc(oversized) returned nil")
	}
}

func TestTypedNew(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	type pair struct{ x, y int64 }
	p, err := New[pair](a)
	if err != nil {
		t.Fatalf("arena.New[pair]: %v", err)
	}
	if p.x != 0 || p.y != 0 {
		t.Errorf("New[pair] not zeroed: %+v", *p)
	}
	p.x, p.y = 1, 2
	if p.x != 1 || p.y != 2 {
		t.Errorf("write to arena-backed value did not stick: %+v", *p)
	}
}

func TestVector(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release()

	v := NewVector[int](a)
	for i := 0; i < 100; i++ {
		v.Append(i)
	}
	if v.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", v.Len())
	}
	for i := 0; i < 100; i++ {
		if v.At(i) != i {
			t.Errorf("At(%d) = %d, want %d", i, v.At(i), i)
		}
	}
	s := v.Slice()
	if len(s) != 100 {
		t.Fatalf("len(Slice()) = %d, want 100", len(s))
	}
}
