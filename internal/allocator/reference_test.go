// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocator

import (
	"testing"

	"github.com/google/memunreachable/internal/procmaps"
)

func TestReferenceAllocFree(t *testing.T) {
	r, err := NewReference(4096)
	if err != nil {
		t.Fatalf("NewReference: %v", err)
	}
	defer r.Close()

	a, err := r.Alloc(64)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	b, err := r.Alloc(64)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if a == b {
		t.Fatalf("two allocations returned the same address %v", a)
	}
}

func TestReferenceEnumerateAllocations(t *testing.T) {
	r, err := NewReference(4096)
	if err != nil {
		t.Fatalf("NewReference: %v", err)
	}
	defer r.Close()

	a, err := r.Alloc(32)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if _, err := r.Alloc(32); err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	r.Free(a)

	begin, end := r.Range()
	var seen int
	var sizes int64
	if err := r.EnumerateAllocations(begin, end, func(base procmaps.Address, size int64) {
		seen++
		sizes += size
	}); err != nil {
		t.Fatalf("EnumerateAllocations: %v", err)
	}
	if seen != 1 {
		t.Errorf("seen = %d allocations after one Free, want 1", seen)
	}
	if sizes != 32 {
		t.Errorf("sizes = %d, want 32", sizes)
	}
}

func TestReferenceOutOfSpace(t *testing.T) {
	r, err := NewReference(16)
	if err != nil {
		t.Fatalf("NewReference: %v", err)
	}
	defer r.Close()

	if _, err := r.Alloc(17); err == nil {
		t.Fatal("Alloc: want error allocating past arena size, got nil")
	}
}

func TestLeakSample(t *testing.T) {
	r, err := NewReference(4096)
	if err != nil {
		t.Fatalf("NewReference: %v", err)
	}
	defer r.Close()

	LeakSample(r)
	begin, end := r.Range()
	var count int
	if err := r.EnumerateAllocations(begin, end, func(base procmaps.Address, size int64) {
		count++
	}); err != nil {
		t.Fatalf("EnumerateAllocations: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 after LeakSample", count)
	}
}
