// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocator

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/google/memunreachable/internal/procmaps"
)

// Reference is a minimal malloc-style allocator: a single mmap'd
// anonymous region, bump-allocated. Freed space is not reused. It
// exists so this module is self-testable end-to-end without depending
// on an external allocator under test, the role spec.md leaves to an
// external collaborator.
//
// Reference's internal mutex is exported so callers can register it
// with the freeze scope (internal/freeze) the way a real allocator's
// fork-handler locks would be registered.
type Reference struct {
	Mu sync.Mutex // exported for freeze.Mutex(&ref.Mu)

	region []byte
	base   procmaps.Address

	bump  int
	live  map[procmaps.Address]int64 // base -> size, for allocations currently outstanding
}

// NewReference reserves an anonymous mapping of the given size to
// serve allocations from.
func NewReference(size int) (*Reference, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("allocator: mmap: %w", err)
	}
	return &Reference{
		region: mem,
		base:   procmaps.Address(uintptr(unsafe.Pointer(&mem[0]))),
		live:   make(map[procmaps.Address]int64),
	}, nil
}

// Alloc returns size bytes from the region.
func (r *Reference) Alloc(size int64) (procmaps.Address, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.bump+int(size) > len(r.region) {
		return 0, fmt.Errorf("allocator: out of space")
	}
	a := r.base.Add(int64(r.bump))
	r.bump += int(size)
	r.live[a] = size
	return a, nil
}

// Free releases the allocation at a.
func (r *Reference) Free(a procmaps.Address) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	delete(r.live, a)
}

// Write stores data at the allocation beginning at a, for tests that
// want to plant a pointer value inside a live allocation.
func (r *Reference) Write(a procmaps.Address, data []byte) {
	off := a.Sub(r.base)
	copy(r.region[off:], data)
}

// Range returns the mapping range backing this allocator, suitable for
// classify.Classify to recognize as a heap mapping once named
// appropriately by the caller's /proc/self/maps.
func (r *Reference) Range() (begin, end procmaps.Address) {
	return r.base, r.base.Add(int64(len(r.region)))
}

// EnumerateAllocations implements allocator.Enumerator. It does not
// take r.Mu, which the freeze scope already holds while the collector
// enumerates, and it does not allocate. Allocations are visited in no
// particular order.
func (r *Reference) EnumerateAllocations(begin, end procmaps.Address, cb EnumerateCallback) error {
	for a, size := range r.live {
		if a < begin || a >= end {
			continue
		}
		cb(a, size)
	}
	return nil
}

// Close unmaps the backing region.
func (r *Reference) Close() error {
	return unix.Munmap(r.region)
}

// LeakSample allocates a small block and drops the only reference to
// its address without freeing it. It exists for cmd/leakcheck's demo
// commands. r's region is an unnamed anonymous mapping, which
// classify.Classify places among the globals rather than the heap, so
// a collection does not enumerate r's blocks and does not report this
// one.
func LeakSample(r *Reference) {
	a, err := r.Alloc(64)
	if err != nil {
		return
	}
	_ = a // the address is intentionally not retained anywhere
}
