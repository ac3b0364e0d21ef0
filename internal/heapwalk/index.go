// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package heapwalk implements the heap walker: an interval index of
// known allocations plus the conservative mark/sweep traversal that
// finds everything reachable from the root set. This is the core of
// the collector; everything upstream (thread capture, mapping
// classification, the fork) exists to get this package a quiescent
// memory image and a seeded root set to work from.
package heapwalk

import (
	"fmt"
	"sort"
	"unsafe"

	"github.com/google/memunreachable/internal/arena"
	"github.com/google/memunreachable/internal/procmaps"
)

// allocEntry is one tracked allocation. Entries are never mutated
// except for the referenced bit, which the mark phase flips at most
// once per entry.
type allocEntry struct {
	begin, end procmaps.Address
	referenced bool
}

func (e *allocEntry) size() int64 { return e.end.Sub(e.begin) }

// AllocationIndex holds every known allocation for one collection,
// keyed by begin, with the invariant that no two entries overlap.
// Inserting an overlapping region is rejected rather than merged or
// replacing the earlier one: the allocator's enumeration is
// authoritative, so a conflicting insert (e.g. from the coarse
// anonymous-mapping fallback) is simply dropped.
//
// Both the entries themselves and the index's own backing array are
// drawn from a, the per-collection region allocator, when a is
// non-nil: an index built while the allocator under test is frozen
// must not turn around and allocate against the managed heap.
type AllocationIndex struct {
	a        *arena.Arena
	entries  []*allocEntry // sorted ascending by begin
	minBegin procmaps.Address
	maxEnd   procmaps.Address
}

// NewAllocationIndex returns an empty index. a may be nil, in which
// case the index falls back to ordinary Go-heap slices -- the case
// for tests run outside a real collection.
func NewAllocationIndex(a *arena.Arena) *AllocationIndex {
	return &AllocationIndex{a: a}
}

// Insert adds the interval [begin,end) to the index. It returns an
// error if the interval overlaps an existing one or is empty; the
// caller is expected to log the error and otherwise continue (see
// Walker.Allocation).
func (x *AllocationIndex) Insert(begin, end procmaps.Address) error {
	if end <= begin {
		return fmt.Errorf("heapwalk: empty or inverted allocation [%s,%s)", begin, end)
	}
	i := sort.Search(len(x.entries), func(i int) bool { return x.entries[i].begin >= begin })
	if i > 0 && x.entries[i-1].end > begin {
		return fmt.Errorf("heapwalk: allocation [%s,%s) overlaps existing [%s,%s)",
			begin, end, x.entries[i-1].begin, x.entries[i-1].end)
	}
	if i < len(x.entries) && x.entries[i].begin < end {
		return fmt.Errorf("heapwalk: allocation [%s,%s) overlaps existing [%s,%s)",
			begin, end, x.entries[i].begin, x.entries[i].end)
	}
	x.insertAt(i, x.newEntry(begin, end))
	if len(x.entries) == 1 || begin < x.minBegin {
		x.minBegin = begin
	}
	if end > x.maxEnd {
		x.maxEnd = end
	}
	return nil
}

// newEntry draws one allocEntry from the arena, or the Go heap if x
// was built without one.
func (x *AllocationIndex) newEntry(begin, end procmaps.Address) *allocEntry {
	if x.a == nil {
		return &allocEntry{begin: begin, end: end}
	}
	e, err := arena.New[allocEntry](x.a)
	if err != nil {
		return &allocEntry{begin: begin, end: end}
	}
	e.begin, e.end = begin, end
	return e
}

// insertAt inserts e at position i, keeping x.entries sorted. The
// backing array grows from the arena exactly the way arena.Vector
// grows its own, since a plain append here would be the one Go-heap
// allocation in this package's otherwise arena-backed per-collection
// state.
func (x *AllocationIndex) insertAt(i int, e *allocEntry) {
	n := len(x.entries)
	if x.a == nil {
		x.entries = append(x.entries, nil)
		copy(x.entries[i+1:], x.entries[i:n])
		x.entries[i] = e
		return
	}
	if n < cap(x.entries) {
		x.entries = x.entries[:n+1]
		copy(x.entries[i+1:], x.entries[i:n])
		x.entries[i] = e
		return
	}
	newCap := 2 * cap(x.entries)
	if newCap == 0 {
		newCap = 8
	}
	var zero *allocEntry
	p, err := x.a.Alloc(newCap*int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero)))
	if err != nil {
		// The arena is pre-reserved; only OOM-at-mmap-time fails, which
		// a fresh slab request further on would fail identically.
		x.entries = append(x.entries, nil)
		copy(x.entries[i+1:], x.entries[i:n])
		x.entries[i] = e
		return
	}
	grown := unsafe.Slice((**allocEntry)(p), newCap)
	copy(grown[:i], x.entries[:i])
	grown[i] = e
	copy(grown[i+1:n+1], x.entries[i:n])
	x.entries = grown[:n+1]
}

// Len returns the number of tracked allocations.
func (x *AllocationIndex) Len() int { return len(x.entries) }

// contains returns the entry whose interval contains a, or nil. A
// word-granular conservative scan looks up the interval containing a
// value, not one keyed by exact match against an allocation's base:
// interior pointers count as references.
func (x *AllocationIndex) contains(a procmaps.Address) *allocEntry {
	if a < x.minBegin || a >= x.maxEnd {
		return nil
	}
	i := sort.Search(len(x.entries), func(i int) bool { return x.entries[i].begin > a }) - 1
	if i < 0 {
		return nil
	}
	e := x.entries[i]
	if a >= e.begin && a < e.end {
		return e
	}
	return nil
}

// forEach calls fn for every entry in ascending begin order.
func (x *AllocationIndex) forEach(fn func(*allocEntry)) {
	for _, e := range x.entries {
		fn(e)
	}
}
