// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package classify partitions a process's mappings into the sets the
// heap walker needs: heap, globals, and stacks. Executable and
// unreadable mappings are dropped outright, as are mappings that name
// nothing this collector understands.
package classify

import (
	"strings"

	"github.com/google/memunreachable/internal/arena"
	"github.com/google/memunreachable/internal/procmaps"
)

// LeakDetectorArenaName is the pseudo-name of the region allocator's
// own backing mapping (internal/arena). It must never be scanned as a
// root or treated as an allocation: scanning the collector's own
// working set would both self-reference and corrupt the leak report.
const LeakDetectorArenaName = "[anon:leak_detector_malloc]"

const (
	bssName        = "[anon:.bss]"
	mallocName     = "[anon:libc_malloc]"
	ashmemPrefix   = "/dev/ashmem/dalvik"
	stackPrefix    = "[stack"
	anonPrefix     = "[anon:"
)

// Classes is the result of classifying a process's mappings.
type Classes struct {
	Heap    []procmaps.Mapping
	Globals []procmaps.Mapping
	Stacks  []procmaps.Mapping
}

// Classify applies the classification rules to mappings, in order,
// preserving input order within each output list. a, if non-nil, backs
// the three output lists with the per-collection region allocator
// instead of the managed heap: Classify runs inside the forked child
// while the allocator under test is still held frozen, so its own
// bookkeeping must not touch that allocator either. Pass nil outside a
// real collection (e.g. from a test) for plain Go slices.
//
// Rules are evaluated in this priority order for each mapping:
//  1. executable mappings are dropped, but their name is remembered as
//     the "current library" so that a subsequent writable mapping with
//     the same name (its .data/.rodata) can be recognized as globals.
//  2. unreadable mappings are dropped.
//  3. "[anon:.bss]" -> globals.
//  4. name equal to the current library name -> globals.
//  5. "[anon:libc_malloc]" -> heap.
//  6. name starting with "/dev/ashmem/dalvik" -> globals (the managed
//     runtime's own heap is conservatively treated as a root, not a
//     scannable allocation set).
//  7. name starting with "[stack" -> stacks.
//  8. empty name -> globals.
//  9. name starting with "[anon:" other than LeakDetectorArenaName ->
//     globals. This is an acknowledged source of false negatives:
//     unreferenced memory backed by a named anonymous mapping can
//     never be reported as leaked.
//  10. anything else, including LeakDetectorArenaName itself, is
//     dropped.
func Classify(mappings []procmaps.Mapping, a *arena.Arena) Classes {
	var heap, globals, stacks *arena.Vector[procmaps.Mapping]
	var c Classes
	if a != nil {
		heap = arena.NewVector[procmaps.Mapping](a)
		globals = arena.NewVector[procmaps.Mapping](a)
		stacks = arena.NewVector[procmaps.Mapping](a)
	}
	addHeap := func(m procmaps.Mapping) {
		if heap != nil {
			heap.Append(m)
		} else {
			c.Heap = append(c.Heap, m)
		}
	}
	addGlobals := func(m procmaps.Mapping) {
		if globals != nil {
			globals.Append(m)
		} else {
			c.Globals = append(c.Globals, m)
		}
	}
	addStacks := func(m procmaps.Mapping) {
		if stacks != nil {
			stacks.Append(m)
		} else {
			c.Stacks = append(c.Stacks, m)
		}
	}

	currentLibrary := ""
	for _, m := range mappings {
		if m.Perm&procmaps.Exec != 0 {
			currentLibrary = m.Name
			continue
		}
		if m.Perm&procmaps.Read == 0 {
			continue
		}
		switch {
		case m.Name == bssName:
			addGlobals(m)
		case currentLibrary != "" && m.Name == currentLibrary:
			addGlobals(m)
		case m.Name == mallocName:
			addHeap(m)
		case strings.HasPrefix(m.Name, ashmemPrefix):
			addGlobals(m)
		case strings.HasPrefix(m.Name, stackPrefix):
			addStacks(m)
		case m.Name == "":
			addGlobals(m)
		case strings.HasPrefix(m.Name, anonPrefix) && m.Name != LeakDetectorArenaName:
			addGlobals(m)
		default:
			// Dropped. Includes LeakDetectorArenaName itself.
		}
	}
	if a != nil {
		c.Heap, c.Globals, c.Stacks = heap.Slice(), globals.Slice(), stacks.Slice()
	}
	return c
}
