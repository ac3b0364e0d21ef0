// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memunreachable implements an unreachable-memory detector for
// a running multithreaded process: a same-process, introspective
// mark phase that identifies allocations not transitively reachable
// from any live root (CPU registers, thread stacks, mapped globals).
// It is meant as a debugging probe for leaks in programs that manage
// their own heap (reached, for example, through cgo) rather than
// relying on a tracing collector.
//
// The detector does three things in sequence: it freezes every
// sibling OS thread long enough to read their registers and stack
// pointers, it forks so the mark/sweep walk can run against a
// copy-on-write snapshot of the frozen process without perturbing the
// live allocator, and it walks the heap conservatively, treating any
// pointer-sized, pointer-aligned word whose value falls inside a known
// allocation as a reference to it.
//
// It reports leaks; it does not reclaim them.
package memunreachable
