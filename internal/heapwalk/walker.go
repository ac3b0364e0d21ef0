// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heapwalk

import (
	"encoding/binary"
	"sort"
	"unsafe"

	"github.com/google/memunreachable/internal/arena"
	"github.com/google/memunreachable/internal/procmaps"
)

// ptrWidth is the stride of the conservative scan. Both supported
// architectures (amd64, arm64) are 64-bit.
const ptrWidth = 8

// ContentsLen is the fixed ceiling on bytes copied from the start of
// a reported leak.
const ContentsLen = 32

// A Region is a byte range to be scanned as pointer-bearing memory
// during the mark phase.
type Region struct {
	Begin, End procmaps.Address
}

// A Walker owns the allocation index for one collection and runs the
// mark/sweep traversal over it. It is not safe for concurrent use: the
// coordinator builds and drives exactly one Walker per collection,
// single-threaded, inside the forked child.
type Walker struct {
	mem   Memory
	a     *arena.Arena
	index *AllocationIndex

	rootVec    *arena.Vector[Region]
	roots      []Region // used when a is nil
	regBlobVec *arena.Vector[[]byte]
	regBlobs   [][]byte // register files, copied at queue time; used when a is nil
	logf       func(format string, args ...interface{})
}

// NewWalker returns a Walker that reads victim memory through mem. a,
// if non-nil, is the per-collection region allocator backing the
// allocation index and every root/register buffer the walker
// accumulates; pass nil outside a real collection (e.g. from a test)
// to fall back to the managed heap. logf receives one line per
// rejected (overlapping) allocation insert; pass nil to discard.
func NewWalker(mem Memory, a *arena.Arena, logf func(string, ...interface{})) *Walker {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	w := &Walker{
		mem:   mem,
		a:     a,
		index: NewAllocationIndex(a),
		logf:  logf,
	}
	if a != nil {
		w.rootVec = arena.NewVector[Region](a)
		w.regBlobVec = arena.NewVector[[]byte](a)
	}
	return w
}

// Allocation records a known allocation [begin,end). An overlapping
// insert is logged and the new region is dropped: the allocator's
// enumeration is authoritative over any coarser fallback expansion.
func (w *Walker) Allocation(begin, end procmaps.Address) {
	if err := w.index.Insert(begin, end); err != nil {
		w.logf("%v", err)
	}
}

// NumAllocations returns how many allocations are currently tracked.
func (w *Walker) NumAllocations() int { return w.index.Len() }

// AllocationBytes returns the sum of all tracked allocations' sizes.
func (w *Walker) AllocationBytes() int64 {
	var total int64
	w.index.forEach(func(e *allocEntry) { total += e.size() })
	return total
}

// Root queues [begin,end) to be scanned as a root during Mark.
func (w *Walker) Root(begin, end procmaps.Address) {
	r := Region{Begin: begin, End: end}
	if w.rootVec != nil {
		w.rootVec.Append(r)
		return
	}
	w.roots = append(w.roots, r)
}

// RootBytes queues a small fixed buffer -- typically a captured
// register file -- to be scanned as a root. The bytes are copied
// because the source may live on the capture thread's stack, which is
// not guaranteed to outlive this call.
func (w *Walker) RootBytes(b []byte) {
	var cp []byte
	if w.a != nil {
		p, err := w.a.Alloc(len(b), 1)
		if err != nil {
			// The arena is pre-reserved for the collection; this should
			// not happen in practice, but fall back rather than drop the
			// root silently.
			cp = make([]byte, len(b))
		} else {
			cp = unsafe.Slice((*byte)(p), len(b))
		}
	} else {
		cp = make([]byte, len(b))
	}
	copy(cp, b)
	if w.regBlobVec != nil {
		w.regBlobVec.Append(cp)
		return
	}
	w.regBlobs = append(w.regBlobs, cp)
}

// walkRoots and walkRegBlobs iterate the queued roots/register blobs
// regardless of whether they are arena- or heap-backed.
func (w *Walker) walkRoots(fn func(Region)) {
	if w.rootVec != nil {
		for i := 0; i < w.rootVec.Len(); i++ {
			fn(w.rootVec.At(i))
		}
		return
	}
	for _, r := range w.roots {
		fn(r)
	}
}

func (w *Walker) walkRegBlobs(fn func([]byte)) {
	if w.regBlobVec != nil {
		for i := 0; i < w.regBlobVec.Len(); i++ {
			fn(w.regBlobVec.At(i))
		}
		return
	}
	for _, b := range w.regBlobs {
		fn(b)
	}
}

// Mark runs the conservative mark phase to a fixpoint: every
// allocation transitively reachable from the queued roots has its
// referenced bit set. Mark is idempotent -- running it again over an
// unchanged graph cannot change any referenced bit, since an
// allocation is enqueued only the first time it is marked.
func (w *Walker) Mark() {
	var queue []*allocEntry

	add := func(val uint64) {
		a := procmaps.Address(val)
		e := w.index.contains(a)
		if e == nil || e.referenced {
			return
		}
		e.referenced = true
		queue = append(queue, e)
	}

	w.walkRoots(func(r Region) { w.scanRegion(r.Begin, r.End, add) })
	w.walkRegBlobs(func(b []byte) { scanBytes(b, add) })

	for len(queue) > 0 {
		e := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		w.scanRegion(e.begin, e.end, add)
	}
}

// scanRegion reads each pointer-sized, pointer-aligned word in
// [begin,end) from victim memory and calls add with its value.
func (w *Walker) scanRegion(begin, end procmaps.Address, add func(uint64)) {
	for a := alignDown(begin); a+ptrWidth <= end; a += ptrWidth {
		val, ok := w.mem.ReadWord(a)
		if !ok {
			continue
		}
		add(val)
	}
}

func alignDown(a procmaps.Address) procmaps.Address {
	return a &^ (ptrWidth - 1)
}

// scanBytes treats b as a sequence of little-endian 8-byte words and
// calls add with each one. Used for register blobs, which are not
// addresses into victim memory themselves but a buffer of raw
// candidate pointer values.
func scanBytes(b []byte, add func(uint64)) {
	for len(b) >= ptrWidth {
		add(binary.LittleEndian.Uint64(b[:ptrWidth]))
		b = b[ptrWidth:]
	}
}

// A Leak describes one unreachable allocation.
type Leak struct {
	Begin    procmaps.Address
	Size     int64
	Contents [ContentsLen]byte
}

// Info summarizes one collection's results.
type Info struct {
	NumAllocations  int
	AllocationBytes int64
	NumLeaks        int
	LeakBytes       int64
	Leaks           []Leak
}

// Sweep iterates the allocation index and reports every allocation
// whose referenced bit is unset as a leak. Up to limit leaks are
// returned, sorted by decreasing size (ties broken by ascending
// begin); NumLeaks and LeakBytes always reflect the true totals even
// when the returned slice is truncated.
func (w *Walker) Sweep(limit int) Info {
	info := Info{
		NumAllocations:  w.index.Len(),
		AllocationBytes: w.AllocationBytes(),
	}

	var leaked []*allocEntry
	w.index.forEach(func(e *allocEntry) {
		if !e.referenced {
			leaked = append(leaked, e)
		}
	})

	info.NumLeaks = len(leaked)
	for _, e := range leaked {
		info.LeakBytes += e.size()
	}

	sort.Slice(leaked, func(i, j int) bool {
		if leaked[i].size() != leaked[j].size() {
			return leaked[i].size() > leaked[j].size()
		}
		return leaked[i].begin < leaked[j].begin
	})
	if limit >= 0 && len(leaked) > limit {
		leaked = leaked[:limit]
	}

	info.Leaks = make([]Leak, len(leaked))
	for i, e := range leaked {
		lk := Leak{Begin: e.begin, Size: e.size()}
		n := e.size()
		if n > ContentsLen {
			n = ContentsLen
		}
		buf := make([]byte, n)
		got := w.mem.ReadBytes(e.begin, buf)
		copy(lk.Contents[:], buf[:got])
		// Remainder of lk.Contents stays zero-filled if got < n.
		info.Leaks[i] = lk
	}
	return info
}

// Leaked runs Mark followed by Sweep, matching the combined operation
// named in the component design.
func (w *Walker) Leaked(limit int) Info {
	w.Mark()
	return w.Sweep(limit)
}
