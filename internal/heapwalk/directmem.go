// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && (amd64 || arm64)

package heapwalk

import (
	"sort"
	"unsafe"

	"github.com/google/memunreachable/internal/procmaps"
)

// DirectMemory reads the victim's address space by dereferencing
// addresses directly. This is only valid from inside the forked
// collector child: because fork gives the child a copy-on-write image
// of the frozen parent's address space, an address that was valid in
// the parent is the very same local address in the child, so "reading
// victim memory" is just reading our own memory -- no ptrace peek
// required once past the fork.
//
// Every read is bounds-checked against the known-readable mapping
// ranges before the dereference, so an address outside any mapping
// never gets a raw pointer dereference (and the accompanying risk of
// SIGSEGV) -- it is simply reported unreadable.
type DirectMemory struct {
	ranges []addrRange // sorted, non-overlapping, ascending
}

type addrRange struct {
	begin, end procmaps.Address
}

// NewDirectMemory builds a DirectMemory that considers exactly the
// given mappings readable.
func NewDirectMemory(mappings []procmaps.Mapping) *DirectMemory {
	d := &DirectMemory{}
	for _, m := range mappings {
		if m.Perm&procmaps.Read == 0 {
			continue
		}
		d.ranges = append(d.ranges, addrRange{m.Begin, m.End})
	}
	sort.Slice(d.ranges, func(i, j int) bool { return d.ranges[i].begin < d.ranges[j].begin })
	return d
}

func (d *DirectMemory) readable(a procmaps.Address, n int64) bool {
	i := sort.Search(len(d.ranges), func(i int) bool { return d.ranges[i].end > a })
	if i >= len(d.ranges) {
		return false
	}
	r := d.ranges[i]
	return a >= r.begin && a.Add(n) <= r.end
}

// ReadWord implements Memory.
func (d *DirectMemory) ReadWord(a procmaps.Address) (uint64, bool) {
	if !d.readable(a, ptrWidth) {
		return 0, false
	}
	return *(*uint64)(unsafe.Pointer(uintptr(a))), true
}

// ReadBytes implements Memory.
func (d *DirectMemory) ReadBytes(a procmaps.Address, buf []byte) int {
	n := 0
	for n < len(buf) {
		if !d.readable(a.Add(int64(n)), 1) {
			break
		}
		buf[n] = *(*byte)(unsafe.Pointer(uintptr(a) + uintptr(n)))
		n++
	}
	return n
}
