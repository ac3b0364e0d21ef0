// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arena implements the slab allocator that backs every
// temporary container built during a collection. The process's normal
// allocator is frozen for the duration of the freeze scope; any
// accidental allocation against it would deadlock or observe torn
// allocator state, so every container used between freeze and release
// must draw its memory from here instead.
package arena

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// slabSize is the size of each backing mmap region requested from the
// OS. Requests larger than a single slab get their own dedicated
// mapping.
const slabSize = 1 << 20 // 1MB

// An Arena is a bump-pointer slab allocator. It is never freed
// incrementally: Release unmaps every slab at once when a collection
// ends. An Arena is safe for concurrent use by multiple goroutines.
type Arena struct {
	mu    sync.Mutex
	slabs []slab
	cur   int // index into slabs of the slab currently being filled
}

type slab struct {
	mem  []byte
	used int
}

// New creates an Arena with one slab already reserved.
func New() (*Arena, error) {
	a := &Arena{}
	if err := a.addSlab(slabSize); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Arena) addSlab(size int) error {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return fmt.Errorf("arena: mmap %d bytes: %w", size, err)
	}
	a.slabs = append(a.slabs, slab{mem: mem})
	a.cur = len(a.slabs) - 1
	return nil
}

// Alloc returns size bytes aligned to align, drawn from the arena's
// backing mmap regions rather than the managed heap. align must be a
// power of two.
func (a *Arena) Alloc(size, align int) (unsafe.Pointer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if size > slabSize {
		if err := a.addSlabLocked(size + align); err != nil {
			return nil, err
		}
		s := &a.slabs[len(a.slabs)-1]
		p := alignUp(s.mem, s.used, align)
		s.used = p + size
		return unsafe.Pointer(&s.mem[p]), nil
	}

	s := &a.slabs[a.cur]
	p := alignUp(s.mem, s.used, align)
	if p+size > len(s.mem) {
		if err := a.addSlabLocked(slabSize); err != nil {
			return nil, err
		}
		s = &a.slabs[a.cur]
		p = alignUp(s.mem, s.used, align)
	}
	s.used = p + size
	return unsafe.Pointer(&s.mem[p]), nil
}

func (a *Arena) addSlabLocked(size int) error {
	if size < slabSize {
		size = slabSize
	}
	return a.addSlab(size)
}

func alignUp(mem []byte, off, align int) int {
	base := uintptr(unsafe.Pointer(&mem[0]))
	want := (uintptr(off) + base + uintptr(align-1)) &^ uintptr(align-1)
	return int(want - base)
}

// Release unmaps every slab. The Arena must not be used afterward.
func (a *Arena) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for _, s := range a.slabs {
		if err := unix.Munmap(s.mem); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.slabs = nil
	return firstErr
}
