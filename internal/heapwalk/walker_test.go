// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heapwalk

import (
	"encoding/binary"
	"testing"

	"github.com/google/memunreachable/internal/procmaps"
)

// fakeMemory is a small synthetic address space for exercising the
// mark/sweep algorithm without a real ptrace session or fork.
type fakeMemory struct {
	base procmaps.Address
	buf  []byte
}

func newFakeMemory(base procmaps.Address, size int) *fakeMemory {
	return &fakeMemory{base: base, buf: make([]byte, size)}
}

func (f *fakeMemory) putWord(a procmaps.Address, v uint64) {
	off := a.Sub(f.base)
	binary.LittleEndian.PutUint64(f.buf[off:off+8], v)
}

func (f *fakeMemory) ReadWord(a procmaps.Address) (uint64, bool) {
	off := a.Sub(f.base)
	if off < 0 || off+8 > int64(len(f.buf)) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(f.buf[off : off+8]), true
}

func (f *fakeMemory) ReadBytes(a procmaps.Address, buf []byte) int {
	off := a.Sub(f.base)
	n := 0
	for n < len(buf) {
		if off+int64(n) < 0 || off+int64(n) >= int64(len(f.buf)) {
			break
		}
		buf[n] = f.buf[off+int64(n)]
		n++
	}
	return n
}

func TestCleanNoLeaks(t *testing.T) {
	// S1: a 64-byte allocation referenced from a global.
	mem := newFakeMemory(0x1000, 0x200)
	w := NewWalker(mem, nil, nil)
	w.Allocation(0x1000, 0x1040)
	mem.putWord(0x1100, 0x1000) // global points at the allocation
	w.Root(0x1100, 0x1108)

	info := w.Leaked(-1)
	if info.NumLeaks != 0 {
		t.Fatalf("NumLeaks = %d, want 0", info.NumLeaks)
	}
}

func TestPureLeak(t *testing.T) {
	// S2: a 100-byte allocation whose sole pointer has been zeroed.
	mem := newFakeMemory(0x1000, 0x200)
	w := NewWalker(mem, nil, nil)
	w.Allocation(0x1000, 0x1064) // 100 bytes
	mem.putWord(0x1100, 0)
	w.Root(0x1100, 0x1108)

	info := w.Leaked(-1)
	if info.NumLeaks != 1 || info.LeakBytes != 100 {
		t.Fatalf("got NumLeaks=%d LeakBytes=%d, want 1,100", info.NumLeaks, info.LeakBytes)
	}
	if info.Leaks[0].Size != 100 {
		t.Fatalf("leak size = %d, want 100", info.Leaks[0].Size)
	}
}

func TestInteriorPointer(t *testing.T) {
	// S4: a global holds base+16 into a 64-byte allocation.
	mem := newFakeMemory(0x1000, 0x200)
	w := NewWalker(mem, nil, nil)
	w.Allocation(0x1000, 0x1040)
	mem.putWord(0x1100, 0x1010)
	w.Root(0x1100, 0x1108)

	info := w.Leaked(-1)
	if info.NumLeaks != 0 {
		t.Fatalf("NumLeaks = %d, want 0", info.NumLeaks)
	}
}

func TestRegisterRoot(t *testing.T) {
	// S9: the sole reference to an allocation lives in a register blob.
	mem := newFakeMemory(0x1000, 0x200)
	w := NewWalker(mem, nil, nil)
	w.Allocation(0x1000, 0x1020)

	var regs [8]byte
	binary.LittleEndian.PutUint64(regs[:], 0x1000)
	w.RootBytes(regs[:])

	info := w.Leaked(-1)
	if info.NumLeaks != 0 {
		t.Fatalf("NumLeaks = %d, want 0", info.NumLeaks)
	}
}

func TestCycleOfLeaks(t *testing.T) {
	// S6: two allocations reference each other, nothing external refs them.
	mem := newFakeMemory(0x1000, 0x300)
	w := NewWalker(mem, nil, nil)
	w.Allocation(0x1000, 0x1020) // A, 32 bytes
	w.Allocation(0x1020, 0x1040) // B, 32 bytes
	mem.putWord(0x1000, 0x1020)  // A -> B
	mem.putWord(0x1020, 0x1000)  // B -> A

	info := w.Leaked(-1)
	if info.NumLeaks != 2 || info.LeakBytes != 64 {
		t.Fatalf("got NumLeaks=%d LeakBytes=%d, want 2,64", info.NumLeaks, info.LeakBytes)
	}
}

func TestLimitTruncation(t *testing.T) {
	// S5: five leaks of sizes 10,20,30,40,50; limit=3 keeps the three
	// largest but reports the true totals.
	mem := newFakeMemory(0x1000, 0x1000)
	w := NewWalker(mem, nil, nil)
	sizes := []int64{10, 20, 30, 40, 50}
	addr := procmaps.Address(0x1000)
	for _, s := range sizes {
		w.Allocation(addr, addr.Add(s))
		addr = addr.Add(s)
	}

	info := w.Leaked(3)
	if info.NumLeaks != 5 {
		t.Fatalf("NumLeaks = %d, want 5", info.NumLeaks)
	}
	if info.LeakBytes != 150 {
		t.Fatalf("LeakBytes = %d, want 150", info.LeakBytes)
	}
	if len(info.Leaks) != 3 {
		t.Fatalf("len(Leaks) = %d, want 3", len(info.Leaks))
	}
	want := []int64{50, 40, 30}
	for i, w := range want {
		if info.Leaks[i].Size != w {
			t.Errorf("Leaks[%d].Size = %d, want %d", i, info.Leaks[i].Size, w)
		}
	}
}

func TestMarkIsFixpoint(t *testing.T) {
	mem := newFakeMemory(0x1000, 0x200)
	w := NewWalker(mem, nil, nil)
	w.Allocation(0x1000, 0x1020)
	mem.putWord(0x1100, 0x1000)
	w.Root(0x1100, 0x1108)

	w.Mark()
	first := w.Sweep(-1)
	w.Mark() // re-running mark must not change any referenced bit
	second := w.Sweep(-1)

	if first.NumLeaks != second.NumLeaks || first.LeakBytes != second.LeakBytes {
		t.Fatalf("mark is not a fixpoint: %+v != %+v", first, second)
	}
}

func TestOverlapRejected(t *testing.T) {
	idx := NewAllocationIndex(nil)
	if err := idx.Insert(0x1000, 0x1010); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := idx.Insert(0x1008, 0x1018); err == nil {
		t.Fatalf("overlapping insert should have been rejected")
	}
	if idx.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (overlap must be dropped)", idx.Len())
	}
}
