// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && (amd64 || arm64)

// Package capture implements the thread capture subsystem: attaching
// to every sibling OS thread via the kernel's ptrace facility, reading
// their register files and stack pointers atomically with respect to
// mutation, and releasing them again. All ptrace calls are funneled
// through the single goroutine that calls New, pinned with
// runtime.LockOSThread by the caller: ptrace calls must come from the
// same thread that originally attached to the remote thread.
package capture

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/google/memunreachable/internal/arena"
	"github.com/google/memunreachable/internal/procmaps"
)

// ptrace request numbers not wrapped by golang.org/x/sys/unix as
// dedicated functions.
const (
	ptraceSeize     = 0x4206
	ptraceInterrupt = 0x4207
	ptraceDetach    = 17
)

var errAlreadyGone = errors.New("capture: thread already exited")

// ThreadInfo is one captured sibling: its tid, its full register set
// (captured as opaque architecture-specific bytes), and its stack
// pointer at the moment of capture.
type ThreadInfo struct {
	Tid      int
	Regs     []byte
	StackTop procmaps.Address
}

// Capture owns the set of siblings paused for one collection. The
// zero value is not usable; construct with New.
type Capture struct {
	pid       int
	selfTid   int
	maxRounds int

	mu       sync.Mutex
	attached map[int]bool
}

// New returns a Capture for the process pid. The calling goroutine
// must already be locked to its OS thread (runtime.LockOSThread): its
// tid is recorded as "self" and excluded from attach targets, since a
// thread cannot ptrace itself. maxRounds bounds how many fixed-point
// rescans CaptureAll performs looking for newly spawned siblings
// (config.Options.AttachRetryBudget); values <= 0 fall back to a
// single scan.
func New(pid, maxRounds int) *Capture {
	if maxRounds <= 0 {
		maxRounds = 1
	}
	return &Capture{
		pid:       pid,
		selfTid:   unix.Gettid(),
		maxRounds: maxRounds,
		attached:  make(map[int]bool),
	}
}

func ptraceRaw(request, pid int, addr, data uintptr) error {
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, uintptr(request), uintptr(pid), addr, data, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// listTasks returns the tids currently listed under
// /proc/<pid>/task.
func listTasks(pid int) ([]int, error) {
	entries, err := os.ReadDir(fmt.Sprintf("/proc/%d/task", pid))
	if err != nil {
		return nil, fmt.Errorf("capture: list tasks: %w", err)
	}
	tids := make([]int, 0, len(entries))
	for _, e := range entries {
		tid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		tids = append(tids, tid)
	}
	return tids, nil
}

// CaptureAll attaches every sibling thread of the target process.
// Enumeration is retried until a fixed point is reached -- two
// consecutive scans finding no new tid -- so that threads spawned
// during the sweep are still covered. A thread that has already
// exited by the time it is attached is ignored; any other attach
// failure is fatal.
func (c *Capture) CaptureAll() error {
	prevTotal := -1
	for round := 0; round < c.maxRounds; round++ {
		tids, err := listTasks(c.pid)
		if err != nil {
			return err
		}
		for _, tid := range tids {
			if tid == c.selfTid {
				continue
			}
			c.mu.Lock()
			already := c.attached[tid]
			c.mu.Unlock()
			if already {
				continue
			}
			if err := c.attachOne(tid); err != nil {
				if errors.Is(err, errAlreadyGone) {
					continue
				}
				return fmt.Errorf("capture: attach tid %d: %w", tid, err)
			}
			c.mu.Lock()
			c.attached[tid] = true
			c.mu.Unlock()
		}
		c.mu.Lock()
		total := len(c.attached)
		c.mu.Unlock()
		if total == prevTotal {
			return nil
		}
		prevTotal = total
	}
	return nil
}

// attachOne seizes and interrupts tid, then waits for it to report
// stopped. ESRCH at any point means the thread exited before we could
// attach it, which is not an error.
func (c *Capture) attachOne(tid int) error {
	if err := ptraceRaw(ptraceSeize, tid, 0, 0); err != nil {
		if err == unix.ESRCH {
			return errAlreadyGone
		}
		return err
	}
	if err := ptraceRaw(ptraceInterrupt, tid, 0, 0); err != nil {
		if err == unix.ESRCH {
			return errAlreadyGone
		}
		return err
	}
	var status unix.WaitStatus
	_, err := unix.Wait4(tid, &status, unix.WALL, nil)
	if err != nil {
		if err == unix.ESRCH {
			return errAlreadyGone
		}
		return fmt.Errorf("wait4: %w", err)
	}
	if !status.Stopped() {
		return fmt.Errorf("tid %d: unexpected wait status %#x", tid, status)
	}
	return nil
}

// CapturedInfo reads the full register set and stack pointer of every
// currently-captured thread. a, if non-nil, backs the returned slice
// with the per-collection region allocator instead of the managed
// heap -- this runs inside the freeze scope, where the allocator under
// test must not observe an intervening Go allocation.
func (c *Capture) CapturedInfo(a *arena.Arena) ([]ThreadInfo, error) {
	c.mu.Lock()
	tids := make([]int, 0, len(c.attached))
	for tid := range c.attached {
		tids = append(tids, tid)
	}
	c.mu.Unlock()

	var vec *arena.Vector[ThreadInfo]
	var out []ThreadInfo
	if a != nil {
		vec = arena.NewVector[ThreadInfo](a)
	} else {
		out = make([]ThreadInfo, 0, len(tids))
	}
	for _, tid := range tids {
		var regs unix.PtraceRegs
		if err := unix.PtraceGetRegs(tid, &regs); err != nil {
			return nil, fmt.Errorf("capture: getregs tid %d: %w", tid, err)
		}
		ti := ThreadInfo{
			Tid:      tid,
			Regs:     regsToBytes(&regs),
			StackTop: stackPointer(&regs),
		}
		if vec != nil {
			vec.Append(ti)
		} else {
			out = append(out, ti)
		}
	}
	if vec != nil {
		return vec.Slice(), nil
	}
	return out, nil
}

// regsToBytes copies the architecture-specific register struct into a
// plain, arena-eligible byte slice -- a copy, since the caller's
// *unix.PtraceRegs may be stack-allocated.
func regsToBytes(regs *unix.PtraceRegs) []byte {
	n := int(unsafe.Sizeof(*regs))
	src := unsafe.Slice((*byte)(unsafe.Pointer(regs)), n)
	cp := make([]byte, n)
	copy(cp, src)
	return cp
}

// ReleaseOne detaches tid, resuming it.
func (c *Capture) ReleaseOne(tid int) error {
	c.mu.Lock()
	_, ok := c.attached[tid]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("capture: tid %d is not captured", tid)
	}
	if err := ptraceRaw(ptraceDetach, tid, 0, 0); err != nil && err != unix.ESRCH {
		return fmt.Errorf("capture: detach tid %d: %w", tid, err)
	}
	c.mu.Lock()
	delete(c.attached, tid)
	c.mu.Unlock()
	return nil
}

// ReleaseAll detaches every remaining captured thread. It is safe to
// call multiple times and is called automatically by Close.
func (c *Capture) ReleaseAll() {
	c.mu.Lock()
	tids := make([]int, 0, len(c.attached))
	for tid := range c.attached {
		tids = append(tids, tid)
	}
	c.mu.Unlock()
	for _, tid := range tids {
		_ = c.ReleaseOne(tid)
	}
}

// Close releases every remaining captured thread, matching the
// "automatic on destruction" guarantee in the component design.
func (c *Capture) Close() error {
	c.ReleaseAll()
	return nil
}
