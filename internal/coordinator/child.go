// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && (amd64 || arm64)

package coordinator

import (
	"os"

	"github.com/google/memunreachable/internal/arena"
	"github.com/google/memunreachable/internal/capture"
	"github.com/google/memunreachable/internal/classify"
	"github.com/google/memunreachable/internal/freeze"
	"github.com/google/memunreachable/internal/heapwalk"
	"github.com/google/memunreachable/internal/leakpipe"
	"github.com/google/memunreachable/internal/procmaps"
)

// runChild is everything the forked collector child does: take over
// the freeze scope it inherited already-held from the parent across
// fork, build the heap walker, mark and sweep, and stream the result
// through the pipe. It returns the process exit status named in the
// external interface (0 ok, 1 capture/fork failure is handled by the
// caller before this point, 2 collect failure, 3 pipe failure).
func (co *Coordinator) runChild(mappings []procmaps.Mapping, threads []capture.ThreadInfo, pw *os.File, are *arena.Arena) int {
	sender := leakpipe.OpenSender(pw)
	defer sender.Close()

	// The child is a forked copy of the parent, which is still holding
	// co.scope at the moment of fork: the parent's locked mutexes are
	// inherited as plain locked memory, not re-acquired. Building a
	// fresh Scope already marked held (rather than calling co.scope.Enter
	// again) lets Exit release them in the right order without a second,
	// self-deadlocking Lock call.
	childScope := freeze.NewHeldScope(co.locks...)
	info, err := co.collectInChild(mappings, threads, are)
	childScope.Exit()
	if err != nil {
		co.log.Errorf("collect failed in child: %v", err)
		return ExitCollectFailed
	}

	if err := sender.SendHeader(leakpipe.Header{
		NumAllocations:  uint64(info.NumAllocations),
		AllocationBytes: uint64(info.AllocationBytes),
		NumLeaks:        uint64(info.NumLeaks),
		LeakBytes:       uint64(info.LeakBytes),
	}); err != nil {
		co.log.Errorf("pipe failure sending header: %v", err)
		return ExitPipeFailed
	}

	var wireLeaks []leakpipe.Leak
	if are != nil {
		vec := arena.NewVector[leakpipe.Leak](are)
		for _, lk := range info.Leaks {
			vec.Append(leakpipe.Leak{
				Begin:    uint64(lk.Begin),
				Size:     uint64(lk.Size),
				Contents: lk.Contents,
			})
		}
		wireLeaks = vec.Slice()
	} else {
		wireLeaks = make([]leakpipe.Leak, len(info.Leaks))
		for i, lk := range info.Leaks {
			wireLeaks[i] = leakpipe.Leak{
				Begin:    uint64(lk.Begin),
				Size:     uint64(lk.Size),
				Contents: lk.Contents,
			}
		}
	}
	if err := sender.SendLeaks(wireLeaks); err != nil {
		co.log.Errorf("pipe failure sending leaks: %v", err)
		return ExitPipeFailed
	}

	return ExitOK
}

// collectInChild builds the heap walker from the classified mappings
// and the previously captured roots, then runs mark/sweep.
func (co *Coordinator) collectInChild(mappings []procmaps.Mapping, threads []capture.ThreadInfo, are *arena.Arena) (heapwalk.Info, error) {
	classes := classify.Classify(mappings, are)

	var allReadable []procmaps.Mapping
	if are != nil {
		vec := arena.NewVector[procmaps.Mapping](are)
		for _, m := range classes.Heap {
			vec.Append(m)
		}
		for _, m := range classes.Globals {
			vec.Append(m)
		}
		for _, m := range classes.Stacks {
			vec.Append(m)
		}
		allReadable = vec.Slice()
	} else {
		allReadable = append(allReadable, classes.Heap...)
		allReadable = append(allReadable, classes.Globals...)
		allReadable = append(allReadable, classes.Stacks...)
	}
	mem := heapwalk.NewDirectMemory(allReadable)

	walker := heapwalk.NewWalker(mem, are, co.log.Errorf)

	for _, m := range classes.Heap {
		before := walker.NumAllocations()
		if err := co.alloc.EnumerateAllocations(m.Begin, m.End, func(base procmaps.Address, size int64) {
			walker.Allocation(base, base.Add(size))
		}); err != nil {
			return heapwalk.Info{}, err
		}
		if walker.NumAllocations() == before {
			// The allocator did not decompose this mapping into
			// individual allocations (e.g. a raw mmap'd chunk it
			// doesn't track internally): conservatively treat the
			// whole thing as one allocation rather than lose it.
			walker.Allocation(m.Begin, m.End)
		}
	}

	for _, m := range classes.Globals {
		walker.Root(m.Begin, m.End)
	}
	for _, m := range classes.Stacks {
		walker.Root(m.Begin, m.End)
	}
	for _, t := range threads {
		walker.RootBytes(t.Regs)
	}

	return walker.Leaked(co.opts.Limit), nil
}
