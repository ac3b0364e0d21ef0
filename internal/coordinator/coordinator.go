// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && (amd64 || arm64)

// Package coordinator owns the freeze/fork/collect/report protocol
// described in the component design: freeze the allocator, spawn the
// capture thread to pause every sibling and snapshot roots, fork so
// the heap walk runs against a quiescent copy-on-write image while the
// original process stays frozen only for the brief window before
// fork, then stream the results back through a pipe.
package coordinator

import (
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/google/memunreachable/internal/allocator"
	"github.com/google/memunreachable/internal/arena"
	"github.com/google/memunreachable/internal/capture"
	"github.com/google/memunreachable/internal/config"
	"github.com/google/memunreachable/internal/freeze"
	"github.com/google/memunreachable/internal/heapwalk"
	"github.com/google/memunreachable/internal/leakpipe"
	"github.com/google/memunreachable/internal/logging"
	"github.com/google/memunreachable/internal/procmaps"
	"github.com/google/memunreachable/internal/semaphore"
)

// Exit codes of the collector child process, as named in the external
// interface.
const (
	ExitOK             = 0
	ExitCaptureOrFork  = 1
	ExitCollectFailed  = 2
	ExitPipeFailed     = 3
)

// Coordinator drives one collection end to end.
type Coordinator struct {
	pid   int
	alloc allocator.Enumerator
	scope *freeze.Scope
	locks []freeze.Lockable
	opts  config.Options
	log   *logging.Logger
}

// New returns a Coordinator for the current process (getpid), scanning
// allocations through alloc and holding locks (the allocator's own
// internal mutexes, registered via freeze.Mutex) during the freeze
// scope. locks is kept alongside scope so the forked child can build
// its own Scope over the same mutexes, already marked held, instead of
// re-entering the parent's.
func New(alloc allocator.Enumerator, opts config.Options, locks ...freeze.Lockable) *Coordinator {
	return &Coordinator{
		pid:   os.Getpid(),
		alloc: alloc,
		scope: freeze.NewScope(locks...),
		locks: locks,
		opts:  opts,
		log:   logging.Default,
	}
}

// Collect performs one collection and returns its result. A non-nil
// error means the collection failed outright; no partial results are
// returned, matching the error-handling policy of a single boolean
// (here, error) outcome.
func (co *Coordinator) Collect() (heapwalk.Info, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	originalTid := unix.Gettid()

	pr, pw, err := leakpipe.NewPipe()
	if err != nil {
		return heapwalk.Info{}, fmt.Errorf("coordinator: create pipe: %w", err)
	}

	are, err := arena.New()
	if err != nil {
		pr.Close()
		pw.Close()
		return heapwalk.Info{}, fmt.Errorf("coordinator: create arena: %w", err)
	}
	defer are.Release()

	sem := semaphore.New()
	resultCh := make(chan captureResult, 1)

	co.scope.Enter()

	go co.runCaptureThread(originalTid, sem, pw, resultCh, are)

	if !sem.Wait(co.opts.SemaphoreTimeout) {
		co.scope.Exit()
		co.log.Errorf("capture handoff timed out after %s", co.opts.SemaphoreTimeout)
		pr.Close()
		pw.Close()
		return heapwalk.Info{}, fmt.Errorf("coordinator: semaphore timeout waiting for capture thread")
	}

	co.scope.Exit()

	res := <-resultCh
	if res.err != nil {
		pr.Close()
		return heapwalk.Info{}, fmt.Errorf("coordinator: capture failed: %w", res.err)
	}

	recv := leakpipe.OpenReceiver(pr)
	defer recv.Close()

	hdr, err := recv.RecvHeader()
	if err != nil {
		co.reapChild(res.childPid)
		return heapwalk.Info{}, fmt.Errorf("coordinator: pipe failure receiving header: %w", err)
	}
	leaks, err := recv.RecvLeaks()
	if err != nil {
		co.reapChild(res.childPid)
		return heapwalk.Info{}, fmt.Errorf("coordinator: pipe failure receiving leaks: %w", err)
	}
	co.reapChild(res.childPid)

	info := heapwalk.Info{
		NumAllocations:  int(hdr.NumAllocations),
		AllocationBytes: int64(hdr.AllocationBytes),
		NumLeaks:        int(hdr.NumLeaks),
		LeakBytes:       int64(hdr.LeakBytes),
		Leaks:           make([]heapwalk.Leak, len(leaks)),
	}
	for i, lk := range leaks {
		info.Leaks[i] = heapwalk.Leak{
			Begin:    procmaps.Address(lk.Begin),
			Size:     int64(lk.Size),
			Contents: lk.Contents,
		}
	}
	return info, nil
}

func (co *Coordinator) reapChild(pid int) {
	if pid <= 0 {
		return
	}
	var ws unix.WaitStatus
	_, _ = unix.Wait4(pid, &ws, 0, nil)
}

// captureResult is what the capture thread reports back to the
// original thread once it has either failed or forked.
type captureResult struct {
	childPid int
	err      error
}

// runCaptureThread is the capture thread's body: steps 3a-3f of the
// coordinator protocol. It must run on a goroutine whose OS thread is
// never shared with anything else, because it forks.
func (co *Coordinator) runCaptureThread(originalTid int, sem *semaphore.Semaphore, pw *os.File, resultCh chan<- captureResult, are *arena.Arena) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	cap := capture.New(co.pid, co.opts.AttachRetryBudget)
	defer cap.Close() // release_all is automatic on destruction

	send := func(childPid int, err error) {
		resultCh <- captureResult{childPid, err}
	}

	if err := cap.CaptureAll(); err != nil {
		pw.Close()
		send(0, err)
		return
	}
	threads, err := cap.CapturedInfo(are)
	if err != nil {
		pw.Close()
		send(0, err)
		return
	}
	mappings, err := procmaps.ReadPid(co.pid, are)
	if err != nil {
		pw.Close()
		send(0, err)
		return
	}
	if err := cap.ReleaseOne(originalTid); err != nil {
		pw.Close()
		send(0, err)
		return
	}

	sem.Post()

	childPid, err := rawFork()
	if err != nil {
		pw.Close()
		send(0, fmt.Errorf("fork: %w", err))
		return
	}
	if childPid == 0 {
		// Child: run the walk and exit. Never return from this branch
		// into the surrounding Go program state, which belongs to the
		// frozen parent.
		status := co.runChild(mappings, threads, pw, are)
		os.Exit(status)
	}

	// Parent-of-fork, still inside the capture thread: return
	// immediately. The deferred cap.Close() resumes every still-paused
	// sibling other than originalTid (already released above).
	send(childPid, nil)
}
