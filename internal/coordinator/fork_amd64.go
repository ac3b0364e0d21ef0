// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && amd64

package coordinator

import "golang.org/x/sys/unix"

// rawFork duplicates the calling OS thread as a new process via the
// bare fork(2) syscall -- not os/exec, which always execs afterward.
// It must be called from a runtime.LockOSThread-pinned goroutine with
// no other goroutine runnable on that same M, and the child must do
// nothing but syscalls and already-allocated memory until it exits:
// the Go runtime's other Ms, GC state, and scheduler are not
// consistent in a forked-without-exec child.
func rawFork() (pid int, err error) {
	p, _, errno := unix.RawSyscall(unix.SYS_FORK, 0, 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(p), nil
}
