// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && arm64

package coordinator

import "golang.org/x/sys/unix"

// rawFork duplicates the calling OS thread as a new process. arm64
// Linux has no sys_fork; glibc's fork() itself is clone(SIGCHLD) under
// the hood, so that is what this does too. See fork_amd64.go for the
// same-OS-thread and no-other-runnable-goroutine caveats.
func rawFork() (pid int, err error) {
	p, _, errno := unix.RawSyscall(unix.SYS_CLONE, uintptr(unix.SIGCHLD), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(p), nil
}
