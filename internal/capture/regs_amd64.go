// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && amd64

package capture

import (
	"golang.org/x/sys/unix"

	"github.com/google/memunreachable/internal/procmaps"
)

// stackPointer extracts the stack pointer from a captured register
// set. Each supported architecture has its own register field names,
// hence the per-arch file split.
func stackPointer(regs *unix.PtraceRegs) procmaps.Address {
	return procmaps.Address(regs.Rsp)
}
