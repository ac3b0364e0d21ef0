// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heapwalk

import "github.com/google/memunreachable/internal/procmaps"

// Memory is the conservative scanner's view of the victim's address
// space. In production this is backed directly by this process's own
// memory (internal/coordinator's child runs inside the forked,
// copy-on-write image of the frozen victim, so a target address IS a
// local address); in tests it is backed by a small synthetic buffer so
// the mark/sweep algorithm can be exercised without ptrace or a real
// fork.
type Memory interface {
	// ReadWord reads one pointer-sized (8-byte) word at a. It
	// reports false if a is not known to be readable.
	ReadWord(a procmaps.Address) (uint64, bool)

	// ReadBytes copies up to len(buf) bytes starting at a into buf.
	// It returns the number of bytes successfully copied before the
	// region became unreadable; callers zero-fill the remainder.
	ReadBytes(a procmaps.Address, buf []byte) int
}
