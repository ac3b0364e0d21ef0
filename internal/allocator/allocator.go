// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package allocator defines the enumerate_allocations collaborator
// the coordinator calls into while walking a heap mapping, plus one
// reference implementation so the rest of this module can be
// exercised end-to-end without an external allocator under test.
package allocator

import "github.com/google/memunreachable/internal/procmaps"

// EnumerateCallback receives the base address and size of one live
// allocation.
type EnumerateCallback func(base procmaps.Address, size int64)

// Enumerator is the contract an allocator under test must satisfy:
// walk every live allocation whose base address falls within
// [begin,end) and invoke cb for each. Implementations must not
// allocate against the managed heap while enumerating, since the
// caller runs this inside the freeze scope.
type Enumerator interface {
	EnumerateAllocations(begin, end procmaps.Address, cb EnumerateCallback) error
}
