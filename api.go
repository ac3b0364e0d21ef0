// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memunreachable

import (
	"errors"

	"github.com/google/memunreachable/internal/allocator"
	"github.com/google/memunreachable/internal/config"
	"github.com/google/memunreachable/internal/freeze"
)

// CONTENTS_LEN named in the data model, as a Go constant.
const ContentsLen = 32

// ErrUnsupportedPlatform is returned by GetUnreachableMemory on any
// GOOS/GOARCH this module does not implement the capture/fork
// protocol for.
var ErrUnsupportedPlatform = errors.New("memunreachable: unsupported platform")

// ErrNoAllocator is returned when GetUnreachableMemory is called
// before RegisterAllocator.
var ErrNoAllocator = errors.New("memunreachable: no allocator registered")

// A Leak describes one allocation found unreachable at the instant of
// collection.
type Leak struct {
	Begin    uintptr
	Size     int64
	Contents [ContentsLen]byte
}

// UnreachableMemoryInfo is the result of one collection.
type UnreachableMemoryInfo struct {
	NumAllocations  int
	AllocationBytes int64
	NumLeaks        int
	LeakBytes       int64
	Leaks           []Leak
}

// Options mirrors internal/config.Options for callers that want to
// override collection defaults (timeouts, attach retry budget) without
// reaching into internal packages. Its Limit is replaced by the limit
// passed to GetUnreachableMemory.
type Options = config.Options

// DefaultOptions returns the options used when a caller passes none.
func DefaultOptions() Options { return config.Default() }

var (
	registeredAllocator allocator.Enumerator
	registeredLocks     []freeze.Lockable
	registeredOpts      = config.Default()
)

// RegisterAllocator installs the allocator whose live blocks this
// collector enumerates, and the set of that allocator's internal
// locks to hold for the duration of the freeze scope. Call this once,
// during program initialization, before the first GetUnreachableMemory.
//
// spec.md treats enumerate_allocations as an external collaborator;
// this is that collaborator's registration point for a Go program.
func RegisterAllocator(a allocator.Enumerator, locks ...freeze.Lockable) {
	registeredAllocator = a
	registeredLocks = locks
}

// SetOptions overrides the default collection options.
func SetOptions(o Options) {
	registeredOpts = o
}
