// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && (amd64 || arm64)

package memunreachable

import (
	"github.com/google/memunreachable/internal/coordinator"
	"github.com/google/memunreachable/internal/heapwalk"
)

// GetUnreachableMemory performs one collection: freeze, fork, walk,
// report. It returns ErrNoAllocator if RegisterAllocator has not been
// called. limit bounds how many leaks are returned in info.Leaks; the
// true NumLeaks/LeakBytes counts are always reported in full.
func GetUnreachableMemory(limit int) (*UnreachableMemoryInfo, error) {
	if registeredAllocator == nil {
		return nil, ErrNoAllocator
	}
	opts := registeredOpts
	opts.Limit = limit

	co := coordinator.New(registeredAllocator, opts, registeredLocks...)
	info, err := co.Collect()
	if err != nil {
		return nil, err
	}
	return fromWalkerInfo(info), nil
}

func fromWalkerInfo(info heapwalk.Info) *UnreachableMemoryInfo {
	out := &UnreachableMemoryInfo{
		NumAllocations:  info.NumAllocations,
		AllocationBytes: info.AllocationBytes,
		NumLeaks:        info.NumLeaks,
		LeakBytes:       info.LeakBytes,
		Leaks:           make([]Leak, len(info.Leaks)),
	}
	for i, lk := range info.Leaks {
		out.Leaks[i] = Leak{
			Begin:    uintptr(lk.Begin),
			Size:     lk.Size,
			Contents: lk.Contents,
		}
	}
	return out
}
