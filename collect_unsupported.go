// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux || !(amd64 || arm64)

package memunreachable

// GetUnreachableMemory is not implemented on this platform: the
// capture/fork protocol depends on Linux's ptrace and task-listing
// facilities, which this build does not have.
func GetUnreachableMemory(limit int) (*UnreachableMemoryInfo, error) {
	return nil, ErrUnsupportedPlatform
}
