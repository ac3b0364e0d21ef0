// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the options for a single collection.
package config

import "time"

// Options controls one invocation of the collector.
type Options struct {
	// Limit bounds how many leaks are returned in the result vector.
	// The true counts (NumLeaks, LeakBytes) are always reported in
	// full regardless of Limit.
	Limit int

	// LogContents records whether a hex+ASCII dump of each leak's
	// first bytes is wanted. The collector does not read it;
	// LogUnreachableMemory takes its own logContents argument.
	LogContents bool

	// SemaphoreTimeout bounds how long the original thread waits for
	// the capture thread to hand off just before it forks.
	SemaphoreTimeout time.Duration

	// AttachRetryBudget bounds how many fixed-point rescans
	// capture_all performs looking for newly spawned siblings.
	AttachRetryBudget int
}

// Default returns the options used when the caller hasn't overridden
// anything.
func Default() Options {
	return Options{
		Limit:             512,
		LogContents:       false,
		SemaphoreTimeout:  5 * time.Second,
		AttachRetryBudget: 8,
	}
}
