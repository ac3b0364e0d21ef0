// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package semaphore implements the timed hand-off primitive used
// between the original thread and the capture thread: the capture
// thread posts once it has released the original thread and is about
// to fork, and the original thread waits with a bounded deadline so a
// wedged capture never hangs the caller forever.
package semaphore

import "time"

// A Semaphore is a counting semaphore of capacity 1, sufficient for a
// single post/wait hand-off. It is safe to Post before any Wait call
// (the post is buffered).
type Semaphore struct {
	ch chan struct{}
}

// New returns a Semaphore with count 0.
func New() *Semaphore {
	return &Semaphore{ch: make(chan struct{}, 1)}
}

// Post increments the count. It never blocks.
func (s *Semaphore) Post() {
	select {
	case s.ch <- struct{}{}:
	default:
		// Already posted; a single hand-off semaphore never needs
		// more than one outstanding post.
	}
}

// Wait blocks until Post is called or deadline elapses, whichever
// comes first. It reports whether the wait succeeded. A timed-out
// Wait does not leak: the channel receive is simply abandoned, and a
// later Post still succeeds because the channel is buffered.
func (s *Semaphore) Wait(deadline time.Duration) bool {
	t := time.NewTimer(deadline)
	defer t.Stop()
	select {
	case <-s.ch:
		return true
	case <-t.C:
		return false
	}
}
