// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package semaphore

import (
	"testing"
	"time"
)

func TestPostThenWait(t *testing.T) {
	s := New()
	s.Post()
	if !s.Wait(time.Second) {
		t.Fatal("Wait: want true after Post, got false")
	}
}

func TestWaitTimesOut(t *testing.T) {
	s := New()
	if s.Wait(10 * time.Millisecond) {
		t.Fatal("Wait: want false with no Post, got true")
	}
}

func TestWaitThenPost(t *testing.T) {
	s := New()
	done := make(chan bool, 1)
	go func() {
		done <- s.Wait(time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	s.Post()
	if ok := <-done; !ok {
		t.Fatal("Wait: want true after concurrent Post, got false")
	}
}

func TestDoublePostSingleWait(t *testing.T) {
	s := New()
	s.Post()
	s.Post() // must not block or panic
	if !s.Wait(time.Second) {
		t.Fatal("Wait: want true, got false")
	}
}
