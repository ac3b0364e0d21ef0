// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package freeze

import (
	"sync"
	"testing"
)

func TestScopeEnterExitOrder(t *testing.T) {
	var order []int
	lock := func(i int) Lockable {
		return fakeLock{
			lock:   func() { order = append(order, i) },
			unlock: func() { order = append(order, -i) },
		}
	}
	s := NewScope(lock(1), lock(2), lock(3))
	s.Enter()
	s.Exit()

	want := []int{1, 2, 3, -3, -2, -1}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestScopeDoubleEnterPanics(t *testing.T) {
	s := NewScope()
	s.Enter()
	defer func() {
		if recover() == nil {
			t.Fatal("double Enter: want panic, got none")
		}
	}()
	s.Enter()
}

func TestScopeExitWithoutEnterPanics(t *testing.T) {
	s := NewScope()
	defer func() {
		if recover() == nil {
			t.Fatal("Exit without Enter: want panic, got none")
		}
	}()
	s.Exit()
}

func TestMutexLockable(t *testing.T) {
	var mu sync.Mutex
	l := Mutex(&mu)
	l.Lock()
	locked := !mu.TryLock()
	l.Unlock()
	if !locked {
		t.Fatal("Mutex(l): Lock() did not lock the underlying mutex")
	}
	if !mu.TryLock() {
		t.Fatal("Mutex(l): Unlock() did not unlock the underlying mutex")
	}
	mu.Unlock()
}

func TestHeldScopeExitReleasesWithoutEnter(t *testing.T) {
	var order []int
	lock := func(i int) Lockable {
		return fakeLock{
			lock:   func() { order = append(order, i) },
			unlock: func() { order = append(order, -i) },
		}
	}
	s := NewHeldScope(lock(1), lock(2), lock(3))
	s.Exit()

	want := []int{-3, -2, -1}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestHeldScopeEnterPanics(t *testing.T) {
	s := NewHeldScope()
	defer func() {
		if recover() == nil {
			t.Fatal("Enter on a held scope: want panic, got none")
		}
	}()
	s.Enter()
}

type fakeLock struct {
	lock, unlock func()
}

func (f fakeLock) Lock()   { f.lock() }
func (f fakeLock) Unlock() { f.unlock() }
