// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package arena

import "unsafe"

// New draws space for one T from a and returns a pointer to it. The
// returned value is zeroed.
func New[T any](a *Arena) (*T, error) {
	var zero T
	p, err := a.Alloc(int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero)))
	if err != nil {
		return nil, err
	}
	t := (*T)(p)
	*t = zero
	return t, nil
}

// A Vector is a dynamic-size container of Ts drawn entirely from an
// Arena, giving generic containers rebind semantics to any element
// type without touching the managed heap.
type Vector[T any] struct {
	a    *Arena
	data []T
}

// NewVector returns an empty Vector backed by a.
func NewVector[T any](a *Arena) *Vector[T] {
	return &Vector[T]{a: a}
}

// Append adds x to the end of v. Growth reallocates from the arena;
// the old backing storage is simply abandoned (arenas are never
// partially freed).
func (v *Vector[T]) Append(x T) {
	if len(v.data) == cap(v.data) {
		newCap := 2 * cap(v.data)
		if newCap == 0 {
			newCap = 8
		}
		var zero T
		p, err := v.a.Alloc(newCap*int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero)))
		if err != nil {
			panic(err) // the arena is pre-reserved; only OOM-at-mmap-time fails
		}
		grown := unsafe.Slice((*T)(p), newCap)
		copy(grown, v.data)
		v.data = grown[:len(v.data)]
	}
	v.data = append(v.data, x)
}

// Len returns the number of elements appended so far.
func (v *Vector[T]) Len() int { return len(v.data) }

// At returns the i'th element.
func (v *Vector[T]) At(i int) T { return v.data[i] }

// Slice returns the accumulated elements as a plain slice backed by
// arena memory. Callers must not retain it past the arena's Release.
func (v *Vector[T]) Slice() []T { return v.data }
