// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package leakpipe

import (
	"io"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	r, w, err := NewPipe()
	if err != nil {
		t.Fatalf("NewPipe: %v", err)
	}
	sender := OpenSender(w)
	receiver := OpenReceiver(r)

	wantHeader := Header{NumAllocations: 10, AllocationBytes: 1000, NumLeaks: 2, LeakBytes: 80}
	wantLeaks := []Leak{
		{Begin: 0x1000, Size: 40},
		{Begin: 0x2000, Size: 40, Contents: [ContentsLen]byte{1, 2, 3}},
	}

	done := make(chan error, 1)
	go func() {
		if err := sender.SendHeader(wantHeader); err != nil {
			done <- err
			return
		}
		if err := sender.SendLeaks(wantLeaks); err != nil {
			done <- err
			return
		}
		done <- sender.Close()
	}()

	gotHeader, err := receiver.RecvHeader()
	if err != nil {
		t.Fatalf("RecvHeader: %v", err)
	}
	if gotHeader != wantHeader {
		t.Errorf("RecvHeader = %+v, want %+v", gotHeader, wantHeader)
	}

	gotLeaks, err := receiver.RecvLeaks()
	if err != nil {
		t.Fatalf("RecvLeaks: %v", err)
	}
	if len(gotLeaks) != len(wantLeaks) {
		t.Fatalf("got %d leaks, want %d", len(gotLeaks), len(wantLeaks))
	}
	for i, lk := range gotLeaks {
		if lk != wantLeaks[i] {
			t.Errorf("leak %d = %+v, want %+v", i, lk, wantLeaks[i])
		}
	}

	if err := <-done; err != nil {
		t.Fatalf("sender goroutine: %v", err)
	}
	receiver.Close()
}

func TestRecvHeaderShortFatal(t *testing.T) {
	r, w, err := NewPipe()
	if err != nil {
		t.Fatalf("NewPipe: %v", err)
	}
	receiver := OpenReceiver(r)

	// Write fewer bytes than a header and close, so the receiver sees
	// a short read.
	if _, err := w.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	w.Close()

	if _, err := receiver.RecvHeader(); err == nil {
		t.Fatal("RecvHeader: want error on short read, got nil")
	} else if !isEOFLike(err) {
		t.Errorf("RecvHeader error = %v, want an EOF-derived error", err)
	}
	receiver.Close()
}

func isEOFLike(err error) bool {
	return err != nil && (err == io.EOF || err == io.ErrUnexpectedEOF || unwrapContains(err))
}

func unwrapContains(err error) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
