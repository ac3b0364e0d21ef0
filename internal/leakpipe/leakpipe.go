// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package leakpipe implements the typed message channel between the
// collector child process and the parent. It is a pair-of-ends
// channel atop an OS pipe: each end is bound exactly once by
// OpenSender/OpenReceiver, which take ownership of their respective
// file. Endianness is fixed (little-endian) since sender and receiver
// always run as the same binary on the same architecture, so no
// conversion is required -- mirroring the explicit, unconditional
// binary.LittleEndian use this toolchain's core process reader favors
// over relying on a possibly-escaping byteOrder value.
package leakpipe

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// ContentsLen is the fixed ceiling on bytes copied from the start of
// each leaked allocation.
const ContentsLen = 32

// A Leak mirrors the wire image of a single reported leak.
type Leak struct {
	Begin    uint64
	Size     uint64
	Contents [ContentsLen]byte
}

// A Header carries the summary counts that precede the leak vector.
type Header struct {
	NumAllocations  uint64
	AllocationBytes uint64
	NumLeaks        uint64
	LeakBytes       uint64
}

// NewPipe returns the two ends of a fresh OS pipe, unopened. Exactly
// one of OpenSender/OpenReceiver must be called on each end,
// transferring ownership of that file descriptor to the returned
// value.
func NewPipe() (r, w *os.File, err error) {
	return os.Pipe()
}

// A Sender is the write end of a leak pipe, bound by OpenSender.
type Sender struct {
	w *os.File
}

// OpenSender binds the sender side of the pipe to w, taking ownership
// of it.
func OpenSender(w *os.File) *Sender {
	return &Sender{w: w}
}

// SendHeader writes h's fields in a fixed binary layout.
func (s *Sender) SendHeader(h Header) error {
	var buf [32]byte
	binary.LittleEndian.PutUint64(buf[0:8], h.NumAllocations)
	binary.LittleEndian.PutUint64(buf[8:16], h.AllocationBytes)
	binary.LittleEndian.PutUint64(buf[16:24], h.NumLeaks)
	binary.LittleEndian.PutUint64(buf[24:32], h.LeakBytes)
	return s.writeFull(buf[:])
}

// SendLeaks writes length-prefixed leak records.
func (s *Sender) SendLeaks(leaks []Leak) error {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(leaks)))
	if err := s.writeFull(lenBuf[:]); err != nil {
		return err
	}
	var rec [16 + ContentsLen]byte
	for _, lk := range leaks {
		binary.LittleEndian.PutUint64(rec[0:8], lk.Begin)
		binary.LittleEndian.PutUint64(rec[8:16], lk.Size)
		copy(rec[16:], lk.Contents[:])
		if err := s.writeFull(rec[:]); err != nil {
			return err
		}
	}
	return nil
}

// writeFull retries partial writes until the full message is
// delivered or the peer has gone away.
func (s *Sender) writeFull(b []byte) error {
	for len(b) > 0 {
		n, err := s.w.Write(b)
		if err != nil {
			return fmt.Errorf("leakpipe: send: %w", err)
		}
		b = b[n:]
	}
	return nil
}

// Close releases the sender's file descriptor.
func (s *Sender) Close() error { return s.w.Close() }

// A Receiver is the read end of a leak pipe, bound by OpenReceiver.
type Receiver struct {
	r *os.File
}

// OpenReceiver binds the receiver side of the pipe to r, taking
// ownership of it.
func OpenReceiver(r *os.File) *Receiver {
	return &Receiver{r: r}
}

// RecvHeader reads the fixed-size header. Peer death before the
// header is fully written surfaces as an error wrapping io.EOF (nothing
// read) or io.ErrUnexpectedEOF (partial header), which callers treat
// as a fatal pipe failure.
func (r *Receiver) RecvHeader() (Header, error) {
	var buf [32]byte
	if err := r.readFull(buf[:]); err != nil {
		return Header{}, err
	}
	return Header{
		NumAllocations:  binary.LittleEndian.Uint64(buf[0:8]),
		AllocationBytes: binary.LittleEndian.Uint64(buf[8:16]),
		NumLeaks:        binary.LittleEndian.Uint64(buf[16:24]),
		LeakBytes:       binary.LittleEndian.Uint64(buf[24:32]),
	}, nil
}

// RecvLeaks reads the length-prefixed leak vector sent by SendLeaks.
func (r *Receiver) RecvLeaks() ([]Leak, error) {
	var lenBuf [8]byte
	if err := r.readFull(lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])
	leaks := make([]Leak, n)
	var rec [16 + ContentsLen]byte
	for i := range leaks {
		if err := r.readFull(rec[:]); err != nil {
			return nil, err
		}
		leaks[i].Begin = binary.LittleEndian.Uint64(rec[0:8])
		leaks[i].Size = binary.LittleEndian.Uint64(rec[8:16])
		copy(leaks[i].Contents[:], rec[16:])
	}
	return leaks, nil
}

func (r *Receiver) readFull(b []byte) error {
	_, err := io.ReadFull(r.r, b)
	if err != nil {
		return fmt.Errorf("leakpipe: recv: %w", err)
	}
	return nil
}

// Close releases the receiver's file descriptor.
func (r *Receiver) Close() error { return r.r.Close() }
