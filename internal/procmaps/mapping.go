// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package procmaps parses a process's virtual-memory map -- the
// live-process analogue of the ELF PT_LOAD program headers this
// toolchain reads out of core files, except the source is the
// kernel's /proc/<pid>/maps pseudo-file rather than an on-disk ELF
// image, since there is no core file for a live victim.
package procmaps

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/memunreachable/internal/arena"
)

// A Mapping is a contiguous region of the victim's address space with
// uniform permissions and an optional name -- a filesystem path, a
// bracketed pseudo-name like "[stack]" or "[anon:tag]", or empty.
type Mapping struct {
	Begin Address
	End   Address
	Perm  Perm
	Name  string
}

// Size returns End-Begin.
func (m Mapping) Size() int64 { return m.End.Sub(m.Begin) }

// Read parses r, which must have the format of /proc/<pid>/maps, into
// a slice of Mappings in file order (ascending virtual address). a,
// if non-nil, backs the returned slice with the per-collection region
// allocator instead of the managed heap; pass nil outside a
// collection (e.g. from a test) to get a plain Go slice.
func Read(r io.Reader, a *arena.Arena) ([]Mapping, error) {
	var vec *arena.Vector[Mapping]
	var out []Mapping
	if a != nil {
		vec = arena.NewVector[Mapping](a)
	}
	s := bufio.NewScanner(r)
	// Path components of mapped files can be arbitrarily long; grow
	// past bufio.Scanner's default 64K line limit just in case.
	s.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for s.Scan() {
		m, err := parseLine(s.Text())
		if err != nil {
			return nil, fmt.Errorf("procmaps: %w", err)
		}
		if vec != nil {
			vec.Append(m)
		} else {
			out = append(out, m)
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("procmaps: %w", err)
	}
	if vec != nil {
		return vec.Slice(), nil
	}
	return out, nil
}

// ReadPid opens and parses /proc/<pid>/maps for pid.
func ReadPid(pid int, a *arena.Arena) ([]Mapping, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, fmt.Errorf("procmaps: open: %w", err)
	}
	defer f.Close()
	return Read(f, a)
}

// parseLine parses one line of /proc/<pid>/maps, e.g.:
//
//	7f1234500000-7f1234521000 rw-p 00000000 00:00 0  [anon:libc_malloc]
//	7f1234600000-7f1234621000 r-xp 00000000 08:01 131 /usr/lib/libc.so.6
//
// The name field may be absent entirely (trailing whitespace only) or
// contain embedded spaces, so it is taken as everything after the 5th
// field rather than split further.
func parseLine(line string) (Mapping, error) {
	fields := strings.SplitN(line, " ", 6)
	for len(fields) < 5 {
		fields = append(fields, "")
	}
	addrs := strings.SplitN(fields[0], "-", 2)
	if len(addrs) != 2 {
		return Mapping{}, fmt.Errorf("malformed address range %q", fields[0])
	}
	begin, err := strconv.ParseUint(addrs[0], 16, 64)
	if err != nil {
		return Mapping{}, fmt.Errorf("malformed begin address %q: %w", addrs[0], err)
	}
	end, err := strconv.ParseUint(addrs[1], 16, 64)
	if err != nil {
		return Mapping{}, fmt.Errorf("malformed end address %q: %w", addrs[1], err)
	}
	permField := fields[1]
	var perm Perm
	if len(permField) >= 3 {
		if permField[0] == 'r' {
			perm |= Read
		}
		if permField[1] == 'w' {
			perm |= Write
		}
		if permField[2] == 'x' {
			perm |= Exec
		}
	}
	name := ""
	if len(fields) > 5 {
		name = strings.TrimLeft(fields[5], " ")
	}
	return Mapping{
		Begin: Address(begin),
		End:   Address(end),
		Perm:  perm,
		Name:  name,
	}, nil
}
