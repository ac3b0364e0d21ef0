// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memunreachable

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// LogUnreachableMemory collects and logs each leak to w, optionally
// hex-dumping its first bytes, then writes the summary line.
func LogUnreachableMemory(w io.Writer, logContents bool, limit int) error {
	info, err := GetUnreachableMemory(limit)
	if err != nil {
		return err
	}
	for _, lk := range info.Leaks {
		fmt.Fprintf(w, "unreachable allocation at %#x of approximate size %d\n", lk.Begin, lk.Size)
		if logContents {
			n := lk.Size
			if n > ContentsLen {
				n = ContentsLen
			}
			writeHexDump(w, lk.Contents[:n])
		}
	}
	fmt.Fprintf(w, "%d bytes in %d allocation(s) unreachable out of %d bytes in %d allocation(s)\n",
		info.LeakBytes, info.NumLeaks, info.AllocationBytes, info.NumAllocations)
	return nil
}

// LogUnreachableMemoryStderr is the convenience entry point matching
// spec.md's log_unreachable_memory(log_contents, limit) signature,
// writing to os.Stderr.
func LogUnreachableMemoryStderr(logContents bool, limit int) error {
	return LogUnreachableMemory(os.Stderr, logContents, limit)
}

// writeHexDump renders a canonical 16-byte-per-line hex+ASCII dump:
// printable characters are shown as-is, everything else replaced by
// '.'.
func writeHexDump(w io.Writer, b []byte) {
	for off := 0; off < len(b); off += 16 {
		end := off + 16
		if end > len(b) {
			end = len(b)
		}
		line := b[off:end]

		var hex strings.Builder
		for i := 0; i < 16; i++ {
			if i < len(line) {
				fmt.Fprintf(&hex, "%02x ", line[i])
			} else {
				hex.WriteString("   ")
			}
			if i == 7 {
				hex.WriteByte(' ')
			}
		}

		var ascii strings.Builder
		for _, c := range line {
			if c >= 0x20 && c < 0x7f {
				ascii.WriteByte(c)
			} else {
				ascii.WriteByte('.')
			}
		}

		fmt.Fprintf(w, "%08x  %s |%s|\n", off, hex.String(), ascii.String())
	}
}
