// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The leakcheck tool drives an unreachable-memory collection against
// the current process, using the reference bump allocator in
// internal/allocator as a stand-in for a real cgo-backed allocator.
// Run "leakcheck help" for a list of commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/google/memunreachable"
	"github.com/google/memunreachable/internal/allocator"
	"github.com/google/memunreachable/internal/freeze"
)

var (
	flagLimit       int
	flagContents    bool
	flagArenaBytes  int
	referenceAlloc  *allocator.Reference
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "leakcheck",
		Short: "leakcheck demonstrates the memunreachable collector against a reference allocator",
	}
	root.PersistentFlags().IntVar(&flagArenaBytes, "arena-bytes", 4<<20, "size of the demo reference allocator arena")
	root.AddCommand(collectCmd())
	root.AddCommand(logCmd())
	root.AddCommand(watchCmd())
	return root
}

func exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}

// setupAllocator builds and registers the demo reference allocator and
// leaks one block in it (see allocator.LeakSample).
func setupAllocator() {
	a, err := allocator.NewReference(flagArenaBytes)
	if err != nil {
		exitf("failed to create reference allocator: %v\n", err)
	}
	referenceAlloc = a
	allocator.LeakSample(a)
	memunreachable.RegisterAllocator(a, freeze.Mutex(&a.Mu))
}
