// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/google/memunreachable"
)

func collectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "run one collection and print the summary",
		Run:   runCollect,
	}
	cmd.Flags().IntVar(&flagLimit, "limit", -1, "maximum number of leaks to print, -1 for unlimited")
	return cmd
}

func runCollect(cmd *cobra.Command, args []string) {
	setupAllocator()
	defer referenceAlloc.Close()
	printCollection(flagLimit)
}

func printCollection(limit int) {
	info, err := memunreachable.GetUnreachableMemory(limit)
	if err != nil {
		exitf("collect: %v\n", err)
	}
	fmt.Printf("%d bytes in %d allocation(s) unreachable out of %d bytes in %d allocation(s)\n",
		info.LeakBytes, info.NumLeaks, info.AllocationBytes, info.NumAllocations)
	for _, lk := range info.Leaks {
		fmt.Printf("  %#x\tsize=%d\n", lk.Begin, lk.Size)
	}
}
