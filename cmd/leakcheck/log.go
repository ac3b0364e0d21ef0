// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/google/memunreachable"
)

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "run one collection and log leaks in the canonical format",
		Run:   runLog,
	}
	cmd.Flags().IntVar(&flagLimit, "limit", -1, "maximum number of leaks to log, -1 for unlimited")
	cmd.Flags().BoolVar(&flagContents, "contents", false, "hex-dump the first bytes of each leak")
	return cmd
}

func runLog(cmd *cobra.Command, args []string) {
	setupAllocator()
	defer referenceAlloc.Close()

	if err := memunreachable.LogUnreachableMemory(os.Stdout, flagContents, flagLimit); err != nil {
		exitf("log: %v\n", err)
	}
}
