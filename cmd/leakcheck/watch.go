// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/google/memunreachable"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "interactively run collections against the demo allocator",
		Run:   runWatch,
	}
}

// runWatch is a small REPL: "collect" runs a collection and prints the
// summary, "log" also dumps each leak's contents, "quit" exits.
func runWatch(cmd *cobra.Command, args []string) {
	setupAllocator()
	defer referenceAlloc.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "leakcheck> ",
		HistoryFile: "",
	})
	if err != nil {
		exitf("watch: %v\n", err)
	}
	defer rl.Close()

	fmt.Println(`commands: collect, log, quit`)
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			exitf("watch: %v\n", err)
		}
		switch strings.TrimSpace(line) {
		case "":
			continue
		case "quit", "exit":
			return
		case "collect":
			printCollection(-1)
		case "log":
			if err := memunreachable.LogUnreachableMemory(os.Stdout, true, -1); err != nil {
				fmt.Fprintf(os.Stderr, "log: %v\n", err)
			}
		default:
			fmt.Println("unknown command, try: collect, log, quit")
		}
	}
}
