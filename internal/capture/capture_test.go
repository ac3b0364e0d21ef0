// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && (amd64 || arm64)

package capture

import (
	"os"
	"testing"

	"github.com/google/memunreachable/internal/arena"
)

func TestListTasksSelf(t *testing.T) {
	tids, err := listTasks(os.Getpid())
	if err != nil {
		t.Fatalf("listTasks: %v", err)
	}
	if len(tids) == 0 {
		t.Fatal("listTasks: want at least one task for the current process, got none")
	}
}

func TestListTasksNoSuchProcess(t *testing.T) {
	if _, err := listTasks(-1); err == nil {
		t.Fatal("listTasks(-1): want error, got nil")
	}
}

func TestNewRecordsSelfTid(t *testing.T) {
	c := New(os.Getpid(), 4)
	if c.selfTid == 0 {
		t.Fatal("New: selfTid not populated")
	}
}

func TestNewMaxRoundsFloor(t *testing.T) {
	c := New(os.Getpid(), 0)
	if c.maxRounds != 1 {
		t.Errorf("maxRounds = %d, want 1 for a non-positive budget", c.maxRounds)
	}
}

func TestCapturedInfoWithArena(t *testing.T) {
	a, err := arena.New()
	if err != nil {
		t.Fatalf("arena.New: %v", err)
	}
	defer a.Release()

	c := New(os.Getpid(), 4)
	info, err := c.CapturedInfo(a)
	if err != nil {
		t.Fatalf("CapturedInfo: %v", err)
	}
	if len(info) != 0 {
		t.Fatalf("CapturedInfo with nothing attached = %+v, want empty", info)
	}
}

func TestReleaseOneNotCaptured(t *testing.T) {
	c := New(os.Getpid(), 4)
	if err := c.ReleaseOne(999999); err == nil {
		t.Fatal("ReleaseOne: want error for tid never captured, got nil")
	}
}
