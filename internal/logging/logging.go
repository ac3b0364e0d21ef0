// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logging is the small leveled logger used throughout the
// collector. It wraps the standard log package rather than a
// structured-logging framework, matching the plain log.Printf-style
// diagnostics used by the rest of this toolchain.
package logging

import (
	"fmt"
	"log"
	"os"
)

// Logger is the diagnostic sink used by the collector. The coordinator
// logs one line for a semaphore timeout and for each failure inside
// the collector child; capture and pipe-receive failures in the parent
// are returned as errors without a log line. Nothing here retries.
type Logger struct {
	l *log.Logger
}

// New returns a Logger that writes to os.Stderr with a fixed prefix.
func New(prefix string) *Logger {
	return &Logger{l: log.New(os.Stderr, prefix, log.LstdFlags)}
}

// Default is the package-level logger used when callers don't wire
// their own.
var Default = New("memunreachable: ")

func (lg *Logger) Errorf(format string, args ...interface{}) {
	lg.l.Output(2, "ERROR: "+fmt.Sprintf(format, args...))
}

func (lg *Logger) Warnf(format string, args ...interface{}) {
	lg.l.Output(2, "WARN: "+fmt.Sprintf(format, args...))
}

func (lg *Logger) Infof(format string, args ...interface{}) {
	lg.l.Output(2, fmt.Sprintf(format, args...))
}
