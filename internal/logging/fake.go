// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package logging

import "sync"

// Fake is a Logger that records calls instead of writing to stderr or
// exiting the process, so tests can assert that the balance guard fired
// without killing the test binary.
type Fake struct {
	mu       sync.Mutex
	Warnings []string
	Fatals   []string
}

// Warning records the formatted message.
func (f *Fake) Warning(args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Warnings = append(f.Warnings, sprint(args))
}

// Warningf records the formatted message.
func (f *Fake) Warningf(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Warnings = append(f.Warnings, sprintf(format, args))
}

// Fatal records the message. Unlike Glog.Fatal, it does not terminate the
// process, so callers must still return/stop on their own.
func (f *Fake) Fatal(args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fatals = append(f.Fatals, sprint(args))
}

// Fatalf records the message. See Fatal.
func (f *Fake) Fatalf(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fatals = append(f.Fatals, sprintf(format, args))
}

// NFatals reports how many fatal calls were recorded.
func (f *Fake) NFatals() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Fatals)
}

// NWarnings reports how many warning calls were recorded.
func (f *Fake) NWarnings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Warnings)
}
