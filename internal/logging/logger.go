// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package logging gives the hash, segmented, and distributed overlays an
// injectable logging sink, so the balance guard and the fatal conditions in
// spec section 7 of this module's design don't hard-code a single logging
// backend.
package logging

// Logger is an interface to pass a generic logger without depending on
// either golang/glog or aristanetworks/glog directly from container code.
type Logger interface {
	// Warning logs at the warning level. Used for the one-shot balance-guard
	// warning when a table is unbalanced but not yet severely so.
	Warning(args ...interface{})
	// Warningf logs at the warning level, with format.
	Warningf(format string, args ...interface{})
	// Fatal logs at the fatal level and terminates the process. Used for
	// conditions this module never expects to recover from: a severely
	// unbalanced table, or a messaging failure mid-collective.
	Fatal(args ...interface{})
	// Fatalf logs at the fatal level, with format, and terminates the process.
	Fatalf(format string, args ...interface{})
}
