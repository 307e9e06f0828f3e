// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package logging

import "github.com/aristanetworks/glog"

// Glog is a type that allows passing glog as a Logger.
type Glog struct {
	// default value of glog.Level is 0
	InfoLevel glog.Level
}

// Warning logs at the warning level
func (g *Glog) Warning(args ...interface{}) {
	glog.Warning(args...)
}

// Warningf logs at the warning level, with format
func (g *Glog) Warningf(format string, args ...interface{}) {
	glog.Warningf(format, args...)
}

// Fatal logs at the fatal level
func (g *Glog) Fatal(args ...interface{}) {
	glog.Fatal(args...)
}

// Fatalf logs at the fatal level, with format
func (g *Glog) Fatalf(format string, args ...interface{}) {
	glog.Fatalf(format, args...)
}

// Default is the package-wide Logger used by containers that aren't given
// one explicitly.
var Default Logger = &Glog{}
