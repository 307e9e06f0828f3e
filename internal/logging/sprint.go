// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package logging

import "fmt"

func sprint(args []interface{}) string {
	return fmt.Sprint(args...)
}

func sprintf(format string, args []interface{}) string {
	return fmt.Sprintf(format, args...)
}
