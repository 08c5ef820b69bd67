// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package subproc

import (
	"fmt"
	"os"
)

var (
	// executable is the test binary of this process
	executable string
)

func init() {
	s, err := os.Executable()
	if err != nil {
		panic(fmt.Sprintf("failed to detect executable: %v", err))
	}
	executable = s
}

// Self returns the path to the executable of this process.
func Self() string {
	return executable
}

// TestFlags returns the command line which makes a test binary run the tests
// matching pattern exactly once with verbose output, followed by extra.
func TestFlags(pattern string, extra ...string) []string {
	flags := []string{
		"-test.run=" + pattern,
		"-test.count=1",
		"-test.v=true",
	}
	return append(flags, extra...)
}
