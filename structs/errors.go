// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package structs

import "errors"

var (
	// ErrConfig is a malformed or unresolvable invocation configuration. It
	// is always raised before any workspace or process is created.
	ErrConfig = errors.New("invalid sealed test configuration")

	// ErrIO is a failure to create the workspace or stage a file into it.
	ErrIO = errors.New("workspace i/o failure")

	// ErrSpawn is a failure to start the isolated process.
	ErrSpawn = errors.New("failed to spawn isolated process")

	// ErrHook is a setup or teardown hook that returned an error or
	// panicked.
	ErrHook = errors.New("hook failed")

	// ErrBody is the test body's own failure.
	ErrBody = errors.New("test body failed")

	// ErrAbnormal is an isolated process that exited without reporting an
	// outcome.
	ErrAbnormal = errors.New("isolated process terminated abnormally")
)
