// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package subproc provides helper utilities for executing the running test
// binary as a child process of itself.
//
// The child is told apart from its parent through marker environment
// variables set by the caller, and switches behavior on them early.
package subproc
