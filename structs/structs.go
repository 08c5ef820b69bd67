// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package structs

import (
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-sealedtest/helper/escapingfs"
)

// Hook is a callable run inside the isolated process: a setup or teardown
// hook, or the test body itself.
type Hook func() error

// EnvVar is a single environment variable override.
type EnvVar struct {
	Name  string
	Value string
}

func (e EnvVar) String() string {
	return e.Name + "=" + e.Value
}

// FileStaging describes a file or directory copied into the workspace before
// any hook runs. Source is relative to the project root and Destination is
// relative to the workspace root.
type FileStaging struct {
	Source      string
	Destination string
}

// Target returns the destination of the staging within the workspace. An
// empty destination stages the source under its base name.
func (f FileStaging) Target() string {
	if f.Destination == "" {
		return filepath.Base(filepath.Clean(f.Source))
	}
	return filepath.Clean(f.Destination)
}

// Validate checks the staging is well formed without touching the
// filesystem.
func (f FileStaging) Validate() error {
	if f.Source == "" {
		return fmt.Errorf("%w: file staging requires a source", ErrConfig)
	}
	if filepath.IsAbs(f.Destination) {
		return fmt.Errorf("%w: destination %q must be relative to the workspace", ErrConfig, f.Destination)
	}
	target := f.Target()
	if target == "." || target == string(filepath.Separator) {
		return fmt.Errorf("%w: source %q has no usable destination name", ErrConfig, f.Source)
	}
	escapes, err := escapingfs.PathEscapesViaRelative("", target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if escapes {
		return fmt.Errorf("%w: destination %q escapes the workspace", ErrConfig, target)
	}
	return nil
}

// Invocation is a single sealed run of a test body. It is built by the
// front-end and is not modified once handed to the engine.
type Invocation struct {
	// ID uniquely identifies the invocation across processes.
	ID string

	// Name is the full name of the test (as reported by testing.T.Name) that
	// owns the invocation.
	Name string

	// Seq distinguishes multiple invocations made by the same test.
	Seq int

	// ProjectRoot is the directory staged sources are resolved against.
	ProjectRoot string

	// Env is applied in order inside the isolated process; the last value of
	// a duplicated name wins.
	Env []EnvVar

	// Files are copied into the workspace in order before any hook runs.
	Files []FileStaging

	// CmdBefore and CmdAfter are command lines run in the workspace around
	// Before and After.
	CmdBefore []string
	CmdAfter  []string

	Before Hook
	Body   Hook
	After  Hook

	// Skipped reports whether the body skipped the test. It is consulted
	// when the body exits its goroutine without returning.
	Skipped func() bool
}

// Key is the marker used to match a spawned child process back to the
// invocation that spawned it.
func (i *Invocation) Key() string {
	return fmt.Sprintf("%s#%d", i.Name, i.Seq)
}

// Validate checks the invocation before any resource is allocated.
func (i *Invocation) Validate() error {
	if i == nil {
		return fmt.Errorf("%w: invocation is nil", ErrConfig)
	}
	if i.Name == "" {
		return fmt.Errorf("%w: invocation requires a test name", ErrConfig)
	}
	if i.Body == nil {
		return fmt.Errorf("%w: invocation requires a body", ErrConfig)
	}
	for _, e := range i.Env {
		if e.Name == "" {
			return fmt.Errorf("%w: environment variable with empty name", ErrConfig)
		}
		for _, c := range e.Name {
			if c == '=' || c == 0 {
				return fmt.Errorf("%w: invalid environment variable name %q", ErrConfig, e.Name)
			}
		}
	}
	for _, f := range i.Files {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}
