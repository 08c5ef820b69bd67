// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package executor

import (
	"fmt"
	"os"
	"path/filepath"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-sealedtest/envscope"
	"github.com/hashicorp/go-sealedtest/hooks"
	"github.com/hashicorp/go-sealedtest/structs"
)

// exit is swapped out in tests.
var exit = os.Exit

// ChildKey returns the key of the invocation this process was spawned to
// run. It returns false in a process which is not an isolated child.
func ChildKey() (string, bool) {
	key, ok := os.LookupEnv(ChildEnv)
	return key, ok && key != ""
}

// IsChild returns true if this process is an isolated child.
func IsChild() bool {
	_, ok := ChildKey()
	return ok
}

// IsChildOf returns true if this process was spawned to run inv.
func IsChildOf(inv *structs.Invocation) bool {
	key, ok := ChildKey()
	return ok && key == inv.Key()
}

// TestDir returns the working directory of the test process. In a child it is
// the working directory of the parent, so relative paths resolve to the same
// files in both processes.
func TestDir() (string, error) {
	if dir := os.Getenv(TestDirEnv); dir != "" && IsChild() {
		return dir, nil
	}
	return os.Getwd()
}

// RunChild runs inv inside the isolated child and writes the outcome to the
// result file named by the parent. If the outcome cannot be written the
// process exits with ExitResultWriteFailed.
func RunChild(logger hclog.Logger, inv *structs.Invocation) *structs.Outcome {
	logger = logger.Named("child").With("test", inv.Name, "seq", inv.Seq)

	out := Execute(logger, inv, os.Getenv(WorkspaceEnv))

	if err := WriteResult(os.Getenv(ResultEnv), out); err != nil {
		logger.Error("failed to report outcome", "error", err)
		exit(ExitResultWriteFailed)
	}
	return out
}

// Execute runs the steps of inv in the current process: it enters dir,
// applies the environment overrides, runs cmd_before, setup, body, teardown
// and cmd_after, then restores the environment.
func Execute(logger hclog.Logger, inv *structs.Invocation, dir string) *structs.Outcome {
	if err := enterDir(dir); err != nil {
		return structs.NewFailure(structs.PhaseSetup, err)
	}

	snap, err := envscope.Enter(inv.Env)
	if err != nil {
		return structs.NewFailure(structs.PhaseSetup, fmt.Errorf("failed to apply environment: %w", err))
	}
	logger.Trace("applied environment overrides", "keys", snap.Keys())

	setup := hooks.Chain(
		hooks.Named(structs.PhaseCmdBefore, hooks.Commands(logger, dir, inv.CmdBefore)),
		inv.Before,
	)
	teardown := hooks.All(
		inv.After,
		hooks.Named(structs.PhaseCmdAfter, hooks.Commands(logger, dir, inv.CmdAfter)),
	)
	out := hooks.Sequence(logger, setup, inv.Body, teardown)

	if out.Goexit && out.Phase == structs.PhaseBody && inv.Skipped != nil && inv.Skipped() {
		logger.Debug("body skipped the test")
		out.Kind = structs.OutcomeSuccess
		out.Phase = ""
		out.Message = "skipped"
		out.Goexit = false
		out.Skipped = true
	}

	if err := snap.Restore(); err != nil {
		logger.Warn("failed to restore environment", "error", err)
		msg := fmt.Sprintf("failed to restore environment: %v", err)
		if out.TeardownError != "" {
			msg = out.TeardownError + "; " + msg
		}
		out.TeardownError = msg
	}
	return out
}

// enterDir makes dir the working directory unless it already is.
func enterDir(dir string) error {
	if dir == "" {
		return nil
	}
	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return fmt.Errorf("%w: workspace %q: %v", structs.ErrIO, dir, err)
	}
	cwd, err := os.Getwd()
	if err == nil {
		if cwd, err = filepath.EvalSymlinks(cwd); err == nil && cwd == want {
			return nil
		}
	}
	if err := os.Chdir(want); err != nil {
		return fmt.Errorf("%w: failed to enter workspace: %v", structs.ErrIO, err)
	}
	return nil
}

// WriteResult encodes out into the file at path. The file is written under a
// temporary name and renamed into place so the parent never reads a partial
// outcome.
func WriteResult(path string, out *structs.Outcome) error {
	if path == "" {
		return fmt.Errorf("%s is not set", ResultEnv)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".outcome-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := structs.EncodeOutcome(tmp, out); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
