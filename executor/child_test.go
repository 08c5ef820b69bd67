// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package executor

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/hashicorp/go-sealedtest/helper/testlog"
	"github.com/hashicorp/go-sealedtest/hooks"
	"github.com/hashicorp/go-sealedtest/structs"
	"github.com/shoenig/test/must"
)

// Execute changes the working directory and environment of the test process,
// so these tests must not run in parallel.

func TestExecute_Order(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EXECUTE_TEST_PRIOR", "prior")
	dir := t.TempDir()

	var steps []string
	record := func(step string) structs.Hook {
		return func() error {
			steps = append(steps, step)
			return nil
		}
	}

	inv := &structs.Invocation{
		Name: t.Name(),
		Env: []structs.EnvVar{
			{Name: "EXECUTE_TEST_PRIOR", Value: "override"},
			{Name: "EXECUTE_TEST_NEW", Value: "new"},
		},
		CmdBefore: []string{"touch cmd_before"},
		CmdAfter:  []string{"touch cmd_after"},
		Before: func() error {
			if _, err := os.Stat("cmd_before"); err != nil {
				return errors.New("cmd_before did not run first")
			}
			steps = append(steps, "before")
			return nil
		},
		Body: func() error {
			if os.Getenv("EXECUTE_TEST_PRIOR") != "override" || os.Getenv("EXECUTE_TEST_NEW") != "new" {
				return errors.New("overrides not applied")
			}
			steps = append(steps, "body")
			return nil
		},
		After: record("after"),
	}

	out := Execute(testlog.HCLogger(t), inv, dir)
	must.True(t, out.Successful(), must.Sprint(out.Message, out.TeardownError))
	must.Eq(t, []string{"before", "body", "after"}, steps)
	must.FileExists(t, filepath.Join(dir, "cmd_before"))
	must.FileExists(t, filepath.Join(dir, "cmd_after"))

	cwd, err := os.Getwd()
	must.NoError(t, err)
	want, err := filepath.EvalSymlinks(dir)
	must.NoError(t, err)
	must.Eq(t, want, cwd)

	// environment restored
	must.Eq(t, "prior", os.Getenv("EXECUTE_TEST_PRIOR"))
	_, ok := os.LookupEnv("EXECUTE_TEST_NEW")
	must.False(t, ok)
}

func TestExecute_CmdBeforeFailure(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()

	bodyRan := false
	inv := &structs.Invocation{
		Name:      t.Name(),
		CmdBefore: []string{"false"},
		Body:      func() error { bodyRan = true; return nil },
		CmdAfter:  []string{"touch cmd_after"},
	}

	out := Execute(testlog.HCLogger(t), inv, dir)
	must.Eq(t, structs.OutcomeFailure, out.Kind)
	must.Eq(t, structs.PhaseSetup, out.Phase)
	must.StrContains(t, out.Message, structs.PhaseCmdBefore)
	must.False(t, bodyRan)
	must.FileExists(t, filepath.Join(dir, "cmd_after"))
}

func TestExecute_TeardownFailures(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()

	inv := &structs.Invocation{
		Name:     t.Name(),
		Body:     func() error { return errors.New("body failed") },
		After:    func() error { return errors.New("after failed") },
		CmdAfter: []string{"false"},
	}

	out := Execute(testlog.HCLogger(t), inv, dir)
	must.Eq(t, structs.OutcomeFailure, out.Kind)
	must.Eq(t, "body failed", out.Message)
	must.StrContains(t, out.TeardownError, "after failed")
	must.StrContains(t, out.TeardownError, structs.PhaseCmdAfter)
}

func TestExecute_MissingWorkspace(t *testing.T) {
	t.Chdir(t.TempDir())

	ran := false
	inv := &structs.Invocation{
		Name: t.Name(),
		Body: func() error { ran = true; return nil },
	}

	out := Execute(testlog.HCLogger(t), inv, filepath.Join(t.TempDir(), "missing"))
	must.Eq(t, structs.OutcomeFailure, out.Kind)
	must.StrContains(t, out.Message, structs.ErrIO.Error())
	must.False(t, ran)
}

func TestRunChild_WriteFailure(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(WorkspaceEnv, t.TempDir())
	t.Setenv(ResultEnv, filepath.Join(t.TempDir(), "missing", resultFile))

	code := -1
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = os.Exit })

	inv := &structs.Invocation{Name: t.Name(), Body: func() error { return nil }}
	out := RunChild(testlog.HCLogger(t), inv)
	must.True(t, out.Successful())
	must.Eq(t, ExitResultWriteFailed, code)
}

func TestChildKey(t *testing.T) {
	inv := &structs.Invocation{Name: "TestSomething", Seq: 2}

	t.Setenv(ChildEnv, "")
	must.False(t, IsChild())
	must.False(t, IsChildOf(inv))

	t.Setenv(ChildEnv, "TestSomething#2")
	must.True(t, IsChild())
	must.True(t, IsChildOf(inv))

	key, ok := ChildKey()
	must.True(t, ok)
	must.Eq(t, inv.Key(), key)

	inv.Seq = 1
	must.False(t, IsChildOf(inv))
}

func TestTestDir(t *testing.T) {
	wd := t.TempDir()
	t.Chdir(wd)
	t.Setenv(TestDirEnv, "/parent/pkg")

	// outside a child the marker is ignored
	t.Setenv(ChildEnv, "")
	dir, err := TestDir()
	must.NoError(t, err)
	must.Eq(t, wd, dir)

	t.Setenv(ChildEnv, "TestSomething#0")
	dir, err = TestDir()
	must.NoError(t, err)
	must.Eq(t, "/parent/pkg", dir)
}

func TestExecute_Skipped(t *testing.T) {
	t.Chdir(t.TempDir())

	skipped := false
	inv := &structs.Invocation{
		Name: t.Name(),
		Body: func() error {
			skipped = true
			runtime.Goexit()
			return nil
		},
		Skipped: func() bool { return skipped },
	}

	out := Execute(testlog.HCLogger(t), inv, t.TempDir())
	must.Eq(t, structs.OutcomeSuccess, out.Kind)
	must.True(t, out.Skipped)

	must.False(t, out.Goexit)

	// without the callback an early exit is a failure
	inv.Skipped = nil
	out = Execute(testlog.HCLogger(t), inv, t.TempDir())
	must.Eq(t, structs.OutcomeFailure, out.Kind)
	must.True(t, out.Goexit)
	must.False(t, out.Skipped)

	// a returned error is never taken for a skip, whatever its text
	inv.Body = func() error {
		skipped = true
		return errors.New(hooks.ErrGoexit.Error())
	}
	inv.Skipped = func() bool { return skipped }
	out = Execute(testlog.HCLogger(t), inv, t.TempDir())
	must.Eq(t, structs.OutcomeFailure, out.Kind)
	must.False(t, out.Skipped)
}
