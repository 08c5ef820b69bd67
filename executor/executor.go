// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package executor runs an invocation in a separate copy of the current test
// binary whose working directory is the invocation's workspace.
//
// The parent re-executes itself with a -test.run pattern selecting the test
// that owns the invocation and marks the child through its environment. The
// child runs the same test function, recognises the marker and runs the
// invocation through RunChild, which reports the outcome back to the parent
// through a result file.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/armon/circbuf"
	hclog "github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	"github.com/hashicorp/go-sealedtest/envscope"
	"github.com/hashicorp/go-sealedtest/helper/subproc"
	"github.com/hashicorp/go-sealedtest/structs"
	"github.com/hashicorp/go-sealedtest/workspace"
)

const (
	// ChildEnv marks a child process and carries the key of the invocation
	// it must run.
	ChildEnv = "SEALEDTEST_CHILD"

	// WorkspaceEnv carries the workspace directory to the child.
	WorkspaceEnv = "SEALEDTEST_WORKSPACE"

	// ResultEnv carries the path the child writes its outcome to.
	ResultEnv = "SEALEDTEST_RESULT"

	// TestDirEnv carries the working directory of the parent test process,
	// which the child no longer has since it runs in the workspace.
	TestDirEnv = "SEALEDTEST_TEST_DIR"

	// ExitResultWriteFailed is the exit code of a child which ran the
	// invocation but could not report the outcome.
	ExitResultWriteFailed = 97

	// DefaultOutputLimit is the amount of child output kept by default.
	DefaultOutputLimit = 64 * 1024

	// DefaultWaitDelay is how long output of an exited child is drained
	// while a process it left behind still holds the output open.
	DefaultWaitDelay = 5 * time.Second

	// resultFile is the name of the result file within the control
	// directory.
	resultFile = "outcome.msgpack"
)

// Config configures an Executor.
type Config struct {
	// OutputLimit is the number of trailing bytes of the combined child
	// output kept on the outcome. Zero uses DefaultOutputLimit.
	OutputLimit int64

	// WaitDelay bounds the time spent waiting for the output of a child
	// after it exited or was killed. Zero uses DefaultWaitDelay.
	WaitDelay time.Duration

	// Args are appended to the child's command line.
	Args []string
}

// Executor spawns isolated child processes.
type Executor struct {
	config *Config
	logger hclog.Logger
}

// NewExecutor returns an Executor. A nil config uses the defaults.
func NewExecutor(logger hclog.Logger, config *Config) *Executor {
	if config == nil {
		config = new(Config)
	}
	if config.OutputLimit <= 0 {
		config.OutputLimit = DefaultOutputLimit
	}
	if config.WaitDelay <= 0 {
		config.WaitDelay = DefaultWaitDelay
	}
	return &Executor{
		config: config,
		logger: logger.Named("executor"),
	}
}

// RunPattern returns the -test.run pattern matching exactly the test called
// name, including each level of a subtest name.
func RunPattern(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = "^" + regexp.QuoteMeta(p) + "$"
	}
	return strings.Join(parts, "/")
}

// Command returns the child command for inv, without starting it.
func (e *Executor) Command(ctx context.Context, inv *structs.Invocation, dir, resultPath string) *exec.Cmd {
	args := subproc.TestFlags(RunPattern(inv.Name), e.config.Args...)

	cmd := exec.CommandContext(ctx, subproc.Self(), args...)
	cmd.Dir = dir
	markers := []structs.EnvVar{
		{Name: ChildEnv, Value: inv.Key()},
		{Name: WorkspaceEnv, Value: dir},
		{Name: ResultEnv, Value: resultPath},
	}
	if testDir, err := TestDir(); err == nil {
		markers = append(markers, structs.EnvVar{Name: TestDirEnv, Value: testDir})
	}
	cmd.Env = envscope.Environ(os.Environ(), markers)
	setNewProcessGroup(cmd)
	cmd.Cancel = func() error {
		e.logger.Debug("context done, killing isolated process", "test", inv.Name, "pid", cmd.Process.Pid)
		return killProcessTree(cmd.Process)
	}
	cmd.WaitDelay = e.config.WaitDelay
	return cmd
}

// Run executes inv in a new process whose working directory is ws and blocks
// until it exits. The outcome is the one reported by the child, or an
// AbnormalTermination when the child died without reporting.
//
// The returned error is non-nil only when the process could not be started,
// in which case it wraps structs.ErrSpawn.
func (e *Executor) Run(ctx context.Context, inv *structs.Invocation, ws *workspace.Workspace) (*structs.Outcome, error) {
	defer metrics.MeasureSince([]string{"sealedtest", "executor", "run"}, time.Now())

	if ws == nil || ws.Path() == "" {
		return nil, fmt.Errorf("%w: workspace is not built", structs.ErrSpawn)
	}

	logger := e.logger.With("test", inv.Name, "seq", inv.Seq, "invocation_id", inv.ID)

	// The result is written outside the workspace so the body cannot
	// tamper with it.
	controlDir, err := os.MkdirTemp("", "sealedtest-ctl-")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create control directory: %v", structs.ErrSpawn, err)
	}
	defer func() {
		if err := os.RemoveAll(controlDir); err != nil {
			logger.Warn("failed to remove control directory", "dir", controlDir, "error", err)
		}
	}()
	resultPath := filepath.Join(controlDir, resultFile)

	// Capture output
	output, _ := circbuf.NewBuffer(e.config.OutputLimit)

	cmd := e.Command(ctx, inv, ws.Path(), resultPath)
	cmd.Stdout = output
	cmd.Stderr = output

	logger.Trace("spawning isolated process", "command", cmd.Path, "args", cmd.Args, "dir", cmd.Dir)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", structs.ErrSpawn, err)
	}
	pid := cmd.Process.Pid

	waitErr := cmd.Wait()

	// Reap anything the child left running in its process group.
	if err := killProcessTree(cmd.Process); err != nil {
		logger.Debug("failed to clean up process group", "pid", pid, "error", err)
	}

	out, rerr := readResult(resultPath)
	if rerr != nil {
		code, sig := exitResult(cmd.ProcessState)
		msg := abnormalMessage(ctx, code, sig)
		logger.Debug("isolated process did not report an outcome",
			"pid", pid, "exit_code", code, "signal", sig, "wait_error", waitErr, "result_error", rerr)
		out = structs.NewAbnormal(code, sig, msg)
	}
	out.Output = output.Bytes()

	logger.Debug("isolated process finished", "pid", pid, "outcome", out.Kind)
	return out, nil
}

// readResult reads and decodes the outcome written by a child.
func readResult(path string) (*structs.Outcome, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, errors.New("empty result file")
	}
	out, err := structs.DecodeOutcome(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode result: %v", err)
	}
	return out, nil
}

// abnormalMessage describes why a child exited without reporting.
func abnormalMessage(ctx context.Context, code, sig int) string {
	switch {
	case ctx.Err() != nil:
		return fmt.Sprintf("isolated process killed: %v", context.Cause(ctx))
	case code == ExitResultWriteFailed && sig == 0:
		return "isolated process failed to write its outcome"
	case sig != 0:
		return fmt.Sprintf("isolated process terminated by signal %d (exit code %d)", sig, code)
	case code < 0:
		return "isolated process exit status unknown"
	default:
		return fmt.Sprintf("isolated process exited with code %d without reporting an outcome", code)
	}
}
