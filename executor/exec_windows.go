// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

//go:build windows

package executor

import (
	"os"
	"os/exec"
	"syscall"
)

// configure new process group for child process
func setNewProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags = syscall.CREATE_NEW_PROCESS_GROUP
}

// killProcessTree kills the child. Processes it started are not tracked.
func killProcessTree(process *os.Process) error {
	if process == nil {
		return nil
	}
	if err := process.Kill(); err != nil && err != os.ErrProcessDone {
		return err
	}
	return nil
}

func exitResult(ps *os.ProcessState) (exitCode, signal int) {
	if ps == nil {
		return -2, 0
	}
	return ps.ExitCode(), 0
}
