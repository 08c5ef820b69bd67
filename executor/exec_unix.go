// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

//go:build unix

package executor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configure new process group for child process
func setNewProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// SIGKILL the process group starting at process.Pid
func killProcessTree(process *os.Process) error {
	if process == nil {
		return nil
	}
	// negative pid tells unix to kill the entire process group
	if err := unix.Kill(-process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

// exitResult returns the exit code and terminating signal of a process. A
// process killed by a signal reports 128+signal as its exit code.
func exitResult(ps *os.ProcessState) (exitCode, signal int) {
	exitCode = -1
	if ps == nil {
		return -2, 0
	}
	if status, ok := ps.Sys().(syscall.WaitStatus); ok {
		exitCode = status.ExitStatus()
		if status.Signaled() {
			const exitSignalBase = 128
			signal = int(status.Signal())
			exitCode = exitSignalBase + signal
		}
	}
	return exitCode, signal
}
