// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package hooks

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/armon/circbuf"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-sealedtest/structs"
	"github.com/mattn/go-shellwords"
)

// CommandBufSize is the maximum amount of command output kept for error
// messages and logs.
const CommandBufSize = 4 * 1024

// ParseCommand splits a command line into its arguments. Environment
// variables are expanded using the environment of the calling process, so a
// command run inside the isolated process observes its overrides.
func ParseCommand(line string) ([]string, error) {
	p := shellwords.NewParser()
	p.ParseEnv = true
	args, err := p.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse command %q: %v", structs.ErrConfig, line, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: empty command", structs.ErrConfig)
	}
	if p.Position > 0 && strings.TrimSpace(line[p.Position:]) != "" {
		return nil, fmt.Errorf("%w: command %q must be a single command without shell operators", structs.ErrConfig, line)
	}
	return args, nil
}

// Command returns a hook executing the command line in dir. An empty dir runs
// the command in the current working directory. The combined output is
// included in the error if the command fails.
func Command(logger hclog.Logger, dir, line string) structs.Hook {
	logger = logger.Named("command")
	return func() error {
		args, err := ParseCommand(line)
		if err != nil {
			return err
		}

		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir

		// Capture output
		buf, _ := circbuf.NewBuffer(CommandBufSize)
		cmd.Stdout = buf
		cmd.Stderr = buf

		logger.Trace("running command", "command", line)
		if err := cmd.Run(); err != nil {
			output := strings.TrimSpace(string(buf.Bytes()))
			if output == "" {
				return fmt.Errorf("command %q failed: %v", line, err)
			}
			return fmt.Errorf("command %q failed: %v: %s", line, err, output)
		}
		logger.Trace("command finished", "command", line, "output", string(buf.Bytes()))
		return nil
	}
}

// Commands returns a hook running each command line in order and stopping at
// the first failure.
func Commands(logger hclog.Logger, dir string, lines []string) structs.Hook {
	var steps []structs.Hook
	for _, line := range lines {
		steps = append(steps, Command(logger, dir, line))
	}
	return Chain(steps...)
}
