// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package sealedtest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	"github.com/hashicorp/go-sealedtest/executor"
	"github.com/hashicorp/go-sealedtest/report"
	"github.com/hashicorp/go-sealedtest/structs"
	"github.com/hashicorp/go-sealedtest/workspace"
	"github.com/hashicorp/go-uuid"
)

const (
	// LogLevelEnv enables logging to stderr at the given level when no
	// logger is configured.
	LogLevelEnv = "SEALEDTEST_LOG_LEVEL"

	// DefaultKillGrace is the time left between killing a child that
	// overran the test deadline and the deadline itself.
	DefaultKillGrace = 5 * time.Second
)

// errMarkedFailed is the body outcome when the body returned nil after
// marking the test failed through testing.T.
var errMarkedFailed = errors.New("test marked as failed")

// calls counts the invocations made by each running test so repeated calls
// to Run within one test can be told apart in the child. Entries are removed
// when the test finishes, so every run of a test under -count starts at 0.
var calls sync.Map

// nextSeq returns the sequence number of the next invocation made by t.
func nextSeq(t *testing.T) int {
	v, loaded := calls.LoadOrStore(t, new(counter))
	if !loaded {
		t.Cleanup(func() { calls.Delete(t) })
	}
	return v.(*counter).next()
}

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.n
	c.n++
	return n
}

// IsChild returns true inside a sealed child process. Code which must only
// run in the parent test process can use it to return early.
func IsChild() bool {
	return executor.IsChild()
}

// Run executes body in a sealed child process and fails t unless the body,
// its hooks and its commands all succeed. A configuration error fails t
// before anything is created.
func Run(t *testing.T, body func(t *testing.T) error, opts ...Option) {
	t.Helper()

	out, err := Exec(t, body, opts...)
	if err != nil {
		t.Fatal(err)
	}
	if out == nil {
		// child process or not selected
		return
	}
	report.Apply(t, report.Report(out))
}

// Exec executes body in a sealed child process and returns its outcome
// without reporting it to t. In the child and for invocations the child was
// not spawned for it returns a nil outcome and a nil error.
func Exec(t *testing.T, body func(t *testing.T) error, opts ...Option) (*structs.Outcome, error) {
	t.Helper()

	seq := nextSeq(t)

	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	inv, err := cfg.invocation(t, seq, body)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger.With("test", inv.Name, "seq", inv.Seq)

	if executor.IsChild() {
		if executor.IsChildOf(inv) {
			executor.RunChild(logger, inv)
		}
		return nil, nil
	}

	ctx, cancel := deadlineContext(t, cfg.KillGrace)
	defer cancel()

	ws, err := workspace.Provision(logger, cfg.TmpDir, inv.ID, inv.ProjectRoot, inv.Files)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Destroy(); err != nil {
			logger.Warn("failed to destroy workspace", "dir", ws.Path(), "error", err)
		}
	}()

	out, err := executor.NewExecutor(logger, &executor.Config{Args: cfg.Args}).Run(ctx, inv, ws)
	if err != nil {
		return nil, err
	}

	metrics.IncrCounter([]string{"sealedtest", "outcome", out.Kind.String()}, 1)
	return out, nil
}

// invocation builds the invocation for the seq'th call of t.
func (c *Config) invocation(t *testing.T, seq int, body func(t *testing.T) error) (*structs.Invocation, error) {
	if body == nil {
		return nil, fmt.Errorf("%w: body is nil", structs.ErrConfig)
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invocation id: %v", err)
	}

	root := c.ProjectRoot
	if root == "" {
		if root, err = executor.TestDir(); err != nil {
			return nil, fmt.Errorf("%w: failed to determine project root: %v", structs.ErrConfig, err)
		}
	}

	inv := &structs.Invocation{
		ID:          id,
		Name:        t.Name(),
		Seq:         seq,
		ProjectRoot: root,
		Env:         c.Env,
		Files:       c.Files,
		CmdBefore:   c.CmdBefore,
		CmdAfter:    c.CmdAfter,
		Before:      c.Before,
		After:       c.After,
		Body: func() error {
			if err := body(t); err != nil {
				return err
			}
			if t.Failed() {
				return errMarkedFailed
			}
			return nil
		},
		Skipped: func() bool {
			return t.Skipped() && !t.Failed()
		},
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return inv, nil
}

// deadlineContext returns a context which expires grace before the deadline
// of the test binary, if it has one.
func deadlineContext(t *testing.T, grace time.Duration) (context.Context, context.CancelFunc) {
	deadline, ok := t.Deadline()
	if !ok {
		return context.WithCancel(context.Background())
	}
	if d := deadline.Add(-grace); d.After(time.Now()) {
		deadline = d
	}
	return context.WithDeadlineCause(context.Background(), deadline,
		fmt.Errorf("test deadline %s reached", deadline.Format(time.RFC3339)))
}

// defaultLogger logs to stderr when LogLevelEnv is set and discards
// everything otherwise.
func defaultLogger() hclog.Logger {
	level := os.Getenv(LogLevelEnv)
	if level == "" {
		return hclog.NewNullLogger()
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "sealedtest",
		Level:  hclog.LevelFromString(level),
		Output: os.Stderr,
	})
}
