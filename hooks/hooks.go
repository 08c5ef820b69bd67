// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package hooks runs the setup, body and teardown of an invocation in order
// and converts whatever they do (return, fail, panic, exit the goroutine)
// into a single Outcome.
package hooks

import (
	"errors"
	"fmt"
	"runtime/debug"

	hclog "github.com/hashicorp/go-hclog"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-sealedtest/structs"
)

// ErrGoexit is the failure recorded for a hook which terminated its goroutine
// without returning, e.g. through testing.T.FailNow.
var ErrGoexit = errors.New("exited without returning (runtime.Goexit)")

// result is what a single hook invocation did.
type result struct {
	err      error
	panicked bool
	value    any
	stack    []byte
	goexit   bool
}

func (r result) failed() bool {
	return r.err != nil || r.panicked || r.goexit
}

// outcome converts a failed result into an Outcome for phase.
func (r result) outcome(phase string) *structs.Outcome {
	switch {
	case r.panicked:
		return structs.NewPanic(phase, r.value, r.stack)
	case r.goexit:
		out := structs.NewFailure(phase, ErrGoexit)
		out.Goexit = true
		return out
	case r.err != nil:
		return structs.NewFailure(phase, r.err)
	default:
		return structs.NewSuccess()
	}
}

// message describes a failed result in a single line.
func (r result) message() string {
	switch {
	case r.panicked:
		return fmt.Sprintf("panic: %v", r.value)
	case r.goexit:
		return ErrGoexit.Error()
	case r.err != nil:
		return r.err.Error()
	default:
		return ""
	}
}

// invoke runs h on its own goroutine so a panic or runtime.Goexit inside it
// cannot unwind the caller. A nil hook succeeds.
func invoke(h structs.Hook) result {
	if h == nil {
		return result{}
	}

	done := make(chan result, 1)
	go func() {
		var res result
		normal := false
		defer func() {
			if !normal {
				if v := recover(); v != nil {
					res = result{panicked: true, value: v, stack: debug.Stack()}
				} else {
					res = result{goexit: true}
				}
			}
			done <- res
		}()
		res.err = h()
		normal = true
	}()
	return <-done
}

// Sequence runs setup, body and teardown in that order and returns the
// outcome of the invocation.
//
// If setup fails the body is skipped and the setup failure is the outcome.
// Teardown always runs. A teardown failure is logged and recorded in
// Outcome.TeardownError; it never replaces the outcome of setup or body.
func Sequence(logger hclog.Logger, setup, body, teardown structs.Hook) *structs.Outcome {
	logger = logger.Named("hooks")

	var out *structs.Outcome

	logger.Trace("running setup")
	if res := invoke(setup); res.failed() {
		logger.Debug("setup failed, skipping body", "error", res.message())
		out = res.outcome(structs.PhaseSetup)
	} else {
		logger.Trace("running body")
		res := invoke(body)
		out = res.outcome(structs.PhaseBody)
		if res.failed() {
			logger.Debug("body failed", "error", res.message())
		}
	}

	logger.Trace("running teardown")
	if res := invoke(teardown); res.failed() {
		logger.Warn("teardown failed", "error", res.message(), "outcome", out.Kind)
		out.TeardownError = res.message()
	}

	return out
}

// Named wraps the error of h with name so failures of chained hooks can be
// told apart.
func Named(name string, h structs.Hook) structs.Hook {
	if h == nil {
		return nil
	}
	return func() error {
		if err := h(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
}

// Chain returns a hook running each non-nil hook in order and stopping at the
// first failure. It returns nil when there is nothing to run.
func Chain(hs ...structs.Hook) structs.Hook {
	var steps []structs.Hook
	for _, h := range hs {
		if h != nil {
			steps = append(steps, h)
		}
	}
	if len(steps) == 0 {
		return nil
	}
	return func() error {
		for _, h := range steps {
			if err := h(); err != nil {
				return err
			}
		}
		return nil
	}
}

// All returns a hook running every non-nil hook in order regardless of
// earlier failures and returning the aggregated errors. Panics are converted
// into errors so later hooks still run.
func All(hs ...structs.Hook) structs.Hook {
	var steps []structs.Hook
	for _, h := range hs {
		if h != nil {
			steps = append(steps, h)
		}
	}
	if len(steps) == 0 {
		return nil
	}
	return func() error {
		var mErr *multierror.Error
		for _, h := range steps {
			if res := invoke(h); res.failed() {
				if res.err != nil {
					mErr = multierror.Append(mErr, res.err)
				} else {
					mErr = multierror.Append(mErr, errors.New(res.message()))
				}
			}
		}
		return mErr.ErrorOrNil()
	}
}
