// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package report converts the outcome of an invocation into the pass or fail
// verdict of the test that owns it.
package report

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-sealedtest/structs"
)

// T is the subset of testing.TB a Result is applied to.
type T interface {
	Helper()
	Log(args ...any)
	Error(args ...any)
	Skip(args ...any)
}

// Result is the verdict for one invocation.
type Result struct {
	Passed  bool
	Skipped bool

	// Message describes the failure. It is empty for a clean pass.
	Message string

	// Output is the tail of the isolated process output.
	Output []byte
}

// Report maps an outcome to a Result. A nil outcome means the invocation never
// reported and is a failure.
func Report(out *structs.Outcome) *Result {
	if out == nil {
		return &Result{Message: "sealed test produced no outcome"}
	}

	r := &Result{Output: out.Output}
	switch out.Kind {
	case structs.OutcomeSuccess:
		r.Passed = true
		r.Skipped = out.Skipped
		if out.Skipped {
			r.Message = out.Message
		}
	case structs.OutcomeFailure:
		r.Message = fmt.Sprintf("%s failed: %s", phaseName(out.Phase), out.Message)
	case structs.OutcomePanic:
		r.Message = fmt.Sprintf("%s panicked: %s", phaseName(out.Phase), out.Message)
		if out.Stack != "" {
			r.Message += "\n" + strings.TrimRight(out.Stack, "\n")
		}
	case structs.OutcomeAbnormal:
		r.Message = abnormal(out)
	default:
		r.Message = fmt.Sprintf("unknown outcome %s: %s", out.Kind, out.Message)
	}

	if out.TeardownError != "" {
		msg := "teardown failed: " + out.TeardownError
		if r.Passed {
			r.Passed = false
			r.Skipped = false
			r.Message = msg
		} else {
			r.Message += "\n" + msg
		}
	}
	return r
}

func phaseName(phase string) string {
	switch phase {
	case structs.PhaseBody:
		return "test body"
	case "":
		return "sealed test"
	default:
		return phase
	}
}

func abnormal(out *structs.Outcome) string {
	var b strings.Builder
	b.WriteString("isolated process terminated abnormally")
	if out.Message != "" {
		b.WriteString(": ")
		b.WriteString(out.Message)
	}
	if out.Signal != 0 {
		fmt.Fprintf(&b, " (signal %d, exit code %d)", out.Signal, out.ExitCode)
	} else {
		fmt.Fprintf(&b, " (exit code %d)", out.ExitCode)
	}
	return b.String()
}

// Apply reports r to t. On failure the captured output of the isolated
// process is logged before the error.
func Apply(t T, r *Result) {
	t.Helper()

	switch {
	case r == nil:
		t.Error("sealed test produced no result")
	case !r.Passed:
		if len(r.Output) > 0 {
			t.Log("isolated process output:\n" + string(r.Output))
		}
		t.Error(r.Message)
	case r.Skipped:
		t.Skip(r.Message)
	}
}
