// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package structs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

// OutcomeKind is the tag of an Outcome.
type OutcomeKind uint8

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailure
	OutcomePanic
	OutcomeAbnormal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomePanic:
		return "panic"
	case OutcomeAbnormal:
		return "abnormal"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

const (
	PhaseCmdBefore = "cmd_before"
	PhaseSetup     = "setup"
	PhaseBody      = "body"
	PhaseTeardown  = "teardown"
	PhaseCmdAfter  = "cmd_after"
)

// Outcome is the terminal result of one invocation. Exactly one is produced
// per invocation, either by the isolated process itself or by the parent when
// the process died before reporting.
type Outcome struct {
	Kind OutcomeKind

	// Phase is the hook which produced a Failure or Panic.
	Phase string

	// Message is the error message, panic value, or termination diagnostic.
	Message string

	// Stack is the goroutine stack captured for a Panic.
	Stack string

	// ExitCode and Signal describe an AbnormalTermination. Signal is zero
	// when the process exited on its own.
	ExitCode int
	Signal   int

	// TeardownError is set when teardown failed in addition to the outcome
	// above. It never replaces the body's outcome.
	TeardownError string

	// Goexit is set on a Failure whose hook terminated its goroutine
	// without returning, e.g. through testing.T.FailNow or SkipNow.
	Goexit bool

	// Skipped is set when the body skipped the test.
	Skipped bool

	// Output is the tail of the isolated process output. It is filled in by
	// the parent and is never encoded by the child.
	Output []byte `codec:"-"`
}

func NewSuccess() *Outcome {
	return &Outcome{Kind: OutcomeSuccess}
}

func NewFailure(phase string, err error) *Outcome {
	return &Outcome{Kind: OutcomeFailure, Phase: phase, Message: err.Error()}
}

func NewPanic(phase string, value any, stack []byte) *Outcome {
	return &Outcome{Kind: OutcomePanic, Phase: phase, Message: fmt.Sprint(value), Stack: string(stack)}
}

func NewAbnormal(exitCode, signal int, msg string) *Outcome {
	return &Outcome{Kind: OutcomeAbnormal, ExitCode: exitCode, Signal: signal, Message: msg}
}

// Successful returns true if the invocation passed, including teardown.
func (o *Outcome) Successful() bool {
	return o != nil && o.Kind == OutcomeSuccess && o.TeardownError == ""
}

// Err converts the outcome into an error wrapping the sentinel matching its
// kind, or nil for a clean success.
func (o *Outcome) Err() error {
	if o == nil {
		return fmt.Errorf("%w: no outcome reported", ErrAbnormal)
	}

	var err error
	switch o.Kind {
	case OutcomeSuccess:
	case OutcomeFailure, OutcomePanic:
		sentinel := ErrBody
		if o.Phase != PhaseBody {
			sentinel = ErrHook
		}
		err = fmt.Errorf("%w: %s: %s", sentinel, o.Phase, o.Message)
	case OutcomeAbnormal:
		err = fmt.Errorf("%w: %s", ErrAbnormal, o.Message)
	default:
		err = fmt.Errorf("%w: unknown outcome kind %s", ErrAbnormal, o.Kind)
	}

	if o.TeardownError != "" {
		if err == nil {
			return fmt.Errorf("%w: %s: %s", ErrHook, PhaseTeardown, o.TeardownError)
		}
		err = fmt.Errorf("%w (teardown also failed: %s)", err, o.TeardownError)
	}
	return err
}

// msgpackHandle is a shared handle for encoding/decoding outcomes
var msgpackHandle = &codec.MsgpackHandle{}

// EncodeOutcome writes o to w in MsgPack.
func EncodeOutcome(w io.Writer, o *Outcome) error {
	return codec.NewEncoder(w, msgpackHandle).Encode(o)
}

// DecodeOutcome decodes a MsgPack encoded outcome.
func DecodeOutcome(buf []byte) (*Outcome, error) {
	var o Outcome
	if err := codec.NewDecoder(bytes.NewReader(buf), msgpackHandle).Decode(&o); err != nil {
		return nil, err
	}
	return &o, nil
}
