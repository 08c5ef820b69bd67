// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package structs

import (
	"bytes"
	"errors"
	"testing"

	"github.com/shoenig/test/must"
)

func TestOutcome_Err(t *testing.T) {
	must.NoError(t, NewSuccess().Err())
	must.True(t, NewSuccess().Successful())

	err := NewFailure(PhaseBody, errors.New("oh no")).Err()
	must.ErrorIs(t, err, ErrBody)
	must.StrContains(t, err.Error(), "oh no")

	err = NewFailure(PhaseSetup, errors.New("no fixture")).Err()
	must.ErrorIs(t, err, ErrHook)
	must.StrContains(t, err.Error(), "setup")

	err = NewPanic(PhaseBody, "boom", nil).Err()
	must.ErrorIs(t, err, ErrBody)
	must.StrContains(t, err.Error(), "boom")

	err = NewAbnormal(137, 9, "signal: killed").Err()
	must.ErrorIs(t, err, ErrAbnormal)

	var missing *Outcome
	must.ErrorIs(t, missing.Err(), ErrAbnormal)
	must.False(t, missing.Successful())
}

func TestOutcome_Err_Teardown(t *testing.T) {
	o := NewSuccess()
	o.TeardownError = "cleanup failed"
	must.False(t, o.Successful())
	must.ErrorIs(t, o.Err(), ErrHook)

	o = NewFailure(PhaseBody, errors.New("assertion"))
	o.TeardownError = "cleanup failed"
	err := o.Err()
	must.ErrorIs(t, err, ErrBody)
	must.StrContains(t, err.Error(), "assertion")
	must.StrContains(t, err.Error(), "cleanup failed")
}

func TestOutcome_Codec(t *testing.T) {
	o := NewPanic(PhaseBody, "boom", []byte("goroutine 1"))
	o.TeardownError = "teardown"
	o.Output = []byte("not encoded")

	var buf bytes.Buffer
	must.NoError(t, EncodeOutcome(&buf, o))

	decoded, err := DecodeOutcome(buf.Bytes())
	must.NoError(t, err)
	must.Eq(t, OutcomePanic, decoded.Kind)
	must.Eq(t, "boom", decoded.Message)
	must.Eq(t, "goroutine 1", decoded.Stack)
	must.Eq(t, "teardown", decoded.TeardownError)
	must.Nil(t, decoded.Output)

	_, err = DecodeOutcome(nil)
	must.Error(t, err)
}

func TestOutcomeKind_String(t *testing.T) {
	must.Eq(t, "abnormal", OutcomeAbnormal.String())
	must.Eq(t, "unknown(42)", OutcomeKind(42).String())
}
