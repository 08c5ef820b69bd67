// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package testlog creates loggers backed by testing.T to ease logging in
// tests.
package testlog

import (
	"io"
	"os"
	"strings"

	hclog "github.com/hashicorp/go-hclog"
)

// Logger is the methods of testing.T (or testing.B) needed by the test
// logger.
type Logger interface {
	Logf(format string, args ...interface{})
	Helper()
}

// Writer implements io.Writer on top of a Logger.
type Writer struct {
	t Logger
}

// NewWriter returns an io.Writer which logs every write through t.
func NewWriter(t Logger) io.Writer {
	return &Writer{t}
}

// Write to an underlying Logger. Never returns an error.
func (w *Writer) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Logf("%s", strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// HCLogger returns a new test hc-logger.
//
// Default log level is TRACE. Set SEALEDTEST_TEST_LOG_LEVEL for custom log
// level, and SEALEDTEST_TEST_STDERR to write to stderr instead of t.
func HCLogger(t Logger) hclog.Logger {
	level := hclog.Trace
	if envLevel := os.Getenv("SEALEDTEST_TEST_LOG_LEVEL"); envLevel != "" {
		level = hclog.LevelFromString(envLevel)
	}

	var output io.Writer = NewWriter(t)
	if os.Getenv("SEALEDTEST_TEST_STDERR") != "" {
		output = os.Stderr
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:            "test",
		Level:           level,
		Output:          output,
		IncludeLocation: true,
	})
}
