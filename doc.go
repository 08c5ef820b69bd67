// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package sealedtest runs the body of a Go test in a sealed child process.

Each call to Run provisions a fresh temporary workspace, copies the declared
files into it and re-executes the test binary so that only the calling test
runs, with the workspace as its working directory. Environment overrides,
setup and teardown hooks and shell commands are applied inside the child, so
the parent test process and tests running next to it never observe them.

	func TestLoad(t *testing.T) {
		sealedtest.Run(t, func(t *testing.T) error {
			cfg, err := Load("config.hcl")
			if err != nil {
				return err
			}
			if cfg.Region != "eu" {
				return fmt.Errorf("expected region eu, got %q", cfg.Region)
			}
			return nil
		},
			sealedtest.Env("APP_REGION", "eu"),
			sealedtest.File("testdata/config.hcl", "config.hcl"),
		)
	}

The test function runs in the parent and again in the child. Code before and
after Run runs in both processes; only the body and hooks are restricted to
the child. The body reports failure by returning an error, through the usual
testing.T methods, or by panicking.

Hooks passed to Before and After are Go functions and therefore must be
defined identically in both processes. Named hooks referenced from a
configuration file are looked up in the registry of package hooks.
*/
package sealedtest
