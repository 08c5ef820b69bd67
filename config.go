// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package sealedtest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-sealedtest/envscope"
	"github.com/hashicorp/go-sealedtest/executor"
	"github.com/hashicorp/go-sealedtest/helper/hcl"
	"github.com/hashicorp/go-sealedtest/hooks"
	"github.com/hashicorp/go-sealedtest/structs"
)

// Config is the declaration of a sealed invocation. It is assembled from
// Options in the order they are given.
type Config struct {
	// Env overrides are applied in order inside the child; the last value
	// of a duplicated name wins.
	Env []structs.EnvVar

	// Files are copied into the workspace in order. Later stagings replace
	// earlier ones with the same destination.
	Files []structs.FileStaging

	// CmdBefore and CmdAfter are single commands run in the workspace
	// before Before and after After.
	CmdBefore []string
	CmdAfter  []string

	Before structs.Hook
	After  structs.Hook

	// ProjectRoot is the directory file sources are relative to. It
	// defaults to the working directory of the test, which is the directory
	// of the package under test.
	ProjectRoot string

	// TmpDir is the directory the workspace is created in.
	TmpDir string

	// KillGrace is how long before the test deadline a child still running
	// is killed.
	KillGrace time.Duration

	// Args are extra flags passed to the child test binary.
	Args []string

	Logger hclog.Logger
}

// Option modifies a Config.
type Option func(*Config) error

func newConfig(opts []Option) (*Config, error) {
	c := &Config{
		KillGrace: DefaultKillGrace,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.Logger == nil {
		c.Logger = defaultLogger()
	}
	return c, nil
}

// Env overrides the environment variable name inside the child.
func Env(name, value string) Option {
	return func(c *Config) error {
		c.Env = append(c.Env, structs.EnvVar{Name: name, Value: value})
		return nil
	}
}

// resolvePath makes a relative path absolute against the directory of the
// package under test, which is the same in the parent and the child.
func resolvePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	dir, err := executor.TestDir()
	if err != nil {
		return "", fmt.Errorf("%w: failed to determine test directory: %v", structs.ErrConfig, err)
	}
	return filepath.Join(dir, path), nil
}

// EnvFile applies the variables of a dotenv file inside the child. A relative
// path is resolved against the directory of the package under test.
func EnvFile(path string) Option {
	return func(c *Config) error {
		path, err := resolvePath(path)
		if err != nil {
			return err
		}
		vars, err := envscope.ParseFile(path)
		if err != nil {
			return err
		}
		c.Env = append(c.Env, vars...)
		return nil
	}
}

// File copies source, relative to the project root, to destination, relative
// to the workspace. An empty destination uses the base name of source.
// Directories are copied recursively.
func File(source, destination string) Option {
	return Files(structs.FileStaging{Source: source, Destination: destination})
}

// Files stages each of files in order.
func Files(files ...structs.FileStaging) Option {
	return func(c *Config) error {
		c.Files = append(c.Files, files...)
		return nil
	}
}

// Before runs h in the child before the body. Multiple Before hooks run in
// order and stop at the first failure.
func Before(h structs.Hook) Option {
	return func(c *Config) error {
		c.Before = hooks.Chain(c.Before, h)
		return nil
	}
}

// After runs h in the child after the body, even if the body failed.
// Multiple After hooks all run.
func After(h structs.Hook) Option {
	return func(c *Config) error {
		c.After = hooks.All(c.After, h)
		return nil
	}
}

// CmdBefore runs each command in the workspace before the Before hooks.
func CmdBefore(lines ...string) Option {
	return func(c *Config) error {
		for _, line := range lines {
			if _, err := hooks.ParseCommand(line); err != nil {
				return err
			}
		}
		c.CmdBefore = append(c.CmdBefore, lines...)
		return nil
	}
}

// CmdAfter runs each command in the workspace after the After hooks.
func CmdAfter(lines ...string) Option {
	return func(c *Config) error {
		for _, line := range lines {
			if _, err := hooks.ParseCommand(line); err != nil {
				return err
			}
		}
		c.CmdAfter = append(c.CmdAfter, lines...)
		return nil
	}
}

// ProjectRoot sets the directory file sources are resolved against.
func ProjectRoot(dir string) Option {
	return func(c *Config) error {
		abs, err := resolvePath(dir)
		if err != nil {
			return err
		}
		c.ProjectRoot = filepath.Clean(abs)
		return nil
	}
}

// TmpDir sets the directory workspaces are created in.
func TmpDir(dir string) Option {
	return func(c *Config) error {
		c.TmpDir = dir
		return nil
	}
}

// KillGrace sets how long before the test deadline a running child is
// killed.
func KillGrace(d time.Duration) Option {
	return func(c *Config) error {
		if d < 0 {
			return fmt.Errorf("%w: kill grace must not be negative", structs.ErrConfig)
		}
		c.KillGrace = d
		return nil
	}
}

// Args passes extra flags to the child test binary.
func Args(args ...string) Option {
	return func(c *Config) error {
		c.Args = append(c.Args, args...)
		return nil
	}
}

// Logger sets the logger used by the parent and the child.
func Logger(logger hclog.Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// fileConfig is the HCL form of a Config.
//
//	env_file   = "testdata/app.env"
//	cmd_before = ["git init"]
//	cmd_after  = []
//	before     = "seed-database"
//	after      = "drop-database"
//	kill_grace = "10s"
//
//	env "APP_REGION" {
//	  value = "eu"
//	}
//
//	file "testdata/foo" {
//	  destination = "foo"
//	}
type fileConfig struct {
	EnvFile   string         `hcl:"env_file,optional"`
	Env       []*envBlock    `hcl:"env,block"`
	Files     []*fileBlock   `hcl:"file,block"`
	Before    string         `hcl:"before,optional"`
	After     string         `hcl:"after,optional"`
	CmdBefore []string       `hcl:"cmd_before,optional"`
	CmdAfter  []string       `hcl:"cmd_after,optional"`
	KillGrace *time.Duration `hcl:"kill_grace,optional"`
}

type envBlock struct {
	Name  string `hcl:"name,label"`
	Value string `hcl:"value"`
}

type fileBlock struct {
	Source      string `hcl:"source,label"`
	Destination string `hcl:"destination,optional"`
}

// ParseConfig decodes an HCL configuration into the options it declares.
// Unknown attributes and blocks, and hooks which are not registered, are
// configuration errors.
func ParseConfig(src []byte, filename string) ([]Option, error) {
	var fc fileConfig
	if diags := hcl.NewParser().Parse(src, &fc, filename); diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", structs.ErrConfig, diags.Error())
	}

	var opts []Option
	if fc.EnvFile != "" {
		path := fc.EnvFile
		if !filepath.IsAbs(path) && filename != "" {
			path = filepath.Join(filepath.Dir(filename), path)
		}
		opts = append(opts, EnvFile(path))
	}
	for _, e := range fc.Env {
		opts = append(opts, Env(e.Name, e.Value))
	}
	for _, f := range fc.Files {
		opts = append(opts, File(f.Source, f.Destination))
	}
	if len(fc.CmdBefore) > 0 {
		opts = append(opts, CmdBefore(fc.CmdBefore...))
	}
	if len(fc.CmdAfter) > 0 {
		opts = append(opts, CmdAfter(fc.CmdAfter...))
	}
	if fc.Before != "" {
		h, err := hooks.Lookup(fc.Before)
		if err != nil {
			return nil, err
		}
		opts = append(opts, Before(h))
	}
	if fc.After != "" {
		h, err := hooks.Lookup(fc.After)
		if err != nil {
			return nil, err
		}
		opts = append(opts, After(h))
	}
	if fc.KillGrace != nil {
		opts = append(opts, KillGrace(*fc.KillGrace))
	}
	return opts, nil
}

// ParseConfigFile reads and decodes an HCL configuration file. A relative path
// is resolved against the directory of the package under test.
func ParseConfigFile(path string) ([]Option, error) {
	path, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config: %v", structs.ErrConfig, err)
	}
	return ParseConfig(src, path)
}

// WithConfig applies the options declared in an HCL configuration file at
// the position of WithConfig among the other options.
func WithConfig(path string) Option {
	return func(c *Config) error {
		opts, err := ParseConfigFile(path)
		if err != nil {
			return err
		}
		for _, opt := range opts {
			if err := opt(c); err != nil {
				return err
			}
		}
		return nil
	}
}
