// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package envscope applies environment variable overrides to the current
// process and restores the prior environment afterwards.
//
// The process environment is global state. Enter and Restore are meant to be
// called inside an isolated child process, where no other test can observe
// the overrides; they do not synchronize with concurrent readers.
package envscope

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-sealedtest/structs"
	"github.com/hashicorp/go-set/v3"
)

// ErrSnapshotConsumed is returned when a Snapshot is restored twice.
var ErrSnapshotConsumed = errors.New("environment snapshot already restored")

// prior is the value a variable had before it was overridden.
type prior struct {
	value   string
	present bool
}

// Snapshot is the state of every overridden variable before Enter applied the
// overrides. It is consumed exactly once by Restore.
type Snapshot struct {
	saved    map[string]prior
	order    []string
	consumed bool
}

// Enter captures the current value (or absence) of every variable named in
// overrides and then applies overrides in order, so the last value of a
// duplicated name wins. If applying fails, the variables already modified
// are restored before the error is returned.
func Enter(overrides []structs.EnvVar) (*Snapshot, error) {
	s := &Snapshot{saved: make(map[string]prior, len(overrides))}

	captured := set.New[string](len(overrides))
	for _, o := range overrides {
		if !captured.Insert(o.Name) {
			continue
		}
		value, present := os.LookupEnv(o.Name)
		s.saved[o.Name] = prior{value: value, present: present}
		s.order = append(s.order, o.Name)
	}

	for _, o := range overrides {
		if err := os.Setenv(o.Name, o.Value); err != nil {
			err = fmt.Errorf("failed to set %q: %w", o.Name, err)
			if rerr := s.Restore(); rerr != nil {
				err = errors.Join(err, rerr)
			}
			return nil, err
		}
	}
	return s, nil
}

// Keys returns the names captured by the snapshot in first-seen order.
func (s *Snapshot) Keys() []string {
	return append([]string(nil), s.order...)
}

// Restore puts every captured variable back to its prior value, or unsets it
// if it was previously absent. Variables not named by the overrides are left
// untouched.
func (s *Snapshot) Restore() error {
	if s.consumed {
		return ErrSnapshotConsumed
	}
	s.consumed = true

	var errs []error
	for _, name := range s.order {
		p := s.saved[name]
		var err error
		if p.present {
			err = os.Setenv(name, p.value)
		} else {
			err = os.Unsetenv(name)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to restore %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Environ merges overrides into base, a list of KEY=VALUE pairs as returned by
// os.Environ. Entries of base named by an override are replaced, preserving
// last-write-wins for duplicate overrides.
func Environ(base []string, overrides []structs.EnvVar) []string {
	final := make(map[string]string, len(overrides))
	for _, o := range overrides {
		final[o.Name] = o.Value
	}

	out := make([]string, 0, len(base)+len(final))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, ok := final[name]; ok {
			continue
		}
		out = append(out, kv)
	}

	emitted := set.New[string](len(final))
	for _, o := range overrides {
		if emitted.Insert(o.Name) {
			out = append(out, structs.EnvVar{Name: o.Name, Value: final[o.Name]}.String())
		}
	}
	return out
}
