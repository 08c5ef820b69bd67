// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package hooks

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-sealedtest/structs"
)

// registry holds hooks which configuration files refer to by name.
var registry = struct {
	sync.RWMutex
	hooks map[string]structs.Hook
}{hooks: make(map[string]structs.Hook)}

// Register makes h available to configuration files under name. Registering
// the same name twice is an error.
func Register(name string, h structs.Hook) error {
	if name == "" || h == nil {
		return fmt.Errorf("%w: hook registration requires a name and a function", structs.ErrConfig)
	}

	registry.Lock()
	defer registry.Unlock()

	if _, ok := registry.hooks[name]; ok {
		return fmt.Errorf("%w: hook %q is already registered", structs.ErrConfig, name)
	}
	registry.hooks[name] = h
	return nil
}

// MustRegister is like Register but panics on error. It is intended for
// package level variable initialization in test files.
func MustRegister(name string, h structs.Hook) string {
	if err := Register(name, h); err != nil {
		panic(err)
	}
	return name
}

// Lookup returns the hook registered under name.
func Lookup(name string) (structs.Hook, error) {
	registry.RLock()
	defer registry.RUnlock()

	h, ok := registry.hooks[name]
	if !ok {
		known := make([]string, 0, len(registry.hooks))
		for k := range registry.hooks {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("%w: no hook registered as %q (registered: %v)", structs.ErrConfig, name, known)
	}
	return h, nil
}
