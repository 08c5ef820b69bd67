// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package envscope

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/hashicorp/go-envparse"
	"github.com/hashicorp/go-sealedtest/structs"
)

// Parse reads KEY=VALUE pairs in dotenv format. The pairs are returned sorted
// by name since the format does not preserve order.
func Parse(r io.Reader) ([]structs.EnvVar, error) {
	m, err := envparse.Parse(r)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	vars := make([]structs.EnvVar, 0, len(names))
	for _, k := range names {
		vars = append(vars, structs.EnvVar{Name: k, Value: m[k]})
	}
	return vars, nil
}

// ParseFile reads a dotenv file. Failures are configuration errors since the
// file is part of the invocation's declaration.
func ParseFile(path string) ([]structs.EnvVar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open env file: %v", structs.ErrConfig, err)
	}
	defer f.Close()

	vars, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse env file %q: %v", structs.ErrConfig, path, err)
	}
	return vars, nil
}
