// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package escapingfs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// PathEscapesViaRelative returns if the given path escapes the sandbox
// directory using relative paths.
//
// Only for use in validation, where the real sandbox does not exist yet. Once
// the sandbox is on disk use PathEscapesDir, which includes symlink
// validation as well.
//
// The prefix is joined to the path (e.g. "testdata/fixtures"), and this
// function checks if path escapes the sandbox, NOT the prefix directory within
// the sandbox. With prefix="a/b", it will return false for "../c", but true
// for "../../../c"; only the latter escapes the sandbox.
func PathEscapesViaRelative(prefix, path string) (bool, error) {
	// The "sandbox-parent" and "sandbox" components are placeholders; on a
	// real filesystem they will have different names. The names are not
	// important, but rather the number of levels in the path they represent.
	sandbox, err := filepath.Abs(filepath.Join("/", "sandbox-parent/", "sandbox/"))
	if err != nil {
		return false, err
	}
	abs, err := filepath.Abs(filepath.Join(sandbox, prefix, path))
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(sandbox, abs)
	if err != nil {
		return false, err
	}

	return isParentRel(rel), nil
}

// isParentRel returns true if the relative path rel leaves its base.
func isParentRel(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// pathEscapesBaseViaSymlink returns if path escapes dir, taking into account
// evaluation of symlinks.
//
// The base directory must be an absolute path.
func pathEscapesBaseViaSymlink(base, full string) (bool, error) {
	resolveSym, err := filepath.EvalSymlinks(full)
	if err != nil {
		return false, err
	}

	// The base itself may live behind a symlink (e.g. /tmp on darwin).
	resolveBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		return false, err
	}

	rel, err := filepath.Rel(resolveBase, resolveSym)
	if err != nil {
		return true, nil
	}

	return isParentRel(rel), nil
}

// PathEscapesDir returns true if base/prefix/path escapes the given base
// directory.
//
// Escaping a directory can be done with relative paths (e.g. ../../ etc.) or by
// using symlinks. This checks both methods. The deepest existing ancestor of
// the path is used for the symlink check, so paths which are about to be
// created are validated too.
//
// The base directory must be an absolute path.
func PathEscapesDir(base, prefix, path string) (bool, error) {
	if !filepath.IsAbs(base) {
		return false, errors.New("sandbox dir must be absolute")
	}

	if escapes, err := PathEscapesViaRelative(prefix, path); err != nil {
		return false, err
	} else if escapes {
		return true, nil
	}

	full := filepath.Join(base, prefix, path)
	for {
		escapes, err := pathEscapesBaseViaSymlink(base, full)
		switch {
		case err == nil:
			return escapes, nil
		case os.IsNotExist(err):
			parent := filepath.Dir(full)
			if parent == full || !strings.HasPrefix(parent, base) {
				return false, nil
			}
			full = parent
		default:
			return false, err
		}
	}
}

// PathEscapesSandbox returns whether previously cleaned path inside the
// sandbox directory escapes.
func PathEscapesSandbox(sandboxDir, path string) bool {
	rel, err := filepath.Rel(sandboxDir, path)
	if err != nil {
		return true
	}
	return isParentRel(rel)
}

// EnsurePath is used to make sure a path exists
func EnsurePath(path string, dir bool) error {
	if !dir {
		path = filepath.Dir(path)
	}
	return os.MkdirAll(path, 0755)
}
