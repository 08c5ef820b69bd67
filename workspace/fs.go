// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package workspace

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-sealedtest/helper/escapingfs"
	"github.com/hashicorp/go-set/v3"
)

// copyPath copies src to dst. Symlinks are followed everywhere, so the
// workspace only ever holds copies and never links back into the project.
func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if err := escapingfs.EnsurePath(dst, false); err != nil {
		return err
	}

	if info.IsDir() {
		return dirCopy(src, dst, set.New[string](0))
	}
	return fileCopy(src, dst, info.Mode().Perm())
}

// fileCopy copies the contents of src into a new file at dst.
func fileCopy(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("couldn't open %q: %v", src, err)
	}
	defer in.Close()

	if err := removeStale(dst); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("couldn't create destination file %q: %v", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("couldn't copy %q to %q: %v", src, dst, err)
	}
	return out.Close()
}

// dirCopy recursively copies the tree rooted at src to dst, following
// symlinks. parents holds the resolved directories being copied above src and
// is used to reject symlink cycles.
func dirCopy(src, dst string, parents *set.Set[string]) error {
	resolved, err := filepath.EvalSymlinks(src)
	if err != nil {
		return err
	}
	if !parents.Insert(resolved) {
		return fmt.Errorf("symlink cycle at %q", src)
	}
	defer parents.Remove(resolved)

	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	// Directories are created writable so their contents can be copied; the
	// permissions are not otherwise preserved.
	if err := removeStaleFile(dst); err != nil {
		return err
	}
	if err := os.MkdirAll(dst, info.Mode().Perm()|0o700); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		path := filepath.Join(src, entry.Name())
		target := filepath.Join(dst, entry.Name())

		info, err := os.Stat(path)
		if err != nil {
			if entry.Type()&fs.ModeSymlink != 0 {
				return fmt.Errorf("error following symlink %q: %v", path, err)
			}
			return err
		}

		switch {
		case info.IsDir():
			if err := dirCopy(path, target, parents); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := fileCopy(path, target, info.Mode().Perm()); err != nil {
				return err
			}
		default:
			// Sockets, devices and pipes have no content to stage.
		}
	}
	return nil
}

// removeStaleFile removes a non-directory entry left at dst by an earlier
// staging so a directory can take its place.
func removeStaleFile(dst string) error {
	info, err := os.Lstat(dst)
	if err != nil || info.IsDir() {
		return nil
	}
	return os.Remove(dst)
}

// removeStale removes a non-directory entry left at dst by an earlier
// staging, so later stagings replace earlier ones. Symlinks are removed
// rather than followed.
func removeStale(dst string) error {
	info, err := os.Lstat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("destination %q is an existing directory", dst)
	}
	return os.Remove(dst)
}

// makeWritable adds owner write and execute permission to every directory
// under root so its entries can be removed.
func makeWritable(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode().Perm()&0o700 == 0o700 {
			return nil
		}
		return os.Chmod(path, info.Mode().Perm()|0o700)
	})
}
