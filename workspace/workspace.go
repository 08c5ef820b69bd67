// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-sealedtest/helper/escapingfs"
	"github.com/hashicorp/go-sealedtest/structs"
)

const (
	// namePrefix is the prefix of every workspace directory name.
	namePrefix = "sealed-"

	// TmpDirEnv overrides the parent directory workspaces are created in.
	TmpDirEnv = "SEALEDTEST_TMPDIR"
)

// Workspace is the private working directory of a single invocation.
//
// All methods are safe for concurrent use.
type Workspace struct {
	// Dir is the absolute path of the workspace. It will be purged on
	// Destroy.
	Dir string

	// parentDir is the directory the workspace is created in.
	parentDir string

	// id is embedded in the directory name to ease debugging of leaked
	// workspaces.
	id string

	// built is true if Build has successfully run
	built bool

	// destroyed is true once Destroy has removed the directory
	destroyed bool

	mu sync.RWMutex

	logger hclog.Logger
}

// New initializes the Workspace struct. The directory is not created until
// Build is called. An empty parentDir uses SEALEDTEST_TMPDIR or the default
// temporary directory of the host.
func New(logger hclog.Logger, parentDir, id string) *Workspace {
	if parentDir == "" {
		parentDir = os.Getenv(TmpDirEnv)
	}
	if parentDir == "" {
		parentDir = os.TempDir()
	}
	return &Workspace{
		parentDir: parentDir,
		id:        id,
		logger:    logger.Named("workspace"),
	}
}

// Provision builds a new workspace and stages files into it. A partially
// provisioned workspace is destroyed before the error is returned.
func Provision(logger hclog.Logger, parentDir, id, projectRoot string, files []structs.FileStaging) (*Workspace, error) {
	defer metrics.MeasureSince([]string{"sealedtest", "workspace", "provision"}, time.Now())

	w := New(logger, parentDir, id)
	if err := w.Build(); err != nil {
		return nil, err
	}
	if err := w.Stage(projectRoot, files); err != nil {
		if derr := w.Destroy(); derr != nil {
			w.logger.Warn("failed to clean up partially staged workspace", "dir", w.Dir, "error", derr)
		}
		return nil, err
	}
	return w, nil
}

// Path returns the workspace directory. It is empty until Build has run.
func (w *Workspace) Path() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.Dir
}

// Build creates the workspace directory. The name is unique among concurrent
// invocations: it embeds the invocation id and a random suffix chosen by the
// OS temporary directory allocator.
func (w *Workspace) Build() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.built {
		return fmt.Errorf("workspace %q is already built", w.Dir)
	}

	if err := os.MkdirAll(w.parentDir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to make the workspace parent %v: %v", structs.ErrIO, w.parentDir, err)
	}

	pattern := namePrefix
	if w.id != "" {
		pattern += shortID(w.id) + "-"
	}
	dir, err := os.MkdirTemp(w.parentDir, pattern)
	if err != nil {
		return fmt.Errorf("%w: failed to make the workspace directory: %v", structs.ErrIO, err)
	}

	// Resolve symlinked temporary directories (e.g. /tmp on darwin) so the
	// path matches what the isolated process observes as its working
	// directory.
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	w.Dir = dir
	w.built = true
	w.logger.Trace("built workspace", "dir", dir)
	return nil
}

// Stage copies each file into the workspace, in order. Sources are resolved
// against projectRoot; directories are copied recursively. Staging never
// links or moves the source.
func (w *Workspace) Stage(projectRoot string, files []structs.FileStaging) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.built {
		// Enforce the invariant that Build is called before Stage
		return fmt.Errorf("unable to stage files - workspace is not built")
	}

	for _, f := range files {
		if err := f.Validate(); err != nil {
			return err
		}

		src := f.Source
		if !filepath.IsAbs(src) {
			src = filepath.Join(projectRoot, src)
		}
		target := f.Target()

		// The relative form was validated above; check for symlinks
		// created by earlier stagings too.
		escapes, err := escapingfs.PathEscapesDir(w.Dir, "", target)
		if err != nil {
			return fmt.Errorf("%w: failed to check destination %q: %v", structs.ErrIO, target, err)
		}
		if escapes {
			return fmt.Errorf("%w: destination %q escapes the workspace", structs.ErrConfig, target)
		}

		dst := filepath.Join(w.Dir, target)
		if escapingfs.PathEscapesSandbox(w.Dir, dst) {
			return fmt.Errorf("%w: destination %q escapes the workspace", structs.ErrConfig, target)
		}
		if err := copyPath(src, dst); err != nil {
			return fmt.Errorf("%w: failed to copy %q to workspace %q: %v", structs.ErrIO, src, dst, err)
		}
		w.logger.Trace("staged file", "src", src, "dst", dst)
	}
	return nil
}

// Destroy recursively removes the workspace. It is safe to call more than
// once and on a workspace that was never built.
func (w *Workspace) Destroy() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.built || w.destroyed {
		return nil
	}

	var mErr multierror.Error

	// Tests commonly drop write permission on files they create; restore
	// it so RemoveAll can unlink their contents.
	if err := makeWritable(w.Dir); err != nil {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("failed to reset permissions under %q: %v", w.Dir, err))
	}

	if err := os.RemoveAll(w.Dir); err != nil {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("failed to remove workspace %q: %v", w.Dir, err))
		return mErr.ErrorOrNil()
	}

	w.destroyed = true
	w.logger.Trace("destroyed workspace", "dir", w.Dir)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
