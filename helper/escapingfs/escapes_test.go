// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package escapingfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shoenig/test/must"
)

func write(t *testing.T, file, data string) {
	err := os.WriteFile(file, []byte(data), 0600)
	must.NoError(t, err)
}

func Test_PathEscapesViaRelative(t *testing.T) {
	for _, test := range []struct {
		prefix string
		path   string
		exp    bool
	}{
		// directly under sandbox-parent/sandbox/
		{prefix: "", path: "", exp: false},
		{prefix: "", path: "/foo", exp: false},
		{prefix: "", path: "./", exp: false},
		{prefix: "", path: "../", exp: true},
		{prefix: "", path: "..foo", exp: false},

		// under sandbox/foo/
		{prefix: "foo", path: "", exp: false},
		{prefix: "foo", path: "/foo", exp: false},
		{prefix: "foo", path: "../", exp: false},   // at foo/
		{prefix: "foo", path: "../../", exp: true}, // above sandbox/

		// under sandbox/foo/bar/
		{prefix: "foo/bar", path: "", exp: false},
		{prefix: "foo/bar", path: "../../", exp: false},   // at sandbox/
		{prefix: "foo/bar", path: "../../../", exp: true}, // above sandbox/
	} {
		result, err := PathEscapesViaRelative(test.prefix, test.path)
		must.NoError(t, err)
		must.Eq(t, test.exp, result, must.Sprintf("prefix=%q path=%q", test.prefix, test.path))
	}
}

func Test_pathEscapesBaseViaSymlink(t *testing.T) {
	t.Run("symlink-escape", func(t *testing.T) {
		dir := t.TempDir()
		outside := t.TempDir()

		link := filepath.Join(dir, "link")
		must.NoError(t, os.Symlink(outside, link))

		escape, err := pathEscapesBaseViaSymlink(dir, link)
		must.NoError(t, err)
		must.True(t, escape)
	})

	t.Run("symlink-noescape", func(t *testing.T) {
		dir := t.TempDir()

		target := filepath.Join(dir, "foo")
		write(t, target, "hi")

		link := filepath.Join(dir, "link")
		must.NoError(t, os.Symlink(target, link))

		escape, err := pathEscapesBaseViaSymlink(dir, link)
		must.NoError(t, err)
		must.False(t, escape)
	})
}

func Test_PathEscapesDir(t *testing.T) {
	t.Run("no-escape-root", func(t *testing.T) {
		dir := t.TempDir()

		escape, err := PathEscapesDir(dir, "", "/")
		must.NoError(t, err)
		must.False(t, escape)
	})

	t.Run("no-escape", func(t *testing.T) {
		dir := t.TempDir()
		write(t, filepath.Join(dir, "foo"), "hi")

		escape, err := PathEscapesDir(dir, "", "foo")
		must.NoError(t, err)
		must.False(t, escape)
	})

	t.Run("no-escape-no-exist", func(t *testing.T) {
		dir := t.TempDir()

		escape, err := PathEscapesDir(dir, "", "a/b/no-exist")
		must.NoError(t, err)
		must.False(t, escape)
	})

	t.Run("symlink-escape-parent", func(t *testing.T) {
		dir := t.TempDir()
		outside := t.TempDir()
		must.NoError(t, os.Symlink(outside, filepath.Join(dir, "link")))

		escape, err := PathEscapesDir(dir, "", "link/not-yet-created")
		must.NoError(t, err)
		must.True(t, escape)
	})

	t.Run("relative-escape", func(t *testing.T) {
		dir := t.TempDir()

		escape, err := PathEscapesDir(dir, "", "../../foo")
		must.NoError(t, err)
		must.True(t, escape)
	})

	t.Run("relative-base", func(t *testing.T) {
		_, err := PathEscapesDir("relative", "", "foo")
		must.Error(t, err)
	})
}

func TestPathEscapesSandbox(t *testing.T) {
	cases := []struct {
		name     string
		path     string
		dir      string
		expected bool
	}{
		{
			name:     "ok joined absolute path inside sandbox",
			path:     filepath.Join("/sandbox", "/data"),
			dir:      "/sandbox",
			expected: false,
		},
		{
			name:     "fail unjoined absolute path outside sandbox",
			path:     "/data",
			dir:      "/sandbox",
			expected: true,
		},
		{
			name:     "ok relative path traversal constrained to sandbox",
			path:     filepath.Join("/sandbox", "../../sandbox/safe"),
			dir:      "/sandbox",
			expected: false,
		},
		{
			name:     "ok dotted name inside sandbox",
			path:     filepath.Join("/sandbox", "..hidden"),
			dir:      "/sandbox",
			expected: false,
		},
		{
			name:     "fail parent of sandbox",
			path:     "/",
			dir:      "/sandbox",
			expected: true,
		},
		{
			name:     "fail joined relative path traverses outside sandbox",
			path:     filepath.Join("/sandbox", "../../../unsafe"),
			dir:      "/sandbox",
			expected: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			must.Eq(t, tc.expected, PathEscapesSandbox(tc.dir, tc.path))
		})
	}
}
