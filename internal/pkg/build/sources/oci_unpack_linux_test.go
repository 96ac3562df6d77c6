// Copyright (c) 2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package sources

import (
	"os"
	"testing"

	"github.com/sylabs/svcimage/internal/pkg/test"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/fs"
)

func TestRootlessOwner(t *testing.T) {
	dir := fs.NewDir(t, "rootless",
		fs.WithFile("plain", ""),
		fs.WithFile("service", ""),
		fs.WithFile("group-only", ""),
		fs.WithSymlink("link", "plain"),
	)
	defer dir.Remove()

	if err := SetRootlessOwner(dir.Join("service"), 1000, 2000); err != nil {
		t.Skipf("user xattrs not supported: %v", err)
	}
	assert.NilError(t, SetRootlessOwner(dir.Join("group-only"), 0, 1000))

	tests := []struct {
		name string
		path string
		uid  uint32
		gid  uint32
		ok   bool
	}{
		{name: "Plain", path: "plain"},
		{name: "Symlink", path: "link"},
		{name: "Service", path: "service", uid: 1000, gid: 2000, ok: true},
		{name: "GroupOnly", path: "group-only", uid: 0, gid: 1000, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uid, gid, ok, err := RootlessOwner(dir.Join(tt.path))
			assert.NilError(t, err)
			assert.Equal(t, ok, tt.ok)
			assert.Equal(t, uid, tt.uid)
			assert.Equal(t, gid, tt.gid)
		})
	}
}

func TestOpenPermissions(t *testing.T) {
	test.EnsureNoPrivilege(t)

	dir := fs.NewDir(t, "rootfs",
		fs.WithDir("locked",
			fs.WithFile("secret", "", fs.WithMode(0400)),
			fs.WithMode(0500),
		),
		fs.WithSymlink("link", "locked"),
	)
	defer dir.Remove()

	assert.NilError(t, openPermissions(dir.Path()))

	fi, err := os.Stat(dir.Join("locked"))
	assert.NilError(t, err)
	assert.Equal(t, fi.Mode().Perm(), os.FileMode(0700))

	fi, err = os.Stat(dir.Join("locked", "secret"))
	assert.NilError(t, err)
	assert.Equal(t, fi.Mode().Perm(), os.FileMode(0600))
}
