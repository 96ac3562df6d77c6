// Copyright (c) 2019-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package files

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/sylabs/svcimage/internal/pkg/test"
	"github.com/sylabs/svcimage/pkg/build/types"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/fs"
)

func newTestBundle(t *testing.T) *types.Bundle {
	tmp := fs.NewDir(t, "bundle")
	t.Cleanup(tmp.Remove)

	b, err := types.NewBundle(tmp.Join("rootfs"), tmp.Path())
	assert.NilError(t, err)
	return b
}

func workingTree(t *testing.T) *fs.Dir {
	return test.WorkingTree(t, "name: PDFId\nversion: $SERVICE_TAG\n",
		fs.WithDir("bin", fs.WithFile("run", "#!/bin/sh\n", fs.WithMode(0755))),
		fs.WithDir("private", fs.WithMode(0700)),
		fs.WithSymlink("current", "pdf_id/pdf_id.py"),
	)
}

func TestCopyTree(t *testing.T) {
	b := newTestBundle(t)
	src := workingTree(t)

	err := CopyTree(src.Path(), "/opt/al_service", b, 1000, 1000)
	assert.NilError(t, err)

	dst := filepath.Join(b.RootfsPath, "opt/al_service")

	content, err := ioutil.ReadFile(filepath.Join(dst, "service_manifest.yml"))
	assert.NilError(t, err)
	assert.Equal(t, string(content), "name: PDFId\nversion: $SERVICE_TAG\n")

	fi, err := os.Stat(filepath.Join(dst, "bin/run"))
	assert.NilError(t, err)
	assert.Equal(t, fi.Mode().Perm(), os.FileMode(0755))

	fi, err = os.Stat(filepath.Join(dst, "private"))
	assert.NilError(t, err)
	assert.Assert(t, fi.IsDir())
	assert.Equal(t, fi.Mode().Perm(), os.FileMode(0700))

	link, err := os.Readlink(filepath.Join(dst, "current"))
	assert.NilError(t, err)
	assert.Equal(t, link, "pdf_id/pdf_id.py")

	for _, rel := range []string{
		"opt/al_service",
		"opt/al_service/service_manifest.yml",
		"opt/al_service/pdf_id/pdf_id.py",
		"opt/al_service/current",
	} {
		owner, ok := b.Owner(rel)
		assert.Assert(t, ok, rel)
		assert.Equal(t, owner, types.Owner{UID: 1000, GID: 1000})
	}

	// parents created for the destination keep the default ownership
	_, ok := b.Owner("opt")
	assert.Assert(t, !ok)
}

func TestCopyTreeConfined(t *testing.T) {
	b := newTestBundle(t)
	src := workingTree(t)

	outside := fs.NewDir(t, "outside")
	defer outside.Remove()

	// an absolute symlink in the base image resolves inside the rootfs
	assert.NilError(t, os.MkdirAll(filepath.Join(b.RootfsPath, "opt"), 0755))
	assert.NilError(t, os.Symlink(outside.Path(), filepath.Join(b.RootfsPath, "opt/al_service")))

	err := CopyTree(src.Path(), "/opt/al_service", b, 0, 0)
	assert.NilError(t, err)

	entries, err := ioutil.ReadDir(outside.Path())
	assert.NilError(t, err)
	assert.Equal(t, len(entries), 0)

	resolved, err := RootfsPath(b.RootfsPath, "/opt/al_service/service_manifest.yml")
	assert.NilError(t, err)
	_, err = os.Stat(resolved)
	assert.NilError(t, err)
}

func TestCopyTreeErrors(t *testing.T) {
	b := newTestBundle(t)

	err := CopyTree("/this/does/not/exist", "/opt/al_service", b, 0, 0)
	assert.ErrorContains(t, err, "while reading working tree")

	file := fs.NewFile(t, "not-a-dir")
	defer file.Remove()
	err = CopyTree(file.Path(), "/opt/al_service", b, 0, 0)
	assert.ErrorContains(t, err, "is not a directory")
}

func TestCopyTreeChown(t *testing.T) {
	test.EnsurePrivilege(t)

	b := newTestBundle(t)
	src := workingTree(t)

	err := CopyTree(src.Path(), "/opt/al_service", b, 1000, 1001)
	assert.NilError(t, err)

	fi, err := os.Lstat(filepath.Join(b.RootfsPath, "opt/al_service/service_manifest.yml"))
	assert.NilError(t, err)
	st := fi.Sys().(*syscall.Stat_t)
	assert.Equal(t, st.Uid, uint32(1000))
	assert.Equal(t, st.Gid, uint32(1001))
}

func TestRelToRootfs(t *testing.T) {
	assert.Equal(t, RootfsRel("/tmp/rootfs/", "/tmp/rootfs/opt/x"), "opt/x")
	assert.Equal(t, RootfsRel("/tmp/rootfs", "/tmp/rootfs"), "")
}
