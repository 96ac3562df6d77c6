// Copyright (c) 2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package test

import (
	"testing"

	"gotest.tools/v3/fs"
)

// Passwd is the user database of the base images created by BaseRootfs.
const Passwd = `root:x:0:0:root:/root:/bin/bash
assemblyline:x:1000:1000::/var/lib/assemblyline:/bin/sh
`

// Group is the group database of the base images created by BaseRootfs.
const Group = `root:x:0:
assemblyline:x:1000:
`

// BaseRootfs creates a minimal base image root filesystem providing the
// root and assemblyline identities. It is removed when the test ends.
func BaseRootfs(t *testing.T, ops ...fs.PathOp) *fs.Dir {
	t.Helper()

	ops = append([]fs.PathOp{
		fs.WithDir("etc",
			fs.WithFile("passwd", Passwd),
			fs.WithFile("group", Group),
		),
		fs.WithDir("opt", fs.WithMode(0755)),
	}, ops...)

	dir := fs.NewDir(t, "base-rootfs", ops...)
	t.Cleanup(dir.Remove)
	return dir
}

// WorkingTree creates a service working tree holding a manifest with the
// given content and a service module. It is removed when the test ends.
func WorkingTree(t *testing.T, manifest string, ops ...fs.PathOp) *fs.Dir {
	t.Helper()

	ops = append([]fs.PathOp{
		fs.WithFile("service_manifest.yml", manifest, fs.WithMode(0644)),
		fs.WithDir("pdf_id",
			fs.WithFile("__init__.py", ""),
			fs.WithFile("pdf_id.py", "class PDFId:\n    pass\n", fs.WithMode(0644)),
		),
	}, ops...)

	dir := fs.NewDir(t, "working-tree", ops...)
	t.Cleanup(dir.Remove)
	return dir
}
