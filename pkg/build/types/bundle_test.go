// Copyright (c) 2019-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package types

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

func TestNewBundle(t *testing.T) {
	testDir, err := ioutil.TempDir("", "bundleTest-")
	if err != nil {
		t.Fatal("Could not create temporary directory", err)
	}
	defer os.RemoveAll(testDir)

	tt := []struct {
		name        string
		rootfs      string
		tempDir     string
		expectError string
	}{
		{
			name:        "invalid temp dir",
			rootfs:      filepath.Join(testDir, t.Name()+"-bundle1"),
			tempDir:     "/foo/bar",
			expectError: `could not create temp dir in "/foo/bar"`,
		},
		{
			name:    "all ok",
			rootfs:  filepath.Join(testDir, t.Name()+"-bundle2"),
			tempDir: testDir,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			b, err := NewBundle(tc.rootfs, tc.tempDir)
			if tc.expectError != "" {
				assert.ErrorContains(t, err, tc.expectError)
				return
			}
			assert.NilError(t, err)

			for _, dir := range []string{b.RootfsPath, b.TmpDir} {
				fi, err := os.Stat(dir)
				assert.NilError(t, err)
				assert.Assert(t, fi.IsDir())
			}
			assert.Assert(t, strings.HasPrefix(filepath.Base(b.TmpDir), "bundle-temp-"))
			assert.Equal(t, b.Recipe.Service.Version, DefaultVersion)

			assert.NilError(t, b.Remove())
			for _, dir := range []string{b.RootfsPath, b.TmpDir} {
				_, err := os.Stat(dir)
				assert.Assert(t, os.IsNotExist(err))
			}
		})
	}
}

func TestBundleOwners(t *testing.T) {
	b := &Bundle{}

	b.SetOwner("/opt/al_service/service_manifest.yml", 0, 0)
	b.SetOwner("opt/al_service/", 1000, 1000)

	o, ok := b.Owner("opt/al_service/service_manifest.yml")
	assert.Assert(t, ok)
	assert.Equal(t, o, Owner{UID: 0, GID: 0})

	o, ok = b.Owner("/opt/al_service")
	assert.Assert(t, ok)
	assert.Equal(t, o.UID, uint32(1000))

	_, ok = b.Owner("/opt")
	assert.Assert(t, !ok)

	owners := b.Owners()
	assert.Equal(t, len(owners), 2)
	owners["opt"] = Owner{}
	assert.Equal(t, len(b.Owners()), 2)
}
