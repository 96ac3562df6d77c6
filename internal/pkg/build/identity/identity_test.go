// Copyright (c) 2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package identity

import (
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/fs"
)

const testPasswd = `root:x:0:0:root:/root:/bin/bash
# comment
daemon:x:1:1:daemon:/usr/sbin:/usr/sbin/nologin
assemblyline:x:1000:1000::/var/lib/assemblyline:/bin/sh
broken:x:notanumber:1::/:/bin/false
`

const testGroup = `root:x:0:
assemblyline:x:1000:
scanners:x:2000:assemblyline
`

func testRootfs(t *testing.T) string {
	dir := fs.NewDir(t, "rootfs",
		fs.WithDir("etc",
			fs.WithFile("passwd", testPasswd),
			fs.WithFile("group", testGroup),
		),
	)
	t.Cleanup(dir.Remove)
	return dir.Path()
}

func TestResolve(t *testing.T) {
	rootfs := testRootfs(t)

	tests := []struct {
		name    string
		ident   string
		want    Identity
		wantErr string
	}{
		{name: "Root", ident: "root", want: Identity{Name: "root"}},
		{name: "Name", ident: "assemblyline", want: Identity{Name: "assemblyline", UID: 1000, GID: 1000}},
		{name: "NameGroup", ident: "assemblyline:scanners", want: Identity{Name: "assemblyline", UID: 1000, GID: 2000}},
		{name: "NumericKnown", ident: "1", want: Identity{Name: "daemon", UID: 1, GID: 1}},
		{name: "NumericUnknown", ident: "4242", want: Identity{Name: "4242", UID: 4242}},
		{name: "NumericPair", ident: "4242:4343", want: Identity{Name: "4242", UID: 4242, GID: 4343}},
		{name: "NumericUserNamedGroup", ident: "1000:scanners", want: Identity{Name: "assemblyline", UID: 1000, GID: 2000}},
		{name: "UnknownUser", ident: "nobody", wantErr: "unable to find user nobody"},
		{name: "UnknownGroup", ident: "assemblyline:nogroup", wantErr: "unable to find group nogroup"},
		// unparsable ids read as zero
		{name: "BrokenEntry", ident: "broken", want: Identity{Name: "broken", UID: 0, GID: 1}},
		{name: "Empty", ident: "", wantErr: "empty identity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(rootfs, tt.ident)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			assert.NilError(t, err)
			assert.DeepEqual(t, got, tt.want)
		})
	}
}

func TestResolveNoDatabase(t *testing.T) {
	dir := fs.NewDir(t, "rootfs")
	defer dir.Remove()

	id, err := Resolve(dir.Path(), "1001")
	assert.NilError(t, err)
	assert.Equal(t, id, Identity{Name: "1001", UID: 1001})

	_, err = Resolve(dir.Path(), "assemblyline")
	assert.ErrorContains(t, err, "unable to find user assemblyline")
}

func TestResolveConfined(t *testing.T) {
	// an absolute /etc symlink must not reach the host databases
	dir := fs.NewDir(t, "rootfs",
		fs.WithDir("real", fs.WithFile("passwd", "svc:x:4000:4000::/:/bin/sh\n")),
		fs.WithSymlink("etc", "/real"),
	)
	defer dir.Remove()

	id, err := Resolve(dir.Path(), "svc")
	assert.NilError(t, err)
	assert.Equal(t, id, Identity{Name: "svc", UID: 4000, GID: 4000})

	_, err = Resolve(dir.Path(), "root")
	assert.ErrorContains(t, err, "unable to find user root")
}

func TestCanWrite(t *testing.T) {
	user := Identity{Name: "assemblyline", UID: 1000, GID: 1000}
	root := Identity{Name: "root"}

	assert.Assert(t, root.CanWrite(1000, 1000, 0444))
	assert.Assert(t, user.CanWrite(1000, 1000, 0644))
	assert.Assert(t, !user.CanWrite(1000, 1000, 0444))
	assert.Assert(t, !user.CanWrite(0, 0, 0644))
	assert.Assert(t, user.CanWrite(0, 1000, 0664))
	assert.Assert(t, user.CanWrite(0, 0, 0666))
}
