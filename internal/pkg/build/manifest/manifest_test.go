// Copyright (c) 2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package manifest

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/fs"
	"gotest.tools/v3/golden"
)

const token = "$SERVICE_TAG"

var contents = []string{
	"",
	"name: test\n",
	"name: test\nversion: $SERVICE_TAG\n",
	"a: $SERVICE_TAG\nb: $SERVICE_TAG\n",
	"$SERVICE_TAG$SERVICE_TAG",
	"$SERVICE_TAGS and $SERVICE_TA and SERVICE_TAG",
	"version: \"$SERVICE_TAG\" # keep ${SERVICE_TAG} as is\n",
	"unicode: é$SERVICE_TAGé\r\n",
}

var versions = []string{"4.0.0.dev1", "5.2.1", "", "$SERVICE", "v1.0.0-rc.1+build"}

func TestSubstituteIdempotent(t *testing.T) {
	for _, c := range contents {
		for _, v := range versions {
			once, _ := Substitute([]byte(c), token, v)
			twice, _ := Substitute(once, token, v)
			assert.Equal(t, string(twice), string(once), "content %q version %q", c, v)
		}
	}
}

func TestSubstituteComplete(t *testing.T) {
	for _, c := range contents {
		for _, v := range versions {
			out, n := Substitute([]byte(c), token, v)

			want := strings.Count(c, token)
			assert.Equal(t, n, want)
			assert.Equal(t, strings.Count(string(out), token), 0, "content %q version %q", c, v)

			// every non-token byte stays in place relative to the occurrences
			assert.Equal(t, string(out), strings.Join(strings.Split(c, token), v))
		}
	}
}

func TestSubstituteAbsent(t *testing.T) {
	c := []byte("name: test\nversion: 1.2.3\n")
	out, n := Substitute(c, token, "5.2.1")
	assert.Equal(t, n, 0)
	assert.DeepEqual(t, out, c)

	out, n = Substitute(c, "", "5.2.1")
	assert.Equal(t, n, 0)
	assert.DeepEqual(t, out, c)
}

func TestPatchFile(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		golden  string
		version string
		count   int
	}{
		{name: "Single", input: "single.yml", golden: "single.golden", version: "5.2.1", count: 1},
		{name: "Double", input: "double.yml", golden: "double.golden", version: "1.0.0", count: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := ioutil.ReadFile(filepath.Join("testdata", tt.input))
			assert.NilError(t, err)

			dir := fs.NewDir(t, "manifest", fs.WithFile("service_manifest.yml", string(src), fs.WithMode(0640)))
			defer dir.Remove()
			path := dir.Join("service_manifest.yml")

			before, err := os.Stat(path)
			assert.NilError(t, err)

			n, err := PatchFile(path, token, tt.version)
			assert.NilError(t, err)
			assert.Equal(t, n, tt.count)

			after, err := os.Stat(path)
			assert.NilError(t, err)
			assert.Equal(t, after.Mode(), before.Mode())
			assert.Equal(t, after.Sys().(*syscall.Stat_t).Ino, before.Sys().(*syscall.Stat_t).Ino)

			got, err := ioutil.ReadFile(path)
			assert.NilError(t, err)
			golden.Assert(t, string(got), tt.golden)
		})
	}
}

func TestPatchFileErrors(t *testing.T) {
	dir := fs.NewDir(t, "manifest",
		fs.WithDir("sub"),
		fs.WithSymlink("link", "sub"),
	)
	defer dir.Remove()

	_, err := PatchFile(dir.Join("missing.yml"), token, "1.0.0")
	assert.Assert(t, os.IsNotExist(err))

	_, err = PatchFile(dir.Join("sub"), token, "1.0.0")
	assert.ErrorContains(t, err, "not a regular file")

	_, err = PatchFile(dir.Join("link"), token, "1.0.0")
	assert.ErrorContains(t, err, "not a regular file")
}

func TestInspect(t *testing.T) {
	info, err := Inspect([]byte("name: PDFId\nversion: 4.0.0.dev1\ndocker_config:\n  image: x\n"))
	assert.NilError(t, err)
	assert.Equal(t, info, Info{Name: "PDFId", Version: "4.0.0.dev1"})

	info, err = Inspect([]byte("name: test\nversion: 4.1\n"))
	assert.NilError(t, err)
	assert.Equal(t, info.Version, "4.1")

	info, err = Inspect([]byte("other: 1\n"))
	assert.NilError(t, err)
	assert.Equal(t, info, Info{})

	_, err = Inspect([]byte("name: [unterminated\n"))
	assert.ErrorContains(t, err, "while parsing manifest")
}

func TestIsSemver(t *testing.T) {
	assert.Assert(t, IsSemver("5.2.1"))
	assert.Assert(t, IsSemver("v1.0.0-rc.1"))
	assert.Assert(t, !IsSemver("4.0.0.dev1"))
	assert.Assert(t, !IsSemver(""))
}
