// Copyright (c) 2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package manifest injects the service version into a service manifest.
//
// The injection is a literal find-and-replace of the placeholder token over
// the raw manifest bytes. The manifest is never parsed for the substitution,
// every byte that is not part of a token occurrence is preserved.
package manifest

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/blang/semver"
	"gopkg.in/yaml.v2"
)

// Substitute replaces every occurrence of token in content by version and
// returns the result along with the number of replaced occurrences. An
// empty version deletes the occurrences. The content is returned unchanged
// when token is not present.
func Substitute(content []byte, token, version string) ([]byte, int) {
	if token == "" {
		return content, 0
	}
	n := bytes.Count(content, []byte(token))
	if n == 0 {
		return content, 0
	}
	return bytes.ReplaceAll(content, []byte(token), []byte(version)), n
}

// PatchFile substitutes token by version in the file at path. The file is
// rewritten in place so it keeps its inode, mode and ownership. A file
// without any occurrence isn't written at all.
func PatchFile(path, token, version string) (int, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return 0, err
	}
	if !fi.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}

	content, err := ioutil.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("while reading manifest: %w", err)
	}

	patched, n := Substitute(content, token, version)
	if n == 0 {
		return 0, nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return 0, fmt.Errorf("while opening manifest for writing: %w", err)
	}
	if _, err := f.Write(patched); err != nil {
		f.Close()
		return 0, fmt.Errorf("while writing manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("while writing manifest: %w", err)
	}

	return n, nil
}

// Info holds the manifest fields reported in image labels.
type Info struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// Inspect reads the service name and version from a manifest. Manifests
// are free form, fields of other types are ignored.
func Inspect(content []byte) (Info, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return Info{}, fmt.Errorf("while parsing manifest: %v", err)
	}

	var info Info
	if v, ok := raw["name"]; ok && v != nil {
		info.Name = fmt.Sprint(v)
	}
	if v, ok := raw["version"]; ok && v != nil {
		info.Version = fmt.Sprint(v)
	}
	return info, nil
}

// IsSemver returns whether version is a semantic version, leading "v"
// and missing minor or patch numbers being tolerated.
func IsSemver(version string) bool {
	_, err := semver.ParseTolerant(version)
	return err == nil
}
