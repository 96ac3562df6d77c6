// Copyright (c) 2019-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package files

import (
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// RootfsPath resolves rel inside rootfs, symlinks being evaluated as if
// rootfs was the root directory so the result never escapes it.
func RootfsPath(rootfs, rel string) (string, error) {
	return securejoin.SecureJoin(rootfs, rel)
}

// RootfsRel returns the rootfs relative form of a path resolved with
// RootfsPath.
func RootfsRel(rootfs, resolved string) string {
	rel := strings.TrimPrefix(resolved, filepath.Clean(rootfs))
	return strings.TrimPrefix(rel, "/")
}

// countEntries returns the number of entries below src, src included.
func countEntries(src string) (int, error) {
	n := 0
	err := filepath.Walk(src, func(_ string, _ os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}
