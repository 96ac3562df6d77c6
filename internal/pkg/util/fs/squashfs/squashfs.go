// Copyright (c) 2019-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package squashfs

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// PathEnv overrides the location of mksquashfs, either the binary itself
// or the directory holding it.
const PathEnv = "SVCIMAGE_MKSQUASHFS_PATH"

// GetPath figures out where the mksquashfs binary is
// and return an error is not available or not usable.
func GetPath() (string, error) {
	// p is either "" or the value of the environment variable
	p := os.Getenv(PathEnv)

	// If the path contains the binary name use it as is, otherwise add mksquashfs via filepath.Join
	if !strings.HasSuffix(p, "mksquashfs") {
		p = filepath.Join(p, "mksquashfs")
	}

	// exec.LookPath functions on absolute paths (ignoring $PATH) as well
	return exec.LookPath(p)
}
