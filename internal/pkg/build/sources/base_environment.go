// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package sources

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sylabs/svcimage/internal/pkg/build/files"
)

// MetadataDir is the rootfs directory holding the image runtime metadata.
const MetadataDir = ".svcimage.d"

const (
	// Contents of /.svcimage.d/actions/exec
	execFileContent = `#!/bin/sh

for script in /.svcimage.d/env/*.sh; do
    if [ -f "$script" ]; then
        . "$script"
    fi
done

exec "$@"
`

	// Contents of /.svcimage.d/env/01-base.sh
	baseShFileContent = `#!/bin/sh

if [ -z "${PATH:-}" ]; then
    PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin
    export PATH
fi
`
)

func makeDirs(rootPath string) error {
	for _, dir := range []string{
		filepath.Join(MetadataDir, "actions"),
		filepath.Join(MetadataDir, "env"),
		"etc",
		"tmp",
	} {
		path, err := files.RootfsPath(rootPath, dir)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return err
		}
	}
	tmp, err := files.RootfsPath(rootPath, "tmp")
	if err != nil {
		return err
	}
	return os.Chmod(tmp, 01777)
}

// makeFile creates the rootfs file rel unless the base image has it.
func makeFile(rootPath, rel string, perm os.FileMode, s string) error {
	name, err := files.RootfsPath(rootPath, rel)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(name); err == nil {
		return nil
	}

	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func makeFiles(rootPath string) error {
	if err := makeFile(rootPath, filepath.Join(MetadataDir, "actions", "exec"), 0755, execFileContent); err != nil {
		return err
	}
	return makeFile(rootPath, filepath.Join(MetadataDir, "env", "01-base.sh"), 0755, baseShFileContent)
}

// makeBaseEnv creates the metadata directory layout expected by the
// assemblers. Files already present in the base image are kept.
func makeBaseEnv(rootPath string) (err error) {
	if err = makeDirs(rootPath); err != nil {
		return fmt.Errorf("while creating base directories: %v", err)
	}
	if err = makeFiles(rootPath); err != nil {
		return fmt.Errorf("while creating base files: %v", err)
	}
	return nil
}
