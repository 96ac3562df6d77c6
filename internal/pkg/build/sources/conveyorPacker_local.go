// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sylabs/svcimage/pkg/build/types"
	"github.com/sylabs/svcimage/pkg/sylog"
)

// LocalConveyorPacker packs a sandbox directory into the bundle.
type LocalConveyorPacker struct {
	src string
	SandboxPacker
}

// NewLocalConveyorPacker returns a conveyor packer for the sandbox in src.
func NewLocalConveyorPacker(src string) *LocalConveyorPacker {
	return &LocalConveyorPacker{src: filepath.Clean(src)}
}

// Get checks the sandbox directory exists.
func (cp *LocalConveyorPacker) Get(_ context.Context, b *types.Bundle) error {
	fi, err := os.Stat(cp.src)
	if err != nil {
		return &types.MissingDependencyError{Ref: cp.src, Err: err}
	}
	if !fi.IsDir() {
		return &types.MissingDependencyError{Ref: cp.src, Err: fmt.Errorf("not a sandbox directory")}
	}
	sylog.Debugf("Packing from sandbox %s", cp.src)

	cp.SandboxPacker = SandboxPacker{srcdir: cp.src, b: b}
	return nil
}
