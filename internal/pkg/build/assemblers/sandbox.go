// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package assemblers writes a complete bundle to its destination format.
package assemblers

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/sylabs/svcimage/pkg/build/types"
	"github.com/sylabs/svcimage/pkg/sylog"
	"golang.org/x/sys/unix"
)

// SandboxAssembler assembles a sandbox image.
type SandboxAssembler struct {
	// Copy forces a copy of the rootfs instead of a move.
	Copy bool
}

// Assemble creates a Sandbox image from a Bundle.
func (a *SandboxAssembler) Assemble(b *types.Bundle, path string) error {
	sylog.Infof("Creating sandbox directory...")

	if _, err := os.Stat(path); err == nil {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("while removing existing sandbox: %v", err)
		}
	}

	if !a.Copy {
		sylog.Debugf("Moving sandbox from %v to %v", b.RootfsPath, path)

		err := os.Rename(b.RootfsPath, path)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EXDEV) {
			return fmt.Errorf("sandbox assemble failed: %v", err)
		}
		sylog.Debugf("Bundle and sandbox are on different devices, copying")
	}

	sylog.Debugf("Copying sandbox from %v to %v", b.RootfsPath, path)
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("while creating sandbox: %v", err)
	}
	var stderr bytes.Buffer
	cmd := exec.Command("cp", "-a", b.RootfsPath+`/.`, path)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.RemoveAll(path)
		return fmt.Errorf("cp failed: %v: %v", err, stderr.String())
	}

	return nil
}
