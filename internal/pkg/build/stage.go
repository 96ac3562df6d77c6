// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package build

import (
	"errors"
	"fmt"
	"os"

	"github.com/sylabs/svcimage/internal/pkg/build/files"
	"github.com/sylabs/svcimage/internal/pkg/build/identity"
	"github.com/sylabs/svcimage/internal/pkg/build/manifest"
	"github.com/sylabs/svcimage/pkg/build/types"
	"github.com/sylabs/svcimage/pkg/sylog"
)

// stage represents the process of constructing a root filesystem.
type stage struct {
	// c Gets and Packs data needed to build a container into a Bundle from various sources.
	c ConveyorPacker
	// a Assembles a container from the information stored in a Bundle into various formats.
	a Assembler
	// b is an intermediate structure that encapsulates all information for the container, e.g., metadata, filesystems.
	b *types.Bundle
	// parent holds the bundle root filesystem.
	parent string
}

// Assemble assembles the bundle to the specified path.
func (s *stage) Assemble(path string) error {
	return s.a.Assemble(s.b, path)
}

// copyWorkingTree copies the service working tree into the working
// directory while acting as the restricted identity.
func (s *stage) copyWorkingTree(session *identity.Session) error {
	owner := identity.Identity{Name: "root"}
	if name := s.b.Recipe.Users.CopyOwner; name != "" {
		id, err := identity.Resolve(s.b.RootfsPath, name)
		if err != nil {
			return fmt.Errorf("while resolving copy owner: %v", err)
		}
		owner = id
	}

	svc := s.b.Recipe.Service
	sylog.Infof("Copying %s to %s as %s", svc.Source, svc.WorkDir, session.Current())
	if err := files.CopyTree(svc.Source, svc.WorkDir, s.b, owner.UID, owner.GID); err != nil {
		return fmt.Errorf("unable to copy working tree to container fs: %w", err)
	}
	return nil
}

// manifestPath returns the manifest location resolved inside the rootfs.
func (s *stage) manifestPath() (string, error) {
	return files.RootfsPath(s.b.RootfsPath, s.b.Recipe.ManifestPath())
}

func (s *stage) checkManifest() error {
	missing := &types.MissingManifestError{Path: s.b.Recipe.ManifestPath()}

	path, err := s.manifestPath()
	if err != nil {
		return missing
	}
	fi, err := os.Lstat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return missing
	}
	return nil
}

// injectVersion replaces the placeholder in the manifest as the
// administrative identity.
func (s *stage) injectVersion(session *identity.Session) error {
	svc := s.b.Recipe.Service
	rel := s.b.Recipe.ManifestPath()

	path, err := s.manifestPath()
	if err != nil {
		return fmt.Errorf("while resolving %s: %v", rel, err)
	}

	return session.Elevated(func(admin identity.Identity) error {
		fi, err := os.Lstat(path)
		if err != nil {
			return fmt.Errorf("while reading %s: %v", rel, err)
		}

		// paths without recorded ownership belong to root
		owner, _ := s.b.Owner(files.RootfsRel(s.b.RootfsPath, path))
		if !admin.CanWrite(owner.UID, owner.GID, fi.Mode()) {
			return &types.PermissionError{
				Identity: admin.String(),
				Op:       "write " + rel,
				Err:      fmt.Errorf("file owned by %d:%d with mode %v", owner.UID, owner.GID, fi.Mode().Perm()),
			}
		}

		n, err := manifest.PatchFile(path, svc.Placeholder, svc.Version)
		if errors.Is(err, os.ErrPermission) {
			return &types.PermissionError{Identity: admin.String(), Op: "write " + rel, Err: err}
		} else if err != nil {
			return fmt.Errorf("while injecting version: %w", err)
		}

		if n == 0 {
			if s.b.Opts.RequirePlaceholder {
				return &types.PlaceholderError{Path: rel, Token: svc.Placeholder}
			}
			sylog.Warningf("No %s found in %s, manifest left unchanged", svc.Placeholder, rel)
			return nil
		}

		sylog.Infof("Injected version %q in %s (%d occurrence(s))", svc.Version, rel, n)
		return nil
	})
}
