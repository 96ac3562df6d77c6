// Copyright (c) 2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package types

import (
	"fmt"
)

// MissingDependencyError is returned when the base image reference can't be
// resolved to a retrievable image.
type MissingDependencyError struct {
	Ref string
	Err error
}

func (e *MissingDependencyError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("base image %q could not be resolved", e.Ref)
	}
	return fmt.Sprintf("base image %q could not be resolved: %v", e.Ref, e.Err)
}

func (e *MissingDependencyError) Unwrap() error {
	return e.Err
}

// MissingManifestError is returned when the service manifest is absent from
// the root filesystem once the working tree has been copied.
type MissingManifestError struct {
	Path string
}

func (e *MissingManifestError) Error() string {
	return fmt.Sprintf("service manifest %s not found in working tree", e.Path)
}

// PermissionError is returned when an identity can't be assumed, or when the
// assumed identity is not allowed to perform Op.
type PermissionError struct {
	Identity string
	Op       string
	Err      error
}

func (e *PermissionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("identity %q not permitted to %s", e.Identity, e.Op)
	}
	return fmt.Sprintf("identity %q not permitted to %s: %v", e.Identity, e.Op, e.Err)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// PlaceholderError is returned when the manifest doesn't contain the version
// placeholder and the build requires at least one substitution.
type PlaceholderError struct {
	Path  string
	Token string
}

func (e *PlaceholderError) Error() string {
	return fmt.Sprintf("no occurrence of %s found in %s", e.Token, e.Path)
}
