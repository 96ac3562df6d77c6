// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package types

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"strings"

	ocitypes "github.com/containers/image/v5/types"
	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/sylabs/svcimage/pkg/sylog"
)

// Bundle is the temporary environment used during the image building process.
type Bundle struct {
	Recipe Recipe  `json:"recipe"`
	Opts   Options `json:"opts"`

	// BaseConfig is the runtime configuration inherited from the base
	// image, zero for scratch.
	BaseConfig imgspecv1.ImageConfig `json:"baseConfig"`

	// Config is the runtime configuration of the assembled image, set
	// once the root filesystem is complete.
	Config ImageConfig `json:"config"`

	RootfsPath string `json:"rootfsPath"` // where actual fs to chroot will appear
	TmpDir     string `json:"tmpPath"`    // where temp files required during build will appear

	owners map[string]Owner
}

// Owner is the ownership recorded for a path written by the build.
type Owner struct {
	UID uint32
	GID uint32
}

// Options defines build time behavior to be executed on the bundle.
type Options struct {
	// TmpDir specifies a non-standard temporary location to perform a build.
	TmpDir string `json:"tmpDir"`
	// Force automatically deletes an existing image at build destination.
	Force bool `json:"force"`
	// NoHTTPS instructs the docker transport not to use secure connection.
	NoHTTPS bool `json:"noHTTPS"`
	// NoCleanUp keeps the bundle after a failed build, useful for debugging.
	NoCleanUp bool `json:"noCleanUp"`
	// RequirePlaceholder fails the build when the manifest has no placeholder.
	RequirePlaceholder bool `json:"requirePlaceholder"`
	// DockerAuthConfig contains docker credentials if specified.
	DockerAuthConfig *ocitypes.DockerAuthConfig `json:"-"`
}

// NewBundle creates a Bundle environment with root filesystem in rootfs.
// Any temporary files created during build process will be in
// tempDir/bundle-temp-* directory.
func NewBundle(rootfs, tempDir string) (*Bundle, error) {
	tmpPath, err := ioutil.TempDir(tempDir, "bundle-temp-")
	if err != nil {
		return nil, fmt.Errorf("could not create temp dir in %q: %v", tempDir, err)
	}
	sylog.Debugf("Created temporary directory %q for the bundle", tmpPath)

	if err := os.MkdirAll(rootfs, 0755); err != nil {
		if err := os.Remove(tmpPath); err != nil {
			sylog.Errorf("Could not cleanup temp dir %q: %v", tmpPath, err)
		}
		return nil, fmt.Errorf("could not create %q: %v", rootfs, err)
	}
	sylog.Debugf("Created directory %q for the bundle", rootfs)

	return &Bundle{
		RootfsPath: rootfs,
		TmpDir:     tmpPath,
		Recipe:     NewRecipe(),
		owners:     make(map[string]Owner),
	}, nil
}

// SetOwner records the ownership of a rootfs path.
func (b *Bundle) SetOwner(rel string, uid, gid uint32) {
	if b.owners == nil {
		b.owners = make(map[string]Owner)
	}
	b.owners[cleanRel(rel)] = Owner{UID: uid, GID: gid}
}

// Owner returns the ownership recorded for a rootfs path.
func (b *Bundle) Owner(rel string) (Owner, bool) {
	o, ok := b.owners[cleanRel(rel)]
	return o, ok
}

// Owners returns a copy of every recorded ownership.
func (b *Bundle) Owners() map[string]Owner {
	owners := make(map[string]Owner, len(b.owners))
	for k, v := range b.owners {
		owners[k] = v
	}
	return owners
}

// Remove cleans up any bundle files.
func (b *Bundle) Remove() error {
	var errors []string
	for _, dir := range []string{b.TmpDir, b.RootfsPath} {
		if err := os.RemoveAll(dir); err != nil {
			errors = append(errors, fmt.Sprintf("could not remove %q: %v", dir, err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, " "))
	}
	return nil
}

func cleanRel(rel string) string {
	return strings.TrimPrefix(path.Clean("/"+rel), "/")
}
