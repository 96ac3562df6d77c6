// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package sources

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/containers/image/v5/copy"
	"github.com/containers/image/v5/docker"
	dockerarchive "github.com/containers/image/v5/docker/archive"
	dockerdaemon "github.com/containers/image/v5/docker/daemon"
	ociarchive "github.com/containers/image/v5/oci/archive"
	ocilayout "github.com/containers/image/v5/oci/layout"
	"github.com/containers/image/v5/signature"
	"github.com/containers/image/v5/types"
	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
	sytypes "github.com/sylabs/svcimage/pkg/build/types"
	"github.com/sylabs/svcimage/pkg/sylog"
)

// layoutTag is the reference of the base image in the bundle OCI layout.
const layoutTag = "base"

// OCIConveyorPacker retrieves a base image through containers/image into an
// OCI layout inside the bundle, then unpacks its layers in the rootfs.
type OCIConveyorPacker struct {
	transport Transport
	ref       string

	srcRef    types.ImageReference
	tmpfsRef  types.ImageReference
	layoutDir string
	b         *sytypes.Bundle
	policyCtx *signature.PolicyContext
	sysCtx    *types.SystemContext
	imgConfig imgspecv1.ImageConfig
}

// NewOCIConveyorPacker returns a conveyor packer for ref, as returned by
// ParseRef for transport.
func NewOCIConveyorPacker(transport Transport, ref string) *OCIConveyorPacker {
	return &OCIConveyorPacker{transport: transport, ref: ref}
}

func (cp *OCIConveyorPacker) missing(err error) error {
	return &sytypes.MissingDependencyError{Ref: string(cp.transport) + ":" + cp.ref, Err: err}
}

// Get downloads the base image from the specified source.
func (cp *OCIConveyorPacker) Get(ctx context.Context, b *sytypes.Bundle) (err error) {
	cp.b = b

	policy := &signature.Policy{Default: []signature.PolicyRequirement{signature.NewPRInsecureAcceptAnything()}}
	cp.policyCtx, err = signature.NewPolicyContext(policy)
	if err != nil {
		return err
	}

	cp.sysCtx = &types.SystemContext{
		OCIInsecureSkipTLSVerify:    b.Opts.NoHTTPS,
		DockerInsecureSkipTLSVerify: types.NewOptionalBool(b.Opts.NoHTTPS),
		DockerAuthConfig:            b.Opts.DockerAuthConfig,
		OSChoice:                    "linux",
		BigFilesTemporaryDir:        b.TmpDir,
	}
	sylog.Debugf("Reference: %s:%s", cp.transport, cp.ref)

	switch cp.transport {
	case Docker:
		cp.srcRef, err = docker.ParseReference(cp.ref)
	case DockerArchive:
		cp.srcRef, err = dockerarchive.ParseReference(cp.ref)
	case DockerDaemon:
		cp.srcRef, err = dockerdaemon.ParseReference(cp.ref)
	case OCI:
		cp.srcRef, err = ocilayout.ParseReference(cp.ref)
	case OCIArchive:
		cp.srcRef, err = ociarchive.ParseReference(cp.ref)
	default:
		return fmt.Errorf("OCI conveyor packer does not support %s", cp.transport)
	}
	if err != nil {
		return cp.missing(fmt.Errorf("invalid image source: %v", err))
	}

	// the rootfs extraction needs a layout that contains only this image
	cp.layoutDir = filepath.Join(b.TmpDir, "oci")
	cp.tmpfsRef, err = ocilayout.ParseReference(cp.layoutDir + ":" + layoutTag)
	if err != nil {
		return err
	}

	if err := cp.fetch(ctx); err != nil {
		return cp.missing(err)
	}

	cp.imgConfig, err = cp.getConfig(ctx)
	if err != nil {
		return fmt.Errorf("while reading base image configuration: %v", err)
	}

	return nil
}

// Pack unpacks the fetched image in the bundle rootfs.
func (cp *OCIConveyorPacker) Pack(ctx context.Context) (*sytypes.Bundle, error) {
	if err := unpackRootfs(ctx, cp.b, cp.layoutDir, cp.tmpfsRef, cp.sysCtx); err != nil {
		return nil, fmt.Errorf("while unpacking base image: %v", err)
	}

	if err := makeBaseEnv(cp.b.RootfsPath); err != nil {
		return nil, fmt.Errorf("while inserting base environment: %v", err)
	}

	cp.b.BaseConfig = cp.imgConfig

	return cp.b, nil
}

func (cp *OCIConveyorPacker) fetch(ctx context.Context) error {
	_, err := copy.Image(ctx, cp.policyCtx, cp.tmpfsRef, cp.srcRef, &copy.Options{
		ReportWriter: sylog.Writer(),
		SourceCtx:    cp.sysCtx,
	})
	return err
}

func (cp *OCIConveyorPacker) getConfig(ctx context.Context) (imgspecv1.ImageConfig, error) {
	img, err := cp.tmpfsRef.NewImage(ctx, cp.sysCtx)
	if err != nil {
		return imgspecv1.ImageConfig{}, err
	}
	defer img.Close()

	imgSpec, err := img.OCIConfig(ctx)
	if err != nil {
		return imgspecv1.ImageConfig{}, err
	}

	return imgSpec.Config, nil
}
