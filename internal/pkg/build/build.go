// Copyright (c) 2019-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package build

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sylabs/svcimage/internal/pkg/build/identity"
	"github.com/sylabs/svcimage/internal/pkg/build/manifest"
	"github.com/sylabs/svcimage/internal/pkg/util/fs"
	"github.com/sylabs/svcimage/pkg/build/types"
	"github.com/sylabs/svcimage/pkg/sylog"
)

// Build is an abstracted way to look at the entire build process.
// For example calling New() will return this object.
// From there we can call Full() on this build object, which will:
// 		Get and Pack the base image into a bundle
// 		Copy the service working tree and inject the version into its manifest
// 		And finally call Assemble() to create the service image
type Build struct {
	stage stage
	// Conf contains the build configuration.
	Conf Config
}

// Config defines how build is executed, including things like where final image is written.
type Config struct {
	// Dest is the location for the image after build is complete.
	Dest string
	// Format is the format of built image: sandbox, oci or sif.
	Format string
	// Tag is the reference name of an OCI layout output.
	Tag string
	// Opts for bundles.
	Opts types.Options
}

// New creates a new build from a recipe. Nothing is fetched or written at
// the destination before Full is called.
func New(r types.Recipe, conf Config) (*Build, error) {
	r.SetDefaults()
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recipe: %v", err)
	}

	src, err := filepath.Abs(r.Service.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to determine absolute path for %q: %v", r.Service.Source, err)
	}
	if !fs.IsDir(src) {
		return nil, fmt.Errorf("service working tree %s is not a directory", src)
	}
	r.Service.Source = src

	if conf.Dest == "" {
		return nil, fmt.Errorf("no build destination")
	}
	dest, err := filepath.Abs(conf.Dest)
	if err != nil {
		return nil, fmt.Errorf("failed to determine absolute path for %q: %v", conf.Dest, err)
	}
	conf.Dest = dest

	if conf.Format == "" {
		conf.Format = FormatSandbox
	}
	if _, err := IsValidAssembler(conf.Format); err != nil {
		return nil, err
	}

	if conf.Opts.TmpDir == "" {
		conf.Opts.TmpDir = os.TempDir()
	}
	if !fs.IsWritable(conf.Opts.TmpDir) {
		return nil, fmt.Errorf("temporary directory %s is not writable", conf.Opts.TmpDir)
	}

	if !conf.Opts.Force {
		if _, err := os.Lstat(conf.Dest); err == nil {
			return nil, fmt.Errorf("build destination %s already exists, use force option to overwrite", conf.Dest)
		}
	}

	b := &Build{Conf: conf}

	c, err := conveyorPacker(r.Base.Ref)
	if err != nil {
		return nil, fmt.Errorf("unable to get conveyorpacker: %w", err)
	}
	b.stage.c = c

	a, err := newAssembler(conf.Format, conf.Tag)
	if err != nil {
		return nil, err
	}

	// a sandbox rootfs is created next to its destination so the final
	// step is a rename
	rootfsParent := conf.Opts.TmpDir
	if conf.Format == FormatSandbox {
		rootfsParent = filepath.Dir(conf.Dest)
	}
	parentPath, err := ioutil.TempDir(rootfsParent, "build-temp-")
	if err != nil {
		return nil, fmt.Errorf("failed to create build parent dir: %w", err)
	}
	if err := os.Chmod(parentPath, 0755); err != nil {
		os.RemoveAll(parentPath)
		return nil, fmt.Errorf("failed to set permission on %s: %w", parentPath, err)
	}

	bundle, err := types.NewBundle(filepath.Join(parentPath, "rootfs"), conf.Opts.TmpDir)
	if err != nil {
		os.RemoveAll(parentPath)
		return nil, err
	}
	bundle.Recipe = r
	bundle.Opts = conf.Opts
	b.stage.b = bundle
	b.stage.parent = parentPath

	b.stage.a = a

	if !manifest.IsSemver(r.Service.Version) {
		sylog.Verbosef("Version %q is not a semantic version, injecting it as-is", r.Service.Version)
	}

	return b, nil
}

// cleanUp removes remnants of build from file system unless NoCleanUp is
// specified and the build failed.
func (b *Build) cleanUp(failed bool) {
	if failed && b.Conf.Opts.NoCleanUp {
		sylog.Infof("Build performed with no clean up option, build bundle located at: %v", []string{b.stage.b.RootfsPath, b.stage.b.TmpDir})
		return
	}

	sylog.Debugf("Cleaning up %q and %q", b.stage.b.RootfsPath, b.stage.b.TmpDir)
	if err := b.stage.b.Remove(); err != nil {
		sylog.Errorf("Could not remove bundle: %v", err)
	}
	if err := os.RemoveAll(b.stage.parent); err != nil {
		sylog.Errorf("Could not remove %s: %v", b.stage.parent, err)
	}
}

// Full runs a standard build from start to finish.
func (b *Build) Full(ctx context.Context) (err error) {
	sylog.Infof("Starting build...")

	// monitor build for termination signal and clean up
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-c:
			b.cleanUp(true)
			os.Exit(1)
		case <-done:
		}
	}()
	defer signal.Stop(c)

	// clean up build normally
	defer func() {
		b.cleanUp(err != nil)
	}()

	oldumask := syscall.Umask(0022)
	defer syscall.Umask(oldumask)

	s := &b.stage

	sylog.Infof("Fetching base image %s", s.b.Recipe.Base.Ref)
	if err := s.c.Get(ctx, s.b); err != nil {
		return fmt.Errorf("conveyor failed to get: %w", err)
	}
	if _, err := s.c.Pack(ctx); err != nil {
		return fmt.Errorf("packer failed to pack: %w", err)
	}

	session, err := identity.NewSession(s.b.RootfsPath, s.b.Recipe.Users.Restricted, s.b.Recipe.Users.Admin)
	if err != nil {
		return err
	}

	if err := s.copyWorkingTree(session); err != nil {
		return err
	}

	if err := s.checkManifest(); err != nil {
		return err
	}

	if err := s.injectVersion(session); err != nil {
		return err
	}

	if cur := session.Current(); cur != session.Restricted() {
		return fmt.Errorf("build continued as %s instead of %s", cur, session.Restricted())
	}

	sylog.Debugf("Inserting Metadata")
	if err := s.insertMetadata(); err != nil {
		return fmt.Errorf("while inserting metadata to bundle: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	sylog.Debugf("Calling assembler")
	if err := s.Assemble(b.Conf.Dest); err != nil {
		return err
	}

	sylog.Verbosef("Build complete: %s", b.Conf.Dest)
	return nil
}
