// Copyright (c) 2019-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/containers/image/v5/types"
	"github.com/golang/protobuf/proto"
	"github.com/openSUSE/umoci"
	umocilayer "github.com/openSUSE/umoci/oci/layer"
	"github.com/openSUSE/umoci/pkg/idtools"
	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
	rootlesscontainers "github.com/rootless-containers/proto/go-proto"
	sytypes "github.com/sylabs/svcimage/pkg/build/types"
	"github.com/sylabs/svcimage/pkg/sylog"
	"golang.org/x/sys/unix"
)

// mapOptions returns the umoci mapping for the current user. Without
// privileges every layer owner maps to the building user and the image
// owner is kept in the rootlesscontainers xattr, see RootlessOwner.
func mapOptions() (umocilayer.MapOptions, error) {
	var opts umocilayer.MapOptions
	if os.Geteuid() == 0 {
		return opts, nil
	}
	opts.Rootless = true

	uidMap, err := idtools.ParseMapping(fmt.Sprintf("0:%d:1", os.Geteuid()))
	if err != nil {
		return opts, fmt.Errorf("error parsing uidmap: %s", err)
	}
	gidMap, err := idtools.ParseMapping(fmt.Sprintf("0:%d:1", os.Getegid()))
	if err != nil {
		return opts, fmt.Errorf("error parsing gidmap: %s", err)
	}
	opts.UIDMappings = append(opts.UIDMappings, uidMap)
	opts.GIDMappings = append(opts.GIDMappings, gidMap)
	return opts, nil
}

// unpackRootfs extracts the layers of the image ref, stored in the layout at
// layoutDir, into the bundle rootfs.
func unpackRootfs(ctx context.Context, b *sytypes.Bundle, layoutDir string, ref types.ImageReference, sysCtx *types.SystemContext) error {
	opts, err := mapOptions()
	if err != nil {
		return err
	}

	src, err := ref.NewImageSource(ctx, sysCtx)
	if err != nil {
		return fmt.Errorf("error creating image source: %s", err)
	}
	defer src.Close()

	raw, mediaType, err := src.GetManifest(ctx, nil)
	if err != nil {
		return fmt.Errorf("error obtaining manifest source: %s", err)
	}
	if mediaType != imgspecv1.MediaTypeImageManifest {
		return fmt.Errorf("error verifying manifest media type: %s", mediaType)
	}
	var manifest imgspecv1.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return fmt.Errorf("error decoding manifest: %s", err)
	}

	engine, err := umoci.OpenLayout(layoutDir)
	if err != nil {
		return fmt.Errorf("error opening layout: %s", err)
	}
	defer engine.Close()

	// umoci creates the rootfs itself
	if err := os.RemoveAll(b.RootfsPath); err != nil {
		return err
	}
	if err := umocilayer.UnpackRootfs(ctx, engine, b.RootfsPath, manifest, &opts); err != nil {
		return fmt.Errorf("error unpacking rootfs: %s", err)
	}

	if opts.Rootless {
		sylog.Debugf("Opening permissions of rootless rootfs %s", b.RootfsPath)
		return openPermissions(b.RootfsPath)
	}
	return nil
}

// RootlessOwner returns the image owner a rootless unpack recorded for
// path. ok is false when path carries no record, the file then belongs to
// root in the image.
func RootlessOwner(path string) (uid, gid uint32, ok bool, err error) {
	buf := make([]byte, 64)
	n, err := unix.Lgetxattr(path, rootlesscontainers.Keyname, buf)
	switch err {
	case nil:
	case unix.ENODATA, unix.ENOTSUP:
		return 0, 0, false, nil
	default:
		return 0, 0, false, fmt.Errorf("while reading %s of %s: %v", rootlesscontainers.Keyname, path, err)
	}

	var res rootlesscontainers.Resource
	if err := proto.Unmarshal(buf[:n], &res); err != nil {
		return 0, 0, false, fmt.Errorf("while decoding %s of %s: %v", rootlesscontainers.Keyname, path, err)
	}
	// NoopID stands for the mapped user, root in the image
	if uid = res.GetUid(); uid == rootlesscontainers.NoopID {
		uid = 0
	}
	if gid = res.GetGid(); gid == rootlesscontainers.NoopID {
		gid = 0
	}
	return uid, gid, true, nil
}

// SetRootlessOwner records the image owner of path the way a rootless
// unpack does.
func SetRootlessOwner(path string, uid, gid uint32) error {
	res := rootlesscontainers.Resource{Uid: uid, Gid: gid}
	if uid == 0 {
		res.Uid = rootlesscontainers.NoopID
	}
	if gid == 0 {
		res.Gid = rootlesscontainers.NoopID
	}
	data, err := proto.Marshal(&res)
	if err != nil {
		return err
	}
	return unix.Lsetxattr(path, rootlesscontainers.Keyname, data, 0)
}

// openPermissions gives the owner rwx on directories and rw on regular
// files, so the building user can copy and remove the rootfs. Directories
// are changed before being read.
func openPermissions(root string) error {
	failed := 0

	var visit func(path string) error
	visit = func(path string) error {
		fi, err := os.Lstat(path)
		if err != nil {
			return err
		}

		var perm os.FileMode
		switch {
		case fi.IsDir():
			perm = fi.Mode().Perm() | 0700
		case fi.Mode().IsRegular():
			perm = fi.Mode().Perm() | 0600
		default:
			return nil
		}
		if perm != fi.Mode().Perm() {
			if err := os.Chmod(path, perm); err != nil {
				sylog.Errorf("Error setting rootless permission for %s: %s", path, err)
				failed++
			}
		}
		if !fi.IsDir() {
			return nil
		}

		d, err := os.Open(path)
		if err != nil {
			sylog.Errorf("Unable to access rootfs path %s: %s", path, err)
			failed++
			return nil
		}
		names, err := d.Readdirnames(-1)
		d.Close()
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := visit(filepath.Join(path, name)); err != nil {
				return err
			}
		}
		return nil
	}

	if err := visit(root); err != nil {
		return fmt.Errorf("could not access rootfs %s: %s", root, err)
	}
	if failed > 0 {
		return fmt.Errorf("%d errors were encountered when setting permissions", failed)
	}
	return nil
}
