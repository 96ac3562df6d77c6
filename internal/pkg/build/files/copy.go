// Copyright (c) 2019-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package files

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sylabs/svcimage/pkg/build/types"
	"github.com/sylabs/svcimage/pkg/sylog"
	"gopkg.in/cheggaaa/pb.v1"
)

// CopyTree copies the host directory src to dstRel inside the bundle root
// filesystem. Regular files, directories and symlinks are copied with their
// permission bits, symlinks are not dereferenced and other file types are
// skipped. Every written path is recorded in the bundle as owned by
// uid:gid, and is chowned accordingly when the process runs as root.
// Destination paths are resolved so nothing is written outside the root
// filesystem.
func CopyTree(src, dstRel string, b *types.Bundle, uid, gid uint32) error {
	fi, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("while reading working tree: %v", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("working tree %s is not a directory", src)
	}

	total, err := countEntries(src)
	if err != nil {
		return fmt.Errorf("while reading working tree: %v", err)
	}

	dst, err := RootfsPath(b.RootfsPath, dstRel)
	if err != nil {
		return fmt.Errorf("while resolving destination %s: %v", dstRel, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("while creating parent of %s: %v", dstRel, err)
	}

	bar := pb.New(total)
	if sylog.GetLevel() < int(sylog.VerboseLevel) {
		bar.NotPrint = true
	}
	bar.Output = sylog.Writer()
	bar.Start()
	defer bar.Finish()

	c := copier{bundle: b, uid: uid, gid: gid, chown: os.Geteuid() == 0}

	return filepath.Walk(src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		defer bar.Increment()

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return c.copy(path, dst, fi)
		}

		// only the parent is resolved, the entry itself may be a symlink
		parent, err := RootfsPath(b.RootfsPath, filepath.Join(dstRel, filepath.Dir(rel)))
		if err != nil {
			return fmt.Errorf("while resolving destination of %s: %v", rel, err)
		}
		return c.copy(path, filepath.Join(parent, filepath.Base(rel)), fi)
	})
}

type copier struct {
	bundle *types.Bundle
	uid    uint32
	gid    uint32
	chown  bool
}

func (c copier) copy(src, dst string, fi os.FileInfo) error {
	mode := fi.Mode()

	switch {
	case mode.IsDir():
		if err := removeUnlessDir(dst); err != nil {
			return err
		}
		if err := os.Mkdir(dst, mode.Perm()); err != nil && !os.IsExist(err) {
			return fmt.Errorf("while creating directory %s: %v", dst, err)
		}
		// an existing directory takes the working tree permissions
		if err := os.Chmod(dst, mode.Perm()); err != nil {
			return err
		}
	case mode&os.ModeSymlink != 0:
		link, err := os.Readlink(src)
		if err != nil {
			return err
		}
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := os.Symlink(link, dst); err != nil {
			return fmt.Errorf("while creating symlink %s: %v", dst, err)
		}
	case mode.IsRegular():
		if err := copyFile(src, dst, mode.Perm()); err != nil {
			return err
		}
	default:
		sylog.Warningf("Skipping %s: unsupported file type %s", src, mode.Type())
		return nil
	}

	c.bundle.SetOwner(RootfsRel(c.bundle.RootfsPath, dst), c.uid, c.gid)
	if c.chown {
		if err := os.Lchown(dst, int(c.uid), int(c.gid)); err != nil {
			return fmt.Errorf("while changing owner of %s: %v", dst, err)
		}
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	// a symlink left at dst by the base image must not be followed
	if fi, err := os.Lstat(dst); err == nil && !fi.Mode().IsRegular() {
		if err := os.RemoveAll(dst); err != nil {
			return err
		}
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("while creating %s: %v", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("while copying %s: %v", src, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, perm)
}

func removeUnlessDir(path string) error {
	fi, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	if fi.IsDir() {
		return nil
	}
	return os.Remove(path)
}
