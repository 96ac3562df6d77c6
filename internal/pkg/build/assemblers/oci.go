// Copyright (c) 2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package assemblers

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/openSUSE/umoci"
	"github.com/openSUSE/umoci/oci/casext"
	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
	"github.com/sylabs/svcimage/internal/pkg/buildcfg"
	"github.com/sylabs/svcimage/pkg/build/types"
	"github.com/sylabs/svcimage/pkg/sylog"
)

// DefaultOCITag is the reference name given to the image in the layout.
const DefaultOCITag = "latest"

// OCIAssembler assembles an OCI image layout holding a single layer image.
type OCIAssembler struct {
	// Tag is the org.opencontainers.image.ref.name annotation of the image.
	Tag string
}

// Assemble creates an OCI image layout from a Bundle.
func (a *OCIAssembler) Assemble(b *types.Bundle, path string) error {
	sylog.Infof("Creating OCI image layout...")
	ctx := context.Background()

	tag := a.Tag
	if tag == "" {
		tag = DefaultOCITag
	}

	// the layout is written next to its destination and renamed into
	// place once complete
	tmpDir, err := ioutil.TempDir(filepath.Dir(path), ".oci-layout-")
	if err != nil {
		return errors.Wrap(err, "while creating temporary layout")
	}
	defer os.RemoveAll(tmpDir)

	layoutDir := filepath.Join(tmpDir, "layout")
	engine, err := umoci.CreateLayout(layoutDir)
	if err != nil {
		return errors.Wrap(err, "while creating layout")
	}

	if err := putImage(ctx, engine, b, tag); err != nil {
		engine.Close()
		return err
	}
	if err := engine.Close(); err != nil {
		return errors.Wrap(err, "while closing layout")
	}

	if err := os.RemoveAll(path); err != nil {
		return errors.Wrapf(err, "while removing %s", path)
	}
	return os.Rename(layoutDir, path)
}

// putImage stores the layer, configuration and manifest of the bundle image
// in the layout, and points tag at the manifest.
func putImage(ctx context.Context, engine casext.Engine, b *types.Bundle, tag string) error {
	layer, diffID, err := putLayer(ctx, engine, b)
	if err != nil {
		return errors.Wrap(err, "while writing layer")
	}

	created := time.Now().UTC()
	img := imgspecv1.Image{
		Created:      &created,
		Architecture: runtime.GOARCH,
		OS:           "linux",
		Config:       b.Config.OCI(),
		RootFS: imgspecv1.RootFS{
			Type:    "layers",
			DiffIDs: []digest.Digest{diffID},
		},
		History: []imgspecv1.History{{
			Created:   &created,
			CreatedBy: fmt.Sprintf("%s %s", buildcfg.PACKAGE_NAME, buildcfg.PACKAGE_VERSION),
		}},
	}
	configDigest, configSize, err := engine.PutBlobJSON(ctx, img)
	if err != nil {
		return errors.Wrap(err, "while writing image configuration")
	}

	manifest := imgspecv1.Manifest{
		Versioned: specs.Versioned{SchemaVersion: 2},
		Config: imgspecv1.Descriptor{
			MediaType: imgspecv1.MediaTypeImageConfig,
			Digest:    configDigest,
			Size:      configSize,
		},
		Layers: []imgspecv1.Descriptor{layer},
	}
	manifestDigest, manifestSize, err := engine.PutBlobJSON(ctx, manifest)
	if err != nil {
		return errors.Wrap(err, "while writing image manifest")
	}

	desc := imgspecv1.Descriptor{
		MediaType: imgspecv1.MediaTypeImageManifest,
		Digest:    manifestDigest,
		Size:      manifestSize,
	}
	if err := engine.UpdateReference(ctx, tag, desc); err != nil {
		return errors.Wrapf(err, "while tagging image %s", tag)
	}
	return nil
}

// putLayer stores the gzipped tar of the rootfs as a blob, and returns its
// descriptor along with the digest of the uncompressed tar.
func putLayer(ctx context.Context, engine casext.Engine, b *types.Bundle) (imgspecv1.Descriptor, digest.Digest, error) {
	diffID := digest.Canonical.Digester()
	pr, pw := io.Pipe()

	done := make(chan error, 1)
	go func() {
		gz := gzip.NewWriter(pw)
		err := writeTar(io.MultiWriter(gz, diffID.Hash()), b)
		if err == nil {
			err = gz.Close()
		}
		pw.CloseWithError(err)
		done <- err
	}()

	d, size, err := engine.PutBlob(ctx, pr)
	// unblocks the archiver when the blob was not fully read
	pr.CloseWithError(io.ErrClosedPipe)
	tarErr := <-done
	if err != nil {
		return imgspecv1.Descriptor{}, "", err
	}
	if tarErr != nil {
		return imgspecv1.Descriptor{}, "", tarErr
	}

	return imgspecv1.Descriptor{
		MediaType: imgspecv1.MediaTypeImageLayerGzip,
		Digest:    d,
		Size:      size,
	}, diffID.Digest(), nil
}

// writeTar archives the rootfs with the image ownership of every path, see
// imageOwner.
func writeTar(w io.Writer, b *types.Bundle) error {
	tw := tar.NewWriter(w)

	err := filepath.Walk(b.RootfsPath, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(b.RootfsPath, path)
		if err != nil {
			return err
		}
		if rel == "." || fi.Mode()&os.ModeSocket != 0 {
			return nil
		}

		var link string
		if fi.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(fi, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if fi.IsDir() {
			hdr.Name += "/"
		}
		hdr.Uname, hdr.Gname = "", ""

		uid, gid, err := imageOwner(b, rel, path, fi)
		if err != nil {
			return err
		}
		hdr.Uid, hdr.Gid = int(uid), int(gid)

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}
	return tw.Close()
}
