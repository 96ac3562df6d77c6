// Copyright (c) 2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package svcimage implements the commands of the svcimage CLI which
// don't belong to the build package.
package svcimage

import (
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/buger/jsonparser"
	"github.com/fatih/color"
	"github.com/opencontainers/go-digest"
	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/sylabs/sif/pkg/sif"
	"github.com/sylabs/svcimage/internal/pkg/build/assemblers"
	"github.com/sylabs/svcimage/internal/pkg/build/files"
	"github.com/sylabs/svcimage/internal/pkg/build/sources"
	"github.com/sylabs/svcimage/pkg/build/types"
	"github.com/sylabs/svcimage/pkg/sylog"
)

// Image formats recognized by Inspect.
const (
	FormatSandbox = "sandbox"
	FormatOCI     = "oci"
	FormatSIF     = "sif"
)

// Image is the runtime configuration of a built image.
type Image struct {
	Path   string
	Format string
	Config types.ImageConfig
}

// Inspect reads the runtime configuration of the image at path.
func Inspect(path string) (*Image, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	img := &Image{Path: path}
	var data []byte

	switch {
	case fi.IsDir() && isOCILayout(path):
		img.Format = FormatOCI
		data, err = ociConfig(path)
	case fi.IsDir():
		img.Format = FormatSandbox
		data, err = sandboxConfig(path)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s is not an image built by svcimage: no configuration found", path)
		}
	default:
		img.Format = FormatSIF
		data, err = sifConfig(path)
	}
	if err != nil {
		return nil, fmt.Errorf("while reading %s image configuration: %v", img.Format, err)
	}

	img.Config, err = types.ParseImageConfig(data)
	if err != nil {
		return nil, fmt.Errorf("while decoding %s image configuration: %v", img.Format, err)
	}
	return img, nil
}

// sandboxConfig reads the configuration of a sandbox, symlinks resolved
// inside it.
func sandboxConfig(path string) ([]byte, error) {
	config, err := files.RootfsPath(path, filepath.Join(sources.MetadataDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return ioutil.ReadFile(config)
}

func isOCILayout(path string) bool {
	_, err := os.Stat(filepath.Join(path, imgspecv1.ImageLayoutFile))
	return err == nil
}

func readBlob(layout, dgst string) ([]byte, error) {
	d, err := digest.Parse(dgst)
	if err != nil {
		return nil, err
	}
	return ioutil.ReadFile(filepath.Join(layout, "blobs", d.Algorithm().String(), d.Encoded()))
}

// ociConfig returns the runtime configuration of the first image of an OCI
// layout.
func ociConfig(layout string) ([]byte, error) {
	index, err := ioutil.ReadFile(filepath.Join(layout, "index.json"))
	if err != nil {
		return nil, err
	}
	manifestDigest, err := jsonparser.GetString(index, "manifests", "[0]", "digest")
	if err != nil {
		return nil, fmt.Errorf("no manifest in index: %v", err)
	}

	manifest, err := readBlob(layout, manifestDigest)
	if err != nil {
		return nil, err
	}
	configDigest, err := jsonparser.GetString(manifest, "config", "digest")
	if err != nil {
		return nil, fmt.Errorf("no config in manifest %s: %v", manifestDigest, err)
	}

	config, err := readBlob(layout, configDigest)
	if err != nil {
		return nil, err
	}
	runtime, _, _, err := jsonparser.Get(config, "config")
	if err == jsonparser.KeyPathNotFoundError {
		sylog.Warningf("Image %s has no runtime configuration", configDigest)
		return []byte("{}"), nil
	}
	return runtime, err
}

func sifConfig(path string) ([]byte, error) {
	fimg, err := sif.LoadContainer(path, true)
	if err != nil {
		return nil, err
	}
	defer fimg.UnloadContainer()

	descrs, _, err := fimg.GetFromDescr(sif.Descriptor{Datatype: sif.DataGenericJSON})
	if err != nil {
		return nil, err
	}
	for _, d := range descrs {
		if d.GetName() == assemblers.SIFConfigName {
			return d.GetData(&fimg), nil
		}
	}
	return nil, fmt.Errorf("no %s descriptor", assemblers.SIFConfigName)
}

type jsonImage struct {
	Path       string            `json:"path"`
	Format     string            `json:"format"`
	User       string            `json:"user"`
	WorkingDir string            `json:"workingDir"`
	Env        []string          `json:"env"`
	Labels     map[string]string `json:"labels"`
}

// PrintJSON writes the image configuration as a JSON object.
func PrintJSON(w io.Writer, img *Image) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	return enc.Encode(jsonImage{
		Path:       img.Path,
		Format:     img.Format,
		User:       img.Config.User(),
		WorkingDir: img.Config.WorkingDir(),
		Env:        img.Config.Env(),
		Labels:     img.Config.Labels(),
	})
}

// Print writes the image configuration in sections, labels sorted by key.
func Print(w io.Writer, img *Image) {
	section := color.New(color.Bold)
	key := color.New(color.FgCyan)

	section.Fprintf(w, "%s (%s)\n", img.Path, img.Format)
	fmt.Fprintf(w, "%s %s\n", key.Sprint("User:"), img.Config.User())
	fmt.Fprintf(w, "%s %s\n", key.Sprint("WorkingDir:"), img.Config.WorkingDir())

	section.Fprintln(w, "Environment:")
	for _, e := range img.Config.Env() {
		fmt.Fprintf(w, "  %s\n", e)
	}

	section.Fprintln(w, "Labels:")
	labels := img.Config.Labels()
	for _, k := range img.Config.LabelKeys() {
		fmt.Fprintf(w, "  %s %s\n", key.Sprint(k+":"), labels[k])
	}
}
