// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package build

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/sylabs/svcimage/internal/pkg/build/files"
	"github.com/sylabs/svcimage/internal/pkg/build/manifest"
	"github.com/sylabs/svcimage/internal/pkg/build/sources"
	"github.com/sylabs/svcimage/internal/pkg/buildcfg"
	"github.com/sylabs/svcimage/internal/pkg/util/shell"
	"github.com/sylabs/svcimage/pkg/build/types"
	"github.com/sylabs/svcimage/pkg/build/types/parser"
	"github.com/sylabs/svcimage/pkg/sylog"
)

// Metadata files written in the image metadata directory.
const (
	EnvScript  = "env/90-environment.sh"
	LabelsFile = "labels.json"
	ConfigFile = "config.json"
	RecipeFile = "recipe.toml"
)

// Labels set on every image.
const (
	LabelSchemaVersion  = "org.label-schema.schema-version"
	LabelBuildDate      = "org.label-schema.build-date"
	LabelBuilderVersion = "org.label-schema.usage.svcimage.version"
	LabelBuildID        = "org.svcimage.build-id"
	LabelBase           = "org.svcimage.base"
	LabelServiceName    = "org.svcimage.service.name"
	LabelServiceVersion = "org.svcimage.service.version"
)

func (s *stage) insertMetadata() error {
	labels, err := s.labels()
	if err != nil {
		return fmt.Errorf("while computing labels: %v", err)
	}

	s.b.Config = types.NewImageConfig(s.b.BaseConfig, s.b.Recipe, labels)

	if err := insertEnvScript(s.b); err != nil {
		return fmt.Errorf("while inserting environment script: %v", err)
	}
	if err := insertLabelsJSON(s.b); err != nil {
		return fmt.Errorf("while inserting labels JSON: %v", err)
	}
	if err := insertConfigJSON(s.b); err != nil {
		return fmt.Errorf("while inserting image config: %v", err)
	}
	if err := insertRecipe(s.b); err != nil {
		return fmt.Errorf("while inserting recipe: %v", err)
	}
	return nil
}

// metadataPath resolves name in the metadata directory, symlinks of the
// base image included, without leaving the rootfs.
func metadataPath(b *types.Bundle, name string) (string, error) {
	return files.RootfsPath(b.RootfsPath, filepath.Join(sources.MetadataDir, name))
}

func writeMetadata(b *types.Bundle, name string, data []byte, perm os.FileMode) error {
	path, err := metadataPath(b, name)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, data, perm)
}

// labels merges the base image labels, the build labels and the recipe
// labels. Recipe labels only replace existing ones with the force option.
func (s *stage) labels() (map[string]string, error) {
	labels := make(map[string]string)
	for k, v := range s.b.BaseConfig.Labels {
		labels[k] = v
	}
	if err := getExistingLabels(labels, s.b); err != nil {
		return nil, err
	}

	addBuildLabels(labels, s.b)
	s.addManifestLabels(labels)

	if len(s.b.Recipe.Labels) > 0 {
		sylog.Infof("Adding labels")
	}
	for key, value := range s.b.Recipe.Labels {
		if _, ok := labels[key]; ok && !s.b.Opts.Force {
			sylog.Warningf("Label: %s already exists and force option is false, not overwriting", key)
			continue
		}
		labels[key] = value
	}

	return labels, nil
}

func getExistingLabels(labels map[string]string, b *types.Bundle) error {
	path, err := metadataPath(b, LabelsFile)
	if err != nil {
		return err
	}
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	return json.Unmarshal(data, &labels)
}

func addBuildLabels(labels map[string]string, b *types.Bundle) {
	labels[LabelSchemaVersion] = "1.0"
	labels[LabelBuildDate] = time.Now().UTC().Format(time.RFC3339)
	labels[LabelBuilderVersion] = buildcfg.PACKAGE_VERSION
	labels[LabelBuildID] = uuid.NewV4().String()
	labels[LabelBase] = b.Recipe.Base.Ref
	labels[LabelServiceVersion] = b.Recipe.Service.Version
}

// addManifestLabels reports the service name of the patched manifest, a
// manifest which isn't valid YAML only gets a warning.
func (s *stage) addManifestLabels(labels map[string]string) {
	path, err := s.manifestPath()
	if err != nil {
		return
	}
	content, err := ioutil.ReadFile(path)
	if err != nil {
		sylog.Warningf("Could not read manifest: %v", err)
		return
	}
	info, err := manifest.Inspect(content)
	if err != nil {
		sylog.Warningf("Service manifest labels skipped: %v", err)
		return
	}
	if info.Name != "" {
		labels[LabelServiceName] = info.Name
	}
	if info.Version != "" && info.Version != s.b.Recipe.Service.Version {
		sylog.Verbosef("Manifest declares version %q, image built with %q", info.Version, s.b.Recipe.Service.Version)
	}
}

func insertEnvScript(b *types.Bundle) error {
	sylog.Infof("Adding environment to container")

	var sb strings.Builder
	sb.WriteString("#!/bin/sh\n\n")
	for _, e := range b.Config.Env() {
		line, err := shell.Export(e)
		if err != nil {
			return err
		}
		sb.WriteString(line + "\n")
	}

	return writeMetadata(b, EnvScript, []byte(sb.String()), 0755)
}

func insertLabelsJSON(b *types.Bundle) error {
	text, err := json.MarshalIndent(b.Config.Labels(), "", "\t")
	if err != nil {
		return err
	}
	return writeMetadata(b, LabelsFile, text, 0644)
}

func insertConfigJSON(b *types.Bundle) error {
	text, err := json.MarshalIndent(b.Config, "", "\t")
	if err != nil {
		return err
	}
	return writeMetadata(b, ConfigFile, text, 0644)
}

// insertRecipe records the recipe the image was built from, the host
// location of the working tree excepted.
func insertRecipe(b *types.Bundle) error {
	r := b.Recipe
	r.Service.Source = ""

	path, err := metadataPath(b, RecipeFile)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if err := parser.WriteRecipe(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
