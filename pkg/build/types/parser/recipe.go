// Copyright (c) 2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package parser loads service image recipes. A recipe is a TOML document:
//
//	[base]
//	ref = "docker://cccs/assemblyline-v4-service-base:stable"
//
//	[service]
//	path = "pdf_id.pdf_id.PDFId"
//	source = "."
//	version = "4.0.0.dev1"
//
//	[users]
//	restricted = "assemblyline"
//	admin = "root"
//
//	[labels]
//	"org.opencontainers.image.vendor" = "CCCS"
package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml"
	"github.com/sylabs/svcimage/pkg/build/types"
)

// ParseRecipe decodes a recipe and fills in defaults. A missing
// service.version takes the default version, an empty one is kept.
func ParseRecipe(r io.Reader) (types.Recipe, error) {
	tree, err := toml.LoadReader(r)
	if err != nil {
		return types.Recipe{}, fmt.Errorf("while decoding recipe: %v", err)
	}

	var recipe types.Recipe
	if err := tree.Unmarshal(&recipe); err != nil {
		return types.Recipe{}, fmt.Errorf("while decoding recipe: %v", err)
	}

	if !tree.Has("service.version") {
		recipe.Service.Version = types.DefaultVersion
	}
	recipe.SetDefaults()

	return recipe, nil
}

// ParseRecipeFile reads the recipe at path. A relative service source is
// resolved against the recipe directory.
func ParseRecipeFile(path string) (types.Recipe, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Recipe{}, fmt.Errorf("unable to open recipe %s: %v", path, err)
	}
	defer f.Close()

	recipe, err := ParseRecipe(f)
	if err != nil {
		return types.Recipe{}, fmt.Errorf("%s: %v", path, err)
	}

	if recipe.Service.Source != "" && !filepath.IsAbs(recipe.Service.Source) {
		recipe.Service.Source = filepath.Join(filepath.Dir(path), recipe.Service.Source)
	}

	return recipe, nil
}

// WriteRecipe encodes a recipe as TOML.
func WriteRecipe(w io.Writer, recipe types.Recipe) error {
	data, err := toml.Marshal(recipe)
	if err != nil {
		return fmt.Errorf("while encoding recipe: %v", err)
	}
	_, err = w.Write(data)
	return err
}
