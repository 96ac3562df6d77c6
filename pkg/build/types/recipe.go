// Copyright (c) 2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package types

import (
	"fmt"
	"strings"
)

// Recipe defaults, they match the layout of assemblyline service images.
const (
	DefaultWorkDir        = "/opt/al_service"
	DefaultManifest       = "service_manifest.yml"
	DefaultPlaceholder    = "$SERVICE_TAG"
	DefaultVersion        = "4.0.0.dev1"
	DefaultUser           = "assemblyline"
	DefaultAdminUser      = "root"
	DefaultServicePathEnv = "SERVICE_PATH"
)

// Recipe describes how a service image is assembled.
type Recipe struct {
	Base    Base              `toml:"base" json:"base"`
	Service Service           `toml:"service" json:"service"`
	Users   Users             `toml:"users" json:"users"`
	Labels  map[string]string `toml:"labels" json:"labels,omitempty"`
}

// Base names the image the build extends.
type Base struct {
	// Ref is a transport prefixed reference, e.g. docker://cccs/assemblyline-v4-service-base:stable
	Ref string `toml:"ref" json:"ref"`
}

// Service describes the working tree copied into the image and the
// manifest patched with the version.
type Service struct {
	// Path is recorded as-is under EnvName.
	Path string `toml:"path" json:"path"`
	// EnvName is the environment variable holding Path.
	EnvName string `toml:"env_name" json:"envName"`
	// WorkDir is where the working tree lands inside the image.
	WorkDir string `toml:"workdir" json:"workdir"`
	// Manifest is relative to WorkDir.
	Manifest    string `toml:"manifest" json:"manifest"`
	Placeholder string `toml:"placeholder" json:"placeholder"`
	Version     string `toml:"version" json:"version"`
	// Source is the host working tree, relative paths are resolved
	// against the recipe location.
	Source string `toml:"source" json:"source"`
}

// Users names the two identities supplied by the base image.
type Users struct {
	// Restricted runs the copy step and is the runtime identity.
	Restricted string `toml:"restricted" json:"restricted"`
	// Admin is only assumed to patch the manifest.
	Admin string `toml:"admin" json:"admin"`
	// CopyOwner owns the copied files, uid 0 when empty.
	CopyOwner string `toml:"copy_owner" json:"copyOwner,omitempty"`
}

// NewRecipe returns a recipe with every default set.
func NewRecipe() Recipe {
	r := Recipe{}
	r.Service.Version = DefaultVersion
	r.SetDefaults()
	return r
}

// SetDefaults fills unset fields with their defaults. Version is left
// alone when explicitly empty, an empty version deletes the placeholder.
func (r *Recipe) SetDefaults() {
	if r.Service.EnvName == "" {
		r.Service.EnvName = DefaultServicePathEnv
	}
	if r.Service.WorkDir == "" {
		r.Service.WorkDir = DefaultWorkDir
	}
	if r.Service.Manifest == "" {
		r.Service.Manifest = DefaultManifest
	}
	if r.Service.Placeholder == "" {
		r.Service.Placeholder = DefaultPlaceholder
	}
	if r.Users.Restricted == "" {
		r.Users.Restricted = DefaultUser
	}
	if r.Users.Admin == "" {
		r.Users.Admin = DefaultAdminUser
	}
	if r.Labels == nil {
		r.Labels = make(map[string]string)
	}
}

// Validate checks the recipe is usable for a build.
func (r *Recipe) Validate() error {
	if r.Base.Ref == "" {
		return fmt.Errorf("no base image reference")
	}
	if r.Service.Source == "" {
		return fmt.Errorf("no service working tree")
	}
	if !strings.HasPrefix(r.Service.WorkDir, "/") {
		return fmt.Errorf("working directory %q must be absolute", r.Service.WorkDir)
	}
	if r.Service.EnvName == "" || strings.ContainsAny(r.Service.EnvName, "= ") {
		return fmt.Errorf("invalid environment variable name %q", r.Service.EnvName)
	}
	if strings.HasPrefix(r.Service.Manifest, "/") {
		return fmt.Errorf("manifest %q must be relative to %s", r.Service.Manifest, r.Service.WorkDir)
	}
	return nil
}

// ManifestPath returns the manifest location inside the image.
func (r *Recipe) ManifestPath() string {
	return strings.TrimRight(r.Service.WorkDir, "/") + "/" + r.Service.Manifest
}
