// Copyright (c) 2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package types

import (
	"encoding/json"
	"sort"
	"strings"

	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// ImageConfig is the runtime configuration baked into an assembled image.
// It is computed once and can't be modified afterwards, accessors hand out
// copies.
type ImageConfig struct {
	c imgspecv1.ImageConfig
}

// NewImageConfig derives the image runtime configuration from the base image
// configuration and the recipe. Base environment entries sharing the service
// variable name are replaced, base labels are kept unless overridden.
func NewImageConfig(base imgspecv1.ImageConfig, r Recipe, labels map[string]string) ImageConfig {
	c := base

	c.Env = nil
	prefix := r.Service.EnvName + "="
	for _, e := range base.Env {
		if !strings.HasPrefix(e, prefix) {
			c.Env = append(c.Env, e)
		}
	}
	c.Env = append(c.Env, prefix+r.Service.Path)

	c.User = r.Users.Restricted
	c.WorkingDir = r.Service.WorkDir

	c.Labels = make(map[string]string, len(base.Labels)+len(labels))
	for k, v := range base.Labels {
		c.Labels[k] = v
	}
	for k, v := range labels {
		c.Labels[k] = v
	}

	c.Entrypoint = copyStrings(base.Entrypoint)
	c.Cmd = copyStrings(base.Cmd)

	return ImageConfig{c: c}
}

// ParseImageConfig decodes an OCI image runtime configuration.
func ParseImageConfig(data []byte) (ImageConfig, error) {
	var c imgspecv1.ImageConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return ImageConfig{}, err
	}
	return ImageConfig{c: c}, nil
}

// User returns the default runtime identity.
func (i ImageConfig) User() string {
	return i.c.User
}

// WorkingDir returns the default working directory.
func (i ImageConfig) WorkingDir() string {
	return i.c.WorkingDir
}

// Env returns the environment as KEY=value entries.
func (i ImageConfig) Env() []string {
	return copyStrings(i.c.Env)
}

// Getenv returns the value of key in the image environment.
func (i ImageConfig) Getenv(key string) (string, bool) {
	for _, e := range i.c.Env {
		kv := strings.SplitN(e, "=", 2)
		if kv[0] == key && len(kv) == 2 {
			return kv[1], true
		}
	}
	return "", false
}

// Labels returns a copy of the image labels.
func (i ImageConfig) Labels() map[string]string {
	labels := make(map[string]string, len(i.c.Labels))
	for k, v := range i.c.Labels {
		labels[k] = v
	}
	return labels
}

// LabelKeys returns label keys in lexical order.
func (i ImageConfig) LabelKeys() []string {
	keys := make([]string, 0, len(i.c.Labels))
	for k := range i.c.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OCI returns a copy of the configuration as an OCI image runtime config.
func (i ImageConfig) OCI() imgspecv1.ImageConfig {
	c := i.c
	c.Env = i.Env()
	c.Labels = i.Labels()
	c.Entrypoint = copyStrings(i.c.Entrypoint)
	c.Cmd = copyStrings(i.c.Cmd)
	return c
}

// MarshalJSON encodes the configuration as an OCI image runtime config.
func (i ImageConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.c)
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
