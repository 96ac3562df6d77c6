// Copyright (c) 2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package build

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sylabs/svcimage/internal/pkg/build/files"
	"github.com/sylabs/svcimage/internal/pkg/build/identity"
	"github.com/sylabs/svcimage/internal/pkg/test"
	"github.com/sylabs/svcimage/pkg/build/types"
	"github.com/sylabs/svcimage/pkg/build/types/parser"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/fs"
)

const servicePath = "pdf_id.pdf_id.PDFId"

func newRecipe(base, tree string) types.Recipe {
	r := types.NewRecipe()
	r.Base.Ref = "sandbox:" + base
	r.Service.Source = tree
	r.Service.Path = servicePath
	return r
}

// runBuild builds r into a fresh output directory and returns it along
// with the image destination inside it.
func runBuild(t *testing.T, r types.Recipe, format string, opts types.Options) (*fs.Dir, string, error) {
	t.Helper()

	out := fs.NewDir(t, "build-out")
	t.Cleanup(out.Remove)
	tmp := fs.NewDir(t, "build-tmp")
	t.Cleanup(tmp.Remove)

	dest := out.Join("image")
	opts.TmpDir = tmp.Path()

	b, err := New(r, Config{Dest: dest, Format: format, Opts: opts})
	if err != nil {
		return out, dest, err
	}
	return out, dest, b.Full(context.Background())
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := ioutil.ReadFile(path)
	assert.NilError(t, err)
	return string(data)
}

func imageConfig(t *testing.T, sandbox string) types.ImageConfig {
	t.Helper()
	config, err := types.ParseImageConfig([]byte(readFile(t, filepath.Join(sandbox, ".svcimage.d", ConfigFile))))
	assert.NilError(t, err)
	return config
}

func assertOnlyImage(t *testing.T, out *fs.Dir, wantImage bool) {
	t.Helper()

	entries, err := ioutil.ReadDir(out.Path())
	assert.NilError(t, err)
	if !wantImage {
		assert.Check(t, is.Len(entries, 0), "build left files in output directory")
		return
	}
	assert.Assert(t, is.Len(entries, 1))
	assert.Check(t, is.Equal(entries[0].Name(), "image"))
}

func TestFullSandbox(t *testing.T) {
	base := test.BaseRootfs(t)

	tests := []struct {
		name     string
		manifest string
		version  string
		want     string
	}{
		{
			name:     "single occurrence",
			manifest: "name: test\nversion: $SERVICE_TAG\n",
			version:  "5.2.1",
			want:     "name: test\nversion: 5.2.1\n",
		},
		{
			name:     "every occurrence",
			manifest: "a: $SERVICE_TAG\nb: $SERVICE_TAG\n",
			version:  "1.0.0",
			want:     "a: 1.0.0\nb: 1.0.0\n",
		},
		{
			name:     "default version",
			manifest: "version: $SERVICE_TAG\n",
			want:     "version: 4.0.0.dev1\n",
		},
		{
			name:     "empty version",
			manifest: "version: $SERVICE_TAG\n",
			version:  "-",
			want:     "version: \n",
		},
		{
			name:     "no placeholder",
			manifest: "name: test\nversion: 1.2.3\n",
			version:  "5.2.1",
			want:     "name: test\nversion: 1.2.3\n",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tree := test.WorkingTree(t, tt.manifest)
			r := newRecipe(base.Path(), tree.Path())
			switch tt.version {
			case "":
			case "-":
				r.Service.Version = ""
			default:
				r.Service.Version = tt.version
			}

			out, dest, err := runBuild(t, r, FormatSandbox, types.Options{})
			assert.NilError(t, err)
			assertOnlyImage(t, out, true)

			got := readFile(t, filepath.Join(dest, "opt/al_service/service_manifest.yml"))
			assert.Equal(t, got, tt.want)
			assert.Check(t, !strings.Contains(got, types.DefaultPlaceholder))

			fi, err := os.Stat(filepath.Join(dest, "opt/al_service/service_manifest.yml"))
			assert.NilError(t, err)
			assert.Check(t, is.Equal(fi.Mode().Perm(), os.FileMode(0644)))

			// the rest of the working tree is copied untouched
			assert.Check(t, is.Equal(readFile(t, filepath.Join(dest, "opt/al_service/pdf_id/pdf_id.py")), "class PDFId:\n    pass\n"))
		})
	}
}

func TestFullSandboxMetadata(t *testing.T) {
	base := test.BaseRootfs(t)
	tree := test.WorkingTree(t, "name: PDFId\nversion: $SERVICE_TAG\n")

	r := newRecipe(base.Path(), tree.Path())
	r.Service.Version = "4.1.0.stable3"
	r.Labels["maintainer"] = "cccs"

	_, dest, err := runBuild(t, r, FormatSandbox, types.Options{})
	assert.NilError(t, err)

	config := imageConfig(t, dest)
	assert.Check(t, is.Equal(config.User(), types.DefaultUser))
	assert.Check(t, is.Equal(config.WorkingDir(), types.DefaultWorkDir))

	v, ok := config.Getenv(types.DefaultServicePathEnv)
	assert.Check(t, ok)
	assert.Check(t, is.Equal(v, servicePath))

	labels := config.Labels()
	assert.Check(t, is.Equal(labels["maintainer"], "cccs"))
	assert.Check(t, is.Equal(labels[LabelServiceName], "PDFId"))
	assert.Check(t, is.Equal(labels[LabelServiceVersion], "4.1.0.stable3"))
	assert.Check(t, is.Equal(labels[LabelBase], "sandbox:"+base.Path()))
	assert.Check(t, labels[LabelBuildID] != "")

	env := readFile(t, filepath.Join(dest, ".svcimage.d", EnvScript))
	assert.Check(t, is.Contains(env, `export SERVICE_PATH="pdf_id.pdf_id.PDFId"`))

	assert.Check(t, is.Contains(readFile(t, filepath.Join(dest, ".svcimage.d", LabelsFile)), `"maintainer": "cccs"`))

	recipe, err := parser.ParseRecipeFile(filepath.Join(dest, ".svcimage.d", RecipeFile))
	assert.NilError(t, err)
	assert.Check(t, is.Equal(recipe.Service.Version, "4.1.0.stable3"))
	assert.Check(t, is.Equal(recipe.Service.Source, ""))
	assert.Check(t, is.Equal(recipe.Base.Ref, "sandbox:"+base.Path()))
}

func TestFullSandboxMetadataSymlink(t *testing.T) {
	outside := fs.NewDir(t, "outside")
	defer outside.Remove()

	// a base whose metadata directory points out of the rootfs
	base := test.BaseRootfs(t, fs.WithSymlink(".svcimage.d", outside.Path()))
	tree := test.WorkingTree(t, "name: PDFId\nversion: $SERVICE_TAG\n")

	r := newRecipe(base.Path(), tree.Path())
	r.Service.Version = "4.1.0"

	_, dest, err := runBuild(t, r, FormatSandbox, types.Options{})
	assert.NilError(t, err)

	entries, err := ioutil.ReadDir(outside.Path())
	assert.NilError(t, err)
	assert.Check(t, is.Len(entries, 0), "build wrote outside of the rootfs")

	// the link resolves inside the image
	metadata := filepath.Join(dest, outside.Path())
	config, err := types.ParseImageConfig([]byte(readFile(t, filepath.Join(metadata, ConfigFile))))
	assert.NilError(t, err)
	assert.Check(t, is.Equal(config.Labels()[LabelServiceVersion], "4.1.0"))

	for _, name := range []string{EnvScript, LabelsFile, RecipeFile, "actions/exec", "env/01-base.sh"} {
		_, err := os.Stat(filepath.Join(metadata, name))
		assert.Check(t, err, name)
	}
}

func TestFullSandboxRebuild(t *testing.T) {
	base := test.BaseRootfs(t)
	tree := test.WorkingTree(t, "version: $SERVICE_TAG\n")

	r := newRecipe(base.Path(), tree.Path())
	r.Service.Path = "old.Service"
	r.Labels["maintainer"] = "cccs"
	_, first, err := runBuild(t, r, FormatSandbox, types.Options{})
	assert.NilError(t, err)

	r = newRecipe(first, tree.Path())
	r.Labels["maintainer"] = "someone else"
	_, second, err := runBuild(t, r, FormatSandbox, types.Options{})
	assert.NilError(t, err)

	config := imageConfig(t, second)
	assert.Check(t, is.DeepEqual(config.Env(), []string{"SERVICE_PATH=" + servicePath}))
	// existing labels are kept without force
	assert.Check(t, is.Equal(config.Labels()["maintainer"], "cccs"))

	_, third, err := runBuild(t, r, FormatSandbox, types.Options{Force: true})
	assert.NilError(t, err)
	assert.Check(t, is.Equal(imageConfig(t, third).Labels()["maintainer"], "someone else"))
}

func TestFullOCI(t *testing.T) {
	base := test.BaseRootfs(t)
	tree := test.WorkingTree(t, "version: $SERVICE_TAG\n")

	r := newRecipe(base.Path(), tree.Path())
	r.Service.Version = "5.2.1"

	out, dest, err := runBuild(t, r, FormatOCI, types.Options{})
	assert.NilError(t, err)
	assertOnlyImage(t, out, true)

	for _, p := range []string{"oci-layout", "index.json", "blobs/sha256"} {
		_, err := os.Stat(filepath.Join(dest, p))
		assert.Check(t, err, p)
	}

	// the layout is usable as a base image
	r = newRecipe(base.Path(), tree.Path())
	r.Base.Ref = "oci:" + dest + ":latest"
	r.Service.Version = "6.0.0"
	_, sandbox, err := runBuild(t, r, FormatSandbox, types.Options{})
	assert.NilError(t, err)

	assert.Check(t, is.Equal(readFile(t, filepath.Join(sandbox, "opt/al_service/service_manifest.yml")), "version: 6.0.0\n"))
	config := imageConfig(t, sandbox)
	assert.Check(t, is.Equal(config.User(), types.DefaultUser))
	assert.Check(t, is.Equal(config.Labels()[LabelServiceVersion], "6.0.0"))
}

func TestFullErrors(t *testing.T) {
	base := test.BaseRootfs(t)

	tests := []struct {
		name    string
		tree    func(t *testing.T) string
		recipe  func(r *types.Recipe)
		opts    types.Options
		wantErr interface{}
	}{
		{
			name:    "missing manifest",
			recipe:  func(r *types.Recipe) { r.Service.Manifest = "other_manifest.yml" },
			wantErr: new(*types.MissingManifestError),
		},
		{
			name:    "missing base",
			recipe:  func(r *types.Recipe) { r.Base.Ref = "sandbox:" + filepath.Join(base.Path(), "nonexistent") },
			wantErr: new(*types.MissingDependencyError),
		},
		{
			name:    "missing oci base",
			recipe:  func(r *types.Recipe) { r.Base.Ref = "oci:" + filepath.Join(base.Path(), "nonexistent") + ":latest" },
			wantErr: new(*types.MissingDependencyError),
		},
		{
			name:    "unknown restricted user",
			recipe:  func(r *types.Recipe) { r.Users.Restricted = "nobody" },
			wantErr: new(*types.PermissionError),
		},
		{
			name:    "unknown admin user",
			recipe:  func(r *types.Recipe) { r.Users.Admin = "admin" },
			wantErr: new(*types.PermissionError),
		},
		{
			name:    "admin without write access",
			recipe:  func(r *types.Recipe) { r.Users.Admin = "assemblyline" },
			wantErr: new(*types.PermissionError),
		},
		{
			name: "placeholder required",
			tree: func(t *testing.T) string {
				return test.WorkingTree(t, "version: 1.0.0\n").Path()
			},
			opts:    types.Options{RequirePlaceholder: true},
			wantErr: new(*types.PlaceholderError),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var tree string
			if tt.tree != nil {
				tree = tt.tree(t)
			} else {
				tree = test.WorkingTree(t, "version: $SERVICE_TAG\n").Path()
			}
			r := newRecipe(base.Path(), tree)
			if tt.recipe != nil {
				tt.recipe(&r)
			}

			out, _, err := runBuild(t, r, FormatSandbox, tt.opts)
			assert.Assert(t, err != nil)
			assert.Check(t, errors.As(err, tt.wantErr), "unexpected error: %v", err)
			assertOnlyImage(t, out, false)
		})
	}
}

func TestNew(t *testing.T) {
	base := test.BaseRootfs(t)
	tree := test.WorkingTree(t, "version: $SERVICE_TAG\n")
	out := fs.NewDir(t, "build-out", fs.WithDir("image"))
	t.Cleanup(out.Remove)

	tests := []struct {
		name    string
		recipe  func(r *types.Recipe)
		conf    Config
		wantErr string
	}{
		{
			name:    "no base",
			recipe:  func(r *types.Recipe) { r.Base.Ref = "" },
			conf:    Config{Dest: out.Join("new")},
			wantErr: "no base image reference",
		},
		{
			name:    "working tree is a file",
			recipe:  func(r *types.Recipe) { r.Service.Source = filepath.Join(tree.Path(), "service_manifest.yml") },
			conf:    Config{Dest: out.Join("new")},
			wantErr: "is not a directory",
		},
		{
			name:    "unknown format",
			conf:    Config{Dest: out.Join("new"), Format: "qcow2"},
			wantErr: "invalid assembler qcow2",
		},
		{
			name:    "destination exists",
			conf:    Config{Dest: out.Join("image")},
			wantErr: "already exists",
		},
		{
			name:    "bad transport",
			recipe:  func(r *types.Recipe) { r.Base.Ref = "docker://" },
			conf:    Config{Dest: out.Join("new")},
			wantErr: "unable to get conveyorpacker",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			r := newRecipe(base.Path(), tree.Path())
			if tt.recipe != nil {
				tt.recipe(&r)
			}
			tt.conf.Opts.TmpDir = out.Path()

			_, err := New(r, tt.conf)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestInjectVersionRestoresIdentity(t *testing.T) {
	rootfs := test.BaseRootfs(t)
	tree := test.WorkingTree(t, "version: $SERVICE_TAG\n")
	tmp := fs.NewDir(t, "bundle-tmp")
	t.Cleanup(tmp.Remove)

	b, err := types.NewBundle(rootfs.Path(), tmp.Path())
	assert.NilError(t, err)
	b.Recipe = newRecipe(rootfs.Path(), tree.Path())
	b.Recipe.Service.Version = "5.2.1"
	assert.NilError(t, files.CopyTree(tree.Path(), b.Recipe.Service.WorkDir, b, 0, 0))

	s := &stage{b: b}
	manifestPath := rootfs.Join("opt/al_service/service_manifest.yml")

	t.Run("denied", func(t *testing.T) {
		session, err := identity.NewSession(rootfs.Path(), "assemblyline", "assemblyline")
		assert.NilError(t, err)

		err = s.injectVersion(session)
		var perr *types.PermissionError
		assert.Assert(t, errors.As(err, &perr), "unexpected error: %v", err)
		assert.Check(t, is.Equal(session.Current(), session.Restricted()))
		assert.Check(t, is.Equal(readFile(t, manifestPath), "version: $SERVICE_TAG\n"))
	})

	t.Run("granted", func(t *testing.T) {
		session, err := identity.NewSession(rootfs.Path(), "assemblyline", "root")
		assert.NilError(t, err)

		assert.NilError(t, s.injectVersion(session))
		assert.Check(t, is.Equal(session.Current(), session.Restricted()))
		assert.Check(t, is.Equal(readFile(t, manifestPath), "version: 5.2.1\n"))

		// a second run has nothing left to replace
		assert.NilError(t, s.injectVersion(session))
		assert.Check(t, is.Equal(readFile(t, manifestPath), "version: 5.2.1\n"))
	})
}
