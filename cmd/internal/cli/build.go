// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	ocitypes "github.com/containers/image/v5/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/sylabs/svcimage/docs"
	"github.com/sylabs/svcimage/internal/pkg/build"
	"github.com/sylabs/svcimage/internal/pkg/util/interactive"
	"github.com/sylabs/svcimage/pkg/build/types"
	"github.com/sylabs/svcimage/pkg/build/types/parser"
	"github.com/sylabs/svcimage/pkg/cmdline"
	"github.com/sylabs/svcimage/pkg/sylog"
)

// buildOptions holds the build command flag values.
type buildOptions struct {
	recipe      string
	base        string
	version     string
	servicePath string
	workDir     string
	manifest    string
	placeholder string
	user        string
	adminUser   string
	copyOwner   string
	labels      map[string]string

	format             string
	tag                string
	tmpDir             string
	force              bool
	noCleanUp          bool
	requirePlaceholder bool

	noHTTPS        bool
	dockerUsername string
	dockerPassword string
	dockerLogin    bool
}

var buildArgs buildOptions

// buildFlags returns the build command flags storing their values in o.
func buildFlags(o *buildOptions) []*cmdline.Flag {
	return []*cmdline.Flag{
		// --recipe
		{
			ID:           "buildRecipeFlag",
			Value:        &o.recipe,
			DefaultValue: "",
			Name:         "recipe",
			ShortHand:    "r",
			Usage:        "TOML recipe describing the image, flags override its values",
			Tag:          "<path>",
			EnvKeys:      []string{"RECIPE"},
		},
		// --base
		{
			ID:           "buildBaseFlag",
			Value:        &o.base,
			DefaultValue: "",
			Name:         "base",
			ShortHand:    "b",
			Usage:        "base image reference (docker://, docker-archive:, docker-daemon:, oci:, oci-archive:, sandbox:, scratch)",
			Tag:          "<ref>",
			EnvKeys:      []string{"BASE"},
		},
		// --version
		{
			ID:           "buildVersionFlag",
			Value:        &o.version,
			DefaultValue: types.DefaultVersion,
			Name:         "version",
			Usage:        "service version written in place of the placeholder, empty removes the placeholder",
			EnvKeys:      []string{"SERVICE_VERSION"},
		},
		// --service-path
		{
			ID:           "buildServicePathFlag",
			Value:        &o.servicePath,
			DefaultValue: "",
			Name:         "service-path",
			Usage:        "service entry point recorded in the image environment",
			Tag:          "<module.Class>",
			EnvKeys:      []string{"SERVICE_PATH"},
		},
		// --workdir
		{
			ID:           "buildWorkDirFlag",
			Value:        &o.workDir,
			DefaultValue: types.DefaultWorkDir,
			Name:         "workdir",
			Usage:        "directory of the image receiving the working tree",
			EnvKeys:      []string{"WORKDIR"},
		},
		// --manifest
		{
			ID:           "buildManifestFlag",
			Value:        &o.manifest,
			DefaultValue: types.DefaultManifest,
			Name:         "manifest",
			Usage:        "service manifest path relative to the working directory",
			EnvKeys:      []string{"MANIFEST"},
		},
		// --placeholder
		{
			ID:           "buildPlaceholderFlag",
			Value:        &o.placeholder,
			DefaultValue: types.DefaultPlaceholder,
			Name:         "placeholder",
			Usage:        "literal token replaced by the version in the manifest",
			EnvKeys:      []string{"PLACEHOLDER"},
		},
		// --user
		{
			ID:           "buildUserFlag",
			Value:        &o.user,
			DefaultValue: types.DefaultUser,
			Name:         "user",
			ShortHand:    "u",
			Usage:        "restricted identity copying the working tree and running the image",
			Tag:          "<user[:group]>",
			EnvKeys:      []string{"USER"},
		},
		// --admin-user
		{
			ID:           "buildAdminUserFlag",
			Value:        &o.adminUser,
			DefaultValue: types.DefaultAdminUser,
			Name:         "admin-user",
			Usage:        "administrative identity patching the manifest",
			Tag:          "<user[:group]>",
			EnvKeys:      []string{"ADMIN_USER"},
		},
		// --copy-owner
		{
			ID:           "buildCopyOwnerFlag",
			Value:        &o.copyOwner,
			DefaultValue: "",
			Name:         "copy-owner",
			Usage:        "owner of the copied working tree (default root)",
			Tag:          "<user[:group]>",
			EnvKeys:      []string{"COPY_OWNER"},
		},
		// --label
		{
			ID:           "buildLabelFlag",
			Value:        &o.labels,
			DefaultValue: map[string]string{},
			Name:         "label",
			ShortHand:    "l",
			Usage:        "add a label to the image",
			Tag:          "<key=value>",
			EnvKeys:      []string{"LABELS"},
		},
		// --format
		{
			ID:           "buildFormatFlag",
			Value:        &o.format,
			DefaultValue: build.FormatSandbox,
			Name:         "format",
			ShortHand:    "f",
			Usage:        "image format: sandbox, oci or sif",
			EnvKeys:      []string{"FORMAT"},
		},
		// --tag
		{
			ID:           "buildTagFlag",
			Value:        &o.tag,
			DefaultValue: "",
			Name:         "tag",
			Usage:        "reference name of the image in an OCI layout (default latest)",
			EnvKeys:      []string{"TAG"},
		},
		// --tmpdir
		{
			ID:           "buildTmpdirFlag",
			Value:        &o.tmpDir,
			DefaultValue: os.TempDir(),
			Name:         "tmpdir",
			Usage:        "specify a temporary directory to use for build",
			EnvKeys:      []string{"TMPDIR"},
		},
		// -F|--force
		{
			ID:           "buildForceFlag",
			Value:        &o.force,
			DefaultValue: false,
			Name:         "force",
			ShortHand:    "F",
			Usage:        "overwrite an image if it currently exists, and replace existing labels",
			EnvKeys:      []string{"FORCE"},
		},
		// --no-cleanup
		{
			ID:           "buildNoCleanupFlag",
			Value:        &o.noCleanUp,
			DefaultValue: false,
			Name:         "no-cleanup",
			Usage:        "do NOT clean up bundle after failed build, can be helpful for debugging",
			EnvKeys:      []string{"NO_CLEANUP"},
		},
		// --require-placeholder
		{
			ID:           "buildRequirePlaceholderFlag",
			Value:        &o.requirePlaceholder,
			DefaultValue: false,
			Name:         "require-placeholder",
			Usage:        "fail when the manifest holds no placeholder",
			EnvKeys:      []string{"REQUIRE_PLACEHOLDER"},
		},
		// --no-https
		{
			ID:           "buildNoHTTPSFlag",
			Value:        &o.noHTTPS,
			DefaultValue: false,
			Name:         "no-https",
			Usage:        "use http instead of https for docker:// base images",
			EnvKeys:      []string{"NOHTTPS"},
		},
		// --docker-username
		{
			ID:           "buildDockerUsernameFlag",
			Value:        &o.dockerUsername,
			DefaultValue: "",
			Name:         "docker-username",
			Usage:        "specify a username for docker authentication",
			Hidden:       true,
			EnvKeys:      []string{"DOCKER_USERNAME"},
		},
		// --docker-password
		{
			ID:           "buildDockerPasswordFlag",
			Value:        &o.dockerPassword,
			DefaultValue: "",
			Name:         "docker-password",
			Usage:        "specify a password for docker authentication",
			Hidden:       true,
			EnvKeys:      []string{"DOCKER_PASSWORD"},
		},
		// --docker-login
		{
			ID:           "buildDockerLoginFlag",
			Value:        &o.dockerLogin,
			DefaultValue: false,
			Name:         "docker-login",
			Usage:        "login to a docker repository interactively",
		},
	}
}

func init() {
	cmdManager.RegisterCmd(buildCmd)

	for _, f := range buildFlags(&buildArgs) {
		cmdManager.RegisterFlagForCmd(f, buildCmd)
	}
}

// buildCmd represents the build command.
var buildCmd = &cobra.Command{
	DisableFlagsInUseLine: true,
	Args:                  cobra.RangeArgs(1, 2),

	Use:     docs.BuildUse,
	Short:   docs.BuildShort,
	Long:    docs.BuildLong,
	Example: docs.BuildExample,
	Run:     runBuild,
}

// buildRecipe returns the recipe to build. Values come from the flags set on
// the command line or the environment, then from the recipe file, then
// from the defaults.
func (o *buildOptions) buildRecipe(flags *pflag.FlagSet, args []string) (types.Recipe, error) {
	r := types.NewRecipe()
	if o.recipe != "" {
		var err error
		if r, err = parser.ParseRecipeFile(o.recipe); err != nil {
			return types.Recipe{}, err
		}
	}

	for _, f := range []struct {
		name  string
		dst   *string
		value string
	}{
		{"base", &r.Base.Ref, o.base},
		{"version", &r.Service.Version, o.version},
		{"service-path", &r.Service.Path, o.servicePath},
		{"workdir", &r.Service.WorkDir, o.workDir},
		{"manifest", &r.Service.Manifest, o.manifest},
		{"placeholder", &r.Service.Placeholder, o.placeholder},
		{"user", &r.Users.Restricted, o.user},
		{"admin-user", &r.Users.Admin, o.adminUser},
		{"copy-owner", &r.Users.CopyOwner, o.copyOwner},
	} {
		if flags.Changed(f.name) {
			*f.dst = f.value
		}
	}
	for k, v := range o.labels {
		r.Labels[k] = v
	}

	if len(args) > 0 {
		r.Service.Source = args[0]
	}
	if r.Service.Source == "" {
		return types.Recipe{}, fmt.Errorf("no service working tree given")
	}
	if r.Base.Ref == "" {
		return types.Recipe{}, fmt.Errorf("no base image given, use --base or a recipe")
	}
	if r.Service.Path == "" {
		sylog.Warningf("No service path given, %s will be empty", r.Service.EnvName)
	}

	return r, nil
}

// checkBuildTarget makes sure output target doesn't exist, or is ok to overwrite.
func (o *buildOptions) checkBuildTarget(path string) error {
	if _, err := os.Lstat(path); err != nil || o.force {
		return nil
	}

	input, err := interactive.AskYNQuestion("n", "Build target %s already exists. Do you want to overwrite? [N/y] ", path)
	if err != nil {
		return fmt.Errorf("while reading the input: %s", err)
	}
	if input != "y" {
		return fmt.Errorf("stopping build")
	}
	o.force = true
	return nil
}

func (o *buildOptions) dockerCredentials(flags *pflag.FlagSet) (*ocitypes.DockerAuthConfig, error) {
	var err error

	if o.dockerLogin {
		if !flags.Changed("docker-username") {
			if o.dockerUsername, err = interactive.AskQuestion("Enter Docker Username: "); err != nil {
				return nil, err
			}
		}
		if o.dockerPassword, err = interactive.AskQuestionNoEcho("Enter Docker Password: "); err != nil {
			return nil, err
		}
	} else if !flags.Changed("docker-username") || !flags.Changed("docker-password") {
		return nil, nil
	}

	return &ocitypes.DockerAuthConfig{
		Username: o.dockerUsername,
		Password: o.dockerPassword,
	}, nil
}

func runBuild(cmd *cobra.Command, args []string) {
	dest := args[0]

	recipe, err := buildArgs.buildRecipe(cmd.Flags(), args[1:])
	if err != nil {
		sylog.Fatalf("Unable to build from recipe: %v", err)
	}

	if err := buildArgs.checkBuildTarget(dest); err != nil {
		sylog.Fatalf("While checking build target: %s", err)
	}

	authConf, err := buildArgs.dockerCredentials(cmd.Flags())
	if err != nil {
		sylog.Fatalf("While reading docker credentials: %v", err)
	}

	b, err := build.New(recipe, build.Config{
		Dest:   dest,
		Format: buildArgs.format,
		Tag:    buildArgs.tag,
		Opts: types.Options{
			TmpDir:             buildArgs.tmpDir,
			Force:              buildArgs.force,
			NoHTTPS:            buildArgs.noHTTPS,
			NoCleanUp:          buildArgs.noCleanUp,
			RequirePlaceholder: buildArgs.requirePlaceholder,
			DockerAuthConfig:   authConf,
		},
	})
	if err != nil {
		sylog.Fatalf("Unable to create build: %v", err)
	}

	if err := b.Full(context.Background()); err != nil {
		sylog.Fatalf("While performing build: %v%s", err, buildHint(err))
	}

	sylog.Infof("Build complete: %s", dest)
}

// buildHint returns advice on the failure of a build.
func buildHint(err error) string {
	var (
		dep         *types.MissingDependencyError
		missing     *types.MissingManifestError
		perm        *types.PermissionError
		placeholder *types.PlaceholderError
	)

	switch {
	case errors.As(err, &dep):
		return "\n\tcheck the base image reference, and the docker credentials for private registries"
	case errors.As(err, &missing):
		return "\n\tthe working tree must hold the service manifest, see --manifest"
	case errors.As(err, &perm):
		return "\n\tthe identities must exist in the base image /etc/passwd, see --user and --admin-user"
	case errors.As(err, &placeholder):
		return "\n\tremove --require-placeholder to build from a manifest without placeholder"
	}
	return ""
}
