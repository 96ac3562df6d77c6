// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package cli holds the svcimage commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/sylabs/svcimage/docs"
	"github.com/sylabs/svcimage/internal/pkg/buildcfg"
	"github.com/sylabs/svcimage/pkg/cmdline"
	"github.com/sylabs/svcimage/pkg/sylog"
)

var cmdManager = cmdline.NewCommandManager(svcimageCmd)

const envPrefix = "SVCIMAGE_"

// svcimage command flags
var (
	debug   bool
	nocolor bool
	silent  bool
	verbose bool
	quiet   bool
)

// -d|--debug
var debugFlag = cmdline.Flag{
	ID:           "debugFlag",
	Value:        &debug,
	DefaultValue: false,
	Name:         "debug",
	ShortHand:    "d",
	Usage:        "print debugging information (highest verbosity)",
}

// --nocolor
var noColorFlag = cmdline.Flag{
	ID:           "noColorFlag",
	Value:        &nocolor,
	DefaultValue: false,
	Name:         "nocolor",
	Usage:        "print without color output",
	EnvKeys:      []string{"NOCOLOR"},
}

// -s|--silent
var silentFlag = cmdline.Flag{
	ID:           "silentFlag",
	Value:        &silent,
	DefaultValue: false,
	Name:         "silent",
	ShortHand:    "s",
	Usage:        "only print errors",
}

// -q|--quiet
var quietFlag = cmdline.Flag{
	ID:           "quietFlag",
	Value:        &quiet,
	DefaultValue: false,
	Name:         "quiet",
	ShortHand:    "q",
	Usage:        "suppress normal output",
}

// -v|--verbose
var verboseFlag = cmdline.Flag{
	ID:           "verboseFlag",
	Value:        &verbose,
	DefaultValue: false,
	Name:         "verbose",
	ShortHand:    "v",
	Usage:        "print additional information",
}

func init() {
	svcimageCmd.SetVersionTemplate(fmt.Sprintf("%s version {{printf \"%%s\" .Version}}\n", buildcfg.PACKAGE_NAME))

	for _, f := range []*cmdline.Flag{&debugFlag, &noColorFlag, &silentFlag, &quietFlag, &verboseFlag} {
		cmdManager.RegisterFlagForCmd(f, svcimageCmd)
	}

	cmdManager.RegisterCmd(versionCmd)
}

// setSylogMessageLevel applies the most verbose level asked for, the
// SVCIMAGE_MESSAGELEVEL variable is used when no flag is set.
func setSylogMessageLevel() {
	switch {
	case debug:
		sylog.SetLevel(int(sylog.DebugLevel))
	case verbose:
		sylog.SetLevel(int(sylog.VerboseLevel))
	case quiet:
		sylog.SetLevel(int(sylog.LogLevel))
	case silent:
		sylog.SetLevel(int(sylog.ErrorLevel))
	}
}

// svcimageCmd is the base command when called without any subcommands
var svcimageCmd = &cobra.Command{
	TraverseChildren:      true,
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	Use:           docs.SvcimageUse,
	Version:       buildcfg.PACKAGE_VERSION,
	Short:         docs.SvcimageShort,
	Long:          docs.SvcimageLong,
	Example:       docs.SvcimageExample,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func persistentPreRunE(cmd *cobra.Command, _ []string) error {
	if err := cmdManager.UpdateCmdFlagFromEnv(svcimageCmd, envPrefix); err != nil {
		return err
	}
	if cmd != svcimageCmd {
		if err := cmdManager.UpdateCmdFlagFromEnv(cmd, envPrefix); err != nil {
			return err
		}
	}
	setSylogMessageLevel()
	if nocolor {
		sylog.DisableColor()
	}
	return nil
}

// RootCmd returns the root svcimage cobra command.
func RootCmd() *cobra.Command {
	return svcimageCmd
}

// ExecuteSvcimage adds all child commands to the root command and sets
// flags appropriately. This is called by main.main(). It only needs to happen
// once to the root command (svcimage).
func ExecuteSvcimage() {
	// set persistent pre run function here to avoid initialization loop error
	svcimageCmd.PersistentPreRunE = persistentPreRunE

	for _, e := range cmdManager.GetError() {
		sylog.Errorf("%s", e)
	}
	// any error reported by command manager is considered as fatal
	if cliErrors := len(cmdManager.GetError()); cliErrors > 0 {
		sylog.Fatalf("CLI command manager reported %d error(s)", cliErrors)
	}

	if cmd, err := svcimageCmd.ExecuteC(); err != nil {
		svcimageCmd.Printf("Error for command %q: %s\n\n", cmd.Name(), err)
		svcimageCmd.Printf("Run '%s --help' for more detailed usage information.\n", cmd.CommandPath())
		os.Exit(1)
	}
}

// versionCmd displays installed svcimage version
var versionCmd = &cobra.Command{
	DisableFlagsInUseLine: true,
	Args:                  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), buildcfg.PACKAGE_VERSION)
	},
	Use:   "version",
	Short: docs.VersionShort,
}
