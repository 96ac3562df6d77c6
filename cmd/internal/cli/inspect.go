// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cli

import (
	"github.com/spf13/cobra"
	"github.com/sylabs/svcimage/docs"
	"github.com/sylabs/svcimage/internal/app/svcimage"
	"github.com/sylabs/svcimage/pkg/cmdline"
	"github.com/sylabs/svcimage/pkg/sylog"
)

var jsonFormat bool

// -j|--json
var inspectJSONFlag = cmdline.Flag{
	ID:           "inspectJSONFlag",
	Value:        &jsonFormat,
	DefaultValue: false,
	Name:         "json",
	ShortHand:    "j",
	Usage:        "print structured json instead of sections",
	EnvKeys:      []string{"INSPECT_JSON"},
}

func init() {
	cmdManager.RegisterCmd(inspectCmd)

	cmdManager.RegisterFlagForCmd(&inspectJSONFlag, inspectCmd)
}

// inspectCmd represents the inspect command.
var inspectCmd = &cobra.Command{
	DisableFlagsInUseLine: true,
	Args:                  cobra.ExactArgs(1),

	Run: func(cmd *cobra.Command, args []string) {
		img, err := svcimage.Inspect(args[0])
		if err != nil {
			sylog.Fatalf("Failed to inspect %s: %s", args[0], err)
		}

		if jsonFormat {
			if err := svcimage.PrintJSON(cmd.OutOrStdout(), img); err != nil {
				sylog.Fatalf("Could not format inspected data: %s", err)
			}
			return
		}
		svcimage.Print(cmd.OutOrStdout(), img)
	},

	Use:     docs.InspectUse,
	Short:   docs.InspectShort,
	Long:    docs.InspectLong,
	Example: docs.InspectExample,
}
