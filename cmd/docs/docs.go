// Copyright (c) 2019-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
	"github.com/sylabs/svcimage/cmd/internal/cli"
	"github.com/sylabs/svcimage/pkg/sylog"
	"golang.org/x/sys/unix"
)

func assertAccess(dir string) {
	if err := unix.Access(dir, unix.W_OK); err != nil {
		sylog.Fatalf("Given directory (%s) does not exist or is not writable by calling user", dir)
	}
}

func markdownDocs(rootCmd *cobra.Command, outDir string) {
	assertAccess(outDir)
	sylog.Infof("Creating svcimage markdown docs at %s", outDir)
	if err := doc.GenMarkdownTree(rootCmd, outDir); err != nil {
		sylog.Fatalf("Failed to create markdown docs for svcimage: %v", err)
	}
}

func manDocs(rootCmd *cobra.Command, outDir string) {
	assertAccess(outDir)
	sylog.Infof("Creating svcimage man pages at %s", outDir)
	header := &doc.GenManHeader{
		Title:   "svcimage",
		Section: "1",
	}
	if err := doc.GenManTree(rootCmd, header, outDir); err != nil {
		sylog.Fatalf("Failed to create man pages for svcimage: %v", err)
	}
}

func main() {
	var dir string
	rootCmd := &cobra.Command{
		ValidArgs: []string{"markdown", "man"},
		Args:      cobra.ExactArgs(1),
		Use:       "makeDocs {markdown | man}",
		Short:     "Generates svcimage documentation",
		Run: func(cmd *cobra.Command, args []string) {
			switch args[0] {
			case "markdown":
				markdownDocs(cli.RootCmd(), dir)
			case "man":
				manDocs(cli.RootCmd(), dir)
			default:
				sylog.Fatalf("Invalid output type %s", args[0])
			}
		},
	}
	rootCmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory in which to put the generated documentation")
	if err := rootCmd.Execute(); err != nil {
		sylog.Fatalf("%v", err)
	}
}
