// Copyright (c) 2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package buildcfg holds the values set when the binary is built, e.g.
//
//	go build -ldflags "-X github.com/sylabs/svcimage/internal/pkg/buildcfg.PACKAGE_VERSION=1.2.0"
package buildcfg

// nolint:golint
var (
	PACKAGE_NAME    = "svcimage"
	PACKAGE_VERSION = "0.0.0-dev"
	PACKAGE_URL     = "https://github.com/sylabs/svcimage"
)
