// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"github.com/sylabs/svcimage/cmd/internal/cli"
)

func main() {
	// In cmd/internal/cli/svcimage.go
	cli.ExecuteSvcimage()
}
