// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package build

import (
	"fmt"

	"github.com/sylabs/svcimage/internal/pkg/build/assemblers"
	"github.com/sylabs/svcimage/internal/pkg/util/fs/squashfs"
	"github.com/sylabs/svcimage/pkg/build/types"
)

// Output formats.
const (
	FormatSandbox = "sandbox"
	FormatOCI     = "oci"
	FormatSIF     = "sif"
)

// validAssemblers contains of list of know Assemblers
var validAssemblers = map[string]bool{
	FormatSandbox: true,
	FormatOCI:     true,
	FormatSIF:     true,
}

// Assembler is responsible for assembling an image from a bundle, writing
// the destination only once the image is complete.
type Assembler interface {
	Assemble(*types.Bundle, string) error
}

// IsValidAssembler returns whether or not the given Assembler is valid
func IsValidAssembler(c string) (valid bool, err error) {
	if _, ok := validAssemblers[c]; ok {
		return true, nil
	}

	return false, fmt.Errorf("invalid assembler %s", c)
}

func newAssembler(format, tag string) (Assembler, error) {
	switch format {
	case FormatSandbox:
		return &assemblers.SandboxAssembler{}, nil
	case FormatOCI:
		return &assemblers.OCIAssembler{Tag: tag}, nil
	case FormatSIF:
		mksquashfsPath, err := squashfs.GetPath()
		if err != nil {
			return nil, fmt.Errorf("while searching for mksquashfs: %v", err)
		}
		return &assemblers.SIFAssembler{MksquashfsPath: mksquashfsPath}, nil
	default:
		return nil, fmt.Errorf("unrecognized output format %s", format)
	}
}
