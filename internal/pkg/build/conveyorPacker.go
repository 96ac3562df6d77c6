// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package build

import (
	"context"
	"fmt"

	"github.com/sylabs/svcimage/internal/pkg/build/sources"
	"github.com/sylabs/svcimage/pkg/build/types"
)

// Conveyor is responsible for retrieving the base image (registry, archive, local directory...)
type Conveyor interface {
	Get(context.Context, *types.Bundle) error
}

// Packer is the type which is responsible for installing the base image
// root filesystem and metadata directory within the Bundle
type Packer interface {
	Pack(context.Context) (*types.Bundle, error)
}

// ConveyorPacker describes an interface that a ConveyorPacker type must implement
type ConveyorPacker interface {
	Conveyor
	Packer
}

// conveyorPacker returns the conveyor packer able to retrieve ref.
func conveyorPacker(ref string) (ConveyorPacker, error) {
	transport, rest, err := sources.ParseRef(ref)
	if err != nil {
		return nil, &types.MissingDependencyError{Ref: ref, Err: err}
	}

	switch transport {
	case sources.Scratch:
		return &sources.ScratchConveyorPacker{}, nil
	case sources.Sandbox, sources.LocalImage:
		return sources.NewLocalConveyorPacker(rest), nil
	case sources.Docker, sources.DockerArchive, sources.DockerDaemon, sources.OCI, sources.OCIArchive:
		return sources.NewOCIConveyorPacker(transport, rest), nil
	default:
		return nil, fmt.Errorf("no conveyor packer for %s", transport)
	}
}
