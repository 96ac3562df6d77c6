// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package sources

import (
	"context"
	"fmt"

	"github.com/sylabs/svcimage/pkg/build/types"
)

// ScratchConveyor only needs to hold the bundle to have the needed data to pack
type ScratchConveyor struct {
	b *types.Bundle
}

// ScratchConveyorPacker only needs to hold the conveyor to have the needed data to pack
type ScratchConveyorPacker struct {
	ScratchConveyor
}

// Get just stores the bundle
func (c *ScratchConveyor) Get(_ context.Context, b *types.Bundle) error {
	c.b = b
	return nil
}

// Pack creates the base environment in an empty root filesystem.
func (cp *ScratchConveyorPacker) Pack(context.Context) (*types.Bundle, error) {
	if err := makeBaseEnv(cp.b.RootfsPath); err != nil {
		return nil, fmt.Errorf("while inserting base environment: %v", err)
	}
	return cp.b, nil
}
