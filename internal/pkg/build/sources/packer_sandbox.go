// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package sources

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sylabs/svcimage/internal/pkg/build/files"
	"github.com/sylabs/svcimage/pkg/build/types"
	"github.com/sylabs/svcimage/pkg/sylog"
)

// SandboxPacker holds the locations of where to pack from and to.
type SandboxPacker struct {
	srcdir string
	b      *types.Bundle
}

// Pack copies the sandbox root filesystem into the bundle, along with the
// runtime configuration a previous build recorded in it.
func (p *SandboxPacker) Pack(ctx context.Context) (*types.Bundle, error) {
	sylog.Debugf("Copying file system from %s to %s in bundle", p.srcdir, p.b.RootfsPath)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "cp", "-a", p.srcdir+"/.", p.b.RootfsPath)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("while copying sandbox: %v: %s", err, stderr.String())
	}

	configPath, err := files.RootfsPath(p.b.RootfsPath, filepath.Join(MetadataDir, "config.json"))
	if err != nil {
		return nil, err
	}
	data, err := ioutil.ReadFile(configPath)
	if err == nil {
		config, err := types.ParseImageConfig(data)
		if err != nil {
			return nil, fmt.Errorf("while reading sandbox configuration: %v", err)
		}
		p.b.BaseConfig = config.OCI()
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("while reading sandbox configuration: %v", err)
	}

	if err := makeBaseEnv(p.b.RootfsPath); err != nil {
		return nil, fmt.Errorf("while inserting base environment: %v", err)
	}

	return p.b, nil
}
