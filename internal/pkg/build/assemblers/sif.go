// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package assemblers

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	uuid "github.com/satori/go.uuid"
	"github.com/sylabs/sif/pkg/sif"
	"github.com/sylabs/svcimage/pkg/build/types"
	"github.com/sylabs/svcimage/pkg/sylog"
)

// SIFConfigName is the name of the SIF data object holding the image
// runtime configuration.
const SIFConfigName = "oci-config.json"

// SIFAssembler assembles a SIF image holding the rootfs as a squashfs
// partition and the runtime configuration as a JSON object.
type SIFAssembler struct {
	MksquashfsPath string
}

func createSIF(path string, ociConf []byte, squashfile string) (err error) {
	// general info for the new SIF file creation
	cinfo := sif.CreateInfo{
		Pathname:   path,
		Launchstr:  sif.HdrLaunch,
		Sifversion: sif.HdrVersion,
		ID:         uuid.NewV4(),
	}

	ociInput := sif.DescriptorInput{
		Datatype: sif.DataGenericJSON,
		Groupid:  sif.DescrDefaultGroup,
		Link:     sif.DescrUnusedLink,
		Data:     ociConf,
		Fname:    SIFConfigName,
	}
	ociInput.Size = int64(binary.Size(ociInput.Data))
	cinfo.InputDescr = append(cinfo.InputDescr, ociInput)

	// data we need to create a system partition descriptor
	parinput := sif.DescriptorInput{
		Datatype: sif.DataPartition,
		Groupid:  sif.DescrDefaultGroup,
		Link:     sif.DescrUnusedLink,
		Fname:    squashfile,
	}
	fp, err := os.Open(parinput.Fname)
	if err != nil {
		return fmt.Errorf("while opening partition file: %s", err)
	}
	defer fp.Close()

	fi, err := fp.Stat()
	if err != nil {
		return fmt.Errorf("while calling stat on partition file: %s", err)
	}

	parinput.Fp = fp
	parinput.Size = fi.Size()

	err = parinput.SetPartExtra(sif.FsSquash, sif.PartPrimSys, sif.GetSIFArch(runtime.GOARCH))
	if err != nil {
		return
	}
	cinfo.InputDescr = append(cinfo.InputDescr, parinput)

	// the image replaces the destination only once complete
	tmp, err := ioutil.TempFile(filepath.Dir(path), "."+filepath.Base(path)+"-")
	if err != nil {
		return fmt.Errorf("while creating temporary image: %s", err)
	}
	tmp.Close()
	cinfo.Pathname = tmp.Name()

	if _, err := sif.CreateContainer(cinfo); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("while creating container: %s", err)
	}

	if err := os.RemoveAll(path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("while removing %s: %s", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("while moving image to %s: %s", path, err)
	}
	return nil
}

// pseudoName quotes a rootfs path for a mksquashfs pseudo file.
func pseudoName(rel string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(filepath.ToSlash(rel)) + `"`
}

// writePseudoFile describes the image mode and owner of every rootfs path
// below the root as mksquashfs pseudo file modify entries.
func writePseudoFile(w io.Writer, b *types.Bundle) error {
	bw := bufio.NewWriter(w)

	err := filepath.Walk(b.RootfsPath, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(b.RootfsPath, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		uid, gid, err := imageOwner(b, rel, path, fi)
		if err != nil {
			return err
		}

		mode := uint32(fi.Mode().Perm())
		if fi.Mode()&os.ModeSetuid != 0 {
			mode |= 04000
		}
		if fi.Mode()&os.ModeSetgid != 0 {
			mode |= 02000
		}
		if fi.Mode()&os.ModeSticky != 0 {
			mode |= 01000
		}

		_, err = fmt.Fprintf(bw, "%s m %o %d %d\n", pseudoName(rel), mode, uid, gid)
		return err
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

// Assemble creates a SIF image from a Bundle.
func (a *SIFAssembler) Assemble(b *types.Bundle, path string) error {
	sylog.Infof("Creating SIF file...")

	f, err := ioutil.TempFile(b.TmpDir, "squashfs-")
	if err != nil {
		return fmt.Errorf("while creating temporary file for squashfs: %v", err)
	}
	squashfsPath := f.Name() + ".img"
	f.Close()
	os.Remove(f.Name())
	defer os.Remove(squashfsPath)

	args := []string{b.RootfsPath, squashfsPath, "-noappend"}

	// without privileges the on-disk ownership is the building user's, the
	// image ownership is passed as a pseudo file
	if os.Geteuid() != 0 {
		pf, err := ioutil.TempFile(b.TmpDir, "pseudo-")
		if err != nil {
			return fmt.Errorf("while creating pseudo file: %v", err)
		}
		defer os.Remove(pf.Name())

		err = writePseudoFile(pf, b)
		if cerr := pf.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("while writing pseudo file: %v", err)
		}
		args = append(args, "-pf", pf.Name())
	}

	mksquashfsCmd := exec.Command(a.MksquashfsPath, args...)
	stderr, err := mksquashfsCmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("while setting up stderr pipe: %v", err)
	}

	if err := mksquashfsCmd.Start(); err != nil {
		return fmt.Errorf("while starting mksquashfs: %v", err)
	}

	errOut, err := ioutil.ReadAll(stderr)
	if err != nil {
		return fmt.Errorf("while reading mksquashfs stderr: %v", err)
	}

	if err := mksquashfsCmd.Wait(); err != nil {
		return fmt.Errorf("while running mksquashfs: %v: %s", err, strings.Replace(string(errOut), "\n", " ", -1))
	}

	ociConf, err := json.Marshal(b.Config)
	if err != nil {
		return fmt.Errorf("while encoding image configuration: %v", err)
	}

	if err := createSIF(path, ociConf, squashfsPath); err != nil {
		return fmt.Errorf("while creating SIF: %v", err)
	}

	return nil
}
