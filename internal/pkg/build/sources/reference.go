// Copyright (c) 2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package sources

import (
	"fmt"
	"strings"
)

// Transport is the way a base image is retrieved.
type Transport string

const (
	// Scratch is an empty base image.
	Scratch Transport = "scratch"
	// Sandbox is an image stored as a directory on the host.
	Sandbox Transport = "sandbox"
	// LocalImage is an alias of Sandbox.
	LocalImage Transport = "localimage"
	// Docker is an image from a docker registry.
	Docker Transport = "docker"
	// DockerArchive is an image saved with docker save.
	DockerArchive Transport = "docker-archive"
	// DockerDaemon is an image from the local docker daemon.
	DockerDaemon Transport = "docker-daemon"
	// OCI is an image in an OCI image layout directory.
	OCI Transport = "oci"
	// OCIArchive is a tar archive of an OCI image layout.
	OCIArchive Transport = "oci-archive"
)

var transports = map[Transport]bool{
	Sandbox:       true,
	LocalImage:    true,
	Docker:        true,
	DockerArchive: true,
	DockerDaemon:  true,
	OCI:           true,
	OCIArchive:    true,
}

// ParseRef splits a base image reference into its transport and the
// transport specific part. References without a known transport prefix
// are docker registry references. The docker reference is returned in
// the //name[:tag] form.
func ParseRef(ref string) (Transport, string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", fmt.Errorf("empty base image reference")
	}
	if ref == string(Scratch) {
		return Scratch, "", nil
	}

	t, rest := Docker, ref
	if i := strings.Index(ref, ":"); i > 0 && transports[Transport(ref[:i])] {
		t, rest = Transport(ref[:i]), ref[i+1:]
	}

	if t == Docker {
		rest = "//" + strings.TrimPrefix(rest, "//")
	}
	if strings.Trim(rest, "/") == "" {
		return "", "", fmt.Errorf("no image named in %s reference %q", t, ref)
	}
	return t, rest, nil
}
