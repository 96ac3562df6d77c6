// Copyright (c) 2017-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package docs

// Global content for help and man pages
const (

	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	// main svcimage command
	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	SvcimageUse   string = `svcimage [global options...]`
	SvcimageShort string = `
Assemble deployable images of scanning services`
	SvcimageLong string = `
  svcimage extends a service base image with a service working tree. The
  version of the service is written into the service manifest, and the
  service entry point is recorded in the image environment. The resulting
  image runs as the restricted service user.`
	SvcimageExample string = `
  $ svcimage help <command>
  $ svcimage help build`

	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	// build
	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	BuildUse   string = `build [local options...] <IMAGE PATH> [<WORKING TREE>]`
	BuildShort string = `Build a service image`
	BuildLong  string = `

  IMAGE PATH:

  When building into the sandbox format (default) IMAGE PATH is a directory
  holding the image root filesystem. With --format oci it is an OCI image
  layout directory, with --format sif it is a SIF file.

  WORKING TREE:

  The service working tree copied to the working directory of the image
  (/opt/al_service by default). It can be omitted when the recipe given
  with --recipe names a source.

  BASE IMAGE:

  The base image is given with --base or in the recipe. It must provide the
  restricted (assemblyline) and administrative (root) users.

      docker://<registry>/<image>:<tag>
          an image from a docker registry, this is the default transport.

      docker-archive:<path>  docker-daemon:<image>:<tag>
          an image saved with docker save, or stored by the local docker daemon.

      oci:<path>:<tag>  oci-archive:<path>:<tag>
          an OCI image layout directory or tar archive.

      sandbox:<path>
          a root filesystem directory, such as a sandbox built by svcimage.

      scratch
          an empty root filesystem.

  VERSION:

  Every occurrence of $SERVICE_TAG in the service manifest is replaced by
  the version given with --version (4.0.0.dev1 by default). An empty
  version removes the placeholder.`
	BuildExample string = `

  From a working tree:
      $ svcimage build --base docker://cccs/assemblyline-v4-service-base:stable \
          --service-path pdf_id.pdf_id.PDFId --version 4.0.1.stable2 pdfid/ .

  From a recipe, as an OCI layout:
      $ svcimage build --recipe examples/pdfid/recipe.toml --format oci pdfid-oci/

  From a previously built sandbox:
      $ svcimage build --base sandbox:pdfid/ --version 4.0.1.stable3 pdfid-next/ .`

	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	// inspect
	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	InspectUse   string = `inspect [options...] <image path>`
	InspectShort string = `Show the runtime configuration of a service image`
	InspectLong  string = `
  Inspect prints the user, working directory, environment and labels of an
  image built by svcimage, whatever its format.`
	InspectExample string = `
  $ svcimage inspect pdfid/
  $ svcimage inspect --json pdfid.sif`

	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	// version
	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	VersionShort string = `Show the version for svcimage`
)
