// Copyright (c) 2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package assemblers

import (
	"os"
	"syscall"

	"github.com/sylabs/svcimage/internal/pkg/build/sources"
	"github.com/sylabs/svcimage/pkg/build/types"
)

// imageOwner returns the owner a rootfs path takes in the image. Ownership
// recorded by the build wins. Otherwise root builds keep the on-disk owner,
// and unprivileged builds use the owner a rootless unpack stored in the
// path xattrs, falling back to root.
func imageOwner(b *types.Bundle, rel, path string, fi os.FileInfo) (uid, gid uint32, err error) {
	if owner, ok := b.Owner(rel); ok {
		return owner.UID, owner.GID, nil
	}
	if os.Geteuid() == 0 {
		if st, ok := fi.Sys().(*syscall.Stat_t); ok {
			return st.Uid, st.Gid, nil
		}
		return 0, 0, nil
	}
	uid, gid, _, err = sources.RootlessOwner(path)
	return uid, gid, err
}
