// Copyright (c) 2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package identity resolves the identities an image build switches between
// and implements the scoped elevation to the administrative identity.
package identity

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/openSUSE/umoci/third_party/user"
)

// Identity is a user of the image being assembled.
type Identity struct {
	// Name is the user name, or the numeric form when the image
	// has no matching passwd entry.
	Name string
	UID  uint32
	GID  uint32
}

func (i Identity) String() string {
	return fmt.Sprintf("%s(%d:%d)", i.Name, i.UID, i.GID)
}

// IsSuperuser returns whether the identity bypasses file permissions.
func (i Identity) IsSuperuser() bool {
	return i.UID == 0
}

// CanWrite returns whether the identity may write a file owned by uid
// with the given permission bits.
func (i Identity) CanWrite(uid, gid uint32, mode os.FileMode) bool {
	switch {
	case i.IsSuperuser():
		return true
	case i.UID == uid:
		return mode&0200 != 0
	case i.GID == gid:
		return mode&0020 != 0
	default:
		return mode&0002 != 0
	}
}

// Resolve looks up ident in the image root filesystem. ident takes the
// form user[:group] where user and group are names or numeric ids.
// Names must exist in the image /etc/passwd and /etc/group, numeric ids
// don't have to.
func Resolve(rootfs, ident string) (Identity, error) {
	if ident == "" {
		return Identity{}, fmt.Errorf("empty identity")
	}

	passwd, err := securejoin.SecureJoin(rootfs, "/etc/passwd")
	if err != nil {
		return Identity{}, fmt.Errorf("while resolving /etc/passwd: %v", err)
	}
	group, err := securejoin.SecureJoin(rootfs, "/etc/group")
	if err != nil {
		return Identity{}, fmt.Errorf("while resolving /etc/group: %v", err)
	}

	// a missing database is treated as empty, only numeric ids resolve
	u, err := user.GetExecUserPath(ident, &user.ExecUser{}, passwd, group)
	if err != nil {
		return Identity{}, fmt.Errorf("while resolving %q in image: %v", ident, err)
	}
	if u.Uid < 0 || u.Gid < 0 {
		return Identity{}, fmt.Errorf("while resolving %q in image: negative id", ident)
	}

	id := Identity{
		Name: strings.SplitN(ident, ":", 2)[0],
		UID:  uint32(u.Uid),
		GID:  uint32(u.Gid),
	}
	if _, err := strconv.Atoi(id.Name); err == nil {
		id.Name = userName(passwd, u.Uid, id.Name)
	}
	return id, nil
}

// userName returns the passwd name of uid, or def if there is none.
func userName(passwd string, uid int, def string) string {
	users, err := user.ParsePasswdFileFilter(passwd, func(u user.User) bool {
		return u.Uid == uid
	})
	if err != nil || len(users) == 0 {
		return def
	}
	return users[0].Name
}
