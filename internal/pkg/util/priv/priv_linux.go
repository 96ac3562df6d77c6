// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package priv

import (
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// CanEscalate returns whether the calling thread runs with a saved
// set-user-ID of 0 while its effective uid is unprivileged, as is the case
// for a setuid installation after privileges were dropped.
func CanEscalate() bool {
	_, euid, suid := unix.Getresuid()
	return euid != 0 && suid == 0
}

// Escalate escalates thread privileges. The calling goroutine stays locked
// to its OS thread until Drop is called.
func Escalate() error {
	runtime.LockOSThread()
	uid := os.Getuid()
	if err := unix.Setresuid(uid, 0, uid); err != nil {
		runtime.UnlockOSThread()
		return err
	}
	return nil
}

// Drop drops thread privileges.
func Drop() error {
	defer runtime.UnlockOSThread()
	uid := os.Getuid()
	return unix.Setresuid(uid, uid, 0)
}
