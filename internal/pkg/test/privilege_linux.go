// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package test

import (
	"os"
	"testing"
)

// EnsurePrivilege skips a test that needs to run as root.
func EnsurePrivilege(t *testing.T) {
	t.Helper()

	if os.Getuid() != 0 {
		t.Skip("test must be run with privilege")
	}
}

// EnsureNoPrivilege skips a test that must not run as root, typically
// because root bypasses the permission checks the test relies on.
func EnsureNoPrivilege(t *testing.T) {
	t.Helper()

	if os.Geteuid() == 0 {
		t.Skip("test must be run without privilege")
	}
}

// WithPrivilege wraps the supplied test function with a check ensuring
// the test is run with elevated privileges.
func WithPrivilege(f func(t *testing.T)) func(t *testing.T) {
	return func(t *testing.T) {
		t.Helper()

		EnsurePrivilege(t)

		f(t)
	}
}
