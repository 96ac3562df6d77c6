// Copyright (c) 2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package identity

import (
	"fmt"
	"sync"

	"github.com/sylabs/svcimage/internal/pkg/util/priv"
	"github.com/sylabs/svcimage/pkg/build/types"
	"github.com/sylabs/svcimage/pkg/sylog"
)

// Session tracks the identity build steps act as. It starts, and always
// ends, as the restricted identity; Elevated is the only way to act as
// the administrative identity.
type Session struct {
	mu sync.Mutex

	restricted Identity
	admin      Identity
	adminSpec  string
	adminErr   error

	current  Identity
	elevated bool

	// host privilege hooks, set when running from a setuid installation
	escalate func() error
	drop     func() error
}

// NewSession resolves both identities against the root filesystem. A
// restricted identity that doesn't resolve is a PermissionError, an
// administrative identity that doesn't resolve is only reported once an
// elevation is attempted.
func NewSession(rootfs, restricted, admin string) (*Session, error) {
	r, err := Resolve(rootfs, restricted)
	if err != nil {
		return nil, &types.PermissionError{Identity: restricted, Op: "assume identity", Err: err}
	}

	s := &Session{
		restricted: r,
		current:    r,
		adminSpec:  admin,
	}

	s.admin, s.adminErr = Resolve(rootfs, admin)
	if s.adminErr != nil {
		sylog.Debugf("Administrative identity %q not resolved: %v", admin, s.adminErr)
	}

	if priv.CanEscalate() {
		s.escalate = priv.Escalate
		s.drop = priv.Drop
	}

	return s, nil
}

// Restricted returns the restricted identity.
func (s *Session) Restricted() Identity {
	return s.restricted
}

// Current returns the identity build steps currently act as.
func (s *Session) Current() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Elevated runs fn as the administrative identity. The restricted identity
// is restored when fn returns, fails or panics. Elevations don't nest.
func (s *Session) Elevated(fn func(admin Identity) error) (err error) {
	s.mu.Lock()
	if s.elevated {
		s.mu.Unlock()
		return fmt.Errorf("already elevated to %s", s.admin)
	}
	if s.adminErr != nil {
		s.mu.Unlock()
		return &types.PermissionError{Identity: s.adminSpec, Op: "elevate", Err: s.adminErr}
	}

	if s.escalate != nil {
		if err := s.escalate(); err != nil {
			s.mu.Unlock()
			return &types.PermissionError{Identity: s.adminSpec, Op: "elevate", Err: err}
		}
	}
	s.elevated = true
	s.current = s.admin
	s.mu.Unlock()

	sylog.Debugf("Elevated to %s", s.admin)

	defer func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.drop != nil {
			if derr := s.drop(); derr != nil {
				// a process stuck with host privileges must not continue
				sylog.Fatalf("Could not drop privileges: %v", derr)
			}
		}
		s.current = s.restricted
		s.elevated = false
		sylog.Debugf("Returned to %s", s.restricted)
	}()

	return fn(s.admin)
}
