// Copyright (c) 2019-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cmdline

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/sylabs/svcimage/pkg/sylog"
)

// EnvHandler defines an environment handler type to set flag's values
// from environment variables
type EnvHandler func(*pflag.Flag, string) error

// EnvBool sets a bool flag if the CLI option is unset and env var is set
func EnvBool(flag *pflag.Flag, envvar string) error {
	if flag.Changed || envvar == "" {
		return nil
	}

	if err := flag.Value.Set(envvar); err != nil {
		return fmt.Errorf("unable to set flag %s to value %s: %s", flag.Name, envvar, err)
	}

	flag.Changed = true
	sylog.Debugf("Updated flag '%s' value to: %s", flag.Name, flag.Value)
	return nil
}

// EnvStringNSlice writes to a string, slice or map flag if the CLI option
// is unset and env var is set. An empty variable sets an empty string.
func EnvStringNSlice(flag *pflag.Flag, envvar string) error {
	if flag.Changed {
		return nil
	}

	if err := flag.Value.Set(envvar); err != nil {
		return fmt.Errorf("unable to set flag %s to value %s: %s", flag.Name, envvar, err)
	}

	flag.Changed = true
	sylog.Debugf("Updated flag '%s' value to: %s", flag.Name, flag.Value)
	return nil
}
