// Copyright (c) 2018-2021 Sylabs, Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license.  Please
// consult LICENSE.md file distributed with the sources of this project regarding
// your rights to use or distribute this software.

package shell

import (
	"fmt"
	"regexp"
	"strings"
)

var envName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Escape performs escaping of shell double quotes, backticks and $ characters.
func Escape(s string) string {
	escaped := strings.Replace(s, `\`, `\\`, -1)
	escaped = strings.Replace(escaped, `"`, `\"`, -1)
	escaped = strings.Replace(escaped, "`", "\\`", -1)
	escaped = strings.Replace(escaped, `$`, `\$`, -1)
	return escaped
}

// Export returns the statement exporting an environment entry of the
// form KEY=value. The value is taken literally, nothing is expanded.
func Export(entry string) (string, error) {
	kv := strings.SplitN(entry, "=", 2)
	if !envName.MatchString(kv[0]) {
		return "", fmt.Errorf("invalid environment variable name %q", kv[0])
	}
	if len(kv) == 1 {
		return "export " + kv[0], nil
	}
	return "export " + kv[0] + `="` + Escape(kv[1]) + `"`, nil
}
