// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package interactive implements all the functions to interactively interact with users
package interactive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/ssh/terminal"
)

// readLine reads a single line from f. Only the bytes of the line are
// consumed when f is seekable so following questions read the next lines.
func readLine(f *os.File) (string, error) {
	// pipes can't seek, the error is ignored there
	pos, _ := f.Seek(0, io.SeekCurrent)

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	line := scanner.Text()

	f.Seek(pos+int64(len(line))+1, io.SeekStart)

	return strings.TrimSuffix(line, "\r"), nil
}

// AskQuestion prompts the user with a question and return the response
func AskQuestion(format string, a ...interface{}) (string, error) {
	fmt.Printf(format, a...)
	return readLine(os.Stdin)
}

// AskYNQuestion prompts the user expecting an answer that's either "y",
// "n" or a blank, in which case defaultAnswer is returned.
func AskYNQuestion(defaultAnswer, format string, a ...interface{}) (string, error) {
	ans, err := AskQuestion(format, a...)
	if err != nil {
		return "", err
	}

	switch ans := strings.ToLower(strings.TrimSpace(ans)); ans {
	case "y", "yes":
		return "y", nil
	case "n", "no":
		return "n", nil
	case "":
		return defaultAnswer, nil
	default:
		return "", fmt.Errorf("invalid answer: %q", ans)
	}
}

// AskQuestionNoEcho works like AskQuestion() except it doesn't echo user's
// input when stdin is a terminal.
func AskQuestionNoEcho(format string, a ...interface{}) (string, error) {
	fmt.Printf(format, a...)
	defer fmt.Println("")

	fd := int(os.Stdin.Fd())
	if !terminal.IsTerminal(fd) {
		return readLine(os.Stdin)
	}

	resp, err := terminal.ReadPassword(fd)
	if err != nil {
		return "", err
	}
	return string(resp), nil
}
