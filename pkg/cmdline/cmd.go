// Copyright (c) 2019-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package cmdline registers cobra commands and their flags, flags can be
// set from environment variables as well.
package cmdline

import (
	"fmt"

	"github.com/spf13/cobra"
)

// CommandManager holds the root command, the flags registered for its
// children and the errors met while registering them.
type CommandManager struct {
	rootCmd *cobra.Command
	errPool []error
	fm      *flagManager
}

// NewCommandManager instantiates a CommandManager
func NewCommandManager(rootCmd *cobra.Command) *CommandManager {
	if rootCmd == nil {
		panic("nil root command passed")
	}
	return &CommandManager{
		rootCmd: rootCmd,
		fm:      newFlagManager(),
	}
}

func (m *CommandManager) pushError(f string, a ...interface{}) {
	m.errPool = append(m.errPool, fmt.Errorf(f, a...))
}

// GetError returns the error pool
func (m *CommandManager) GetError() []error {
	return m.errPool
}

// RegisterCmd registers a child command for the root command
func (m *CommandManager) RegisterCmd(cmd *cobra.Command) {
	// misuse of the API from init functions
	if cmd == nil {
		panic("nil command passed")
	}
	m.rootCmd.AddCommand(cmd)
}

// GetRootCmd returns the root command
func (m *CommandManager) GetRootCmd() *cobra.Command {
	return m.rootCmd
}

// GetCmd returns the named command associated with root command
func (m *CommandManager) GetCmd(name string) *cobra.Command {
	for _, c := range m.rootCmd.Commands() {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// RegisterFlagForCmd registers a flag for one or more commands
func (m *CommandManager) RegisterFlagForCmd(flag *Flag, cmds ...*cobra.Command) {
	if err := m.fm.registerFlagForCmd(flag, cmds...); err != nil {
		m.pushError("while registering flag: %v", err)
	}
}

// UpdateCmdFlagFromEnv updates flag's values based on environment variables
// associated with all flags belonging to command provided as argument
func (m *CommandManager) UpdateCmdFlagFromEnv(cmd *cobra.Command, envPrefix string) error {
	errs := m.fm.updateCmdFlagFromEnv(cmd, envPrefix)
	if len(errs) == 0 {
		return nil
	}
	err := errs[0]
	for _, e := range errs[1:] {
		err = fmt.Errorf("%v; %v", err, e)
	}
	return err
}
