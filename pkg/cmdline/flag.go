// Copyright (c) 2019-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cmdline

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Flag holds information about a command flag
type Flag struct {
	ID           string
	Value        interface{}
	DefaultValue interface{}
	Name         string
	ShortHand    string
	Usage        string
	Tag          string
	Deprecated   string
	Hidden       bool
	Required     bool
	EnvKeys      []string
	EnvHandler   EnvHandler
}

// flagManager keeps registered flags by ID
type flagManager struct {
	flags map[string]*Flag
}

func newFlagManager() *flagManager {
	return &flagManager{
		flags: make(map[string]*Flag),
	}
}

func (m *flagManager) setFlagOptions(flag *Flag, cmd *cobra.Command) error {
	fs := cmd.Flags()

	if flag.Tag != "" {
		if err := fs.SetAnnotation(flag.Name, "argtag", []string{flag.Tag}); err != nil {
			return fmt.Errorf("could not set argtag annotation: %s", err)
		}
	}
	if len(flag.EnvKeys) > 0 {
		if err := fs.SetAnnotation(flag.Name, "envkey", flag.EnvKeys); err != nil {
			return fmt.Errorf("could not set envkey annotation: %s", err)
		}
	}
	if err := fs.SetAnnotation(flag.Name, "ID", []string{flag.ID}); err != nil {
		return fmt.Errorf("could not set ID annotation: %s", err)
	}
	if flag.Deprecated != "" {
		if err := fs.MarkDeprecated(flag.Name, flag.Deprecated); err != nil {
			return fmt.Errorf("could not mark flag as deprecated: %s", err)
		}
	}
	if flag.Hidden {
		if err := fs.MarkHidden(flag.Name); err != nil {
			return fmt.Errorf("could not mark flag as hidden: %s", err)
		}
	}
	if flag.Required {
		if err := cmd.MarkFlagRequired(flag.Name); err != nil {
			return fmt.Errorf("could not mark flag as required: %s", err)
		}
	}
	return nil
}

func (m *flagManager) registerFlagForCmd(flag *Flag, cmds ...*cobra.Command) error {
	if flag == nil {
		return fmt.Errorf("nil flag provided")
	}
	if len(cmds) == 0 {
		return fmt.Errorf("no command provided for flag %s", flag.Name)
	}
	for _, c := range cmds {
		if c == nil {
			return fmt.Errorf("nil command provided for flag %s", flag.Name)
		}
	}

	var define func(fs *pflag.FlagSet)

	switch def := flag.DefaultValue.(type) {
	case string:
		p, ok := flag.Value.(*string)
		if !ok {
			return fmt.Errorf("flag %s value must be a *string", flag.Name)
		}
		define = func(fs *pflag.FlagSet) { fs.StringVarP(p, flag.Name, flag.ShortHand, def, flag.Usage) }
		if flag.EnvHandler == nil {
			flag.EnvHandler = EnvStringNSlice
		}
	case []string:
		p, ok := flag.Value.(*[]string)
		if !ok {
			return fmt.Errorf("flag %s value must be a *[]string", flag.Name)
		}
		define = func(fs *pflag.FlagSet) { fs.StringSliceVarP(p, flag.Name, flag.ShortHand, def, flag.Usage) }
		if flag.EnvHandler == nil {
			flag.EnvHandler = EnvStringNSlice
		}
	case map[string]string:
		p, ok := flag.Value.(*map[string]string)
		if !ok {
			return fmt.Errorf("flag %s value must be a *map[string]string", flag.Name)
		}
		define = func(fs *pflag.FlagSet) { fs.StringToStringVarP(p, flag.Name, flag.ShortHand, def, flag.Usage) }
		if flag.EnvHandler == nil {
			flag.EnvHandler = EnvStringNSlice
		}
	case bool:
		p, ok := flag.Value.(*bool)
		if !ok {
			return fmt.Errorf("flag %s value must be a *bool", flag.Name)
		}
		define = func(fs *pflag.FlagSet) { fs.BoolVarP(p, flag.Name, flag.ShortHand, def, flag.Usage) }
		if flag.EnvHandler == nil {
			flag.EnvHandler = EnvBool
		}
	default:
		return fmt.Errorf("flag of type %T are not supported", def)
	}

	for _, c := range cmds {
		define(c.Flags())
		if err := m.setFlagOptions(flag, c); err != nil {
			return err
		}
	}

	m.flags[flag.ID] = flag
	return nil
}

func (m *flagManager) updateCmdFlagFromEnv(cmd *cobra.Command, prefix string) (errs []error) {
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		envKeys, ok := flag.Annotations["envkey"]
		if !ok {
			return
		}
		id, ok := flag.Annotations["ID"]
		if !ok {
			return
		}
		mflag, ok := m.flags[id[0]]
		if !ok || mflag.EnvHandler == nil {
			return
		}
		for _, key := range envKeys {
			val, set := os.LookupEnv(prefix + key)
			if !set {
				continue
			}
			if err := mflag.EnvHandler(flag, val); err != nil {
				errs = append(errs, err)
			}
			// first variable set wins
			return
		}
	})
	return errs
}
