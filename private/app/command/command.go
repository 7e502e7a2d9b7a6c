// Copyright 2025 The OpenRPKI Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package command contains cobra building blocks shared by the rpkid
// binaries.
package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openrpki/rpkid/private/config"
	"github.com/openrpki/rpkid/private/env"
)

// Pather returns the command path of a command.
type Pather interface {
	CommandPath() string
}

// StringPather is a Pather with a fixed path.
type StringPather string

// CommandPath returns the string.
func (s StringPather) CommandPath() string {
	return string(s)
}

// NewSample returns the sample command. The samplers are the subcommands,
// each printing one sample.
func NewSample(pather Pather, samplers ...func(Pather) *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Display sample files",
		Args:  cobra.NoArgs,
	}
	for _, f := range samplers {
		cmd.AddCommand(f(pather))
	}
	return cmd
}

// NewSampleConfig returns a command that prints the sample of cfg.
func NewSampleConfig(cfg config.Sampler) func(Pather) *cobra.Command {
	return func(pather Pather) *cobra.Command {
		return &cobra.Command{
			Use:   "config",
			Short: "Display sample configuration file",
			Example: fmt.Sprintf("  %[1]s sample config > %[1]s.toml\n"+
				"  %[1]s --config %[1]s.toml", pather.CommandPath()),
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				config.WriteSample(cmd.OutOrStdout(), nil, nil, cfg)
				return nil
			},
		}
	}
}

// NewVersion returns a command that prints the build information.
func NewVersion(_ Pather) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), env.VersionInfo())
			return err
		},
	}
}
