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

// Package request implements the certification request subcommands of
// rpki-tool.
package request

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/private/app/command"
	"github.com/openrpki/rpkid/rpki-tool/internal/output"
)

// ErrCheckFailed is returned when at least one request violates the profile.
var ErrCheckFailed = errors.New("request check failed")

// Cmd returns the request command group.
func Cmd(pather command.Pather) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "request",
		Aliases: []string{"csr"},
		Short:   "Inspect certification requests",
		Args:    cobra.NoArgs,
	}
	joined := command.StringPather(pather.CommandPath() + " request")
	cmd.AddCommand(newCheck(joined))
	return cmd
}

func newCheck(pather command.Pather) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <file>...",
		Short: "Check certification requests against the RPKI profile",
		Example: fmt.Sprintf(`  %[1]s check child.csr
  %[1]s check *.csr`, pather.CommandPath()),
		Long: `'check' verifies that each certification request is well formed, carries a
valid self-signature and only the extensions the RPKI profile permits.

Every file is checked. The command fails if any of them does not pass.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			w := cmd.OutOrStdout()
			status := output.NewStatus(output.Colored(w))
			failed := 0
			for _, file := range args {
				if err := Check(file); err != nil {
					failed++
					status.Bad.Fprint(w, "FAIL")
					fmt.Fprintf(w, " %s: %s\n", file, err)
					continue
				}
				status.Good.Fprint(w, "OK")
				fmt.Fprintf(w, "   %s\n", file)
			}
			if failed > 0 {
				return serrors.JoinNoStack(ErrCheckFailed, nil, "failed", failed)
			}
			return nil
		},
	}
	return cmd
}

// Check reads the request in file and checks it against the RPKI profile.
func Check(file string) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	req, err := objects.NewRequest(objects.DetectFormat(raw, objects.PEMRequest), raw)
	if err != nil {
		return err
	}
	return req.CheckValidRPKI()
}
