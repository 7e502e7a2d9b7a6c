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

// rpki-tool is the offline companion of rpkid. It inspects and converts RPKI
// objects and prepares the key material of the business PKI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openrpki/rpkid/private/app/command"
	"github.com/openrpki/rpkid/rpki-tool/certs"
	"github.com/openrpki/rpkid/rpki-tool/convert"
	"github.com/openrpki/rpkid/rpki-tool/key"
	"github.com/openrpki/rpkid/rpki-tool/manifest"
	"github.com/openrpki/rpkid/rpki-tool/request"
)

func main() {
	executable := "rpki-tool"
	cmd := &cobra.Command{
		Use:           executable,
		Short:         "Tools for RPKI objects and the business PKI of rpkid",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	cmd.AddCommand(
		certs.Cmd(cmd),
		request.Cmd(cmd),
		key.Cmd(cmd),
		manifest.Cmd(cmd),
		convert.Cmd(cmd),
		command.NewVersion(cmd),
		command.NewGendocs(cmd),
	)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
