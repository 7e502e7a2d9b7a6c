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

// Package key implements the key subcommands of rpki-tool.
package key

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/private/app/command"
)

// Cmd returns the key command group.
func Cmd(pather command.Pather) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Generate keys and compute key identifiers",
		Args:  cobra.NoArgs,
	}
	joined := command.StringPather(pather.CommandPath() + " key")
	cmd.AddCommand(
		newGenerate(joined),
		newFingerprint(joined),
	)
	return cmd
}

func newGenerate(pather command.Pather) *cobra.Command {
	var flags struct {
		bits  int
		force bool
	}
	cmd := &cobra.Command{
		Use:   "generate <file>",
		Short: "Generate a new RSA private key",
		Example: fmt.Sprintf(`  %[1]s generate bpki.key
  %[1]s generate --bits 4096 irbe.key`, pather.CommandPath()),
		Long: `'generate' creates a new RSA private key and writes it PEM encoded to the
given file. An existing file is only replaced with --force.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.bits < 1024 {
				return serrors.New("key too short", "bits", flags.bits)
			}
			cmd.SilenceUsage = true
			return Generate(args[0], flags.bits, flags.force)
		},
	}
	cmd.Flags().IntVar(&flags.bits, "bits", objects.DefaultKeyBits, "RSA modulus size")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Overwrite an existing file")
	return cmd
}

// Generate writes a fresh PEM encoded RSA key to file.
func Generate(file string, bits int, force bool) error {
	k, err := objects.GenerateKey(bits)
	if err != nil {
		return err
	}
	raw, err := k.PEM()
	if err != nil {
		return err
	}
	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flag |= os.O_EXCL
	}
	f, err := os.OpenFile(file, flag, 0o600)
	if err != nil {
		return serrors.Wrap("creating key file", err, "file", file)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return serrors.Wrap("writing key file", err, "file", file)
	}
	return f.Close()
}

func newFingerprint(pather command.Pather) *cobra.Command {
	var flags struct {
		format string
	}
	cmd := &cobra.Command{
		Use:   "fingerprint <file>",
		Short: "Compute the subject key identifier of a key or certificate",
		Example: fmt.Sprintf(`  %[1]s fingerprint bpki.key
  %[1]s fingerprint --format hex alice.cer`, pather.CommandPath()),
		Long: `'fingerprint' computes the RFC 5280 subject key identifier of a private key
or of the public key of a certificate. For a file holding several certificates
the first one is used.

The identifier is printed as g(SKI), the form used in publication URIs and in
the up-down protocol, or as upper-case hex.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.format != "gski" && flags.format != "hex" {
				return serrors.New("format not supported", "format", flags.format)
			}
			cmd.SilenceUsage = true
			ski, err := Fingerprint(args[0])
			if err != nil {
				return err
			}
			out := objects.GSKI(ski)
			if flags.format == "hex" {
				out = objects.HexSKI(ski)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&flags.format, "format", "gski", "Output format (gski|hex)")
	return cmd
}

// Fingerprint returns the subject key identifier of the key or the first
// certificate in file.
func Fingerprint(file string) ([]byte, error) {
	if k, err := objects.ReadKey(file); err == nil {
		return k.SKI()
	}
	certs, err := objects.ReadCertificates(file)
	if err != nil {
		return nil, serrors.New("neither key nor certificate", "file", file)
	}
	return certs[0].SKI()
}
