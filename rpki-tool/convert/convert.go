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

// Package convert implements the encoding conversion command of rpki-tool.
package convert

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/private/app/command"
)

// Encoded is an object that can be written as DER or PEM.
type Encoded interface {
	DER() ([]byte, error)
	PEM() ([]byte, error)
}

type kind struct {
	pemType string
	load    func(objects.Format, []byte) (Encoded, error)
}

var kinds = map[string]kind{
	"certificate": {
		pemType: objects.PEMCertificate,
		load: func(f objects.Format, raw []byte) (Encoded, error) {
			o, err := objects.NewCertificate(f, raw)
			if err != nil {
				return nil, err
			}
			_, err = o.Parsed()
			return o, err
		},
	},
	"key": {
		pemType: objects.PEMKey,
		load: func(f objects.Format, raw []byte) (Encoded, error) {
			o, err := objects.NewKey(f, raw)
			if err != nil {
				return nil, err
			}
			_, err = o.Parsed()
			return o, err
		},
	},
	"request": {
		pemType: objects.PEMRequest,
		load: func(f objects.Format, raw []byte) (Encoded, error) {
			o, err := objects.NewRequest(f, raw)
			if err != nil {
				return nil, err
			}
			_, err = o.Parsed()
			return o, err
		},
	},
	"crl": {
		pemType: objects.PEMCRL,
		load: func(f objects.Format, raw []byte) (Encoded, error) {
			o, err := objects.NewCRL(f, raw)
			if err != nil {
				return nil, err
			}
			_, err = o.Parsed()
			return o, err
		},
	},
	"manifest": {
		pemType: objects.PEMManifest,
		load: func(f objects.Format, raw []byte) (Encoded, error) {
			o, err := objects.NewManifest(f, raw)
			if err != nil {
				return nil, err
			}
			_, err = o.Parsed()
			return o, err
		},
	},
	"roa": {
		pemType: objects.PEMROA,
		load: func(f objects.Format, raw []byte) (Encoded, error) {
			o, err := objects.NewROA(f, raw)
			if err != nil {
				return nil, err
			}
			_, err = o.Parsed()
			return o, err
		},
	},
	"ghostbuster": {
		pemType: objects.PEMGhostbuster,
		load: func(f objects.Format, raw []byte) (Encoded, error) {
			o, err := objects.NewGhostbuster(f, raw)
			if err != nil {
				return nil, err
			}
			_, err = o.Parsed()
			return o, err
		},
	},
}

// Kinds returns the names of the supported object kinds, sorted.
func Kinds() []string {
	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cmd returns the convert command.
func Cmd(pather command.Pather) *cobra.Command {
	var flags struct {
		to  string
		out string
	}
	cmd := &cobra.Command{
		Use:   "convert <kind> <file>",
		Short: "Convert an object between PEM and DER",
		Example: fmt.Sprintf(`  %[1]s convert certificate alice.pem --to der --out alice.cer
  %[1]s convert manifest alice.mft`, pather.CommandPath()),
		Long: fmt.Sprintf(`'convert' reads an object in either encoding and writes it in the
requested one. The input encoding is detected.

Supported kinds: %s`, strings.Join(Kinds(), ", ")),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			converted, err := Convert(args[0], raw, flags.to)
			if err != nil {
				return serrors.Wrap("converting", err, "file", args[1])
			}
			if flags.out != "" {
				return os.WriteFile(flags.out, converted, 0o644)
			}
			_, err = cmd.OutOrStdout().Write(converted)
			return err
		},
	}
	cmd.Flags().StringVar(&flags.to, "to", "pem", "Target encoding (pem|der)")
	cmd.Flags().StringVar(&flags.out, "out", "", "Output file. Defaults to stdout")
	return cmd
}

// Convert decodes raw as an object of the given kind and encodes it as to.
func Convert(kindName string, raw []byte, to string) ([]byte, error) {
	k, ok := kinds[strings.ToLower(kindName)]
	if !ok {
		return nil, serrors.New("unsupported kind", "kind", kindName,
			"supported", strings.Join(Kinds(), ","))
	}
	o, err := k.load(objects.DetectFormat(raw, k.pemType), raw)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(to) {
	case "pem":
		return o.PEM()
	case "der":
		return o.DER()
	default:
		return nil, serrors.New("unsupported encoding", "encoding", to)
	}
}
