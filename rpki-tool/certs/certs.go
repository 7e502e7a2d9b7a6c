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

// Package certs implements the certificate subcommands of rpki-tool.
package certs

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/private/app/command"
	"github.com/openrpki/rpkid/rpki-tool/internal/output"
)

// Cmd returns the certificate command group.
func Cmd(pather command.Pather) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "certificate",
		Aliases: []string{"cert", "certs"},
		Short:   "Inspect and manipulate resource certificates",
		Args:    cobra.NoArgs,
	}
	joined := command.StringPather(pather.CommandPath() + " certificate")
	cmd.AddCommand(
		newInspect(joined),
		newChainsort(joined),
	)
	return cmd
}

func newInspect(pather command.Pather) *cobra.Command {
	var flags struct {
		format string
	}
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Display the contents of a certificate",
		Example: fmt.Sprintf(`  %[1]s inspect alice.cer
  %[1]s inspect --format yaml alice.pem`, pather.CommandPath()),
		Long: `'inspect' displays the contents of a resource certificate.

The file may be PEM or DER encoded. A PEM file holding several certificates
displays each of them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			certs, err := objects.ReadCertificates(args[0])
			if err != nil {
				return err
			}
			infos := make([]Info, 0, len(certs))
			for i, c := range certs {
				info, err := Describe(c)
				if err != nil {
					return serrors.Wrap("describing certificate", err, "index", i)
				}
				infos = append(infos, info)
			}
			w := cmd.OutOrStdout()
			if flags.format == "table" {
				for i, info := range infos {
					if i != 0 {
						fmt.Fprintln(w)
					}
					output.Table(w, []string{"field", "value"}, info.Rows())
				}
				return nil
			}
			enc, err := output.NewEncoder(w, flags.format)
			if err != nil {
				return err
			}
			if len(infos) == 1 {
				return enc.Encode(infos[0])
			}
			return enc.Encode(infos)
		},
	}
	cmd.Flags().StringVar(&flags.format, "format", "table", "Output format (table|yaml|json)")
	return cmd
}

func newChainsort(pather command.Pather) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chainsort <file>...",
		Short: "Order certificates into a chain, leaf first",
		Example: fmt.Sprintf(`  %[1]s chainsort ta.cer ca.cer leaf.cer > chain.pem`,
			pather.CommandPath()),
		Long: `'chainsort' reads the certificates of all files and prints them as PEM
ordered from the leaf to the trust anchor.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			var all []*objects.Certificate
			for _, file := range args {
				certs, err := objects.ReadCertificates(file)
				if err != nil {
					return err
				}
				all = append(all, certs...)
			}
			chain, err := objects.Chainsort(all)
			if err != nil {
				return err
			}
			for _, c := range chain {
				raw, err := c.PEM()
				if err != nil {
					return err
				}
				if _, err := cmd.OutOrStdout().Write(raw); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return cmd
}

// Info is the human readable form of a certificate.
type Info struct {
	Subject   string    `yaml:"subject" json:"subject"`
	Issuer    string    `yaml:"issuer" json:"issuer"`
	Serial    string    `yaml:"serial" json:"serial"`
	NotBefore time.Time `yaml:"not_before" json:"not_before"`
	NotAfter  time.Time `yaml:"not_after" json:"not_after"`
	CA        bool      `yaml:"ca" json:"ca"`
	SKI       string    `yaml:"ski" json:"ski"`
	GSKI      string    `yaml:"gski" json:"gski"`
	AKI       string    `yaml:"aki,omitempty" json:"aki,omitempty"`
	SIA       SIA       `yaml:"sia" json:"sia"`
	AIA       []string  `yaml:"aia,omitempty" json:"aia,omitempty"`
	CRLDP     []string  `yaml:"crldp,omitempty" json:"crldp,omitempty"`
	Resources Resources `yaml:"resources" json:"resources"`
}

// SIA lists the subject information access URIs.
type SIA struct {
	CARepository []string `yaml:"ca_repository,omitempty" json:"ca_repository,omitempty"`
	RPKIManifest []string `yaml:"rpki_manifest,omitempty" json:"rpki_manifest,omitempty"`
	SignedObject []string `yaml:"signed_object,omitempty" json:"signed_object,omitempty"`
	RPKINotify   []string `yaml:"rpki_notify,omitempty" json:"rpki_notify,omitempty"`
}

// Resources lists the RFC 3779 resources per family.
type Resources struct {
	AS   string `yaml:"as" json:"as"`
	IPv4 string `yaml:"ipv4" json:"ipv4"`
	IPv6 string `yaml:"ipv6" json:"ipv6"`
}

// Describe extracts the human readable information of c.
func Describe(c *objects.Certificate) (Info, error) {
	x, err := c.Parsed()
	if err != nil {
		return Info{}, err
	}
	gski, err := c.GSKI()
	if err != nil {
		return Info{}, err
	}
	sia, err := c.SIA()
	if err != nil {
		return Info{}, err
	}
	res, err := c.Get3779Resources(nil)
	if err != nil {
		return Info{}, err
	}
	family := func(inherit bool, s fmt.Stringer) string {
		if inherit {
			return "inherit"
		}
		return s.String()
	}
	info := Info{
		Subject:   x.Subject.String(),
		Issuer:    x.Issuer.String(),
		Serial:    x.SerialNumber.String(),
		NotBefore: x.NotBefore.UTC(),
		NotAfter:  x.NotAfter.UTC(),
		CA:        x.IsCA,
		SKI:       hex.EncodeToString(x.SubjectKeyId),
		GSKI:      gski,
		SIA: SIA{
			CARepository: sia.CARepository,
			RPKIManifest: sia.RPKIManifest,
			SignedObject: sia.SignedObject,
			RPKINotify:   sia.RPKINotify,
		},
		AIA:   x.IssuingCertificateURL,
		CRLDP: x.CRLDistributionPoints,
		Resources: Resources{
			AS:   family(res.InheritAS, res.AS),
			IPv4: family(res.InheritV4, res.V4),
			IPv6: family(res.InheritV6, res.V6),
		},
	}
	if len(x.AuthorityKeyId) != 0 {
		info.AKI = hex.EncodeToString(x.AuthorityKeyId)
	}
	return info, nil
}

// Rows returns the information as table rows.
func (i Info) Rows() [][]string {
	rows := [][]string{
		{"subject", i.Subject},
		{"issuer", i.Issuer},
		{"serial", i.Serial},
		{"not before", i.NotBefore.Format(time.RFC3339)},
		{"not after", i.NotAfter.Format(time.RFC3339)},
		{"ca", fmt.Sprint(i.CA)},
		{"ski", i.SKI},
		{"gski", i.GSKI},
	}
	if i.AKI != "" {
		rows = append(rows, []string{"aki", i.AKI})
	}
	add := func(name string, uris []string) {
		for _, u := range uris {
			rows = append(rows, []string{name, u})
		}
	}
	add("sia ca repository", i.SIA.CARepository)
	add("sia manifest", i.SIA.RPKIManifest)
	add("sia signed object", i.SIA.SignedObject)
	add("sia notify", i.SIA.RPKINotify)
	add("aia", i.AIA)
	add("crldp", i.CRLDP)
	rows = append(rows,
		[]string{"as", i.Resources.AS},
		[]string{"ipv4", i.Resources.IPv4},
		[]string{"ipv6", i.Resources.IPv6},
	)
	return rows
}
