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

// Package manifest implements the manifest subcommands of rpki-tool.
package manifest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/private/app/command"
	"github.com/openrpki/rpkid/rpki-tool/internal/output"
)

// ErrMismatch is returned when a publication directory does not match its
// manifest.
var ErrMismatch = errors.New("directory does not match manifest")

// Cmd returns the manifest command group.
func Cmd(pather command.Pather) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "manifest",
		Aliases: []string{"mft"},
		Short:   "Inspect and verify manifests",
		Args:    cobra.NoArgs,
	}
	joined := command.StringPather(pather.CommandPath() + " manifest")
	cmd.AddCommand(
		newInspect(joined),
		newVerify(joined),
	)
	return cmd
}

func newInspect(pather command.Pather) *cobra.Command {
	var flags struct {
		format string
	}
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Display the contents of a manifest",
		Example: fmt.Sprintf(`  %[1]s inspect alice.mft
  %[1]s inspect --format json alice.mft`, pather.CommandPath()),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			m, err := Read(args[0])
			if err != nil {
				return err
			}
			info, err := Describe(m)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if flags.format == "table" {
				output.Table(w, []string{"field", "value"}, [][]string{
					{"number", info.Number},
					{"this update", info.ThisUpdate.Format(time.RFC3339)},
					{"next update", info.NextUpdate.Format(time.RFC3339)},
					{"ee subject", info.EESubject},
					{"signature", info.Signature},
				})
				fmt.Fprintln(w)
				rows := make([][]string, 0, len(info.Files))
				for _, f := range info.Files {
					rows = append(rows, []string{f.Name, f.Hash})
				}
				output.Table(w, []string{"file", "sha256"}, rows)
				return nil
			}
			enc, err := output.NewEncoder(w, flags.format)
			if err != nil {
				return err
			}
			return enc.Encode(info)
		},
	}
	cmd.Flags().StringVar(&flags.format, "format", "table", "Output format (table|yaml|json)")
	return cmd
}

func newVerify(pather command.Pather) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <file> <dir>",
		Short: "Compare a publication directory with its manifest",
		Example: fmt.Sprintf(`  %[1]s verify /var/lib/rpkid/publication/alice/alice.mft \
    /var/lib/rpkid/publication/alice`, pather.CommandPath()),
		Long: `'verify' hashes every file listed on the manifest and compares the result
with the listed hash. Files in the directory that the manifest does not list
are reported as extra. The manifest itself is never listed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			m, err := Read(args[0])
			if err != nil {
				return err
			}
			results, err := Verify(m, args[1], filepath.Base(args[0]))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			status := output.NewStatus(output.Colored(w))
			bad := 0
			for _, r := range results {
				if r.State == StateOK {
					status.Good.Fprint(w, r.State)
				} else {
					bad++
					status.Bad.Fprint(w, r.State)
				}
				fmt.Fprintf(w, "\t%s\n", r.Name)
			}
			if bad > 0 {
				return serrors.JoinNoStack(ErrMismatch, nil, "bad", bad)
			}
			return nil
		},
	}
	return cmd
}

// Read reads a PEM or DER encoded manifest and checks its signature.
func Read(file string) (*objects.Manifest, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, serrors.Wrap("reading manifest", err, "file", file)
	}
	m, err := objects.NewManifest(objects.DetectFormat(raw, objects.PEMManifest), raw)
	if err != nil {
		return nil, serrors.Wrap("parsing manifest", err, "file", file)
	}
	if _, err := m.Parsed(); err != nil {
		return nil, serrors.Wrap("parsing manifest", err, "file", file)
	}
	return m, nil
}

// Info is the human readable form of a manifest.
type Info struct {
	Number     string    `yaml:"number" json:"number"`
	ThisUpdate time.Time `yaml:"this_update" json:"this_update"`
	NextUpdate time.Time `yaml:"next_update" json:"next_update"`
	EESubject  string    `yaml:"ee_subject" json:"ee_subject"`
	Signature  string    `yaml:"signature" json:"signature"`
	Files      []File    `yaml:"files" json:"files"`
}

// File is one manifest entry with its hex encoded hash.
type File struct {
	Name string `yaml:"name" json:"name"`
	Hash string `yaml:"sha256" json:"sha256"`
}

// Describe extracts the human readable information of m.
func Describe(m *objects.Manifest) (Info, error) {
	s, err := m.Parsed()
	if err != nil {
		return Info{}, err
	}
	c, err := m.Content()
	if err != nil {
		return Info{}, err
	}
	info := Info{
		Number:     c.Number.String(),
		ThisUpdate: c.ThisUpdate.UTC(),
		NextUpdate: c.NextUpdate.UTC(),
		EESubject:  s.EE.Subject.String(),
		Signature:  "valid",
		Files:      make([]File, 0, len(c.Files)),
	}
	if err := s.CheckSignature(); err != nil {
		info.Signature = "invalid: " + err.Error()
	}
	for _, f := range c.Files {
		info.Files = append(info.Files, File{Name: f.Name, Hash: hex.EncodeToString(f.Hash)})
	}
	return info, nil
}

// State classifies a file during verification.
type State string

// Verification states.
const (
	StateOK       State = "OK"
	StateMismatch State = "MISMATCH"
	StateMissing  State = "MISSING"
	StateExtra    State = "EXTRA"
)

// Result is the verification result of a single file.
type Result struct {
	Name  string
	State State
}

// Verify compares the files in dir with the entries of m. The file named
// self, the manifest, is ignored. Listed files come first in manifest order,
// followed by extra files in directory order.
func Verify(m *objects.Manifest, dir, self string) ([]Result, error) {
	c, err := m.Content()
	if err != nil {
		return nil, err
	}
	listed := make(map[string]bool, len(c.Files))
	results := make([]Result, 0, len(c.Files))
	for _, f := range c.Files {
		listed[f.Name] = true
		raw, err := os.ReadFile(filepath.Join(dir, f.Name))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			results = append(results, Result{Name: f.Name, State: StateMissing})
			continue
		case err != nil:
			return nil, serrors.Wrap("reading published file", err, "file", f.Name)
		}
		sum := sha256.Sum256(raw)
		state := StateOK
		if !bytes.Equal(sum[:], f.Hash) {
			state = StateMismatch
		}
		results = append(results, Result{Name: f.Name, State: state})
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, serrors.Wrap("listing directory", err, "dir", dir)
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == self || listed[e.Name()] {
			continue
		}
		results = append(results, Result{Name: e.Name(), State: StateExtra})
	}
	return results, nil
}
