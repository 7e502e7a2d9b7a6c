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

package command

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/openrpki/rpkid/pkg/private/serrors"
)

// NewGendocs returns a hidden command that writes the reference
// documentation of the whole command tree.
func NewGendocs(pather Pather) *cobra.Command {
	var flags struct {
		format string
	}
	cmd := &cobra.Command{
		Use:   "gendocs <directory>",
		Short: "Generate documentation",
		Example: fmt.Sprintf("  %[1]s gendocs docs/\n  %[1]s gendocs --format man man/",
			pather.CommandPath()),
		Args:   cobra.ExactArgs(1),
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			root.DisableAutoGenTag = true

			directory := args[0]
			if err := os.MkdirAll(directory, 0o755); err != nil {
				return serrors.Wrap("creating directory", err, "directory", directory)
			}
			switch flags.format {
			case "md":
				err := doc.GenMarkdownTreeCustom(root, directory,
					func(string) string { return "" },
					func(name string) string { return strings.ToLower(name) },
				)
				if err != nil {
					return serrors.Wrap("generating documentation", err)
				}
				return writeIndex(root, directory)
			case "man":
				header := &doc.GenManHeader{Title: strings.ToUpper(root.Name()), Section: "1"}
				if err := doc.GenManTree(root, header, directory); err != nil {
					return serrors.Wrap("generating man pages", err)
				}
				return nil
			default:
				return serrors.New("unknown format", "format", flags.format)
			}
		},
	}
	cmd.Flags().StringVar(&flags.format, "format", "md", "Output format (md|man)")
	return cmd
}

// writeIndex writes index.md listing every available command.
func writeIndex(root *cobra.Command, dir string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", root.Name())
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		if !c.IsAvailableCommand() && c != root {
			return
		}
		if c.IsAdditionalHelpTopicCommand() {
			return
		}
		name := strings.ReplaceAll(c.CommandPath(), " ", "_") + ".md"
		fmt.Fprintf(&b, "- [%s](%s): %s\n", c.CommandPath(), name, c.Short)
		for _, child := range c.Commands() {
			walk(child)
		}
	}
	walk(root)
	return os.WriteFile(filepath.Join(dir, "index.md"), []byte(b.String()), 0o644)
}
