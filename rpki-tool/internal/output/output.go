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

// Package output renders command results as tables, YAML or JSON.
package output

import (
	"encoding/json"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v2"

	"github.com/openrpki/rpkid/pkg/private/serrors"
)

// Encoder encodes a value.
type Encoder interface {
	Encode(v any) error
}

// NewEncoder returns an encoder for the given format (yaml|json).
func NewEncoder(w io.Writer, format string) (Encoder, error) {
	switch format {
	case "yaml", "yml":
		return yaml.NewEncoder(w), nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "    ")
		return enc, nil
	default:
		return nil, serrors.New("format not supported", "format", format)
	}
}

// Table writes rows as a borderless, left aligned table.
func Table(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
}

// Colored reports whether w is a terminal that should get colored output.
func Colored(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Status holds the printers of a check result.
type Status struct {
	Good *color.Color
	Bad  *color.Color
}

// NewStatus returns status printers, colored if requested.
func NewStatus(colored bool) Status {
	if !colored {
		return Status{Good: noColor(), Bad: noColor()}
	}
	return Status{Good: color.New(color.FgGreen), Bad: color.New(color.FgRed)}
}

func noColor() *color.Color {
	c := color.New()
	c.DisableColor()
	return c
}
