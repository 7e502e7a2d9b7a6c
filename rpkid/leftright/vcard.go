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

package leftright

import (
	"strings"
)

// Contact is the contact information a Ghostbuster record is built from.
type Contact struct {
	FullName   string
	FamilyName string
	GivenName  string
	Email      string
	Postal     string
	Telephone  string
}

// Check reports a contact that lacks a name or any way to reach it.
func (c Contact) Check() error {
	if c.FamilyName == "" || c.GivenName == "" {
		return badRequest("family and given names must be specified")
	}
	if c.Email == "" && c.Postal == "" && c.Telephone == "" {
		return badRequest("one of telephone, email or postal address must be specified")
	}
	return nil
}

// VCard returns the contact as vCard 4.0 (RFC 6350) with the properties
// allowed in a Ghostbuster record (RFC 6493). The full name defaults to the
// given name followed by the family name.
func (c Contact) VCard() (string, error) {
	if err := c.Check(); err != nil {
		return "", err
	}
	fn := c.FullName
	if fn == "" {
		fn = c.GivenName + " " + c.FamilyName
	}
	lines := []string{
		"BEGIN:VCARD",
		"VERSION:4.0",
		"FN:" + escape(fn),
		"N:" + escape(c.FamilyName) + ";" + escape(c.GivenName) + ";;;",
	}
	if c.Postal != "" {
		lines = append(lines, "ADR:;;"+escape(c.Postal)+";;;;")
	}
	if c.Telephone != "" {
		lines = append(lines, "TEL;TYPE=VOICE:"+escape(c.Telephone))
	}
	if c.Email != "" {
		lines = append(lines, "EMAIL:"+escape(c.Email))
	}
	lines = append(lines, "END:VCARD")
	return strings.Join(lines, "\r\n") + "\r\n", nil
}

var vcardEscaper = strings.NewReplacer(`\`, `\\`, ",", `\,`, ";", `\;`, "\n", `\n`)

func escape(s string) string {
	return vcardEscaper.Replace(strings.ReplaceAll(s, "\r\n", "\n"))
}

// checkVCard rejects text that is not a single vCard.
func checkVCard(v string) error {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "BEGIN:VCARD") || !strings.HasSuffix(v, "END:VCARD") {
		return badRequest("vcard must be enclosed in BEGIN:VCARD and END:VCARD")
	}
	if strings.Count(v, "BEGIN:VCARD") != 1 {
		return badRequest("vcard must contain exactly one card")
	}
	return nil
}
