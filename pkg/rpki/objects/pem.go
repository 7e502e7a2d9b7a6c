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

package objects

import (
	"bytes"
	"encoding/pem"

	"github.com/openrpki/rpkid/pkg/private/serrors"
)

// PEM block types of the supported object kinds.
const (
	PEMCertificate = "CERTIFICATE"
	PEMKey         = "RSA PRIVATE KEY"
	PEMRequest     = "CERTIFICATE REQUEST"
	PEMCRL         = "X509 CRL"
	PEMManifest    = "RPKI MANIFEST"
	PEMROA         = "RPKI ROA"
	PEMGhostbuster = "RPKI GHOSTBUSTER"
)

// PEMConverter converts between DER and PEM for one block type.
type PEMConverter struct {
	Type string
}

func (c PEMConverter) begin() []byte { return []byte("-----BEGIN " + c.Type + "-----") }
func (c PEMConverter) end() []byte   { return []byte("-----END " + c.Type + "-----") }

// LooksLikePEM reports whether b contains a begin marker of the converter's
// type followed by the matching end marker.
func (c PEMConverter) LooksLikePEM(b []byte) bool {
	i := bytes.Index(b, c.begin())
	if i < 0 {
		return false
	}
	return bytes.Index(b[i:], c.end()) > 0
}

// ToDER strips the markers and decodes the base64 body.
func (c PEMConverter) ToDER(b []byte) ([]byte, error) {
	if !c.LooksLikePEM(b) {
		return nil, serrors.New("missing PEM markers", "type", c.Type)
	}
	rest := b[bytes.Index(b, c.begin()):]
	block, _ := pem.Decode(rest)
	if block == nil {
		return nil, serrors.New("malformed PEM body", "type", c.Type)
	}
	if block.Type != c.Type {
		return nil, serrors.New("unexpected PEM type", "expected", c.Type, "actual", block.Type)
	}
	return block.Bytes, nil
}

// ToPEM armors der. The body is wrapped at 64 columns.
func (c PEMConverter) ToPEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: c.Type, Bytes: der})
}
