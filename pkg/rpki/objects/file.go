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
	"encoding/pem"
	"os"

	"github.com/openrpki/rpkid/pkg/private/serrors"
)

// DetectFormat reports whether b is PEM armored with the given block type,
// and DER otherwise.
func DetectFormat(b []byte, pemType string) Format {
	if (PEMConverter{Type: pemType}).LooksLikePEM(b) {
		return PEM
	}
	return DER
}

// ReadCertificates reads all certificates from file. A PEM file may hold
// several blocks. Blocks of other types are skipped. A DER file holds
// exactly one certificate.
func ReadCertificates(file string) ([]*Certificate, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, serrors.Wrap("reading certificates", err, "file", file)
	}
	if DetectFormat(raw, PEMCertificate) == DER {
		c, err := parseCertificate(raw)
		if err != nil {
			return nil, serrors.Wrap("parsing certificate", err, "file", file)
		}
		return []*Certificate{c}, nil
	}
	var certs []*Certificate
	for len(raw) > 0 {
		var block *pem.Block
		block, raw = pem.Decode(raw)
		if block == nil {
			break
		}
		if block.Type != PEMCertificate {
			continue
		}
		c, err := parseCertificate(block.Bytes)
		if err != nil {
			return nil, serrors.Wrap("parsing certificate", err, "file", file,
				"index", len(certs))
		}
		certs = append(certs, c)
	}
	if len(certs) == 0 {
		return nil, serrors.New("no certificate found", "file", file)
	}
	return certs, nil
}

func parseCertificate(der []byte) (*Certificate, error) {
	c, err := NewCertificate(DER, der)
	if err != nil {
		return nil, err
	}
	if _, err := c.Parsed(); err != nil {
		return nil, err
	}
	return c, nil
}

// ReadKey reads a PEM or DER encoded RSA private key from file.
func ReadKey(file string) (*Key, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, serrors.Wrap("reading key", err, "file", file)
	}
	k, err := NewKey(DetectFormat(raw, PEMKey), raw)
	if err != nil {
		return nil, serrors.Wrap("parsing key", err, "file", file)
	}
	// Force the parse so that a broken file fails here.
	if _, err := k.Signer(); err != nil {
		return nil, serrors.Wrap("parsing key", err, "file", file)
	}
	return k, nil
}
