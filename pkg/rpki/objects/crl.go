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
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"math/big"
	"time"

	"github.com/openrpki/rpkid/pkg/private/serrors"
)

// CRL is an X.509 certificate revocation list.
type CRL struct {
	Object[*x509.RevocationList]
}

var crlCodec = &codec[*x509.RevocationList]{
	kind:  "CRL",
	pem:   PEMConverter{Type: PEMCRL},
	parse: x509.ParseRevocationList,
	marshal: func(l *x509.RevocationList) ([]byte, error) {
		if len(l.Raw) == 0 {
			return nil, serrors.New("CRL has no raw encoding")
		}
		return l.Raw, nil
	},
}

// NewCRL creates a CRL from a single representation.
func NewCRL(format Format, value any) (*CRL, error) {
	c := &CRL{}
	if err := c.init(crlCodec, format, value); err != nil {
		return nil, err
	}
	return c, nil
}

// Revocation is one revoked certificate.
type Revocation struct {
	Serial    *big.Int
	RevokedAt time.Time
}

// CreateCRL signs a CRL for issuer listing the given revocations.
func CreateCRL(issuer *x509.Certificate, key crypto.Signer, number *big.Int,
	thisUpdate, nextUpdate time.Time, revoked []Revocation) (*CRL, error) {

	entries := make([]x509.RevocationListEntry, 0, len(revoked))
	for _, r := range revoked {
		entries = append(entries, x509.RevocationListEntry{
			SerialNumber:   r.Serial,
			RevocationTime: r.RevokedAt.UTC(),
		})
	}
	tmpl := &x509.RevocationList{
		SignatureAlgorithm:        x509.SHA256WithRSA,
		RevokedCertificateEntries: entries,
		Number:                    number,
		ThisUpdate:                thisUpdate.UTC(),
		NextUpdate:                nextUpdate.UTC(),
	}
	der, err := x509.CreateRevocationList(rand.Reader, tmpl, issuer, key)
	if err != nil {
		return nil, serrors.Wrap("signing CRL", err, "number", number)
	}
	return NewCRL(DER, der)
}
