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

// Package cmstest provides BPKI fixtures for tests of CMS protected
// protocols.
package cmstest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/pkg/rpki/cms"
)

// BPKI is a trust anchor with a single end-entity certificate.
type BPKI struct {
	// TADER is the DER encoded trust anchor.
	TADER []byte
	// EE is the end-entity certificate issued by the trust anchor.
	EE *x509.Certificate
	// Key is the private key of EE.
	Key *ecdsa.PrivateKey
}

// New creates a BPKI whose EE certificate is valid for a day.
func New(t testing.TB, cn string) BPKI {
	t.Helper()
	taKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	eeKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	now := time.Now()
	taTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: cn + " TA"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(48 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	taDER, err := x509.CreateCertificate(rand.Reader, taTmpl, taTmpl, taKey.Public(), taKey)
	require.NoError(t, err)
	ta, err := x509.ParseCertificate(taDER)
	require.NoError(t, err)
	eeDER, err := x509.CreateCertificate(rand.Reader, &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: cn + " EE"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}, ta, eeKey.Public(), taKey)
	require.NoError(t, err)
	ee, err := x509.ParseCertificate(eeDER)
	require.NoError(t, err)
	return BPKI{TADER: taDER, EE: ee, Key: eeKey}
}

// Identity returns the signing identity of the EE certificate.
func (b BPKI) Identity() cms.Identity {
	return cms.Identity{Signer: b.Key, Chain: []*x509.Certificate{b.EE}}
}

// Sign signs content with the EE certificate.
func (b BPKI) Sign(t testing.TB, content []byte) []byte {
	t.Helper()
	der, err := b.Identity().Sign(content)
	require.NoError(t, err)
	return der
}
