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

// Package objtest provides RPKI object fixtures for tests.
package objtest

import (
	"crypto/x509"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/pkg/rpki/resources"
)

// KeyBits is the modulus size of fixture keys. It is small to keep tests
// fast.
const KeyBits = 1024

var (
	keysMtx sync.Mutex
	keys    []*objects.Key
)

// Key returns the i-th fixture key. Keys are generated once per process and
// shared between tests.
func Key(t testing.TB, i int) *objects.Key {
	t.Helper()
	keysMtx.Lock()
	defer keysMtx.Unlock()
	for len(keys) <= i {
		k, err := objects.GenerateKey(KeyBits)
		require.NoError(t, err)
		keys = append(keys, k)
	}
	return keys[i]
}

// SIA returns the SIA of a CA publishing under base, which must end with a
// slash.
func SIA(base string) objects.SIA {
	return objects.SIA{
		CARepository: []string{base},
		RPKIManifest: []string{base + "manifest.mft"},
	}
}

// TA creates a self-signed CA certificate for key holding res.
func TA(t testing.TB, key *objects.Key, res resources.Set) *objects.Certificate {
	t.Helper()
	signer, err := key.Signer()
	require.NoError(t, err)
	cert, err := objects.Issue(objects.IssueParams{
		IssuerKey:  signer,
		SubjectKey: signer.Public(),
		Serial:     big.NewInt(1),
		SIA:        SIA("rsync://example.net/ta/"),
		CN:         "TA",
		NotBefore:  time.Now().Add(-time.Hour),
		NotAfter:   time.Now().Add(365 * 24 * time.Hour),
		Resources:  &res,
		CA:         true,
	})
	require.NoError(t, err)
	return cert
}

// Child issues a CA certificate for subject holding res.
func Child(t testing.TB, issuer *objects.Certificate, issuerKey, subject *objects.Key,
	res resources.Set, cn string) *objects.Certificate {

	t.Helper()
	parent, err := issuer.Parsed()
	require.NoError(t, err)
	signer, err := issuerKey.Signer()
	require.NoError(t, err)
	pub, err := subject.Public()
	require.NoError(t, err)
	cert, err := objects.Issue(objects.IssueParams{
		Issuer:     parent,
		IssuerKey:  signer,
		SubjectKey: pub,
		SIA:        SIA("rsync://example.net/" + cn + "/"),
		AIA:        []string{"rsync://example.net/parent.cer"},
		CRLDP:      []string{"rsync://example.net/parent.crl"},
		CN:         cn,
		NotBefore:  time.Now().Add(-time.Hour),
		Resources:  &res,
		CA:         true,
	})
	require.NoError(t, err)
	return cert
}

// Chain creates a linear chain of n CA certificates, returned leaf first.
// The last element is a self-signed trust anchor.
func Chain(t testing.TB, n int) []*objects.Certificate {
	t.Helper()
	res := resources.MustParse("64496-64511", "192.0.2.0/24", "2001:db8::/32")
	chain := make([]*objects.Certificate, n)
	chain[n-1] = TA(t, Key(t, n-1), res)
	for i := n - 2; i >= 0; i-- {
		chain[i] = Child(t, chain[i+1], Key(t, i+1), Key(t, i), res, fmt.Sprintf("ca%d", i))
	}
	return chain
}

// X509 returns the parsed form of c.
func X509(t testing.TB, c *objects.Certificate) *x509.Certificate {
	t.Helper()
	parsed, err := c.Parsed()
	require.NoError(t, err)
	return parsed
}
