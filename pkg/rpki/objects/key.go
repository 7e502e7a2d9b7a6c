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
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/openrpki/rpkid/pkg/private/serrors"
)

// DefaultKeyBits is the RSA modulus size used for new keys.
const DefaultKeyBits = 2048

// Key is an RSA private key. The DER form is PKCS#1.
type Key struct {
	Object[*rsa.PrivateKey]
}

var keyCodec = &codec[*rsa.PrivateKey]{
	kind:  "key",
	pem:   PEMConverter{Type: PEMKey},
	parse: x509.ParsePKCS1PrivateKey,
	marshal: func(k *rsa.PrivateKey) ([]byte, error) {
		return x509.MarshalPKCS1PrivateKey(k), nil
	},
}

// NewKey creates a key from a single representation.
func NewKey(format Format, value any) (*Key, error) {
	k := &Key{}
	if err := k.init(keyCodec, format, value); err != nil {
		return nil, err
	}
	return k, nil
}

// GenerateKey creates a fresh RSA key. A non-positive bits value selects
// DefaultKeyBits.
func GenerateKey(bits int) (*Key, error) {
	if bits <= 0 {
		bits = DefaultKeyBits
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, serrors.Wrap("generating RSA key", err, "bits", bits)
	}
	return NewKey(Parsed, priv)
}

// Signer returns the key as crypto.Signer.
func (k *Key) Signer() (crypto.Signer, error) {
	priv, err := k.Parsed()
	if err != nil {
		return nil, err
	}
	return priv, nil
}

// Public returns the public half of the key.
func (k *Key) Public() (crypto.PublicKey, error) {
	priv, err := k.Parsed()
	if err != nil {
		return nil, err
	}
	return priv.Public(), nil
}

// SKI returns the key identifier of the public half of the key.
func (k *Key) SKI() ([]byte, error) {
	pub, err := k.Public()
	if err != nil {
		return nil, err
	}
	return SKI(pub)
}

// SKI computes the subject key identifier of pub: the SHA-1 digest of the
// subjectPublicKey bit string.
func SKI(pub crypto.PublicKey) ([]byte, error) {
	spki, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, serrors.Wrap("marshaling public key", err)
	}
	return skiFromSPKI(spki)
}

func skiFromSPKI(spki []byte) ([]byte, error) {
	var (
		input = cryptobyte.String(spki)
		inner cryptobyte.String
		bits  []byte
	)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) ||
		!inner.SkipASN1(asn1.SEQUENCE) ||
		!inner.ReadASN1BitStringAsBytes(&bits) {
		return nil, serrors.New("malformed SubjectPublicKeyInfo")
	}
	sum := sha1.Sum(bits)
	return sum[:], nil
}

// GSKI returns the g(SKI) form of a key identifier: URL-safe base64 without
// padding. It names published objects and identifies keys in the up-down
// protocol.
func GSKI(ski []byte) string {
	return base64.RawURLEncoding.EncodeToString(ski)
}

// ParseGSKI reverses GSKI.
func ParseGSKI(s string) ([]byte, error) {
	ski, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, serrors.Wrap("decoding g(SKI)", err, "gski", s)
	}
	return ski, nil
}

// HexSKI returns the upper-case hex form of a key identifier, as used for
// default subject names.
func HexSKI(ski []byte) string {
	return strings.ToUpper(hex.EncodeToString(ski))
}
