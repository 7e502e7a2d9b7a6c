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
	encoding_asn1 "encoding/asn1"
	"strings"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/openrpki/rpkid/pkg/private/serrors"
)

// Extension identifiers.
var (
	OIDSubjectKeyID          = encoding_asn1.ObjectIdentifier{2, 5, 29, 14}
	OIDKeyUsage              = encoding_asn1.ObjectIdentifier{2, 5, 29, 15}
	OIDBasicConstraints      = encoding_asn1.ObjectIdentifier{2, 5, 29, 19}
	OIDCRLDistributionPoints = encoding_asn1.ObjectIdentifier{2, 5, 29, 31}
	OIDCertificatePolicies   = encoding_asn1.ObjectIdentifier{2, 5, 29, 32}
	OIDAuthorityKeyID        = encoding_asn1.ObjectIdentifier{2, 5, 29, 35}
	OIDAuthorityInfoAccess   = encoding_asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 1}
	OIDSubjectInfoAccess     = encoding_asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 11}

	// OIDPolicyRPKI is id-cp-ipAddr-asNumber, the RPKI certificate policy.
	OIDPolicyRPKI = encoding_asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 14, 2}
)

// Access methods.
var (
	OIDCAIssuers    = encoding_asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 2}
	OIDCARepository = encoding_asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 5}
	OIDRPKIManifest = encoding_asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 10}
	OIDSignedObject = encoding_asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 11}
	OIDRPKINotify   = encoding_asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 13}
)

// Key usage bits as numbered in RFC 5280.
const (
	kuDigitalSignature = 0
	kuKeyCertSign      = 5
	kuCRLSign          = 6
)

var (
	tagURI   = asn1.Tag(6).ContextSpecific()
	tagKeyID = asn1.Tag(0).ContextSpecific()
	tagDPN   = asn1.Tag(0).Constructed().ContextSpecific()
	tagFull  = asn1.Tag(0).Constructed().ContextSpecific()
)

// SIA holds the URIs of a Subject Information Access extension.
type SIA struct {
	CARepository []string
	RPKIManifest []string
	SignedObject []string
	RPKINotify   []string
}

// IsEmpty reports whether no access method is set.
func (s SIA) IsEmpty() bool {
	return len(s.CARepository) == 0 && len(s.RPKIManifest) == 0 &&
		len(s.SignedObject) == 0 && len(s.RPKINotify) == 0
}

func (s SIA) descriptions() []accessDescription {
	var d []accessDescription
	add := func(method encoding_asn1.ObjectIdentifier, uris []string) {
		for _, uri := range uris {
			d = append(d, accessDescription{method: method, uri: uri})
		}
	}
	add(OIDCARepository, s.CARepository)
	add(OIDRPKIManifest, s.RPKIManifest)
	add(OIDSignedObject, s.SignedObject)
	add(OIDRPKINotify, s.RPKINotify)
	return d
}

type accessDescription struct {
	method encoding_asn1.ObjectIdentifier
	uri    string
	// nonURI is set if the access location is not a uniformResourceIdentifier.
	nonURI bool
}

func encodeAccessDescriptions(ds []accessDescription) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		for _, d := range ds {
			b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1ObjectIdentifier(d.method)
				b.AddASN1(tagURI, func(b *cryptobyte.Builder) {
					b.AddBytes([]byte(d.uri))
				})
			})
		}
	})
	return b.Bytes()
}

func parseAccessDescriptions(der []byte) ([]accessDescription, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, asn1.SEQUENCE) || !input.Empty() {
		return nil, serrors.New("malformed access descriptions")
	}
	var ds []accessDescription
	for !seq.Empty() {
		var (
			desc   cryptobyte.String
			method encoding_asn1.ObjectIdentifier
			loc    cryptobyte.String
			tag    asn1.Tag
		)
		if !seq.ReadASN1(&desc, asn1.SEQUENCE) ||
			!desc.ReadASN1ObjectIdentifier(&method) ||
			!desc.ReadAnyASN1(&loc, &tag) || !desc.Empty() {
			return nil, serrors.New("malformed access description")
		}
		d := accessDescription{method: method}
		if tag == tagURI {
			d.uri = string(loc)
		} else {
			d.nonURI = true
		}
		ds = append(ds, d)
	}
	return ds, nil
}

// EncodeSIA encodes the value of a Subject Information Access extension.
func EncodeSIA(s SIA) ([]byte, error) {
	return encodeAccessDescriptions(s.descriptions())
}

// ParseSIA decodes the value of a Subject Information Access extension.
// Access locations that are not URIs are skipped, except for caRepository
// where they are an error.
func ParseSIA(der []byte) (SIA, error) {
	ds, err := parseAccessDescriptions(der)
	if err != nil {
		return SIA{}, err
	}
	var s SIA
	for _, d := range ds {
		if d.nonURI {
			if d.method.Equal(OIDCARepository) {
				return SIA{}, serrors.New("caRepository access location is not a URI")
			}
			continue
		}
		switch {
		case d.method.Equal(OIDCARepository):
			s.CARepository = append(s.CARepository, d.uri)
		case d.method.Equal(OIDRPKIManifest):
			s.RPKIManifest = append(s.RPKIManifest, d.uri)
		case d.method.Equal(OIDSignedObject):
			s.SignedObject = append(s.SignedObject, d.uri)
		case d.method.Equal(OIDRPKINotify):
			s.RPKINotify = append(s.RPKINotify, d.uri)
		}
	}
	return s, nil
}

func encodeAIA(uris []string) ([]byte, error) {
	ds := make([]accessDescription, 0, len(uris))
	for _, uri := range uris {
		ds = append(ds, accessDescription{method: OIDCAIssuers, uri: uri})
	}
	return encodeAccessDescriptions(ds)
}

func encodeCRLDP(uris []string) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1(tagDPN, func(b *cryptobyte.Builder) {
				b.AddASN1(tagFull, func(b *cryptobyte.Builder) {
					for _, uri := range uris {
						b.AddASN1(tagURI, func(b *cryptobyte.Builder) {
							b.AddBytes([]byte(uri))
						})
					}
				})
			})
		})
	})
	return b.Bytes()
}

func encodeSKI(ski []byte) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1OctetString(ski)
	return b.Bytes()
}

func encodeAKI(keyID []byte) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(tagKeyID, func(b *cryptobyte.Builder) {
			b.AddBytes(keyID)
		})
	})
	return b.Bytes()
}

func encodePolicies() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(OIDPolicyRPKI)
		})
	})
	return b.Bytes()
}

// encodeBasicConstraintsCA encodes cA=TRUE without a path length constraint.
func encodeBasicConstraintsCA() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Boolean(true)
	})
	return b.Bytes()
}

// encodeKeyUsage encodes the given key usage bits as a minimal BIT STRING.
func encodeKeyUsage(bits ...int) ([]byte, error) {
	var (
		buf  [2]byte
		last int
	)
	for _, bit := range bits {
		buf[bit/8] |= 0x80 >> (bit % 8)
		if bit > last {
			last = bit
		}
	}
	n := last/8 + 1
	unused := 7 - last%8
	var b cryptobyte.Builder
	b.AddASN1(asn1.BIT_STRING, func(b *cryptobyte.Builder) {
		b.AddUint8(uint8(unused))
		b.AddBytes(buf[:n])
	})
	return b.Bytes()
}

// parseKeyUsage returns the set bits of a key usage extension value.
func parseKeyUsage(der []byte) (map[int]bool, error) {
	input := cryptobyte.String(der)
	var bs encoding_asn1.BitString
	if !input.ReadASN1BitString(&bs) || !input.Empty() {
		return nil, serrors.New("malformed key usage")
	}
	set := make(map[int]bool)
	for i := 0; i < bs.BitLength; i++ {
		if bs.At(i) == 1 {
			set[i] = true
		}
	}
	return set, nil
}

// parseBasicConstraints returns the cA flag and whether a path length
// constraint is present.
func parseBasicConstraints(der []byte) (bool, bool, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, asn1.SEQUENCE) || !input.Empty() {
		return false, false, serrors.New("malformed basic constraints")
	}
	var ca bool
	if seq.PeekASN1Tag(asn1.BOOLEAN) {
		if !seq.ReadASN1Boolean(&ca) {
			return false, false, serrors.New("malformed basic constraints")
		}
	}
	return ca, !seq.Empty(), nil
}

func isRsyncURI(uri string) bool {
	return strings.HasPrefix(strings.ToLower(uri), "rsync://")
}
