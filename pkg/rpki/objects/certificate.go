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
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	encoding_asn1 "encoding/asn1"
	"errors"
	"math/big"
	"time"

	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/rpki/resources"
)

// DefaultValidity is the lifetime of issued certificates if no expiration is
// given.
const DefaultValidity = 30 * 24 * time.Hour

var (
	// ErrResourcesExceeded indicates that a certificate would carry resources
	// its issuer does not hold.
	ErrResourcesExceeded = errors.New("resources exceed issuer holdings")
)

// Certificate is an X.509 resource certificate.
type Certificate struct {
	Object[*x509.Certificate]
}

var certificateCodec = &codec[*x509.Certificate]{
	kind:  "certificate",
	pem:   PEMConverter{Type: PEMCertificate},
	parse: x509.ParseCertificate,
	marshal: func(c *x509.Certificate) ([]byte, error) {
		if len(c.Raw) == 0 {
			return nil, serrors.New("certificate has no raw encoding")
		}
		return c.Raw, nil
	},
}

// NewCertificate creates a certificate from a single representation.
func NewCertificate(format Format, value any) (*Certificate, error) {
	c := &Certificate{}
	if err := c.init(certificateCodec, format, value); err != nil {
		return nil, err
	}
	return c, nil
}

// Equal reports whether both certificates have the same DER encoding.
func (c *Certificate) Equal(o *Certificate) bool {
	a, err := c.DER()
	if err != nil {
		return false
	}
	b, err := o.DER()
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// SKI returns the subject key identifier. If the certificate carries no SKI
// extension, it is computed from the public key.
func (c *Certificate) SKI() ([]byte, error) {
	cert, err := c.Parsed()
	if err != nil {
		return nil, err
	}
	if len(cert.SubjectKeyId) != 0 {
		return cert.SubjectKeyId, nil
	}
	return skiFromSPKI(cert.RawSubjectPublicKeyInfo)
}

// GSKI returns the g(SKI) of the certificate.
func (c *Certificate) GSKI() (string, error) {
	ski, err := c.SKI()
	if err != nil {
		return "", err
	}
	return GSKI(ski), nil
}

// SIA returns the Subject Information Access URIs. A certificate without the
// extension returns an empty SIA.
func (c *Certificate) SIA() (SIA, error) {
	cert, err := c.Parsed()
	if err != nil {
		return SIA{}, err
	}
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(OIDSubjectInfoAccess) {
			return ParseSIA(ext.Value)
		}
	}
	return SIA{}, nil
}

// Get3779Resources extracts the RFC 3779 resources of the certificate. If
// bound is not nil, each family is intersected with it. The NotAfter field of
// the result is the expiration of the certificate.
func (c *Certificate) Get3779Resources(bound *resources.Set) (resources.Set, error) {
	cert, err := c.Parsed()
	if err != nil {
		return resources.Set{}, err
	}
	return get3779Resources(cert, bound)
}

func get3779Resources(cert *x509.Certificate, bound *resources.Set) (resources.Set, error) {
	var r resources.Set
	for _, ext := range cert.Extensions {
		switch {
		case ext.Id.Equal(resources.OIDASIdentifiers):
			as, err := resources.ParseASIdentifiers(ext.Value)
			if err != nil {
				return resources.Set{}, err
			}
			r.AS, r.InheritAS = as.AS, as.InheritAS
		case ext.Id.Equal(resources.OIDIPAddrBlocks):
			ip, err := resources.ParseIPAddrBlocks(ext.Value)
			if err != nil {
				return resources.Set{}, err
			}
			r.V4, r.InheritV4 = ip.V4, ip.InheritV4
			r.V6, r.InheritV6 = ip.V6, ip.InheritV6
		}
	}
	if bound != nil {
		r = r.Intersect(*bound)
	}
	r.NotAfter = cert.NotAfter
	return r, nil
}

// IssueParams are the inputs to Issue.
type IssueParams struct {
	// Issuer is the issuing certificate. If nil, the certificate is
	// self-signed and SubjectKey must be the public half of IssuerKey.
	Issuer *x509.Certificate
	// IssuerKey signs the certificate.
	IssuerKey crypto.Signer
	// SubjectKey is the public key being certified.
	SubjectKey crypto.PublicKey
	// Serial is the serial number. If nil, a random serial is used.
	Serial *big.Int
	// SIA are the subject information access URIs.
	SIA SIA
	// AIA are the caIssuers URIs. Empty for a trust anchor.
	AIA []string
	// CRLDP are the CRL distribution point URIs. Empty for a trust anchor.
	CRLDP []string
	// CN is the subject common name. If empty, the upper-case hex SKI is
	// used.
	CN string
	// NotBefore defaults to the current time.
	NotBefore time.Time
	// NotAfter defaults to NotBefore plus DefaultValidity.
	NotAfter time.Time
	// Resources are the RFC 3779 resources. Nil means none.
	Resources *resources.Set
	// CA selects a CA certificate instead of an end-entity certificate.
	CA bool
}

// Issue creates and signs a resource certificate. The extensions are, in
// order: SKI, AKI, CRL distribution points, AIA, SIA, certificate policies,
// basic constraints and key usage for CAs or key usage for end entities, and
// finally the AS and IP resource extensions if present. The certificate is
// signed once all extensions are assembled.
//
// If the certificate has an issuer, every resource family that is not
// inherited must be held by the issuer, otherwise ErrResourcesExceeded is
// returned.
func Issue(p IssueParams) (*Certificate, error) {
	if p.IssuerKey == nil {
		return nil, serrors.New("issuer key not set")
	}
	if p.SubjectKey == nil {
		return nil, serrors.New("subject key not set")
	}
	ski, err := SKI(p.SubjectKey)
	if err != nil {
		return nil, err
	}
	aki := ski
	if p.Issuer != nil {
		if aki = p.Issuer.SubjectKeyId; len(aki) == 0 {
			if aki, err = skiFromSPKI(p.Issuer.RawSubjectPublicKeyInfo); err != nil {
				return nil, err
			}
		}
		if p.Resources != nil {
			held, err := get3779Resources(p.Issuer, nil)
			if err != nil {
				return nil, serrors.Wrap("reading issuer resources", err)
			}
			if !holds(held, *p.Resources) {
				return nil, serrors.JoinNoStack(ErrResourcesExceeded, nil,
					"requested", p.Resources, "held", held)
			}
		}
	}
	serial := p.Serial
	if serial == nil {
		if serial, err = randomSerial(); err != nil {
			return nil, err
		}
	}
	cn := p.CN
	if cn == "" {
		cn = HexSKI(ski)
	}
	notBefore := p.NotBefore
	if notBefore.IsZero() {
		notBefore = time.Now()
	}
	notAfter := p.NotAfter
	if notAfter.IsZero() {
		notAfter = notBefore.Add(DefaultValidity)
	}
	exts, err := buildExtensions(p, ski, aki)
	if err != nil {
		return nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber:       serial,
		Subject:            pkix.Name{CommonName: cn},
		NotBefore:          notBefore.UTC(),
		NotAfter:           notAfter.UTC(),
		SignatureAlgorithm: x509.SHA256WithRSA,
		ExtraExtensions:    exts,
	}
	parent := tmpl
	if p.Issuer != nil {
		parent = p.Issuer
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, p.SubjectKey, p.IssuerKey)
	if err != nil {
		return nil, serrors.Wrap("signing certificate", err, "cn", cn)
	}
	return NewCertificate(DER, der)
}

func buildExtensions(p IssueParams, ski, aki []byte) ([]pkix.Extension, error) {
	type ext struct {
		id       encoding_asn1.ObjectIdentifier
		critical bool
		encode   func() ([]byte, error)
		skip     bool
	}
	var kuBits []int
	if p.CA {
		kuBits = []int{kuKeyCertSign, kuCRLSign}
	} else {
		kuBits = []int{kuDigitalSignature}
	}
	var res resources.Set
	if p.Resources != nil {
		res = *p.Resources
	}
	specs := []ext{
		{id: OIDSubjectKeyID, encode: func() ([]byte, error) { return encodeSKI(ski) }},
		{id: OIDAuthorityKeyID, encode: func() ([]byte, error) { return encodeAKI(aki) }},
		{id: OIDCRLDistributionPoints, skip: len(p.CRLDP) == 0,
			encode: func() ([]byte, error) { return encodeCRLDP(p.CRLDP) }},
		{id: OIDAuthorityInfoAccess, skip: len(p.AIA) == 0,
			encode: func() ([]byte, error) { return encodeAIA(p.AIA) }},
		{id: OIDSubjectInfoAccess, skip: p.SIA.IsEmpty(),
			encode: func() ([]byte, error) { return EncodeSIA(p.SIA) }},
		{id: OIDCertificatePolicies, critical: true, encode: encodePolicies},
		{id: OIDBasicConstraints, critical: true, skip: !p.CA, encode: encodeBasicConstraintsCA},
		{id: OIDKeyUsage, critical: true,
			encode: func() ([]byte, error) { return encodeKeyUsage(kuBits...) }},
		{id: resources.OIDASIdentifiers, critical: true,
			encode: func() ([]byte, error) { return resources.EncodeASIdentifiers(res) }},
		{id: resources.OIDIPAddrBlocks, critical: true,
			encode: func() ([]byte, error) { return resources.EncodeIPAddrBlocks(res) }},
	}
	exts := make([]pkix.Extension, 0, len(specs))
	for _, s := range specs {
		if s.skip {
			continue
		}
		v, err := s.encode()
		if err != nil {
			return nil, serrors.Wrap("encoding extension", err, "oid", s.id)
		}
		// Resource extensions encode to nothing if the family set is empty.
		if v == nil {
			continue
		}
		exts = append(exts, pkix.Extension{Id: s.id, Critical: s.critical, Value: v})
	}
	return exts, nil
}

// holds reports whether held covers every family of req that is not
// inherited. Families the holder inherits cannot be checked locally and are
// accepted.
func holds(held, req resources.Set) bool {
	if !req.InheritAS && !held.InheritAS && !held.AS.Contains(req.AS) {
		return false
	}
	if !req.InheritV4 && !held.InheritV4 && !held.V4.Contains(req.V4) {
		return false
	}
	if !req.InheritV6 && !held.InheritV6 && !held.V6.Contains(req.V6) {
		return false
	}
	return true
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 159)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, serrors.Wrap("generating serial", err)
	}
	return n.Add(n, big.NewInt(1)), nil
}
