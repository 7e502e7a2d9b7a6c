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
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"strings"

	"github.com/openrpki/rpkid/pkg/private/serrors"
)

var (
	// ErrBadCertificationRequest indicates a certification request that
	// violates the RPKI profile.
	ErrBadCertificationRequest = errors.New("bad certification request")
	// ErrBadExtension indicates an extension that is not allowed.
	ErrBadExtension = errors.New("bad extension")
)

// Request is a PKCS#10 certification request.
type Request struct {
	Object[*x509.CertificateRequest]
}

var requestCodec = &codec[*x509.CertificateRequest]{
	kind:  "request",
	pem:   PEMConverter{Type: PEMRequest},
	parse: x509.ParseCertificateRequest,
	marshal: func(r *x509.CertificateRequest) ([]byte, error) {
		if len(r.Raw) == 0 {
			return nil, serrors.New("request has no raw encoding")
		}
		return r.Raw, nil
	},
}

// NewRequest creates a request from a single representation.
func NewRequest(format Format, value any) (*Request, error) {
	r := &Request{}
	if err := r.init(requestCodec, format, value); err != nil {
		return nil, err
	}
	return r, nil
}

// CreateRequest builds a CA certification request for key that asks for the
// given publication points.
func CreateRequest(key *Key, sia SIA) (*Request, error) {
	signer, err := key.Signer()
	if err != nil {
		return nil, err
	}
	ski, err := key.SKI()
	if err != nil {
		return nil, err
	}
	bc, err := encodeBasicConstraintsCA()
	if err != nil {
		return nil, err
	}
	ku, err := encodeKeyUsage(kuKeyCertSign, kuCRLSign)
	if err != nil {
		return nil, err
	}
	exts := []pkix.Extension{
		{Id: OIDBasicConstraints, Critical: true, Value: bc},
		{Id: OIDKeyUsage, Critical: true, Value: ku},
	}
	if !sia.IsEmpty() {
		v, err := EncodeSIA(sia)
		if err != nil {
			return nil, err
		}
		exts = append(exts, pkix.Extension{Id: OIDSubjectInfoAccess, Value: v})
	}
	tmpl := &x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: HexSKI(ski)},
		SignatureAlgorithm: x509.SHA256WithRSA,
		ExtraExtensions:    exts,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, tmpl, signer)
	if err != nil {
		return nil, serrors.Wrap("creating certification request", err)
	}
	return NewRequest(DER, der)
}

// SIA returns the Subject Information Access URIs requested.
func (r *Request) SIA() (SIA, error) {
	csr, err := r.Parsed()
	if err != nil {
		return SIA{}, err
	}
	for _, ext := range csr.Extensions {
		if ext.Id.Equal(OIDSubjectInfoAccess) {
			return ParseSIA(ext.Value)
		}
	}
	return SIA{}, nil
}

// SKI returns the key identifier of the requested public key.
func (r *Request) SKI() ([]byte, error) {
	csr, err := r.Parsed()
	if err != nil {
		return nil, err
	}
	return skiFromSPKI(csr.RawSubjectPublicKeyInfo)
}

var approvedRequestAlgorithms = map[x509.SignatureAlgorithm]bool{
	x509.SHA256WithRSA: true,
	x509.SHA384WithRSA: true,
	x509.SHA512WithRSA: true,
}

// CheckValidRPKI checks the request against the RPKI profile for CA
// certification requests. All violations match ErrBadCertificationRequest.
// A disallowed extension additionally matches ErrBadExtension.
func (r *Request) CheckValidRPKI() error {
	bad := func(reason string, errCtx ...any) error {
		return serrors.JoinNoStack(ErrBadCertificationRequest, nil,
			append([]any{"reason", reason}, errCtx...)...)
	}
	csr, err := r.Parsed()
	if err != nil {
		return serrors.JoinNoStack(ErrBadCertificationRequest, err)
	}
	if err := csr.CheckSignature(); err != nil {
		return serrors.JoinNoStack(ErrBadCertificationRequest, err,
			"reason", "signature does not verify")
	}
	if csr.Version != 0 {
		return bad("unexpected version", "version", csr.Version)
	}
	if !approvedRequestAlgorithms[csr.SignatureAlgorithm] {
		return bad("signature algorithm not approved", "algorithm", csr.SignatureAlgorithm)
	}
	var bc, ku, sia []byte
	for _, ext := range csr.Extensions {
		switch {
		case ext.Id.Equal(OIDBasicConstraints):
			bc = ext.Value
		case ext.Id.Equal(OIDKeyUsage):
			ku = ext.Value
		case ext.Id.Equal(OIDSubjectInfoAccess):
			sia = ext.Value
		default:
			return serrors.JoinNoStack(ErrBadCertificationRequest,
				serrors.JoinNoStack(ErrBadExtension, nil, "oid", ext.Id),
				"reason", "extension not allowed")
		}
	}
	if bc == nil {
		return bad("basic constraints missing")
	}
	ca, pathLen, err := parseBasicConstraints(bc)
	if err != nil {
		return serrors.JoinNoStack(ErrBadCertificationRequest, err)
	}
	if !ca {
		return bad("basic constraints do not mark a CA")
	}
	if pathLen {
		return bad("basic constraints carry a path length")
	}
	if ku != nil {
		bits, err := parseKeyUsage(ku)
		if err != nil {
			return serrors.JoinNoStack(ErrBadCertificationRequest, err)
		}
		if len(bits) != 2 || !bits[kuKeyCertSign] || !bits[kuCRLSign] {
			return bad("key usage must be keyCertSign and cRLSign")
		}
	}
	if sia == nil {
		return bad("subject information access missing")
	}
	ds, err := parseAccessDescriptions(sia)
	if err != nil {
		return serrors.JoinNoStack(ErrBadCertificationRequest, err)
	}
	for _, d := range ds {
		if !d.method.Equal(OIDCARepository) {
			continue
		}
		if d.nonURI {
			return bad("caRepository is not a URI")
		}
		if isRsyncURI(d.uri) && !strings.HasSuffix(d.uri, "/") {
			return bad("caRepository rsync URI must end with a slash", "uri", d.uri)
		}
	}
	return nil
}
