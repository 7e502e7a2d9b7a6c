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

// Package cms signs and verifies CMS SignedData messages with encapsulated
// content. It is used for the protocol messages as well as for RPKI signed
// objects.
package cms

import (
	"bytes"
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/arc/v2"
	"github.com/scionproto/scion/pkg/scrypto/cms/oid"
	"github.com/scionproto/scion/pkg/scrypto/cms/protocol"

	"github.com/openrpki/rpkid/pkg/private/serrors"
)

var (
	// ErrVerification indicates that a message could not be authenticated.
	ErrVerification = errors.New("CMS verification failed")
	// ErrMalformed indicates that a message could not be parsed.
	ErrMalformed = errors.New("malformed CMS message")
)

// ContentTypeData is the id-data content type used for protocol messages.
var ContentTypeData = oid.ContentTypeData

// Message is a parsed SignedData message.
type Message struct {
	// Raw is the full ContentInfo encoding.
	Raw []byte
	// ContentType is the eContentType of the encapsulated content.
	ContentType asn1.ObjectIdentifier
	// Content is the encapsulated content.
	Content []byte
	// Certificates are the certificates embedded in the message.
	Certificates []*x509.Certificate
	// SigningTime is the signing-time attribute of the signer, if present.
	SigningTime time.Time

	signerInfos []protocol.SignerInfo
}

// Sign wraps content in a SignedData message signed by signer. The chain must
// contain the certificate of signer and is embedded in the message.
func Sign(content []byte, contentType asn1.ObjectIdentifier, signer crypto.Signer,
	chain []*x509.Certificate) ([]byte, error) {

	if contentType == nil {
		contentType = oid.ContentTypeData
	}
	eci, err := protocol.NewEncapsulatedContentInfo(contentType, content)
	if err != nil {
		return nil, serrors.Wrap("creating encapsulated content", err)
	}
	sd, err := protocol.NewSignedData(eci)
	if err != nil {
		return nil, serrors.Wrap("creating signed data", err)
	}
	if err := sd.AddSignerInfo(chain, signer); err != nil {
		return nil, serrors.Wrap("adding signer info", err)
	}
	return sd.ContentInfoDER()
}

// Parse decodes a SignedData message without verifying it.
func Parse(der []byte) (*Message, error) {
	ci, err := protocol.ParseContentInfo(der)
	if err != nil {
		return nil, serrors.Join(ErrMalformed, err, "stage", "content info")
	}
	sd, err := ci.SignedDataContent()
	if err != nil {
		return nil, serrors.Join(ErrMalformed, err, "stage", "signed data")
	}
	content, err := sd.EncapContentInfo.EContentValue()
	if err != nil {
		return nil, serrors.Join(ErrMalformed, err, "stage", "content")
	}
	if content == nil {
		return nil, serrors.JoinNoStack(ErrMalformed, nil, "reason", "detached content")
	}
	certs, err := sd.X509Certificates()
	if err != nil {
		return nil, serrors.Join(ErrMalformed, err, "stage", "certificates")
	}
	m := &Message{
		Raw:          der,
		ContentType:  sd.EncapContentInfo.EContentType,
		Content:      content,
		Certificates: certs,
		signerInfos:  sd.SignerInfos,
	}
	if len(sd.SignerInfos) == 1 {
		if st, err := sd.SignerInfos[0].GetSigningTimeAttribute(); err == nil {
			m.SigningTime = st
		}
	}
	return m, nil
}

// Signer returns the certificate of the single signer of the message.
func (m *Message) Signer() (*x509.Certificate, error) {
	if len(m.signerInfos) != 1 {
		return nil, serrors.JoinNoStack(ErrVerification, nil,
			"reason", "expected exactly one signer", "signers", len(m.signerInfos))
	}
	cert, err := m.signerInfos[0].FindCertificate(m.Certificates)
	if err != nil {
		return nil, serrors.Join(ErrVerification, err, "reason", "signer certificate")
	}
	return cert, nil
}

// CheckSignature verifies the signature of the single signer against its
// embedded certificate. It does not check any certificate path.
func (m *Message) CheckSignature() (*x509.Certificate, error) {
	cert, err := m.Signer()
	if err != nil {
		return nil, err
	}
	si := m.signerInfos[0]
	if si.SignedAttrs == nil {
		return nil, serrors.JoinNoStack(ErrVerification, nil, "reason", "no signed attributes")
	}
	ct, err := si.GetContentTypeAttribute()
	if err != nil {
		return nil, serrors.Join(ErrVerification, err, "reason", "content type attribute")
	}
	if !ct.Equal(m.ContentType) {
		return nil, serrors.JoinNoStack(ErrVerification, nil,
			"reason", "content type mismatch", "attribute", ct, "content", m.ContentType)
	}
	hash, err := si.Hash()
	if err != nil {
		return nil, serrors.Join(ErrVerification, err, "reason", "digest algorithm")
	}
	attrDigest, err := si.GetMessageDigestAttribute()
	if err != nil {
		return nil, serrors.Join(ErrVerification, err, "reason", "message digest attribute")
	}
	actual := hash.New()
	actual.Write(m.Content)
	if !bytes.Equal(attrDigest, actual.Sum(nil)) {
		return nil, serrors.JoinNoStack(ErrVerification, nil, "reason", "message digest mismatch")
	}
	input, err := si.SignedAttrs.MarshaledForVerifying()
	if err != nil {
		return nil, serrors.Join(ErrVerification, err, "reason", "signed attributes")
	}
	if err := cert.CheckSignature(si.X509SignatureAlgorithm(), input, si.Signature); err != nil {
		return nil, serrors.Join(ErrVerification, err, "reason", "signature")
	}
	return cert, nil
}

// Verifier verifies messages against trust anchors. Parsed trust anchors are
// cached by the digest of their DER encoding. A Verifier is safe for
// concurrent use.
type Verifier struct {
	// Now returns the verification time. If nil, time.Now is used.
	Now func() time.Time

	anchors *arc.ARCCache[[sha256.Size]byte, *x509.Certificate]
}

// NewVerifier creates a verifier that caches up to size trust anchors.
func NewVerifier(size int) (*Verifier, error) {
	c, err := arc.NewARC[[sha256.Size]byte, *x509.Certificate](size)
	if err != nil {
		return nil, serrors.Wrap("creating trust anchor cache", err, "size", size)
	}
	return &Verifier{anchors: c}, nil
}

// Anchor returns the parsed trust anchor for the given DER encoding.
func (v *Verifier) Anchor(der []byte) (*x509.Certificate, error) {
	key := sha256.Sum256(der)
	if cert, ok := v.anchors.Get(key); ok {
		return cert, nil
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, serrors.Wrap("parsing trust anchor", err)
	}
	v.anchors.Add(key, cert)
	return cert, nil
}

// Verify parses der, checks the signature of its single signer and checks
// that the signer certificate chains to the trust anchor given in DER form.
// Intermediate certificates embedded in the message are used for path
// building.
func (v *Verifier) Verify(der, anchorDER []byte) (*Message, error) {
	anchor, err := v.Anchor(anchorDER)
	if err != nil {
		return nil, serrors.Join(ErrVerification, err)
	}
	m, err := Parse(der)
	if err != nil {
		return nil, err
	}
	cert, err := m.CheckSignature()
	if err != nil {
		return nil, err
	}
	roots := x509.NewCertPool()
	roots.AddCert(anchor)
	inter := x509.NewCertPool()
	for _, c := range m.Certificates {
		if c != cert {
			inter.AddCert(c)
		}
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	_, err = cert.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: inter,
		CurrentTime:   now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, serrors.Join(ErrVerification, err, "reason", "certificate path",
			"signer", cert.Subject)
	}
	return m, nil
}

// Identity is a BPKI signing identity: a key and the certificate chain of
// that key, leaf first.
type Identity struct {
	Signer crypto.Signer
	Chain  []*x509.Certificate
}

// Sign wraps content in a SignedData message of type id-data.
func (id Identity) Sign(content []byte) ([]byte, error) {
	if id.Signer == nil || len(id.Chain) == 0 {
		return nil, serrors.New("signing identity not configured")
	}
	return Sign(content, ContentTypeData, id.Signer, id.Chain)
}
