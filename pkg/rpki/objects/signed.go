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
	"crypto/x509"
	encoding_asn1 "encoding/asn1"
	"math/big"
	"time"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/rpki/cms"
	"github.com/openrpki/rpkid/pkg/rpki/resources"
)

// Content types of RPKI signed objects.
var (
	OIDContentTypeROA         = encoding_asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 1, 24}
	OIDContentTypeManifest    = encoding_asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 1, 26}
	OIDContentTypeGhostbuster = encoding_asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 1, 35}

	oidSHA256 = encoding_asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
)

var tagVersion = asn1.Tag(0).Constructed().ContextSpecific()

// SignedObject is a parsed RPKI signed object: CMS SignedData with an
// encapsulated content signed by a one-off end-entity certificate.
type SignedObject struct {
	Raw         []byte
	ContentType encoding_asn1.ObjectIdentifier
	Content     []byte
	EE          *x509.Certificate

	msg *cms.Message
}

// CheckSignature verifies the CMS signature against the embedded EE
// certificate.
func (s *SignedObject) CheckSignature() error {
	_, err := s.msg.CheckSignature()
	return err
}

func signedCodec(kind, pemType string,
	contentType encoding_asn1.ObjectIdentifier) *codec[*SignedObject] {

	return &codec[*SignedObject]{
		kind: kind,
		pem:  PEMConverter{Type: pemType},
		parse: func(der []byte) (*SignedObject, error) {
			msg, err := cms.Parse(der)
			if err != nil {
				return nil, err
			}
			if !msg.ContentType.Equal(contentType) {
				return nil, serrors.New("unexpected content type",
					"expected", contentType, "actual", msg.ContentType)
			}
			ee, err := msg.Signer()
			if err != nil {
				return nil, err
			}
			return &SignedObject{
				Raw:         der,
				ContentType: msg.ContentType,
				Content:     msg.Content,
				EE:          ee,
				msg:         msg,
			}, nil
		},
		marshal: func(s *SignedObject) ([]byte, error) {
			if len(s.Raw) == 0 {
				return nil, serrors.New("signed object has no raw encoding")
			}
			return s.Raw, nil
		},
	}
}

var (
	manifestCodec    = signedCodec("manifest", PEMManifest, OIDContentTypeManifest)
	roaCodec         = signedCodec("ROA", PEMROA, OIDContentTypeROA)
	ghostbusterCodec = signedCodec("ghostbuster", PEMGhostbuster, OIDContentTypeGhostbuster)
)

// signObject issues the EE certificate described by ee for eeKey and signs
// content with it.
func signObject(contentType encoding_asn1.ObjectIdentifier, content []byte,
	ee IssueParams, eeKey *Key) ([]byte, error) {

	signer, err := eeKey.Signer()
	if err != nil {
		return nil, err
	}
	ee.CA = false
	ee.SubjectKey = signer.Public()
	cert, err := Issue(ee)
	if err != nil {
		return nil, serrors.Wrap("issuing EE certificate", err)
	}
	parsed, err := cert.Parsed()
	if err != nil {
		return nil, err
	}
	return cms.Sign(content, contentType, signer, []*x509.Certificate{parsed})
}

// Manifest is an RFC 6486 manifest.
type Manifest struct {
	Object[*SignedObject]
}

// NewManifest creates a manifest from a single representation.
func NewManifest(format Format, value any) (*Manifest, error) {
	m := &Manifest{}
	if err := m.init(manifestCodec, format, value); err != nil {
		return nil, err
	}
	return m, nil
}

// FileAndHash is one manifest entry.
type FileAndHash struct {
	Name string
	Hash []byte
}

// ManifestContent is the eContent of a manifest. Hashes are SHA-256.
type ManifestContent struct {
	Number     *big.Int
	ThisUpdate time.Time
	NextUpdate time.Time
	Files      []FileAndHash
}

// Marshal encodes the manifest eContent.
func (m ManifestContent) Marshal() ([]byte, error) {
	if m.Number == nil || m.Number.Sign() < 0 {
		return nil, serrors.New("invalid manifest number", "number", m.Number)
	}
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(m.Number)
		b.AddASN1GeneralizedTime(m.ThisUpdate.UTC())
		b.AddASN1GeneralizedTime(m.NextUpdate.UTC())
		b.AddASN1ObjectIdentifier(oidSHA256)
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			for _, f := range m.Files {
				b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
					b.AddASN1(asn1.IA5String, func(b *cryptobyte.Builder) {
						b.AddBytes([]byte(f.Name))
					})
					b.AddASN1BitString(f.Hash)
				})
			}
		})
	})
	return b.Bytes()
}

// ParseManifestContent decodes a manifest eContent.
func ParseManifestContent(der []byte) (ManifestContent, error) {
	malformed := func(field string) (ManifestContent, error) {
		return ManifestContent{}, serrors.New("malformed manifest", "field", field)
	}
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, asn1.SEQUENCE) || !input.Empty() {
		return malformed("sequence")
	}
	var version int64
	if !seq.ReadOptionalASN1Integer(&version, tagVersion, int64(0)) || version != 0 {
		return malformed("version")
	}
	var (
		m   ManifestContent
		alg encoding_asn1.ObjectIdentifier
	)
	m.Number = new(big.Int)
	if !seq.ReadASN1Integer(m.Number) {
		return malformed("manifestNumber")
	}
	if !seq.ReadASN1GeneralizedTime(&m.ThisUpdate) {
		return malformed("thisUpdate")
	}
	if !seq.ReadASN1GeneralizedTime(&m.NextUpdate) {
		return malformed("nextUpdate")
	}
	if !seq.ReadASN1ObjectIdentifier(&alg) || !alg.Equal(oidSHA256) {
		return malformed("fileHashAlg")
	}
	var files cryptobyte.String
	if !seq.ReadASN1(&files, asn1.SEQUENCE) || !seq.Empty() {
		return malformed("fileList")
	}
	for !files.Empty() {
		var (
			entry cryptobyte.String
			name  cryptobyte.String
			hash  []byte
		)
		if !files.ReadASN1(&entry, asn1.SEQUENCE) ||
			!entry.ReadASN1(&name, asn1.IA5String) ||
			!entry.ReadASN1BitStringAsBytes(&hash) || !entry.Empty() {
			return malformed("fileAndHash")
		}
		m.Files = append(m.Files, FileAndHash{Name: string(name), Hash: hash})
	}
	return m, nil
}

// CreateManifest signs the manifest content with a one-off EE certificate.
// The EE certificate inherits all resources of its issuer.
func CreateManifest(c ManifestContent, ee IssueParams, eeKey *Key) (*Manifest, error) {
	content, err := c.Marshal()
	if err != nil {
		return nil, err
	}
	ee.Resources = &resources.Set{InheritAS: true, InheritV4: true, InheritV6: true}
	if ee.NotBefore.IsZero() {
		ee.NotBefore = c.ThisUpdate
	}
	if ee.NotAfter.IsZero() {
		ee.NotAfter = c.NextUpdate
	}
	der, err := signObject(OIDContentTypeManifest, content, ee, eeKey)
	if err != nil {
		return nil, serrors.Wrap("signing manifest", err, "number", c.Number)
	}
	return NewManifest(DER, der)
}

// Content decodes the manifest eContent.
func (m *Manifest) Content() (ManifestContent, error) {
	s, err := m.Parsed()
	if err != nil {
		return ManifestContent{}, err
	}
	return ParseManifestContent(s.Content)
}

// ROA is an RFC 6482 route origin authorization.
type ROA struct {
	Object[*SignedObject]
}

// NewROA creates a ROA from a single representation.
func NewROA(format Format, value any) (*ROA, error) {
	r := &ROA{}
	if err := r.init(roaCodec, format, value); err != nil {
		return nil, err
	}
	return r, nil
}

// ROAContent is the eContent of a ROA.
type ROAContent struct {
	ASID uint32
	V4   resources.ROAPrefixSet
	V6   resources.ROAPrefixSet
}

// Marshal encodes the ROA eContent.
func (r ROAContent) Marshal() ([]byte, error) {
	blocks, err := resources.EncodeROAIPAddrBlocks(r.V4, r.V6)
	if err != nil {
		return nil, err
	}
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Uint64(uint64(r.ASID))
		b.AddBytes(blocks)
	})
	return b.Bytes()
}

// ParseROAContent decodes a ROA eContent.
func ParseROAContent(der []byte) (ROAContent, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, asn1.SEQUENCE) || !input.Empty() {
		return ROAContent{}, serrors.New("malformed ROA", "field", "sequence")
	}
	var version int64
	if !seq.ReadOptionalASN1Integer(&version, tagVersion, int64(0)) || version != 0 {
		return ROAContent{}, serrors.New("malformed ROA", "field", "version")
	}
	var asID uint32
	if !seq.ReadASN1Integer(&asID) {
		return ROAContent{}, serrors.New("malformed ROA", "field", "asID")
	}
	v4, v6, err := resources.ParseROAIPAddrBlocks([]byte(seq))
	if err != nil {
		return ROAContent{}, err
	}
	return ROAContent{ASID: asID, V4: v4, V6: v6}, nil
}

// Resources returns the resources the EE certificate of the ROA must carry.
func (r ROAContent) Resources() resources.Set {
	return resources.Set{
		V4: r.V4.IPSet(resources.IPv4),
		V6: r.V6.IPSet(resources.IPv6),
	}
}

// CreateROA signs the ROA content with a one-off EE certificate carrying
// exactly the prefixes of the ROA.
func CreateROA(c ROAContent, ee IssueParams, eeKey *Key) (*ROA, error) {
	content, err := c.Marshal()
	if err != nil {
		return nil, err
	}
	res := c.Resources()
	ee.Resources = &res
	der, err := signObject(OIDContentTypeROA, content, ee, eeKey)
	if err != nil {
		return nil, serrors.Wrap("signing ROA", err, "asn", c.ASID)
	}
	return NewROA(DER, der)
}

// Content decodes the ROA eContent.
func (r *ROA) Content() (ROAContent, error) {
	s, err := r.Parsed()
	if err != nil {
		return ROAContent{}, err
	}
	return ParseROAContent(s.Content)
}

// Ghostbuster is an RFC 6493 Ghostbuster record.
type Ghostbuster struct {
	Object[*SignedObject]
}

// NewGhostbuster creates a Ghostbuster record from a single representation.
func NewGhostbuster(format Format, value any) (*Ghostbuster, error) {
	g := &Ghostbuster{}
	if err := g.init(ghostbusterCodec, format, value); err != nil {
		return nil, err
	}
	return g, nil
}

// CreateGhostbuster signs the vCard with a one-off EE certificate that
// inherits all resources of its issuer.
func CreateGhostbuster(vcard []byte, ee IssueParams, eeKey *Key) (*Ghostbuster, error) {
	if len(vcard) == 0 {
		return nil, serrors.New("empty vCard")
	}
	ee.Resources = &resources.Set{InheritAS: true, InheritV4: true, InheritV6: true}
	der, err := signObject(OIDContentTypeGhostbuster, vcard, ee, eeKey)
	if err != nil {
		return nil, serrors.Wrap("signing ghostbuster", err)
	}
	return NewGhostbuster(DER, der)
}

// VCard returns the vCard carried by the record.
func (g *Ghostbuster) VCard() ([]byte, error) {
	s, err := g.Parsed()
	if err != nil {
		return nil, err
	}
	return s.Content, nil
}
