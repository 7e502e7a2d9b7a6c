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

package model

import (
	"math/big"
	"strings"
	"time"

	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/pkg/rpki/resources"
	"github.com/openrpki/rpkid/private/storage/persist"
)

// Defaults for the per-self timing parameters.
const (
	DefaultCRLInterval = 6 * time.Hour
	DefaultRegenMargin = 2 * time.Hour
)

// ErrNoCertificate indicates a self that holds no certificate yet.
var ErrNoCertificate = serrors.New("self holds no certificate")

// Self is a locally hosted CA.
type Self struct {
	persist.Base

	Handle      string
	CRLInterval time.Duration
	RegenMargin time.Duration
	// SIABase is the rsync URI of the publication point, ending in "/".
	SIABase string
	// TAResources are the resources of a self without parents, which
	// certifies itself as trust anchor.
	TAResources resources.Set

	KeyDER  []byte
	CertDER []byte
	CertURI string

	NextSerial     int64
	CRLNumber      int64
	CRLDER         []byte
	ManifestNumber int64
	ManifestDER    []byte
	// NextUpdate is the nextUpdate of the current CRL and manifest.
	NextUpdate time.Time
	// CRLStale marks a change of the published object set that the CRL
	// and manifest do not reflect yet.
	CRLStale bool
	// PendingRevokeSKIs are the gSKIs of retired keys whose certificates
	// are still to be revoked by the parent, oldest first.
	PendingRevokeSKIs []string
	ReissuePending    bool

	Repositories        persist.Collection[Repository, *Repository]
	Parents             persist.Collection[Parent, *Parent]
	Children            persist.Collection[Child, *Child]
	ROARequests         persist.Collection[ROARequest, *ROARequest]
	GhostbusterRequests persist.Collection[GhostbusterRequest, *GhostbusterRequest]
	RevokedCertificates persist.Collection[RevokedCert, *RevokedCert]
}

// NewSelf returns a self with default parameters.
func NewSelf(handle string) *Self {
	return &Self{
		Handle:      handle,
		CRLInterval: DefaultCRLInterval,
		RegenMargin: DefaultRegenMargin,
		NextSerial:  1,
		CRLNumber:   0,
	}
}

func (*Self) Table() persist.Table {
	return persist.Table{
		Name:     "self",
		IDColumn: "self_id",
		Columns: []string{"self_handle", "crl_interval", "regen_margin", "sia_base",
			"ta_as", "ta_ipv4", "ta_ipv6", "key_der", "cert_der", "cert_uri",
			"next_serial", "crl_number", "crl_der", "manifest_number", "manifest_der",
			"next_update", "crl_stale", "pending_revoke_skis", "reissue_pending"},
	}
}

func (s *Self) Encode() (map[string]any, error) {
	return map[string]any{
		"self_handle":         s.Handle,
		"crl_interval":        s.CRLInterval,
		"regen_margin":        s.RegenMargin,
		"sia_base":            s.SIABase,
		"ta_as":               s.TAResources.AS.String(),
		"ta_ipv4":             s.TAResources.V4.String(),
		"ta_ipv6":             s.TAResources.V6.String(),
		"key_der":             s.KeyDER,
		"cert_der":            s.CertDER,
		"cert_uri":            s.CertURI,
		"next_serial":         s.NextSerial,
		"crl_number":          s.CRLNumber,
		"crl_der":             s.CRLDER,
		"manifest_number":     s.ManifestNumber,
		"manifest_der":        s.ManifestDER,
		"next_update":         s.NextUpdate,
		"crl_stale":           s.CRLStale,
		"pending_revoke_skis": strings.Join(s.PendingRevokeSKIs, " "),
		"reissue_pending":     s.ReissuePending,
	}, nil
}

func (s *Self) Decode(r *persist.Row) error {
	s.Handle = r.String("self_handle")
	s.CRLInterval = r.Duration("crl_interval")
	s.RegenMargin = r.Duration("regen_margin")
	s.SIABase = r.String("sia_base")
	ta, err := resources.Parse(r.String("ta_as"), r.String("ta_ipv4"), r.String("ta_ipv6"))
	if err != nil {
		return serrors.Wrap("decoding trust anchor resources", err, "self", s.Handle)
	}
	s.TAResources = ta
	s.KeyDER = r.Bytes("key_der")
	s.CertDER = r.Bytes("cert_der")
	s.CertURI = r.String("cert_uri")
	s.NextSerial = r.Int64("next_serial")
	s.CRLNumber = r.Int64("crl_number")
	s.CRLDER = r.Bytes("crl_der")
	s.ManifestNumber = r.Int64("manifest_number")
	s.ManifestDER = r.Bytes("manifest_der")
	s.NextUpdate = r.Time("next_update")
	s.CRLStale = r.Bool("crl_stale")
	s.PendingRevokeSKIs = strings.Fields(r.String("pending_revoke_skis"))
	s.ReissuePending = r.Bool("reissue_pending")
	return nil
}

func (s *Self) Relations() []persist.Relation {
	return []persist.Relation{
		s.Repositories.On("self_id"),
		s.Parents.On("self_id"),
		s.Children.On("self_id"),
		s.ROARequests.On("self_id"),
		s.GhostbusterRequests.On("self_id"),
		s.RevokedCertificates.On("self_id"),
	}
}

// Key returns the current key pair.
func (s *Self) Key() (*objects.Key, error) {
	if len(s.KeyDER) == 0 {
		return nil, serrors.New("self has no key", "self", s.Handle)
	}
	return objects.NewKey(objects.DER, s.KeyDER)
}

// SetKey replaces the key pair. The certificate of the old key is dropped.
func (s *Self) SetKey(k *objects.Key) error {
	der, err := k.DER()
	if err != nil {
		return err
	}
	s.KeyDER, s.CertDER, s.CertURI = der, nil, ""
	s.MarkDirty()
	return nil
}

// HasCertificate reports whether the self holds a certificate.
func (s *Self) HasCertificate() bool {
	return len(s.CertDER) != 0
}

// Certificate returns the certificate of the current key.
func (s *Self) Certificate() (*objects.Certificate, error) {
	if !s.HasCertificate() {
		return nil, serrors.JoinNoStack(ErrNoCertificate, nil, "self", s.Handle)
	}
	return objects.NewCertificate(objects.DER, s.CertDER)
}

// SetCertificate installs the certificate of the current key, as received
// from the parent at uri.
func (s *Self) SetCertificate(c *objects.Certificate, uri string) error {
	der, err := c.DER()
	if err != nil {
		return err
	}
	s.CertDER, s.CertURI = der, uri
	s.CRLStale = true
	s.MarkDirty()
	return nil
}

// Holdings returns the resources certified to the self.
func (s *Self) Holdings() (resources.Set, error) {
	c, err := s.Certificate()
	if err != nil {
		return resources.Set{}, err
	}
	return c.Get3779Resources(nil)
}

// IsTrustAnchor reports whether the self has no parent and certifies itself.
func (s *Self) IsTrustAnchor() bool {
	return s.Parents.Len() == 0
}

// AllocateSerial returns the next certificate serial number.
func (s *Self) AllocateSerial() *big.Int {
	if s.NextSerial < 1 {
		s.NextSerial = 1
	}
	serial := big.NewInt(s.NextSerial)
	s.NextSerial++
	s.MarkDirty()
	return serial
}

// MarkStale flags the CRL and manifest for regeneration.
func (s *Self) MarkStale() {
	s.CRLStale = true
	s.MarkDirty()
}

// URI returns the publication URI of the named object.
func (s *Self) URI(name string) string {
	return s.SIABase + name
}

// Revoke records the revocation of the certificate with the given serial
// and marks the CRL stale. expires is the certificate's notAfter, after
// which the record can be dropped.
func (s *Self) Revoke(serial int64, revokedAt, expires time.Time) {
	s.RevokedCertificates.Add(&RevokedCert{
		Serial:    serial,
		RevokedAt: revokedAt,
		Expires:   expires,
	})
	s.MarkStale()
}

// Child returns the child with the given handle.
func (s *Self) Child(handle string) (*Child, bool) {
	return s.Children.Find(func(c *Child) bool { return c.Handle == handle })
}

// ChildByID returns the child with the given identifier.
func (s *Self) ChildByID(id int64) (*Child, bool) {
	return s.Children.Find(func(c *Child) bool { return c.ID() == id })
}

// Parent returns the parent with the given handle.
func (s *Self) Parent(handle string) (*Parent, bool) {
	return s.Parents.Find(func(p *Parent) bool { return p.Handle == handle })
}

// Repository returns the repository with the given handle.
func (s *Self) Repository(handle string) (*Repository, bool) {
	return s.Repositories.Find(func(r *Repository) bool { return r.Handle == handle })
}

// ROARequest returns the ROA request with the given handle.
func (s *Self) ROARequest(handle string) (*ROARequest, bool) {
	return s.ROARequests.Find(func(r *ROARequest) bool { return r.Handle == handle })
}

// GhostbusterRequest returns the Ghostbuster request with the given handle.
func (s *Self) GhostbusterRequest(handle string) (*GhostbusterRequest, bool) {
	return s.GhostbusterRequests.Find(func(g *GhostbusterRequest) bool {
		return g.Handle == handle
	})
}

// RevokedCert records a revoked certificate until it expires.
type RevokedCert struct {
	persist.Base

	Serial    int64
	RevokedAt time.Time
	Expires   time.Time
}

func (*RevokedCert) Table() persist.Table {
	return persist.Table{
		Name:     "revoked_cert",
		IDColumn: "revoked_cert_id",
		Columns:  []string{"self_id", "serial", "revoked_at", "expires"},
	}
}

func (r *RevokedCert) Encode() (map[string]any, error) {
	return map[string]any{
		"serial":     r.Serial,
		"revoked_at": r.RevokedAt,
		"expires":    r.Expires,
	}, nil
}

func (r *RevokedCert) Decode(row *persist.Row) error {
	r.Serial = row.Int64("serial")
	r.RevokedAt = row.Time("revoked_at")
	r.Expires = row.Time("expires")
	return nil
}
