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

// Package ca implements the certificate authority operations of a self:
// issuing and revoking child certificates, certifying trust anchors, and
// generating CRLs, manifests, ROAs and Ghostbuster records.
//
// Operations mutate the in-memory entity tree and add the objects to publish
// or withdraw to a publication batch. Persisting the entities and applying
// the batch is up to the caller. An operation that fails validation returns
// before it mutates any entity.
package ca

import (
	"crypto"
	"crypto/x509"
	"errors"
	"slices"
	"time"

	"github.com/openrpki/rpkid/pkg/metrics"
	"github.com/openrpki/rpkid/pkg/private/prom"
	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/pkg/rpki/resources"
	"github.com/openrpki/rpkid/private/publication"
	"github.com/openrpki/rpkid/rpkid/model"
)

var (
	// ErrNoResources indicates that nothing is available to a child.
	ErrNoResources = errors.New("no resources available")
	// ErrRequestExceeds indicates a request for resources beyond what is
	// available to the child.
	ErrRequestExceeds = errors.New("request exceeds available resources")
	// ErrKeyInUse indicates a key that is certified for another child.
	ErrKeyInUse = errors.New("key already in use by another child")
	// ErrNoSuchKey indicates a revocation of a key the child holds no
	// certificate for.
	ErrNoSuchKey = errors.New("no certificate for key")
)

// Default validity periods.
const (
	DefaultChildValidity = 30 * 24 * time.Hour
	DefaultTAValidity    = 365 * 24 * time.Hour
	DefaultEEValidity    = 30 * 24 * time.Hour
)

// Config configures an Engine.
type Config struct {
	// KeyBits is the size of generated RSA keys.
	KeyBits int
	// ChildValidity is the validity of child certificates. It is capped by
	// the validity of the issuing certificate.
	ChildValidity time.Duration
	// TAValidity is the validity of self-signed trust anchor certificates.
	TAValidity time.Duration
	// EEValidity is the validity of ROA and Ghostbuster EE certificates.
	EEValidity time.Duration
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Metrics are the metrics of an Engine.
type Metrics struct {
	IssuedTotal  metrics.Counter
	RevokedTotal metrics.Counter
}

// NewMetrics returns prometheus backed metrics.
func NewMetrics() Metrics {
	return Metrics{
		IssuedTotal: prom.NewCounter("", "issued_certificates_total",
			"Total number of issued certificates."),
		RevokedTotal: prom.NewCounter("", "revoked_certificates_total",
			"Total number of revoked certificates."),
	}
}

// Engine performs CA operations.
type Engine struct {
	cfg     Config
	metrics Metrics
}

// New returns an engine. Zero values in cfg are replaced by defaults.
func New(cfg Config, m Metrics) *Engine {
	if cfg.KeyBits == 0 {
		cfg.KeyBits = objects.DefaultKeyBits
	}
	if cfg.ChildValidity == 0 {
		cfg.ChildValidity = DefaultChildValidity
	}
	if cfg.TAValidity == 0 {
		cfg.TAValidity = DefaultTAValidity
	}
	if cfg.EEValidity == 0 {
		cfg.EEValidity = DefaultEEValidity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{cfg: cfg, metrics: m}
}

func (e *Engine) now() time.Time {
	return e.cfg.Now().UTC().Truncate(time.Second)
}

// issuer is the loaded signing material of a certified self.
type issuer struct {
	cert   *objects.Certificate
	x509   *x509.Certificate
	signer crypto.Signer
	ski    []byte
	gski   string
	held   resources.Set
	crlURI string
	mftURI string
}

func loadIssuer(self *model.Self) (*issuer, error) {
	cert, err := self.Certificate()
	if err != nil {
		return nil, err
	}
	x, err := cert.Parsed()
	if err != nil {
		return nil, err
	}
	key, err := self.Key()
	if err != nil {
		return nil, err
	}
	signer, err := key.Signer()
	if err != nil {
		return nil, err
	}
	ski, err := key.SKI()
	if err != nil {
		return nil, err
	}
	held, err := cert.Get3779Resources(nil)
	if err != nil {
		return nil, err
	}
	gski := objects.GSKI(ski)
	return &issuer{
		cert:   cert,
		x509:   x,
		signer: signer,
		ski:    ski,
		gski:   gski,
		held:   held,
		crlURI: self.URI(gski + ".crl"),
		mftURI: self.URI(gski + ".mft"),
	}, nil
}

// SIA returns the publication points of the self's current key.
func SIA(self *model.Self) (objects.SIA, error) {
	key, err := self.Key()
	if err != nil {
		return objects.SIA{}, err
	}
	ski, err := key.SKI()
	if err != nil {
		return objects.SIA{}, err
	}
	return objects.SIA{
		CARepository: []string{self.SIABase},
		RPKIManifest: []string{self.URI(objects.GSKI(ski) + ".mft")},
	}, nil
}

// EnsureKey generates a key for a self that has none. It reports whether a
// key was generated.
func (e *Engine) EnsureKey(self *model.Self) (bool, error) {
	if len(self.KeyDER) != 0 {
		return false, nil
	}
	key, err := objects.GenerateKey(e.cfg.KeyBits)
	if err != nil {
		return false, err
	}
	if err := self.SetKey(key); err != nil {
		return false, err
	}
	return true, nil
}

// Rekey replaces the key of the self. The certificate of the old key is
// dropped, and the CRL and manifest of the old key are withdrawn. A self with
// a parent queues the old gSKI for revocation by the parent, behind the keys
// of earlier rekeys that are not revoked yet.
func (e *Engine) Rekey(self *model.Self, batch *publication.Batch) error {
	var old string
	if len(self.KeyDER) != 0 {
		key, err := self.Key()
		if err != nil {
			return err
		}
		ski, err := key.SKI()
		if err != nil {
			return err
		}
		old = objects.GSKI(ski)
	}
	key, err := objects.GenerateKey(e.cfg.KeyBits)
	if err != nil {
		return err
	}
	oldCertURI := self.CertURI
	if err := self.SetKey(key); err != nil {
		return err
	}
	if old != "" {
		batch.Withdraw(self.URI(old + ".crl"))
		batch.Withdraw(self.URI(old + ".mft"))
		if self.IsTrustAnchor() && oldCertURI != "" {
			batch.Withdraw(oldCertURI)
		} else if !self.IsTrustAnchor() {
			self.PendingRevokeSKIs = append(slices.Clip(self.PendingRevokeSKIs), old)
		}
	}
	self.CRLDER, self.ManifestDER = nil, nil
	self.MarkStale()
	return nil
}

func (e *Engine) capNotAfter(notAfter time.Time, iss *issuer) time.Time {
	if notAfter.After(iss.x509.NotAfter) {
		return iss.x509.NotAfter
	}
	return notAfter
}
