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

package ca

import (
	"context"
	"crypto/sha256"
	"math/big"
	"path"
	"strings"
	"time"

	"github.com/openrpki/rpkid/pkg/log"
	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/private/publication"
	"github.com/openrpki/rpkid/rpkid/model"
)

// NeedsRegeneration reports whether the CRL and manifest of the self are
// due: never generated, stale, or reaching nextUpdate within the
// regeneration margin.
func NeedsRegeneration(self *model.Self, now time.Time) bool {
	return len(self.CRLDER) == 0 || len(self.ManifestDER) == 0 || self.CRLStale ||
		!now.Add(self.RegenMargin).Before(self.NextUpdate)
}

// RegenerateCRLAndManifest issues a new CRL and manifest if they are due or
// force is set. It reports whether they were regenerated. A self without
// certificate has nothing to regenerate.
func (e *Engine) RegenerateCRLAndManifest(self *model.Self, force bool,
	batch *publication.Batch) (bool, error) {

	if !self.HasCertificate() {
		return false, nil
	}
	now := e.now()
	if !force && !NeedsRegeneration(self, now) {
		return false, nil
	}
	iss, err := loadIssuer(self)
	if err != nil {
		return false, err
	}
	nextUpdate := e.capNotAfter(now.Add(self.CRLInterval), iss)

	var revs []objects.Revocation
	for _, r := range self.RevokedCertificates.Items() {
		if r.Expires.After(now) {
			revs = append(revs, objects.Revocation{
				Serial:    big.NewInt(r.Serial),
				RevokedAt: r.RevokedAt,
			})
		}
	}
	crlNumber := self.CRLNumber + 1
	crl, err := objects.CreateCRL(iss.x509, iss.signer, big.NewInt(crlNumber),
		now, nextUpdate, revs)
	if err != nil {
		return false, err
	}
	crlDER, err := crl.DER()
	if err != nil {
		return false, err
	}

	files := publishedFiles(self)
	files = append(files, fileAndHash(iss.crlURI, crlDER))
	eeKey, err := objects.GenerateKey(e.cfg.KeyBits)
	if err != nil {
		return false, err
	}
	mftNumber := self.ManifestNumber + 1
	mft, err := objects.CreateManifest(
		objects.ManifestContent{
			Number:     big.NewInt(mftNumber),
			ThisUpdate: now,
			NextUpdate: nextUpdate,
			Files:      files,
		},
		objects.IssueParams{
			Issuer:    iss.x509,
			IssuerKey: iss.signer,
			Serial:    big.NewInt(max(self.NextSerial, 1)),
			SIA:       objects.SIA{SignedObject: []string{iss.mftURI}},
			AIA:       []string{self.CertURI},
			CRLDP:     []string{iss.crlURI},
		},
		eeKey,
	)
	if err != nil {
		return false, err
	}
	mftDER, err := mft.DER()
	if err != nil {
		return false, err
	}

	self.AllocateSerial()
	self.CRLNumber, self.CRLDER = crlNumber, crlDER
	self.ManifestNumber, self.ManifestDER = mftNumber, mftDER
	self.NextUpdate = nextUpdate
	self.CRLStale = false
	self.MarkDirty()
	batch.Publish(iss.crlURI, crlDER)
	batch.Publish(iss.mftURI, mftDER)
	return true, nil
}

// publishedFiles lists the objects the self publishes below its SIA base,
// except for the CRL and manifest.
func publishedFiles(self *model.Self) []objects.FileAndHash {
	var files []objects.FileAndHash
	add := func(uri string, der []byte) {
		if len(der) != 0 && strings.HasPrefix(uri, self.SIABase) {
			files = append(files, fileAndHash(uri, der))
		}
	}
	if self.IsTrustAnchor() {
		add(self.CertURI, self.CertDER)
	}
	for _, child := range self.Children.Items() {
		for _, cc := range child.Certificates.Items() {
			add(cc.URI, cc.CertDER)
		}
	}
	for _, r := range self.ROARequests.Items() {
		add(r.ROAURI, r.ROADER)
	}
	for _, g := range self.GhostbusterRequests.Items() {
		add(g.GhostbusterURI, g.GhostbusterDER)
	}
	return files
}

func fileAndHash(uri string, der []byte) objects.FileAndHash {
	h := sha256.Sum256(der)
	return objects.FileAndHash{Name: path.Base(uri), Hash: h[:]}
}

// signedObjectParams prepares the EE certificate of a signed object
// published by the self. It returns the URI of the object.
func (e *Engine) signedObjectParams(self *model.Self, iss *issuer, eeKey *objects.Key,
	ext string) (objects.IssueParams, string, error) {

	ski, err := eeKey.SKI()
	if err != nil {
		return objects.IssueParams{}, "", err
	}
	uri := self.URI(objects.GSKI(ski) + ext)
	now := e.now()
	return objects.IssueParams{
		Issuer:    iss.x509,
		IssuerKey: iss.signer,
		Serial:    big.NewInt(max(self.NextSerial, 1)),
		SIA:       objects.SIA{SignedObject: []string{uri}},
		AIA:       []string{self.CertURI},
		CRLDP:     []string{iss.crlURI},
		NotBefore: now,
		NotAfter:  e.capNotAfter(now.Add(e.cfg.EEValidity), iss),
	}, uri, nil
}

// signedObjectDue reports whether a signed object must be (re)generated.
func (e *Engine) signedObjectDue(self *model.Self, iss *issuer, der []byte,
	eeNotAfter time.Time) (bool, error) {

	if len(der) == 0 || !e.now().Add(self.RegenMargin).Before(eeNotAfter) {
		return true, nil
	}
	// Objects signed under a previous key of the self are replaced.
	return signedUnderOtherKey(der, iss)
}

func signedUnderOtherKey(der []byte, iss *issuer) (bool, error) {
	for _, parse := range []func() (*objects.SignedObject, error){
		func() (*objects.SignedObject, error) {
			r, err := objects.NewROA(objects.DER, der)
			if err != nil {
				return nil, err
			}
			return r.Parsed()
		},
		func() (*objects.SignedObject, error) {
			g, err := objects.NewGhostbuster(objects.DER, der)
			if err != nil {
				return nil, err
			}
			return g.Parsed()
		},
	} {
		so, err := parse()
		if err != nil {
			continue
		}
		return string(so.EE.AuthorityKeyId) != string(iss.ski), nil
	}
	return false, serrors.New("unrecognized signed object")
}

// UpdateROAs (re)generates the ROAs of the self that are missing, expire
// within the regeneration margin, or were signed under a previous key. A
// ROA request for resources the self does not hold is withdrawn and
// skipped.
func (e *Engine) UpdateROAs(ctx context.Context, self *model.Self,
	batch *publication.Batch) error {

	if !self.HasCertificate() {
		return nil
	}
	iss, err := loadIssuer(self)
	if err != nil {
		return err
	}
	logger := log.FromCtx(ctx)
	var errs serrors.List
	for _, r := range self.ROARequests.Items() {
		content := r.Content()
		if !iss.held.Contains(content.Resources()) {
			logger.Info("ROA request not covered by holdings, withdrawing",
				"self", self.Handle, "roa_request", r.Handle)
			e.WithdrawROA(self, r, batch)
			continue
		}
		due, err := e.signedObjectDue(self, iss, r.ROADER, r.EENotAfter)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !due {
			continue
		}
		if err := e.generateROA(self, iss, r, batch); err != nil {
			errs = append(errs, serrors.Wrap("generating ROA", err,
				"self", self.Handle, "roa_request", r.Handle))
		}
	}
	return errs.ToError()
}

func (e *Engine) generateROA(self *model.Self, iss *issuer, r *model.ROARequest,
	batch *publication.Batch) error {

	eeKey, err := objects.GenerateKey(e.cfg.KeyBits)
	if err != nil {
		return err
	}
	params, uri, err := e.signedObjectParams(self, iss, eeKey, ".roa")
	if err != nil {
		return err
	}
	roa, err := objects.CreateROA(r.Content(), params, eeKey)
	if err != nil {
		return err
	}
	der, err := roa.DER()
	if err != nil {
		return err
	}
	self.AllocateSerial()
	e.WithdrawROA(self, r, batch)
	r.ROADER, r.ROAURI = der, uri
	r.EESerial, r.EENotAfter = params.Serial.Int64(), params.NotAfter
	r.MarkDirty()
	self.MarkStale()
	batch.Publish(uri, der)
	return nil
}

// WithdrawROA revokes the EE certificate of the published ROA of r and
// withdraws it. It is a no-op if nothing is published.
func (e *Engine) WithdrawROA(self *model.Self, r *model.ROARequest, batch *publication.Batch) {
	if serial, notAfter, uri, ok := r.Withdraw(); ok {
		self.Revoke(serial, e.now(), notAfter)
		batch.Withdraw(uri)
	}
}

// UpdateGhostbusters (re)generates the Ghostbuster records of the self, like
// UpdateROAs.
func (e *Engine) UpdateGhostbusters(ctx context.Context, self *model.Self,
	batch *publication.Batch) error {

	if !self.HasCertificate() {
		return nil
	}
	iss, err := loadIssuer(self)
	if err != nil {
		return err
	}
	var errs serrors.List
	for _, g := range self.GhostbusterRequests.Items() {
		due, err := e.signedObjectDue(self, iss, g.GhostbusterDER, g.EENotAfter)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !due {
			continue
		}
		if err := e.generateGhostbuster(self, iss, g, batch); err != nil {
			errs = append(errs, serrors.Wrap("generating ghostbuster", err,
				"self", self.Handle, "ghostbuster_request", g.Handle))
		}
	}
	return errs.ToError()
}

func (e *Engine) generateGhostbuster(self *model.Self, iss *issuer,
	g *model.GhostbusterRequest, batch *publication.Batch) error {

	eeKey, err := objects.GenerateKey(e.cfg.KeyBits)
	if err != nil {
		return err
	}
	params, uri, err := e.signedObjectParams(self, iss, eeKey, ".gbr")
	if err != nil {
		return err
	}
	gbr, err := objects.CreateGhostbuster([]byte(g.VCard), params, eeKey)
	if err != nil {
		return err
	}
	der, err := gbr.DER()
	if err != nil {
		return err
	}
	self.AllocateSerial()
	e.WithdrawGhostbuster(self, g, batch)
	g.GhostbusterDER, g.GhostbusterURI = der, uri
	g.EESerial, g.EENotAfter = params.Serial.Int64(), params.NotAfter
	g.MarkDirty()
	self.MarkStale()
	batch.Publish(uri, der)
	return nil
}

// WithdrawGhostbuster revokes and withdraws the published record of g.
func (e *Engine) WithdrawGhostbuster(self *model.Self, g *model.GhostbusterRequest,
	batch *publication.Batch) {

	if serial, notAfter, uri, ok := g.Withdraw(); ok {
		self.Revoke(serial, e.now(), notAfter)
		batch.Withdraw(uri)
	}
}

// PublishWorld republishes every object of the self.
func (e *Engine) PublishWorld(self *model.Self, batch *publication.Batch) {
	if self.IsTrustAnchor() && self.HasCertificate() {
		batch.Publish(self.CertURI, self.CertDER)
	}
	for _, child := range self.Children.Items() {
		for _, cc := range child.Certificates.Items() {
			batch.Publish(cc.URI, cc.CertDER)
		}
	}
	for _, r := range self.ROARequests.Items() {
		if len(r.ROADER) != 0 {
			batch.Publish(r.ROAURI, r.ROADER)
		}
	}
	for _, g := range self.GhostbusterRequests.Items() {
		if len(g.GhostbusterDER) != 0 {
			batch.Publish(g.GhostbusterURI, g.GhostbusterDER)
		}
	}
	if self.HasCertificate() && len(self.CRLDER) != 0 {
		if iss, err := loadIssuer(self); err == nil {
			batch.Publish(iss.crlURI, self.CRLDER)
			batch.Publish(iss.mftURI, self.ManifestDER)
		}
	}
}
