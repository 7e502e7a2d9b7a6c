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
	"bytes"
	"math/big"
	"time"

	"github.com/openrpki/rpkid/pkg/metrics"
	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/pkg/rpki/resources"
	"github.com/openrpki/rpkid/private/publication"
	"github.com/openrpki/rpkid/rpkid/model"
)

// Available returns the resources the self can certify to the child: the
// delegation of the child clipped to the holdings of the self.
func Available(self *model.Self, child *model.Child) (resources.Set, error) {
	held, err := self.Holdings()
	if err != nil {
		return resources.Set{}, err
	}
	delegation, err := child.Delegation()
	if err != nil {
		return resources.Set{}, err
	}
	return delegation.Intersect(held), nil
}

// Requested combines the per-family request of a child with what is
// available. An empty family in req asks for everything available.
func Requested(available, req resources.Set) resources.Set {
	out := req
	if req.AS.IsEmpty() {
		out.AS = available.AS
	}
	if req.V4.IsEmpty() {
		out.V4 = available.V4
	}
	if req.V6.IsEmpty() {
		out.V6 = available.V6
	}
	return out
}

// IssueChild certifies the key of the certification request for the child.
// req selects the resources per family as described for Requested. A
// certificate the child holds for the same key is superseded and revoked.
func (e *Engine) IssueChild(self *model.Self, child *model.Child, csr *objects.Request,
	req resources.Set, batch *publication.Batch) (*model.ChildCert, error) {

	if err := csr.CheckValidRPKI(); err != nil {
		return nil, err
	}
	iss, err := loadIssuer(self)
	if err != nil {
		return nil, err
	}
	available, err := Available(self, child)
	if err != nil {
		return nil, err
	}
	if available.IsEmpty() {
		return nil, serrors.JoinNoStack(ErrNoResources, nil, "child", child.Handle)
	}
	want := Requested(available, req)
	if !available.Contains(want) {
		return nil, serrors.JoinNoStack(ErrRequestExceeds, nil, "child", child.Handle,
			"requested", want, "available", available)
	}
	ski, err := csr.SKI()
	if err != nil {
		return nil, err
	}
	gski := objects.GSKI(ski)
	for _, other := range self.Children.Items() {
		if other != child && len(other.CertificatesBySKI(gski)) > 0 {
			return nil, serrors.JoinNoStack(ErrKeyInUse, nil, "child", child.Handle,
				"key", gski, "holder", other.Handle)
		}
	}
	sia, err := csr.SIA()
	if err != nil {
		return nil, err
	}
	parsed, err := csr.Parsed()
	if err != nil {
		return nil, err
	}
	return e.issue(self, iss, child, parsed.PublicKey, sia, want, batch)
}

// issue signs a certificate for the child and supersedes the certificates
// the child holds for the same key.
func (e *Engine) issue(self *model.Self, iss *issuer, child *model.Child, pub any,
	sia objects.SIA, res resources.Set, batch *publication.Batch) (*model.ChildCert, error) {

	ski, err := objects.SKI(pub)
	if err != nil {
		return nil, err
	}
	gski := objects.GSKI(ski)
	uri := self.URI(gski + ".cer")
	now := e.now()
	serial := big.NewInt(max(self.NextSerial, 1))
	cert, err := objects.Issue(objects.IssueParams{
		Issuer:     iss.x509,
		IssuerKey:  iss.signer,
		SubjectKey: pub,
		Serial:     serial,
		SIA:        sia,
		AIA:        []string{self.CertURI},
		CRLDP:      []string{iss.crlURI},
		NotBefore:  now,
		NotAfter:   e.capNotAfter(now.Add(e.cfg.ChildValidity), iss),
		Resources:  &res,
		CA:         true,
	})
	if err != nil {
		return nil, serrors.Wrap("issuing child certificate", err, "child", child.Handle)
	}
	cc, err := model.NewChildCert(cert, uri)
	if err != nil {
		return nil, err
	}
	self.AllocateSerial()
	for _, old := range child.CertificatesBySKI(gski) {
		e.revoke(self, child, old)
	}
	child.Certificates.Add(cc)
	self.MarkStale()
	batch.Publish(uri, cc.CertDER)
	metrics.CounterInc(e.metrics.IssuedTotal)
	return cc, nil
}

func (e *Engine) revoke(self *model.Self, child *model.Child, cc *model.ChildCert) {
	self.Revoke(cc.Serial, e.now(), cc.NotAfter)
	child.Certificates.Remove(cc)
	metrics.CounterInc(e.metrics.RevokedTotal)
}

// RevokeChildKey revokes all certificates the child holds for the key with
// the given gSKI and withdraws them.
func (e *Engine) RevokeChildKey(self *model.Self, child *model.Child, gski string,
	batch *publication.Batch) error {

	certs := child.CertificatesBySKI(gski)
	if len(certs) == 0 {
		return serrors.JoinNoStack(ErrNoSuchKey, nil, "child", child.Handle, "key", gski)
	}
	for _, cc := range certs {
		e.revoke(self, child, cc)
		batch.Withdraw(cc.URI)
	}
	return nil
}

// DestroyChild revokes and withdraws all certificates of the child and
// removes it from the self.
func (e *Engine) DestroyChild(self *model.Self, child *model.Child, batch *publication.Batch) {
	for _, cc := range append([]*model.ChildCert(nil), child.Certificates.Items()...) {
		e.revoke(self, child, cc)
		batch.Withdraw(cc.URI)
	}
	self.Children.Remove(child)
}

// UpdateChildren reissues child certificates that no longer match the
// state of the self. A certificate is reissued if:
//   - the child is flagged for reissue,
//   - its resources are no longer all available to the child,
//   - it was issued under another key of the self,
//   - it expires within the regeneration margin and a reissue would extend it.
//
// A certificate none of whose resources remain available is revoked.
func (e *Engine) UpdateChildren(self *model.Self, batch *publication.Batch) error {
	if !self.HasCertificate() {
		return nil
	}
	iss, err := loadIssuer(self)
	if err != nil {
		return err
	}
	now := e.now()
	var errs serrors.List
	for _, child := range self.Children.Items() {
		available, err := Available(self, child)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, cc := range append([]*model.ChildCert(nil), child.Certificates.Items()...) {
			if err := e.updateChildCert(self, iss, child, cc, available, now, batch); err != nil {
				errs = append(errs, serrors.Wrap("updating child certificate", err,
					"child", child.Handle, "serial", cc.Serial))
			}
		}
		if child.ReissuePending {
			child.ReissuePending = false
			child.MarkDirty()
		}
	}
	return errs.ToError()
}

func (e *Engine) updateChildCert(self *model.Self, iss *issuer, child *model.Child,
	cc *model.ChildCert, available resources.Set, now time.Time,
	batch *publication.Batch) error {

	cert, err := cc.Certificate()
	if err != nil {
		return err
	}
	x, err := cert.Parsed()
	if err != nil {
		return err
	}
	current, err := cert.Get3779Resources(nil)
	if err != nil {
		return err
	}
	shrunk := !available.Contains(current)
	rekeyed := !bytes.Equal(x.AuthorityKeyId, iss.ski)
	expiring := !now.Add(self.RegenMargin).Before(x.NotAfter) &&
		iss.x509.NotAfter.After(x.NotAfter)
	if !child.ReissuePending && !shrunk && !rekeyed && !expiring {
		return nil
	}
	res := current.Intersect(available)
	if res.IsEmpty() {
		e.revoke(self, child, cc)
		batch.Withdraw(cc.URI)
		return nil
	}
	sia, err := cert.SIA()
	if err != nil {
		return err
	}
	_, err = e.issue(self, iss, child, x.PublicKey, sia, res, batch)
	return err
}
