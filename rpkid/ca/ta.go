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
	"math/big"

	"github.com/openrpki/rpkid/pkg/metrics"
	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/private/publication"
	"github.com/openrpki/rpkid/rpkid/model"
)

// EnsureTrustAnchor certifies a self without parents with its trust anchor
// resources. The self-signed certificate is replaced if the resources
// changed, the key changed, a reissue was requested, or it expires within
// the regeneration margin. It is a no-op for a self with parents.
func (e *Engine) EnsureTrustAnchor(self *model.Self, batch *publication.Batch) error {
	if !self.IsTrustAnchor() {
		return nil
	}
	if self.TAResources.IsEmpty() {
		return serrors.JoinNoStack(ErrNoResources, nil, "self", self.Handle,
			"reason", "trust anchor without resources")
	}
	if _, err := e.EnsureKey(self); err != nil {
		return err
	}
	key, err := self.Key()
	if err != nil {
		return err
	}
	signer, err := key.Signer()
	if err != nil {
		return err
	}
	ski, err := key.SKI()
	if err != nil {
		return err
	}
	now := e.now()
	if self.HasCertificate() {
		current, err := self.Certificate()
		if err != nil {
			return err
		}
		x, err := current.Parsed()
		if err != nil {
			return err
		}
		held, err := current.Get3779Resources(nil)
		if err != nil {
			return err
		}
		if !self.ReissuePending && held.Equal(self.TAResources) &&
			string(x.SubjectKeyId) == string(ski) && now.Add(self.RegenMargin).Before(x.NotAfter) {
			return nil
		}
	}
	sia, err := SIA(self)
	if err != nil {
		return err
	}
	res := self.TAResources
	cert, err := objects.Issue(objects.IssueParams{
		IssuerKey:  signer,
		SubjectKey: signer.Public(),
		Serial:     big.NewInt(max(self.NextSerial, 1)),
		SIA:        sia,
		CN:         self.Handle,
		NotBefore:  now,
		NotAfter:   now.Add(e.cfg.TAValidity),
		Resources:  &res,
		CA:         true,
	})
	if err != nil {
		return serrors.Wrap("issuing trust anchor certificate", err, "self", self.Handle)
	}
	der, err := cert.DER()
	if err != nil {
		return err
	}
	self.AllocateSerial()
	uri := self.URI(objects.GSKI(ski) + ".cer")
	if err := self.SetCertificate(cert, uri); err != nil {
		return err
	}
	self.ReissuePending = false
	batch.Publish(uri, der)
	metrics.CounterInc(e.metrics.IssuedTotal)
	return nil
}
