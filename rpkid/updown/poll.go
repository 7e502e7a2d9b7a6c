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

package updown

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/openrpki/rpkid/pkg/log"
	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/pkg/rpki/resources"
	"github.com/openrpki/rpkid/rpkid/ca"
	"github.com/openrpki/rpkid/rpkid/model"
)

// Poller keeps the certificate of a self in sync with what its parent
// offers.
type Poller struct {
	Client *Client
	Engine *ca.Engine
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Poll runs one exchange with the first parent of the self:
//  1. list the classes the parent offers and record the class name,
//  2. adopt a certificate the parent reissued for the current key,
//  3. request a new certificate if the self has none, if a reissue was
//     requested, if the offered resources differ from the certified ones, or
//     if the certificate expires soon and the parent can extend it,
//  4. revoke the previous key after a key rollover.
//
// It is a no-op for a trust anchor.
func (p *Poller) Poll(ctx context.Context, self *model.Self) error {
	if self.IsTrustAnchor() {
		return nil
	}
	logger := log.FromCtx(ctx)
	parent := self.Parents.Items()[0]
	if _, err := p.Engine.EnsureKey(self); err != nil {
		return err
	}
	key, err := self.Key()
	if err != nil {
		return err
	}
	ski, err := key.SKI()
	if err != nil {
		return err
	}
	gski := objects.GSKI(ski)

	list, err := p.Client.Call(ctx, parent, &Message{Type: TypeList}, TypeListResponse)
	if err != nil {
		return serrors.Wrap("listing classes", err, "parent", parent.Handle)
	}
	parent.LastPoll = p.now()
	parent.MarkDirty()
	cls, ok := pickClass(list.Classes, parent.ClassName)
	if !ok {
		logger.Info("Parent offers no resources", "self", self.Handle,
			"parent", parent.Handle)
		return nil
	}
	parent.ClassName = cls.Name
	available, err := resources.Parse(cls.ResourceSetAS, cls.ResourceSetIPv4,
		cls.ResourceSetIPv6)
	if err != nil {
		return serrors.Wrap("parsing offered resources", err, "parent", parent.Handle)
	}

	for _, c := range cls.Certificates {
		if bytes.Equal(c.DER, self.CertDER) {
			continue
		}
		if err := install(self, c, gski); err == nil {
			logger.Info("Adopted certificate reissued by parent", "self", self.Handle,
				"parent", parent.Handle, "uri", c.URL)
		}
	}

	need, err := p.needsIssue(self, cls, available)
	if err != nil {
		return err
	}
	if need {
		sia, err := ca.SIA(self)
		if err != nil {
			return err
		}
		csr, err := objects.CreateRequest(key, sia)
		if err != nil {
			return err
		}
		der, err := csr.DER()
		if err != nil {
			return err
		}
		q := &Message{
			Type:    TypeIssue,
			Request: &IssueRequest{ClassName: cls.Name, PKCS10: der},
		}
		r, err := p.Client.Call(ctx, parent, q, TypeIssueResponse)
		if err != nil {
			return serrors.Wrap("requesting certificate", err, "parent", parent.Handle)
		}
		c := r.Classes[0].Certificates[0]
		if err := install(self, c, gski); err != nil {
			return serrors.Wrap("installing certificate", err, "parent", parent.Handle)
		}
		self.ReissuePending = false
		logger.Info("Installed certificate", "self", self.Handle, "parent", parent.Handle,
			"uri", c.URL)
	}

	for len(self.PendingRevokeSKIs) > 0 && self.HasCertificate() {
		ski := self.PendingRevokeSKIs[0]
		q := &Message{Type: TypeRevoke, Key: &Key{ClassName: cls.Name, SKI: ski}}
		_, err := p.Client.Call(ctx, parent, q, TypeRevokeResponse)
		var protoErr *Error
		if err != nil && !(errors.As(err, &protoErr) && protoErr.Code == CodeRevokeNoKey) {
			return serrors.Wrap("revoking previous key", err, "parent", parent.Handle,
				"key", ski)
		}
		self.PendingRevokeSKIs = slices.Clone(self.PendingRevokeSKIs[1:])
		self.MarkDirty()
		logger.Info("Revoked previous key", "self", self.Handle, "parent", parent.Handle,
			"key", ski)
	}
	return nil
}

func (p *Poller) needsIssue(self *model.Self, cls Class, available resources.Set) (bool, error) {
	if !self.HasCertificate() || self.ReissuePending {
		return true, nil
	}
	held, err := self.Holdings()
	if err != nil {
		return false, err
	}
	if !held.Equal(available) {
		return true, nil
	}
	cert, err := self.Certificate()
	if err != nil {
		return false, err
	}
	x, err := cert.Parsed()
	if err != nil {
		return false, err
	}
	offered, err := cls.NotAfter()
	if err != nil {
		return false, serrors.Wrap("parsing resource_set_notafter", err)
	}
	return !p.now().Add(self.RegenMargin).Before(x.NotAfter) && offered.After(x.NotAfter), nil
}

func (p *Poller) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// install sets c as the certificate of the self if it certifies the key
// with the given gSKI.
func install(self *model.Self, c Certificate, gski string) error {
	cert, err := objects.NewCertificate(objects.DER, []byte(c.DER))
	if err != nil {
		return err
	}
	certGSKI, err := cert.GSKI()
	if err != nil {
		return err
	}
	if certGSKI != gski {
		return serrors.New("certificate is for another key", "expected", gski,
			"actual", certGSKI)
	}
	return self.SetCertificate(cert, c.URL)
}

func pickClass(classes []Class, name string) (Class, bool) {
	for _, c := range classes {
		if c.Name == name {
			return c, true
		}
	}
	if len(classes) == 0 {
		return Class{}, false
	}
	return classes[0], true
}
