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

package leftright

import (
	"bytes"
	"context"
	"time"

	"github.com/openrpki/rpkid/pkg/rpki/resources"
	"github.com/openrpki/rpkid/private/publication"
	"github.com/openrpki/rpkid/private/storage/persist"
	"github.com/openrpki/rpkid/rpkid/model"
)

func (s *session) handleSelf(ctx context.Context, p *SelfPDU, unit *persist.Unit,
	batch *publication.Batch) ([]PDU, error) {

	switch p.Action {
	case ActionList:
		selves, err := s.allSelves(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]PDU, 0, len(selves))
		for _, self := range selves {
			out = append(out, selfReply(p.Header, self))
		}
		return out, nil
	case ActionCreate:
		exists, err := s.exists(ctx, p.SelfHandle)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, alreadyExists("self", p.SelfHandle)
		}
		if p.SIABase == nil {
			return nil, badRequest("sia_base is required")
		}
		self := model.NewSelf(p.SelfHandle)
		if s.CRLInterval > 0 {
			self.CRLInterval = s.CRLInterval
		}
		if s.RegenMargin > 0 {
			self.RegenMargin = s.RegenMargin
		}
		if err := applySelf(self, p); err != nil {
			return nil, err
		}
		s.selves[self.Handle] = self
		unit.Store(self)
		return []PDU{&SelfPDU{Header: echo(p.Header)}}, nil
	}

	self, err := s.self(ctx, p.SelfHandle)
	if err != nil {
		return nil, err
	}
	switch p.Action {
	case ActionGet:
		return []PDU{selfReply(p.Header, self)}, nil
	case ActionSet:
		if err := applySelf(self, p); err != nil {
			return nil, err
		}
		if err := s.selfActions(ctx, self, p, batch); err != nil {
			return nil, err
		}
		unit.Store(self)
	case ActionDestroy:
		var world publication.Batch
		s.Engine.PublishWorld(self, &world)
		for _, op := range world.Ops() {
			batch.Withdraw(op.URI)
		}
		unit.Delete(self)
		s.selves[self.Handle] = nil
	}
	return []PDU{&SelfPDU{Header: echo(p.Header)}}, nil
}

// applySelf validates the attributes of p and then sets them on self.
func applySelf(self *model.Self, p *SelfPDU) error {
	crl, margin, sia := self.CRLInterval, self.RegenMargin, self.SIABase
	if p.CRLInterval != nil {
		crl = time.Duration(*p.CRLInterval) * time.Second
	}
	if p.RegenMargin != nil {
		margin = time.Duration(*p.RegenMargin) * time.Second
	}
	if margin >= crl {
		return badRequest("regen_margin %s must be shorter than crl_interval %s", margin, crl)
	}
	if p.SIABase != nil {
		sia = *p.SIABase
	}
	ta, err := mergeSet(self.TAResources, p.AS, p.IPv4, p.IPv6)
	if err != nil {
		return err
	}

	changed := crl != self.CRLInterval || margin != self.RegenMargin ||
		!ta.Equal(self.TAResources)
	if sia != self.SIABase {
		// Certificates carry the SIA, so a new one is needed.
		changed = true
		self.ReissuePending = self.HasCertificate()
	}
	self.CRLInterval, self.RegenMargin, self.SIABase, self.TAResources = crl, margin, sia, ta
	if changed {
		self.MarkDirty()
	}
	return nil
}

func (s *session) selfActions(ctx context.Context, self *model.Self, p *SelfPDU,
	batch *publication.Batch) error {

	if p.Rekey {
		if err := s.Engine.Rekey(self, batch); err != nil {
			return err
		}
	}
	if p.Reissue {
		self.ReissuePending = true
		self.MarkDirty()
		for _, child := range self.Children.Items() {
			child.ReissuePending = true
			child.MarkDirty()
		}
	}
	if p.RunNow || p.Revoke {
		if err := s.maintain(ctx, self, batch); err != nil {
			return err
		}
	}
	if p.RegenNow {
		if _, err := s.Engine.RegenerateCRLAndManifest(self, true, batch); err != nil {
			return err
		}
	}
	if p.PublishWorldNow {
		s.Engine.PublishWorld(self, batch)
	}
	return nil
}

func (s *session) maintain(ctx context.Context, self *model.Self,
	batch *publication.Batch) error {

	if s.Maintainer == nil {
		return badRequest("maintenance on demand is not available")
	}
	return s.Maintainer.Maintain(ctx, self, batch)
}

func selfReply(h Header, self *model.Self) *SelfPDU {
	crl := int64(self.CRLInterval / time.Second)
	margin := int64(self.RegenMargin / time.Second)
	return &SelfPDU{
		Header:      Header{Action: h.Action, Tag: h.Tag, SelfHandle: self.Handle},
		CRLInterval: &crl,
		RegenMargin: &margin,
		SIABase:     optional(self.SIABase),
		AS:          optional(self.TAResources.AS.String()),
		IPv4:        optional(self.TAResources.V4.String()),
		IPv6:        optional(self.TAResources.V6.String()),
	}
}

func (s *session) handleParent(ctx context.Context, self *model.Self, p *ParentPDU,
	batch *publication.Batch) ([]PDU, error) {

	if p.Action == ActionList {
		out := make([]PDU, 0, self.Parents.Len())
		for _, parent := range self.Parents.Items() {
			out = append(out, parentReply(p.Header, parent))
		}
		return out, nil
	}
	if p.Action == ActionCreate {
		if _, ok := self.Parent(p.ParentHandle); ok {
			return nil, alreadyExists("parent", p.ParentHandle)
		}
		if p.PeerContactURI == nil || len(p.BPKICert) == 0 {
			return nil, badRequest("peer_contact_uri and bpki_cert are required")
		}
		parent := &model.Parent{
			Handle:        p.ParentHandle,
			SenderName:    self.Handle,
			RecipientName: p.ParentHandle,
		}
		if err := s.applyParent(parent, p); err != nil {
			return nil, err
		}
		self.Parents.Add(parent)
		return []PDU{&ParentPDU{Header: echo(p.Header), ParentHandle: parent.Handle}}, nil
	}

	parent, ok := self.Parent(p.ParentHandle)
	if !ok {
		return nil, notFound("parent", p.ParentHandle)
	}
	switch p.Action {
	case ActionGet:
		return []PDU{parentReply(p.Header, parent)}, nil
	case ActionSet:
		if err := s.applyParent(parent, p); err != nil {
			return nil, err
		}
		parent.MarkDirty()
		if p.Rekey {
			if err := s.Engine.Rekey(self, batch); err != nil {
				return nil, err
			}
		}
		if p.Reissue {
			self.ReissuePending = true
			self.MarkDirty()
		}
		if p.Revoke {
			if err := s.maintain(ctx, self, batch); err != nil {
				return nil, err
			}
		}
	case ActionDestroy:
		self.Parents.Remove(parent)
	}
	return []PDU{&ParentPDU{Header: echo(p.Header), ParentHandle: parent.Handle}}, nil
}

func (s *session) applyParent(parent *model.Parent, p *ParentPDU) error {
	if len(p.BPKICert) != 0 {
		if err := s.checkBPKI(p.BPKICert); err != nil {
			return err
		}
		parent.BPKICert = p.BPKICert
	}
	if p.PeerContactURI != nil {
		parent.PeerContactURI = *p.PeerContactURI
	}
	if p.SenderName != nil {
		parent.SenderName = *p.SenderName
	}
	if p.RecipientName != nil {
		parent.RecipientName = *p.RecipientName
	}
	return nil
}

func parentReply(h Header, parent *model.Parent) *ParentPDU {
	return &ParentPDU{
		Header:         echo(h),
		ParentHandle:   parent.Handle,
		PeerContactURI: optional(parent.PeerContactURI),
		SenderName:     optional(parent.SenderName),
		RecipientName:  optional(parent.RecipientName),
		BPKICert:       parent.BPKICert,
	}
}

func (s *session) handleChild(self *model.Self, p *ChildPDU,
	batch *publication.Batch) ([]PDU, error) {

	if p.Action == ActionList {
		out := make([]PDU, 0, self.Children.Len())
		for _, child := range self.Children.Items() {
			r, err := childReply(p.Header, child)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, nil
	}
	if p.Action == ActionCreate {
		if _, ok := self.Child(p.ChildHandle); ok {
			return nil, alreadyExists("child", p.ChildHandle)
		}
		if len(p.BPKICert) == 0 {
			return nil, badRequest("bpki_cert is required")
		}
		if err := s.checkBPKI(p.BPKICert); err != nil {
			return nil, err
		}
		delegation, err := mergeSet(resources.Set{}, p.AS, p.IPv4, p.IPv6)
		if err != nil {
			return nil, err
		}
		child := &model.Child{Handle: p.ChildHandle, BPKICert: p.BPKICert}
		child.SetDelegation(delegation)
		self.Children.Add(child)
		return []PDU{&ChildPDU{Header: echo(p.Header), ChildHandle: child.Handle}}, nil
	}

	child, ok := self.Child(p.ChildHandle)
	if !ok {
		return nil, notFound("child", p.ChildHandle)
	}
	switch p.Action {
	case ActionGet:
		r, err := childReply(p.Header, child)
		if err != nil {
			return nil, err
		}
		return []PDU{r}, nil
	case ActionSet:
		current, err := child.Delegation()
		if err != nil {
			return nil, err
		}
		delegation, err := mergeSet(current, p.AS, p.IPv4, p.IPv6)
		if err != nil {
			return nil, err
		}
		if len(p.BPKICert) != 0 {
			if err := s.checkBPKI(p.BPKICert); err != nil {
				return nil, err
			}
			if !bytes.Equal(child.BPKICert, p.BPKICert) {
				child.BPKICert = p.BPKICert
				child.MarkDirty()
			}
		}
		if !delegation.Equal(current) {
			child.SetDelegation(delegation)
		}
		if p.Reissue {
			child.ReissuePending = true
			child.MarkDirty()
		}
	case ActionDestroy:
		s.Engine.DestroyChild(self, child, batch)
	}
	return []PDU{&ChildPDU{Header: echo(p.Header), ChildHandle: child.Handle}}, nil
}

func childReply(h Header, child *model.Child) (*ChildPDU, error) {
	delegation, err := child.Delegation()
	if err != nil {
		return nil, err
	}
	return &ChildPDU{
		Header:      echo(h),
		ChildHandle: child.Handle,
		AS:          optional(delegation.AS.String()),
		IPv4:        optional(delegation.V4.String()),
		IPv6:        optional(delegation.V6.String()),
		BPKICert:    child.BPKICert,
	}, nil
}

func (s *session) handleRepository(self *model.Self, p *RepositoryPDU) ([]PDU, error) {
	if p.Action == ActionList {
		out := make([]PDU, 0, self.Repositories.Len())
		for _, repo := range self.Repositories.Items() {
			out = append(out, repositoryReply(p.Header, repo))
		}
		return out, nil
	}
	if p.Action == ActionCreate {
		if _, ok := self.Repository(p.RepositoryHandle); ok {
			return nil, alreadyExists("repository", p.RepositoryHandle)
		}
		if p.PeerContactURI == nil || len(p.BPKICert) == 0 {
			return nil, badRequest("peer_contact_uri and bpki_cert are required")
		}
		if err := s.checkBPKI(p.BPKICert); err != nil {
			return nil, err
		}
		self.Repositories.Add(&model.Repository{
			Handle:         p.RepositoryHandle,
			PeerContactURI: *p.PeerContactURI,
			BPKICert:       p.BPKICert,
		})
		return []PDU{&RepositoryPDU{Header: echo(p.Header),
			RepositoryHandle: p.RepositoryHandle}}, nil
	}

	repo, ok := self.Repository(p.RepositoryHandle)
	if !ok {
		return nil, notFound("repository", p.RepositoryHandle)
	}
	switch p.Action {
	case ActionGet:
		return []PDU{repositoryReply(p.Header, repo)}, nil
	case ActionSet:
		if len(p.BPKICert) != 0 {
			if err := s.checkBPKI(p.BPKICert); err != nil {
				return nil, err
			}
			repo.BPKICert = p.BPKICert
		}
		if p.PeerContactURI != nil {
			repo.PeerContactURI = *p.PeerContactURI
		}
		repo.MarkDirty()
	case ActionDestroy:
		self.Repositories.Remove(repo)
	}
	return []PDU{&RepositoryPDU{Header: echo(p.Header), RepositoryHandle: repo.Handle}}, nil
}

func repositoryReply(h Header, repo *model.Repository) *RepositoryPDU {
	return &RepositoryPDU{
		Header:           echo(h),
		RepositoryHandle: repo.Handle,
		PeerContactURI:   optional(repo.PeerContactURI),
		BPKICert:         repo.BPKICert,
	}
}

func (s *session) handleROARequest(self *model.Self, p *ROARequestPDU,
	batch *publication.Batch) ([]PDU, error) {

	if p.Action == ActionList {
		out := make([]PDU, 0, self.ROARequests.Len())
		for _, r := range self.ROARequests.Items() {
			out = append(out, roaReply(p.Header, r))
		}
		return out, nil
	}
	if p.Action == ActionCreate {
		if _, ok := self.ROARequest(p.ROARequestHandle); ok {
			return nil, alreadyExists("roa_request", p.ROARequestHandle)
		}
		if p.ASN == nil {
			return nil, badRequest("asn is required")
		}
		r := &model.ROARequest{Handle: p.ROARequestHandle, ASN: *p.ASN}
		if err := applyROA(r, p); err != nil {
			return nil, err
		}
		self.ROARequests.Add(r)
		return []PDU{&ROARequestPDU{Header: echo(p.Header), ROARequestHandle: r.Handle}}, nil
	}

	r, ok := self.ROARequest(p.ROARequestHandle)
	if !ok {
		return nil, notFound("roa_request", p.ROARequestHandle)
	}
	switch p.Action {
	case ActionGet:
		return []PDU{roaReply(p.Header, r)}, nil
	case ActionSet:
		next := &model.ROARequest{Handle: r.Handle, ASN: r.ASN, V4: r.V4, V6: r.V6}
		if p.ASN != nil {
			next.ASN = *p.ASN
		}
		if err := applyROA(next, p); err != nil {
			return nil, err
		}
		if next.ASN != r.ASN || next.V4.String() != r.V4.String() ||
			next.V6.String() != r.V6.String() {
			// The ROA is reissued with the new content by the next
			// maintenance pass.
			s.Engine.WithdrawROA(self, r, batch)
			r.ASN, r.V4, r.V6 = next.ASN, next.V4, next.V6
			r.MarkDirty()
		}
	case ActionDestroy:
		s.Engine.WithdrawROA(self, r, batch)
		self.ROARequests.Remove(r)
	}
	return []PDU{&ROARequestPDU{Header: echo(p.Header), ROARequestHandle: r.Handle}}, nil
}

func applyROA(r *model.ROARequest, p *ROARequestPDU) error {
	var err error
	if p.IPv4 != nil {
		if r.V4, err = resources.ParseROAPrefixSet(resources.IPv4, *p.IPv4); err != nil {
			return badResources(err)
		}
	}
	if p.IPv6 != nil {
		if r.V6, err = resources.ParseROAPrefixSet(resources.IPv6, *p.IPv6); err != nil {
			return badResources(err)
		}
	}
	if len(r.V4) == 0 && len(r.V6) == 0 {
		return badRequest("roa_request without prefixes")
	}
	return nil
}

func roaReply(h Header, r *model.ROARequest) *ROARequestPDU {
	asn := r.ASN
	return &ROARequestPDU{
		Header:           echo(h),
		ROARequestHandle: r.Handle,
		ASN:              &asn,
		IPv4:             optional(r.V4.String()),
		IPv6:             optional(r.V6.String()),
	}
}

func (s *session) handleGhostbusterRequest(self *model.Self, p *GhostbusterRequestPDU,
	batch *publication.Batch) ([]PDU, error) {

	if p.Action == ActionList {
		out := make([]PDU, 0, self.GhostbusterRequests.Len())
		for _, g := range self.GhostbusterRequests.Items() {
			out = append(out, ghostbusterReply(p.Header, g))
		}
		return out, nil
	}
	if p.Action == ActionCreate {
		if _, ok := self.GhostbusterRequest(p.GhostbusterRequestHandle); ok {
			return nil, alreadyExists("ghostbuster_request", p.GhostbusterRequestHandle)
		}
		g := &model.GhostbusterRequest{Handle: p.GhostbusterRequestHandle}
		vcard, err := ghostbusterVCard(p)
		if err != nil {
			return nil, err
		}
		if vcard == "" {
			return nil, badRequest("vcard or contact attributes are required")
		}
		g.VCard = vcard
		if err := applyGhostbusterParent(self, g, p); err != nil {
			return nil, err
		}
		self.GhostbusterRequests.Add(g)
		return []PDU{&GhostbusterRequestPDU{Header: echo(p.Header),
			GhostbusterRequestHandle: g.Handle}}, nil
	}

	g, ok := self.GhostbusterRequest(p.GhostbusterRequestHandle)
	if !ok {
		return nil, notFound("ghostbuster_request", p.GhostbusterRequestHandle)
	}
	switch p.Action {
	case ActionGet:
		return []PDU{ghostbusterReply(p.Header, g)}, nil
	case ActionSet:
		vcard, err := ghostbusterVCard(p)
		if err != nil {
			return nil, err
		}
		next := &model.GhostbusterRequest{VCard: g.VCard, ParentHandle: g.ParentHandle}
		if vcard != "" {
			next.VCard = vcard
		}
		if err := applyGhostbusterParent(self, next, p); err != nil {
			return nil, err
		}
		if next.VCard != g.VCard || next.ParentHandle != g.ParentHandle {
			s.Engine.WithdrawGhostbuster(self, g, batch)
			g.VCard, g.ParentHandle = next.VCard, next.ParentHandle
			g.MarkDirty()
		}
	case ActionDestroy:
		s.Engine.WithdrawGhostbuster(self, g, batch)
		self.GhostbusterRequests.Remove(g)
	}
	return []PDU{&GhostbusterRequestPDU{Header: echo(p.Header),
		GhostbusterRequestHandle: g.Handle}}, nil
}

// ghostbusterVCard returns the vCard given by p, or "" if p gives none.
func ghostbusterVCard(p *GhostbusterRequestPDU) (string, error) {
	if p.VCard != "" {
		if err := checkVCard(p.VCard); err != nil {
			return "", err
		}
		return p.VCard, nil
	}
	if p.Contact() == (Contact{}) {
		return "", nil
	}
	return p.Contact().VCard()
}

func applyGhostbusterParent(self *model.Self, g *model.GhostbusterRequest,
	p *GhostbusterRequestPDU) error {

	if p.ParentHandle == nil {
		return nil
	}
	if *p.ParentHandle != "" {
		if _, ok := self.Parent(*p.ParentHandle); !ok {
			return badRequest("ghostbuster_request refers to unknown parent %s",
				*p.ParentHandle)
		}
	}
	g.ParentHandle = *p.ParentHandle
	return nil
}

func ghostbusterReply(h Header, g *model.GhostbusterRequest) *GhostbusterRequestPDU {
	return &GhostbusterRequestPDU{
		Header:                   echo(h),
		GhostbusterRequestHandle: g.Handle,
		ParentHandle:             optional(g.ParentHandle),
		VCard:                    g.VCard,
	}
}

// checkBPKI rejects a BPKI certificate that cannot serve as trust anchor.
func (s *session) checkBPKI(der []byte) error {
	if _, err := s.Verifier.Anchor(der); err != nil {
		return badRequest("invalid bpki_cert: %v", err)
	}
	return nil
}

// mergeSet replaces the families of base for which a value is given.
func mergeSet(base resources.Set, as, v4, v6 *string) (resources.Set, error) {
	if as == nil && v4 == nil && v6 == nil {
		return base, nil
	}
	text := func(p *string, current string) string {
		if p != nil {
			return *p
		}
		return current
	}
	set, err := resources.Parse(text(as, base.AS.String()), text(v4, base.V4.String()),
		text(v6, base.V6.String()))
	if err != nil {
		return resources.Set{}, badResources(err)
	}
	return set, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
