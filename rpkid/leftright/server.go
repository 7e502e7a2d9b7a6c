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
	"context"
	"errors"
	"maps"
	"sort"
	"time"

	"github.com/openrpki/rpkid/pkg/log"
	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/rpki/cms"
	"github.com/openrpki/rpkid/private/publication"
	"github.com/openrpki/rpkid/private/storage/persist"
	"github.com/openrpki/rpkid/rpkid/ca"
	"github.com/openrpki/rpkid/rpkid/model"
)

// Maintainer runs the maintenance of a single self on demand.
type Maintainer interface {
	// Maintain runs one maintenance pass over the self. Objects to publish
	// are added to batch.
	Maintain(ctx context.Context, self *model.Self, batch *publication.Batch) error
}

// Server serves left-right queries of the management interface.
type Server struct {
	Engine   *ca.Engine
	Verifier *cms.Verifier
	Identity cms.Identity
	// TrustAnchor is the DER encoded BPKI trust anchor of the management
	// interface.
	TrustAnchor []byte
	Maintainer  Maintainer
	// CRLInterval and RegenMargin are assigned to created selves that do
	// not set them. Zero keeps the model defaults.
	CRLInterval time.Duration
	RegenMargin time.Duration
}

// Reply is the outcome of a query.
type Reply struct {
	// DER is the signed reply message.
	DER []byte
	// Units stage the changes of the elements that succeeded, in message
	// order.
	Units []*persist.Unit
	// Publish holds the objects to publish once the units are swept.
	Publish *publication.Batch
}

// Serve handles a CMS signed query. Entities are read through r; changes
// are only staged in the returned units. A query that is not authentic fails
// with an error matching ErrProtocol, a query or a reply that violates the
// schema with one matching ErrSchema.
func (s *Server) Serve(ctx context.Context, r persist.Reader, der []byte) (*Reply, error) {
	logger := log.FromCtx(ctx)
	msg, err := s.Verifier.Verify(der, s.TrustAnchor)
	if err != nil {
		return nil, serrors.Join(ErrProtocol, err)
	}
	q, err := Parse(msg.Content)
	if err != nil {
		return nil, err
	}

	sess := &session{Server: s, r: r, selves: make(map[string]*model.Self)}
	reply := &Reply{Publish: &publication.Batch{}}
	out := &Msg{Version: Version, Type: TypeReply}
	for _, p := range q.PDUs {
		unit := &persist.Unit{}
		batch := &publication.Batch{}
		restore := sess.checkpoint()
		pdus, err := sess.handle(ctx, p, unit, batch)
		if err != nil {
			restore()
			h := p.Head()
			var lrErr *Error
			if !errors.As(err, &lrErr) {
				logger.Error("Failed to handle left-right element", "element", p.Element(),
					"action", h.Action, "self", h.SelfHandle, "handle", p.Handle(), "err", err)
				lrErr = &Error{Code: CodeInternal, Reason: err.Error()}
			} else {
				logger.Info("Rejected left-right element", "element", p.Element(),
					"action", h.Action, "self", h.SelfHandle, "handle", p.Handle(),
					"code", lrErr.Code, "reason", lrErr.Reason)
			}
			out.PDUs = append(out.PDUs, &ReportError{
				Header:    Header{Tag: h.Tag, SelfHandle: h.SelfHandle},
				ErrorCode: lrErr.Code,
				Text:      lrErr.Reason,
			})
			continue
		}
		out.PDUs = append(out.PDUs, pdus...)
		if !unit.Empty() {
			reply.Units = append(reply.Units, unit)
		}
		reply.Publish.Merge(batch)
	}

	raw, err := Marshal(out)
	if err != nil {
		return nil, err
	}
	signed, err := s.Identity.Sign(raw)
	if err != nil {
		return nil, err
	}
	logger.Debug("Served left-right query", "elements", len(q.PDUs),
		"units", len(reply.Units), "publish", reply.Publish.Len())
	reply.DER = signed
	return reply, nil
}

// session is the processing state of one query. Selves loaded or created by
// an element stay visible to the later elements of the same query.
type session struct {
	*Server
	r persist.Reader
	// selves caches selves by handle. A nil entry is a self destroyed by
	// an earlier element.
	selves map[string]*model.Self
}

func (s *session) self(ctx context.Context, handle string) (*model.Self, error) {
	if self, ok := s.selves[handle]; ok {
		if self == nil {
			return nil, notFound("self", handle)
		}
		return self, nil
	}
	self, err := model.FetchSelf(ctx, s.r, handle)
	switch {
	case errors.Is(err, persist.ErrNotFound):
		return nil, notFound("self", handle)
	case err != nil:
		return nil, err
	}
	s.selves[handle] = self
	return self, nil
}

// checkpoint records the cached selves together with their values. The
// returned function reinstates both, which drops every change a failed element
// made to a self that earlier elements of the query may already have staged.
func (s *session) checkpoint() func() {
	cached := maps.Clone(s.selves)
	var restore []func()
	for _, self := range cached {
		if self != nil {
			restore = append(restore, persist.Checkpoint(self))
		}
	}
	return func() {
		s.selves = cached
		for _, f := range restore {
			f()
		}
	}
}

func (s *session) exists(ctx context.Context, handle string) (bool, error) {
	_, err := s.self(ctx, handle)
	var lrErr *Error
	if errors.As(err, &lrErr) && lrErr.Code == CodeObjectNotFound {
		return false, nil
	}
	return err == nil, err
}

// allSelves returns the stored selves overlaid with the changes of this
// query, ordered by handle.
func (s *session) allSelves(ctx context.Context) ([]*model.Self, error) {
	stored, err := model.FetchSelves(ctx, s.r)
	if err != nil {
		return nil, err
	}
	var out []*model.Self
	for _, self := range stored {
		if _, ok := s.selves[self.Handle]; !ok {
			out = append(out, self)
		}
	}
	for _, self := range s.selves {
		if self != nil {
			out = append(out, self)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

func (s *session) handle(ctx context.Context, p PDU, unit *persist.Unit,
	batch *publication.Batch) ([]PDU, error) {

	if sp, ok := p.(*SelfPDU); ok {
		return s.handleSelf(ctx, sp, unit, batch)
	}
	self, err := s.self(ctx, p.Head().SelfHandle)
	if err != nil {
		return nil, err
	}
	var pdus []PDU
	switch p := p.(type) {
	case *ParentPDU:
		pdus, err = s.handleParent(ctx, self, p, batch)
	case *ChildPDU:
		pdus, err = s.handleChild(self, p, batch)
	case *RepositoryPDU:
		pdus, err = s.handleRepository(self, p)
	case *ROARequestPDU:
		pdus, err = s.handleROARequest(self, p, batch)
	case *GhostbusterRequestPDU:
		pdus, err = s.handleGhostbusterRequest(self, p, batch)
	default:
		return nil, badRequest("unexpected element %s", p.Element())
	}
	if err != nil {
		return nil, err
	}
	if p.Head().Action != ActionGet && p.Head().Action != ActionList {
		unit.Store(self)
	}
	return pdus, nil
}

// echo returns the header of a reply element.
func echo(h Header) Header {
	return Header{Action: h.Action, Tag: h.Tag, SelfHandle: h.SelfHandle}
}
