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
	"context"
	"errors"

	"github.com/openrpki/rpkid/pkg/log"
	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/rpki/cms"
	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/pkg/rpki/resources"
	"github.com/openrpki/rpkid/private/publication"
	"github.com/openrpki/rpkid/rpkid/ca"
	"github.com/openrpki/rpkid/rpkid/model"
)

// Server serves the requests of children. It holds no state of its own: the
// entities are passed in per request and mutated in place.
type Server struct {
	Engine   *ca.Engine
	Verifier *cms.Verifier
	Identity cms.Identity
	// Replay is optional.
	Replay *ReplayGuard
}

// Reply is the outcome of a request.
type Reply struct {
	// DER is the signed reply message.
	DER []byte
	// Type is the type of the reply.
	Type Type
	// Publish holds the objects to publish once the mutated entities are
	// stored. It is nil if the request did not change any entity.
	Publish *publication.Batch
}

// Serve handles a CMS signed request of the child. Requests that are not
// authentic or replayed fail with an error matching ErrProtocol. Any other
// failure is answered with a signed error_response, in which case no entity
// was changed.
func (s *Server) Serve(ctx context.Context, self *model.Self, child *model.Child,
	der []byte) (*Reply, error) {

	logger := log.FromCtx(ctx)
	msg, err := s.Verifier.Verify(der, child.BPKICert)
	if err != nil {
		return nil, serrors.Join(ErrProtocol, err, "child", child.Handle)
	}
	if s.Replay != nil && !s.Replay.Check(child.ID(), der) {
		return nil, serrors.JoinNoStack(ErrProtocol, nil, "child", child.Handle,
			"reason", "replayed request")
	}

	sender, recipient := self.Handle, child.Handle
	q, err := Parse(msg.Content)
	if q != nil {
		sender, recipient = orDefault(q.Recipient, sender), orDefault(q.Sender, recipient)
	}
	var r *Message
	var batch *publication.Batch
	if err == nil {
		r, batch, err = s.handle(self, child, q)
	}
	if err != nil {
		var protoErr *Error
		if !errors.As(err, &protoErr) {
			logger.Error("Failed to handle up-down request", "child", child.Handle, "err", err)
			protoErr = &Error{Code: CodeInternal, Description: "internal error"}
		} else {
			logger.Info("Rejected up-down request", "child", child.Handle,
				"code", protoErr.Code, "description", protoErr.Description)
		}
		r, batch = NewErrorResponse(sender, recipient, protoErr), nil
	}
	r.Version, r.Sender, r.Recipient = Version, sender, recipient
	raw, err := Marshal(r)
	if err != nil {
		return nil, err
	}
	signed, err := s.Identity.Sign(raw)
	if err != nil {
		return nil, err
	}
	logger.Debug("Served up-down request", "child", child.Handle, "reply", r.Type)
	return &Reply{DER: signed, Type: r.Type, Publish: batch}, nil
}

func (s *Server) handle(self *model.Self, child *model.Child,
	q *Message) (*Message, *publication.Batch, error) {

	switch q.Type {
	case TypeList:
		r, err := s.list(self, child)
		return r, nil, err
	case TypeIssue:
		return s.issue(self, child, q.Request)
	case TypeRevoke:
		return s.revoke(self, child, q.Key)
	default:
		return nil, nil, &Error{Code: CodeUnrecognizedType,
			Description: "unexpected request type " + string(q.Type)}
	}
}

func (s *Server) list(self *model.Self, child *model.Child) (*Message, error) {
	r := &Message{Type: TypeListResponse}
	cls, ok, err := class(self, child)
	if err != nil || !ok {
		return r, err
	}
	for _, cc := range child.Certificates.Items() {
		cls.Certificates = append(cls.Certificates, Certificate{URL: cc.URI, DER: cc.CertDER})
	}
	r.Classes = []Class{cls}
	return r, nil
}

func (s *Server) issue(self *model.Self, child *model.Child,
	q *IssueRequest) (*Message, *publication.Batch, error) {

	if q.ClassName != self.Handle || !self.HasCertificate() {
		return nil, nil, &Error{Code: CodeNoSuchClass, Description: "no such class " +
			q.ClassName}
	}
	req, err := resources.Parse(q.ReqResourceSetAS, q.ReqResourceSetIPv4,
		q.ReqResourceSetIPv6)
	if err != nil {
		return nil, nil, &Error{Code: CodeBadRequest, Description: err.Error()}
	}
	csr, err := objects.NewRequest(objects.DER, []byte(q.PKCS10))
	if err != nil {
		return nil, nil, &Error{Code: CodeBadRequest, Description: err.Error()}
	}
	batch := &publication.Batch{}
	cc, err := s.Engine.IssueChild(self, child, csr, req, batch)
	switch {
	case errors.Is(err, objects.ErrBadCertificationRequest):
		return nil, nil, &Error{Code: CodeBadRequest, Description: err.Error()}
	case errors.Is(err, ca.ErrNoResources), errors.Is(err, ca.ErrRequestExceeds):
		return nil, nil, &Error{Code: CodeNoResources, Description: err.Error()}
	case errors.Is(err, ca.ErrKeyInUse):
		return nil, nil, &Error{Code: CodeKeyInUse, Description: err.Error()}
	case err != nil:
		return nil, nil, err
	}
	cls, ok, err := class(self, child)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, serrors.New("no class after issuance", "child", child.Handle)
	}
	cls.Certificates = []Certificate{{URL: cc.URI, DER: cc.CertDER}}
	return &Message{Type: TypeIssueResponse, Classes: []Class{cls}}, batch, nil
}

func (s *Server) revoke(self *model.Self, child *model.Child,
	key *Key) (*Message, *publication.Batch, error) {

	if key.ClassName != self.Handle {
		return nil, nil, &Error{Code: CodeRevokeNoClass, Description: "no such class " +
			key.ClassName}
	}
	batch := &publication.Batch{}
	err := s.Engine.RevokeChildKey(self, child, key.SKI, batch)
	switch {
	case errors.Is(err, ca.ErrNoSuchKey):
		return nil, nil, &Error{Code: CodeRevokeNoKey, Description: "no such key " + key.SKI}
	case err != nil:
		return nil, nil, err
	}
	return &Message{
		Type: TypeRevokeResponse,
		Key:  &Key{ClassName: key.ClassName, SKI: key.SKI},
	}, batch, nil
}

// class describes the resource class the self offers to the child. ok is
// false if the self has nothing to offer.
func class(self *model.Self, child *model.Child) (Class, bool, error) {
	if !self.HasCertificate() {
		return Class{}, false, nil
	}
	available, err := ca.Available(self, child)
	if err != nil {
		return Class{}, false, err
	}
	if available.IsEmpty() {
		return Class{}, false, nil
	}
	cert, err := self.Certificate()
	if err != nil {
		return Class{}, false, err
	}
	x, err := cert.Parsed()
	if err != nil {
		return Class{}, false, err
	}
	return Class{
		Name:                self.Handle,
		CertURL:             self.CertURI,
		ResourceSetAS:       available.AS.String(),
		ResourceSetIPv4:     available.V4.String(),
		ResourceSetIPv6:     available.V6.String(),
		ResourceSetNotAfter: x.NotAfter.UTC().Format(TimeFormat),
		SuggestedSIAHead:    self.URI(child.Handle + "/"),
		Issuer:              self.CertDER,
	}, true, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
