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

// Package leftright implements the control protocol through which the local
// management interface configures the CA engine.
//
// A message carries a sequence of elements. Each element addresses one
// entity of a self by type and handle and asks for one action on it. The
// elements are processed in order and independently: the failure of one
// element is reported in its place and does not affect the others.
package leftright

import (
	"encoding/xml"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/rpkid/updown"
)

// Namespace is the XML namespace of left-right messages.
const Namespace = "http://www.hactrn.net/uris/rpki/left-right-spec/"

// Version is the only protocol version supported.
const Version = 1

// ContentType is the HTTP content type of left-right messages.
const ContentType = "application/x-rpki"

// MsgType distinguishes queries from replies.
type MsgType string

// Message types.
const (
	TypeQuery MsgType = "query"
	TypeReply MsgType = "reply"
)

// Action is the operation an element asks for.
type Action string

// Actions.
const (
	ActionCreate  Action = "create"
	ActionSet     Action = "set"
	ActionGet     Action = "get"
	ActionList    Action = "list"
	ActionDestroy Action = "destroy"
)

// Flag is a boolean attribute that is present as "yes" when set.
type Flag bool

// MarshalText implements encoding.TextMarshaler.
func (f Flag) MarshalText() ([]byte, error) {
	if f {
		return []byte("yes"), nil
	}
	return []byte("no"), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Flag) UnmarshalText(text []byte) error {
	switch string(text) {
	case "yes":
		*f = true
	case "no", "":
		*f = false
	default:
		return serrors.New("invalid flag value", "value", string(text))
	}
	return nil
}

// Msg is a left-right message.
type Msg struct {
	Version int
	Type    MsgType
	PDUs    []PDU
}

// PDU is an element of a message.
type PDU interface {
	// Element returns the XML element name.
	Element() string
	// Head returns the attributes common to all elements.
	Head() Header
	// Handle returns the handle of the addressed entity.
	Handle() string
}

// Header holds the attributes common to all elements.
type Header struct {
	Action     Action `xml:"action,attr,omitempty" validate:"omitempty,oneof=create set get list destroy"`
	Tag        string `xml:"tag,attr,omitempty"`
	SelfHandle string `xml:"self_handle,attr,omitempty"`
}

// Head implements PDU.
func (h Header) Head() Header { return h }

// SelfPDU configures a self. Intervals are in seconds.
type SelfPDU struct {
	XMLName xml.Name `xml:"self"`
	Header
	CRLInterval *int64  `xml:"crl_interval,attr,omitempty" validate:"omitempty,gt=0"`
	RegenMargin *int64  `xml:"regen_margin,attr,omitempty" validate:"omitempty,gte=0"`
	SIABase     *string `xml:"sia_base,attr,omitempty" validate:"omitempty,startswith=rsync://,endswith=/"`
	// AS, IPv4 and IPv6 are the resources of a self without parents.
	AS   *string `xml:"as,attr,omitempty"`
	IPv4 *string `xml:"ipv4,attr,omitempty"`
	IPv6 *string `xml:"ipv6,attr,omitempty"`

	Rekey           Flag `xml:"rekey,attr,omitempty"`
	Reissue         Flag `xml:"reissue,attr,omitempty"`
	Revoke          Flag `xml:"revoke,attr,omitempty"`
	RunNow          Flag `xml:"run_now,attr,omitempty"`
	PublishWorldNow Flag `xml:"publish_world_now,attr,omitempty"`
	RegenNow        Flag `xml:"regen_now,attr,omitempty"`
}

func (SelfPDU) Element() string  { return "self" }
func (p SelfPDU) Handle() string { return p.SelfHandle }

// ParentPDU configures a parent of a self.
type ParentPDU struct {
	XMLName xml.Name `xml:"parent"`
	Header
	ParentHandle   string        `xml:"parent_handle,attr,omitempty"`
	PeerContactURI *string       `xml:"peer_contact_uri,attr,omitempty" validate:"omitempty,url"`
	SenderName     *string       `xml:"sender_name,attr,omitempty"`
	RecipientName  *string       `xml:"recipient_name,attr,omitempty"`
	BPKICert       updown.Base64 `xml:"bpki_cert,omitempty"`

	Rekey   Flag `xml:"rekey,attr,omitempty"`
	Reissue Flag `xml:"reissue,attr,omitempty"`
	Revoke  Flag `xml:"revoke,attr,omitempty"`
}

func (ParentPDU) Element() string  { return "parent" }
func (p ParentPDU) Handle() string { return p.ParentHandle }

// ChildPDU configures a child of a self and the resources delegated to it.
type ChildPDU struct {
	XMLName xml.Name `xml:"child"`
	Header
	ChildHandle string        `xml:"child_handle,attr,omitempty"`
	AS          *string       `xml:"as,attr,omitempty"`
	IPv4        *string       `xml:"ipv4,attr,omitempty"`
	IPv6        *string       `xml:"ipv6,attr,omitempty"`
	BPKICert    updown.Base64 `xml:"bpki_cert,omitempty"`

	Reissue Flag `xml:"reissue,attr,omitempty"`
}

func (ChildPDU) Element() string  { return "child" }
func (p ChildPDU) Handle() string { return p.ChildHandle }

// RepositoryPDU configures the publication repository of a self.
type RepositoryPDU struct {
	XMLName xml.Name `xml:"repository"`
	Header
	RepositoryHandle string        `xml:"repository_handle,attr,omitempty"`
	PeerContactURI   *string       `xml:"peer_contact_uri,attr,omitempty" validate:"omitempty,url"`
	BPKICert         updown.Base64 `xml:"bpki_cert,omitempty"`
}

func (RepositoryPDU) Element() string  { return "repository" }
func (p RepositoryPDU) Handle() string { return p.RepositoryHandle }

// ROARequestPDU asks for a ROA. The prefixes are in ROA prefix form, for
// example "192.0.2.0/24-25".
type ROARequestPDU struct {
	XMLName xml.Name `xml:"roa_request"`
	Header
	ROARequestHandle string  `xml:"roa_request_handle,attr,omitempty"`
	ASN              *uint32 `xml:"asn,attr,omitempty"`
	IPv4             *string `xml:"ipv4,attr,omitempty"`
	IPv6             *string `xml:"ipv6,attr,omitempty"`
}

func (ROARequestPDU) Element() string  { return "roa_request" }
func (p ROARequestPDU) Handle() string { return p.ROARequestHandle }

// GhostbusterRequestPDU asks for a Ghostbuster record. The vCard is either
// given verbatim or built from the contact attributes.
type GhostbusterRequestPDU struct {
	XMLName xml.Name `xml:"ghostbuster_request"`
	Header
	GhostbusterRequestHandle string  `xml:"ghostbuster_request_handle,attr,omitempty"`
	ParentHandle             *string `xml:"parent_handle,attr,omitempty"`
	FullName                 string  `xml:"full_name,attr,omitempty"`
	FamilyName               string  `xml:"family_name,attr,omitempty"`
	GivenName                string  `xml:"given_name,attr,omitempty"`
	Email                    string  `xml:"email,attr,omitempty" validate:"omitempty,email"`
	Postal                   string  `xml:"postal,attr,omitempty"`
	Telephone                string  `xml:"telephone,attr,omitempty"`
	VCard                    string  `xml:"vcard,omitempty"`
}

func (GhostbusterRequestPDU) Element() string  { return "ghostbuster_request" }
func (p GhostbusterRequestPDU) Handle() string { return p.GhostbusterRequestHandle }

// Contact returns the contact attributes.
func (p GhostbusterRequestPDU) Contact() Contact {
	return Contact{
		FullName:   p.FullName,
		FamilyName: p.FamilyName,
		GivenName:  p.GivenName,
		Email:      p.Email,
		Postal:     p.Postal,
		Telephone:  p.Telephone,
	}
}

// ReportError reports the failure of the query element with the same tag.
type ReportError struct {
	XMLName xml.Name `xml:"report_error"`
	Header
	ErrorCode ErrorCode `xml:"error_code,attr" validate:"required"`
	Text      string    `xml:",chardata"`
}

func (ReportError) Element() string { return "report_error" }
func (ReportError) Handle() string  { return "" }

func newPDU(element string) (PDU, bool) {
	switch element {
	case "self":
		return &SelfPDU{}, true
	case "parent":
		return &ParentPDU{}, true
	case "child":
		return &ChildPDU{}, true
	case "repository":
		return &RepositoryPDU{}, true
	case "roa_request":
		return &ROARequestPDU{}, true
	case "ghostbuster_request":
		return &GhostbusterRequestPDU{}, true
	case "report_error":
		return &ReportError{}, true
	}
	return nil, false
}

// MarshalXML implements xml.Marshaler.
func (m *Msg) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Space: Namespace, Local: "msg"}
	start.Attr = []xml.Attr{
		{Name: xml.Name{Local: "version"}, Value: strconv.Itoa(m.Version)},
		{Name: xml.Name{Local: "type"}, Value: string(m.Type)},
	}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, p := range m.PDUs {
		if err := e.Encode(p); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// UnmarshalXML implements xml.Unmarshaler.
func (m *Msg) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	if start.Name.Space != Namespace || start.Name.Local != "msg" {
		return serrors.New("unexpected root element", "namespace", start.Name.Space,
			"element", start.Name.Local)
	}
	for _, a := range start.Attr {
		switch a.Name.Local {
		case "version":
			v, err := strconv.Atoi(a.Value)
			if err != nil {
				return serrors.Wrap("parsing version", err)
			}
			m.Version = v
		case "type":
			m.Type = MsgType(a.Value)
		}
	}
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			p, ok := newPDU(t.Name.Local)
			if !ok {
				return serrors.New("unknown element", "element", t.Name.Local)
			}
			if err := d.DecodeElement(p, &t); err != nil {
				return serrors.Wrap("decoding element", err, "element", t.Name.Local)
			}
			m.PDUs = append(m.PDUs, p)
		case xml.EndElement:
			return nil
		}
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(validateHandles, SelfPDU{}, ParentPDU{}, ChildPDU{},
		RepositoryPDU{}, ROARequestPDU{}, GhostbusterRequestPDU{})
	return v
}

// validateHandles checks that an element names its self and its entity.
// Only list may omit the entity handle, and only a self list may omit the
// self handle.
func validateHandles(sl validator.StructLevel) {
	p := sl.Current().Interface().(PDU)
	h := p.Head()
	if h.Action == "" {
		sl.ReportError(h.Action, "Action", "Action", "required", "")
		return
	}
	if h.SelfHandle == "" && (p.Element() != "self" || h.Action != ActionList) {
		sl.ReportError(h.SelfHandle, "SelfHandle", "SelfHandle", "required", "")
	}
	if p.Handle() == "" && h.Action != ActionList {
		sl.ReportError(p.Handle(), "Handle", "Handle", "required", "")
	}
}

// Parse decodes and validates a query. Any violation rejects the whole
// message with an error matching ErrSchema.
func Parse(raw []byte) (*Msg, error) {
	var m Msg
	if err := xml.Unmarshal(raw, &m); err != nil {
		return nil, serrors.JoinNoStack(ErrSchema, err)
	}
	if m.Version != Version {
		return nil, serrors.JoinNoStack(ErrSchema, nil, "reason", "unsupported version",
			"version", m.Version)
	}
	if m.Type != TypeQuery {
		return nil, serrors.JoinNoStack(ErrSchema, nil, "reason", "not a query",
			"type", m.Type)
	}
	for i, p := range m.PDUs {
		if _, ok := p.(*ReportError); ok {
			return nil, serrors.JoinNoStack(ErrSchema, nil, "reason", "report_error in query",
				"index", i)
		}
		if err := validate.Struct(p); err != nil {
			return nil, serrors.JoinNoStack(ErrSchema, err, "element", p.Element(),
				"index", i)
		}
	}
	return &m, nil
}

// ParseReply decodes and validates a reply.
func ParseReply(raw []byte) (*Msg, error) {
	var m Msg
	if err := xml.Unmarshal(raw, &m); err != nil {
		return nil, serrors.JoinNoStack(ErrSchema, err)
	}
	if m.Version != Version || m.Type != TypeReply {
		return nil, serrors.JoinNoStack(ErrSchema, nil, "reason", "not a reply",
			"version", m.Version, "type", m.Type)
	}
	return &m, validateAll(m.PDUs)
}

// Marshal validates and encodes a message.
func Marshal(m *Msg) ([]byte, error) {
	if err := validateAll(m.PDUs); err != nil {
		return nil, err
	}
	raw, err := xml.Marshal(m)
	if err != nil {
		return nil, serrors.Wrap("encoding message", err, "type", m.Type)
	}
	return append([]byte(xml.Header), raw...), nil
}

func validateAll(pdus []PDU) error {
	for i, p := range pdus {
		if err := validate.Struct(p); err != nil {
			return serrors.JoinNoStack(ErrSchema, err, "element", p.Element(), "index", i)
		}
	}
	return nil
}
