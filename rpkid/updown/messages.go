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

// Package updown implements both sides of the up-down provisioning protocol
// (RFC 6492) spoken between a parent CA and its children.
//
// The parent side serves list, issue and revoke requests of a child. The
// child side polls the parent for its certificate. Messages are XML
// documents carried as the content of a CMS SignedData object.
package updown

import (
	"encoding/base64"
	"encoding/xml"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openrpki/rpkid/pkg/private/serrors"
)

// Namespace is the XML namespace of up-down messages.
const Namespace = "http://www.apnic.net/specs/rescerts/up-down/"

// Version is the only protocol version supported.
const Version = 1

// ContentType is the HTTP content type of up-down messages.
const ContentType = "application/rpki-updown"

// Type is the type of a message.
type Type string

// Message types.
const (
	TypeList           Type = "list"
	TypeListResponse   Type = "list_response"
	TypeIssue          Type = "issue"
	TypeIssueResponse  Type = "issue_response"
	TypeRevoke         Type = "revoke"
	TypeRevokeResponse Type = "revoke_response"
	TypeError          Type = "error_response"
)

func (t Type) known() bool {
	switch t {
	case TypeList, TypeListResponse, TypeIssue, TypeIssueResponse, TypeRevoke,
		TypeRevokeResponse, TypeError:
		return true
	}
	return false
}

// TimeFormat is the format of resource_set_notafter.
const TimeFormat = "2006-01-02T15:04:05Z"

// Message is an up-down message. Which of the optional parts are present
// depends on the type.
type Message struct {
	XMLName   xml.Name `xml:"http://www.apnic.net/specs/rescerts/up-down/ message"`
	Version   int      `xml:"version,attr"`
	Sender    string   `xml:"sender,attr" validate:"required"`
	Recipient string   `xml:"recipient,attr" validate:"required"`
	Type      Type     `xml:"type,attr" validate:"required"`

	// Classes are set in list_response and issue_response.
	Classes []Class `xml:"class" validate:"dive"`
	// Request is set in issue.
	Request *IssueRequest `xml:"request"`
	// Key is set in revoke and revoke_response.
	Key *Key `xml:"key"`
	// Status and Description are set in error_response.
	Status      Code         `xml:"status,omitempty"`
	Description *Description `xml:"description"`
}

// Class is a resource class offered by the parent.
type Class struct {
	Name                string        `xml:"class_name,attr" validate:"required"`
	CertURL             string        `xml:"cert_url,attr" validate:"required"`
	ResourceSetAS       string        `xml:"resource_set_as,attr"`
	ResourceSetIPv4     string        `xml:"resource_set_ipv4,attr"`
	ResourceSetIPv6     string        `xml:"resource_set_ipv6,attr"`
	ResourceSetNotAfter string        `xml:"resource_set_notafter,attr" validate:"required"`
	SuggestedSIAHead    string        `xml:"suggested_sia_head,attr,omitempty"`
	Certificates        []Certificate `xml:"certificate" validate:"dive"`
	Issuer              Base64        `xml:"issuer" validate:"required"`
}

// NotAfter returns the parsed resource_set_notafter.
func (c Class) NotAfter() (time.Time, error) {
	return time.Parse(TimeFormat, c.ResourceSetNotAfter)
}

// Certificate is a certificate the parent issued to the child.
type Certificate struct {
	URL string `xml:"cert_url,attr" validate:"required"`
	DER Base64 `xml:",chardata" validate:"required"`
}

// IssueRequest asks for the certification of the enclosed PKCS#10 request.
// An empty resource set attribute asks for everything available in that
// family.
type IssueRequest struct {
	ClassName          string `xml:"class_name,attr" validate:"required"`
	ReqResourceSetAS   string `xml:"req_resource_set_as,attr,omitempty"`
	ReqResourceSetIPv4 string `xml:"req_resource_set_ipv4,attr,omitempty"`
	ReqResourceSetIPv6 string `xml:"req_resource_set_ipv6,attr,omitempty"`
	PKCS10             Base64 `xml:",chardata" validate:"required"`
}

// Key identifies a key by its gSKI.
type Key struct {
	ClassName string `xml:"class_name,attr" validate:"required"`
	SKI       string `xml:"ski,attr" validate:"required"`
}

// Description is the human readable part of an error_response.
type Description struct {
	Lang string `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
	Text string `xml:",chardata"`
}

// Base64 is binary data carried as base64 text. Whitespace is ignored when
// decoding.
type Base64 []byte

// MarshalText implements encoding.TextMarshaler.
func (b Base64) MarshalText() ([]byte, error) {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(b)))
	base64.StdEncoding.Encode(out, b)
	return out, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Base64) UnmarshalText(text []byte) error {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, string(text))
	der, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return serrors.Wrap("decoding base64", err)
	}
	*b = der
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(validateMessage, Message{})
	return v
}

// validateMessage checks that a message carries exactly the parts its type
// requires.
func validateMessage(sl validator.StructLevel) {
	m := sl.Current().Interface().(Message)
	require := func(ok bool, field string) {
		if !ok {
			sl.ReportError(m.Type, field, field, "type_"+string(m.Type), "")
		}
	}
	switch m.Type {
	case TypeList:
		require(len(m.Classes) == 0 && m.Request == nil && m.Key == nil, "Body")
	case TypeListResponse:
		require(m.Request == nil && m.Key == nil, "Body")
	case TypeIssue:
		require(m.Request != nil, "Request")
	case TypeIssueResponse:
		require(len(m.Classes) == 1 && len(m.Classes[0].Certificates) == 1, "Classes")
	case TypeRevoke, TypeRevokeResponse:
		require(m.Key != nil, "Key")
	case TypeError:
		require(m.Status != 0, "Status")
	}
}

// Parse decodes and validates a message. A message with an unsupported
// version or type yields an *Error with the corresponding code.
func Parse(raw []byte) (*Message, error) {
	var m Message
	if err := xml.Unmarshal(raw, &m); err != nil {
		return nil, &Error{Code: CodeInternal, Description: "malformed message: " + err.Error()}
	}
	if m.Version != Version {
		return &m, &Error{Code: CodeVersion, Description: "unsupported version"}
	}
	if !m.Type.known() {
		return &m, &Error{Code: CodeUnrecognizedType, Description: "unrecognized type " +
			string(m.Type)}
	}
	if err := validate.Struct(m); err != nil {
		return &m, &Error{Code: CodeInternal, Description: "schema violation: " + err.Error()}
	}
	return &m, nil
}

// Marshal validates and encodes a message.
func Marshal(m *Message) ([]byte, error) {
	if err := validate.Struct(m); err != nil {
		return nil, serrors.Wrap("outbound schema violation", err, "type", m.Type)
	}
	raw, err := xml.Marshal(m)
	if err != nil {
		return nil, serrors.Wrap("encoding message", err, "type", m.Type)
	}
	return append([]byte(xml.Header), raw...), nil
}

// NewErrorResponse returns the error_response for err.
func NewErrorResponse(sender, recipient string, err *Error) *Message {
	return &Message{
		Version:     Version,
		Sender:      sender,
		Recipient:   recipient,
		Type:        TypeError,
		Status:      err.Code,
		Description: &Description{Lang: "en-US", Text: err.Description},
	}
}
