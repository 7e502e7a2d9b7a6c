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

package model

import (
	"strings"
	"time"

	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/pkg/rpki/resources"
	"github.com/openrpki/rpkid/private/storage/persist"
)

// Resource kinds of a ChildResource row.
const (
	KindAS   = "as"
	KindIPv4 = "ipv4"
	KindIPv6 = "ipv6"
)

// Child is a CA to which the self delegates resources.
type Child struct {
	persist.Base

	Handle         string
	BPKICert       []byte
	ReissuePending bool

	Resources    persist.Collection[ChildResource, *ChildResource]
	Certificates persist.Collection[ChildCert, *ChildCert]
}

func (*Child) Table() persist.Table {
	return persist.Table{
		Name:     "child",
		IDColumn: "child_id",
		Columns:  []string{"self_id", "child_handle", "bpki_cert", "reissue_pending"},
	}
}

func (c *Child) Encode() (map[string]any, error) {
	return map[string]any{
		"child_handle":    c.Handle,
		"bpki_cert":       c.BPKICert,
		"reissue_pending": c.ReissuePending,
	}, nil
}

func (c *Child) Decode(r *persist.Row) error {
	c.Handle = r.String("child_handle")
	c.BPKICert = r.Bytes("bpki_cert")
	c.ReissuePending = r.Bool("reissue_pending")
	return nil
}

func (c *Child) Relations() []persist.Relation {
	return []persist.Relation{
		c.Resources.On("child_id"),
		c.Certificates.On("child_id"),
	}
}

// Delegation returns the resources delegated to the child.
func (c *Child) Delegation() (resources.Set, error) {
	var as, v4, v6 []string
	for _, r := range c.Resources.Items() {
		switch r.Kind {
		case KindAS:
			as = append(as, r.Value)
		case KindIPv4:
			v4 = append(v4, r.Value)
		case KindIPv6:
			v6 = append(v6, r.Value)
		default:
			return resources.Set{}, serrors.New("unknown resource kind",
				"child", c.Handle, "kind", r.Kind)
		}
	}
	set, err := resources.Parse(strings.Join(as, ","), strings.Join(v4, ","),
		strings.Join(v6, ","))
	if err != nil {
		return resources.Set{}, serrors.Wrap("decoding delegation", err, "child", c.Handle)
	}
	return set, nil
}

// SetDelegation replaces the delegated resources. Each non-empty family is
// stored as one row.
func (c *Child) SetDelegation(set resources.Set) {
	for _, r := range append([]*ChildResource(nil), c.Resources.Items()...) {
		c.Resources.Remove(r)
	}
	for _, r := range []struct {
		kind  string
		value string
	}{
		{KindAS, set.AS.String()},
		{KindIPv4, set.V4.String()},
		{KindIPv6, set.V6.String()},
	} {
		if r.value != "" {
			c.Resources.Add(&ChildResource{Kind: r.kind, Value: r.value})
		}
	}
}

// CertificatesBySKI returns the current certificates of the child for the
// key with the given gSKI.
func (c *Child) CertificatesBySKI(gski string) []*ChildCert {
	var out []*ChildCert
	for _, cc := range c.Certificates.Items() {
		if cc.GSKI == gski {
			out = append(out, cc)
		}
	}
	return out
}

// ChildResource is one delegated resource family of a child, in textual
// form.
type ChildResource struct {
	persist.Base

	Kind  string
	Value string
}

func (*ChildResource) Table() persist.Table {
	return persist.Table{
		Name:     "child_resource",
		IDColumn: "child_resource_id",
		Columns:  []string{"child_id", "kind", "value"},
	}
}

func (r *ChildResource) Encode() (map[string]any, error) {
	return map[string]any{"kind": r.Kind, "value": r.Value}, nil
}

func (r *ChildResource) Decode(row *persist.Row) error {
	r.Kind = row.String("kind")
	r.Value = row.String("value")
	return nil
}

// ChildCert is a certificate issued to a child.
type ChildCert struct {
	persist.Base

	// GSKI identifies the certified key.
	GSKI     string
	Serial   int64
	CertDER  []byte
	URI      string
	NotAfter time.Time
}

// NewChildCert records c, published at uri.
func NewChildCert(c *objects.Certificate, uri string) (*ChildCert, error) {
	x, err := c.Parsed()
	if err != nil {
		return nil, err
	}
	gski, err := c.GSKI()
	if err != nil {
		return nil, err
	}
	der, err := c.DER()
	if err != nil {
		return nil, err
	}
	return &ChildCert{
		GSKI:     gski,
		Serial:   x.SerialNumber.Int64(),
		CertDER:  der,
		URI:      uri,
		NotAfter: x.NotAfter,
	}, nil
}

func (*ChildCert) Table() persist.Table {
	return persist.Table{
		Name:     "child_cert",
		IDColumn: "child_cert_id",
		Columns:  []string{"child_id", "ski", "serial", "cert_der", "uri", "not_after"},
	}
}

func (c *ChildCert) Encode() (map[string]any, error) {
	return map[string]any{
		"ski":       c.GSKI,
		"serial":    c.Serial,
		"cert_der":  c.CertDER,
		"uri":       c.URI,
		"not_after": c.NotAfter,
	}, nil
}

func (c *ChildCert) Decode(r *persist.Row) error {
	c.GSKI = r.String("ski")
	c.Serial = r.Int64("serial")
	c.CertDER = r.Bytes("cert_der")
	c.URI = r.String("uri")
	c.NotAfter = r.Time("not_after")
	return nil
}

// Certificate parses the stored certificate.
func (c *ChildCert) Certificate() (*objects.Certificate, error) {
	return objects.NewCertificate(objects.DER, c.CertDER)
}
