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
	"time"

	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/pkg/rpki/resources"
	"github.com/openrpki/rpkid/private/storage/persist"
)

// ROARequest asks the self to maintain a ROA for an origin AS and a set of
// prefixes.
type ROARequest struct {
	persist.Base

	Handle string
	ASN    uint32
	V4     resources.ROAPrefixSet
	V6     resources.ROAPrefixSet

	// The currently published ROA, if any.
	ROADER     []byte
	ROAURI     string
	EESerial   int64
	EENotAfter time.Time
}

func (*ROARequest) Table() persist.Table {
	return persist.Table{
		Name:     "roa_request",
		IDColumn: "roa_request_id",
		Columns: []string{"self_id", "roa_request_handle", "asn", "ipv4", "ipv6",
			"roa_der", "roa_uri", "ee_serial", "ee_not_after"},
	}
}

func (r *ROARequest) Encode() (map[string]any, error) {
	return map[string]any{
		"roa_request_handle": r.Handle,
		"asn":                int64(r.ASN),
		"ipv4":               r.V4.String(),
		"ipv6":               r.V6.String(),
		"roa_der":            r.ROADER,
		"roa_uri":            r.ROAURI,
		"ee_serial":          r.EESerial,
		"ee_not_after":       r.EENotAfter,
	}, nil
}

func (r *ROARequest) Decode(row *persist.Row) error {
	r.Handle = row.String("roa_request_handle")
	r.ASN = uint32(row.Int64("asn"))
	var err error
	if r.V4, err = resources.ParseROAPrefixSet(resources.IPv4, row.String("ipv4")); err != nil {
		return serrors.Wrap("decoding ROA prefixes", err, "roa_request", r.Handle)
	}
	if r.V6, err = resources.ParseROAPrefixSet(resources.IPv6, row.String("ipv6")); err != nil {
		return serrors.Wrap("decoding ROA prefixes", err, "roa_request", r.Handle)
	}
	r.ROADER = row.Bytes("roa_der")
	r.ROAURI = row.String("roa_uri")
	r.EESerial = row.Int64("ee_serial")
	r.EENotAfter = row.Time("ee_not_after")
	return nil
}

// Content returns the ROA content requested.
func (r *ROARequest) Content() objects.ROAContent {
	return objects.ROAContent{ASID: r.ASN, V4: r.V4, V6: r.V6}
}

// Withdraw forgets the published ROA and returns its serial and expiry for
// revocation. ok is false if nothing was published.
func (r *ROARequest) Withdraw() (serial int64, notAfter time.Time, uri string, ok bool) {
	if len(r.ROADER) == 0 {
		return 0, time.Time{}, "", false
	}
	serial, notAfter, uri = r.EESerial, r.EENotAfter, r.ROAURI
	r.ROADER, r.ROAURI, r.EESerial, r.EENotAfter = nil, "", 0, time.Time{}
	r.MarkDirty()
	return serial, notAfter, uri, true
}

// GhostbusterRequest asks the self to publish a Ghostbuster record with
// contact information for the CA.
type GhostbusterRequest struct {
	persist.Base

	Handle string
	VCard  string
	// ParentHandle optionally scopes the record to one parent.
	ParentHandle string

	GhostbusterDER []byte
	GhostbusterURI string
	EESerial       int64
	EENotAfter     time.Time
}

func (*GhostbusterRequest) Table() persist.Table {
	return persist.Table{
		Name:     "ghostbuster_request",
		IDColumn: "ghostbuster_request_id",
		Columns: []string{"self_id", "ghostbuster_request_handle", "vcard", "parent_handle",
			"ghostbuster_der", "ghostbuster_uri", "ee_serial", "ee_not_after"},
	}
}

func (g *GhostbusterRequest) Encode() (map[string]any, error) {
	return map[string]any{
		"ghostbuster_request_handle": g.Handle,
		"vcard":                      g.VCard,
		"parent_handle":              g.ParentHandle,
		"ghostbuster_der":            g.GhostbusterDER,
		"ghostbuster_uri":            g.GhostbusterURI,
		"ee_serial":                  g.EESerial,
		"ee_not_after":               g.EENotAfter,
	}, nil
}

func (g *GhostbusterRequest) Decode(r *persist.Row) error {
	g.Handle = r.String("ghostbuster_request_handle")
	g.VCard = r.String("vcard")
	g.ParentHandle = r.String("parent_handle")
	g.GhostbusterDER = r.Bytes("ghostbuster_der")
	g.GhostbusterURI = r.String("ghostbuster_uri")
	g.EESerial = r.Int64("ee_serial")
	g.EENotAfter = r.Time("ee_not_after")
	return nil
}

// Withdraw forgets the published record, like ROARequest.Withdraw.
func (g *GhostbusterRequest) Withdraw() (serial int64, notAfter time.Time, uri string, ok bool) {
	if len(g.GhostbusterDER) == 0 {
		return 0, time.Time{}, "", false
	}
	serial, notAfter, uri = g.EESerial, g.EENotAfter, g.GhostbusterURI
	g.GhostbusterDER, g.GhostbusterURI, g.EESerial, g.EENotAfter = nil, "", 0, time.Time{}
	g.MarkDirty()
	return serial, notAfter, uri, true
}
