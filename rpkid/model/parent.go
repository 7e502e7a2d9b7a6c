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

	"github.com/openrpki/rpkid/private/storage/persist"
)

// Parent is a CA from which the self receives its certificate.
type Parent struct {
	persist.Base

	Handle         string
	PeerContactURI string
	// SenderName and RecipientName are the up-down message sender and
	// recipient the parent expects.
	SenderName    string
	RecipientName string
	BPKICert      []byte
	// ClassName is the resource class last listed by the parent.
	ClassName string
	LastPoll  time.Time
}

func (*Parent) Table() persist.Table {
	return persist.Table{
		Name:     "parent",
		IDColumn: "parent_id",
		Columns: []string{"self_id", "parent_handle", "peer_contact_uri", "sender_name",
			"recipient_name", "bpki_cert", "class_name", "last_poll"},
	}
}

func (p *Parent) Encode() (map[string]any, error) {
	return map[string]any{
		"parent_handle":    p.Handle,
		"peer_contact_uri": p.PeerContactURI,
		"sender_name":      p.SenderName,
		"recipient_name":   p.RecipientName,
		"bpki_cert":        p.BPKICert,
		"class_name":       p.ClassName,
		"last_poll":        p.LastPoll,
	}, nil
}

func (p *Parent) Decode(r *persist.Row) error {
	p.Handle = r.String("parent_handle")
	p.PeerContactURI = r.String("peer_contact_uri")
	p.SenderName = r.String("sender_name")
	p.RecipientName = r.String("recipient_name")
	p.BPKICert = r.Bytes("bpki_cert")
	p.ClassName = r.String("class_name")
	p.LastPoll = r.Time("last_poll")
	return nil
}

// Repository is the publication repository of the self.
type Repository struct {
	persist.Base

	Handle         string
	PeerContactURI string
	BPKICert       []byte
}

func (*Repository) Table() persist.Table {
	return persist.Table{
		Name:     "repository",
		IDColumn: "repository_id",
		Columns:  []string{"self_id", "repository_handle", "peer_contact_uri", "bpki_cert"},
	}
}

func (r *Repository) Encode() (map[string]any, error) {
	return map[string]any{
		"repository_handle": r.Handle,
		"peer_contact_uri":  r.PeerContactURI,
		"bpki_cert":         r.BPKICert,
	}, nil
}

func (r *Repository) Decode(row *persist.Row) error {
	r.Handle = row.String("repository_handle")
	r.PeerContactURI = row.String("peer_contact_uri")
	r.BPKICert = row.Bytes("bpki_cert")
	return nil
}
