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

// Package model defines the persistent entities of the CA engine and the
// sqlite schema they are stored in.
//
// The entity tree is rooted at Self, one locally hosted CA. A self owns its
// repositories, parents, children, ROA requests, Ghostbuster requests and
// revocation records. Children own their resource delegation rows and their
// issued certificates. Fetching a self materializes the whole tree.
package model

import (
	"context"
	"time"

	"github.com/openrpki/rpkid/private/storage/persist"
)

// SchemaVersion is the version of Schema.
const SchemaVersion = 1

// Schema is the sqlite schema of the entity tree. Times are stored as unix
// seconds and durations as nanoseconds.
const Schema = `
CREATE TABLE self (
	self_id INTEGER PRIMARY KEY AUTOINCREMENT,
	self_handle TEXT NOT NULL UNIQUE,
	crl_interval INTEGER NOT NULL,
	regen_margin INTEGER NOT NULL,
	sia_base TEXT NOT NULL,
	ta_as TEXT NOT NULL,
	ta_ipv4 TEXT NOT NULL,
	ta_ipv6 TEXT NOT NULL,
	key_der BLOB,
	cert_der BLOB,
	cert_uri TEXT NOT NULL,
	next_serial INTEGER NOT NULL,
	crl_number INTEGER NOT NULL,
	crl_der BLOB,
	manifest_number INTEGER NOT NULL,
	manifest_der BLOB,
	next_update INTEGER NOT NULL,
	crl_stale INTEGER NOT NULL,
	pending_revoke_skis TEXT NOT NULL,
	reissue_pending INTEGER NOT NULL
);
CREATE TABLE repository (
	repository_id INTEGER PRIMARY KEY AUTOINCREMENT,
	self_id INTEGER NOT NULL REFERENCES self(self_id) ON DELETE CASCADE,
	repository_handle TEXT NOT NULL,
	peer_contact_uri TEXT NOT NULL,
	bpki_cert BLOB,
	UNIQUE (self_id, repository_handle)
);
CREATE TABLE parent (
	parent_id INTEGER PRIMARY KEY AUTOINCREMENT,
	self_id INTEGER NOT NULL REFERENCES self(self_id) ON DELETE CASCADE,
	parent_handle TEXT NOT NULL,
	peer_contact_uri TEXT NOT NULL,
	sender_name TEXT NOT NULL,
	recipient_name TEXT NOT NULL,
	bpki_cert BLOB,
	class_name TEXT NOT NULL,
	last_poll INTEGER NOT NULL,
	UNIQUE (self_id, parent_handle)
);
CREATE TABLE child (
	child_id INTEGER PRIMARY KEY AUTOINCREMENT,
	self_id INTEGER NOT NULL REFERENCES self(self_id) ON DELETE CASCADE,
	child_handle TEXT NOT NULL,
	bpki_cert BLOB,
	reissue_pending INTEGER NOT NULL,
	UNIQUE (self_id, child_handle)
);
CREATE TABLE child_resource (
	child_resource_id INTEGER PRIMARY KEY AUTOINCREMENT,
	child_id INTEGER NOT NULL REFERENCES child(child_id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	value TEXT NOT NULL
);
CREATE TABLE child_cert (
	child_cert_id INTEGER PRIMARY KEY AUTOINCREMENT,
	child_id INTEGER NOT NULL REFERENCES child(child_id) ON DELETE CASCADE,
	ski TEXT NOT NULL,
	serial INTEGER NOT NULL,
	cert_der BLOB NOT NULL,
	uri TEXT NOT NULL,
	not_after INTEGER NOT NULL
);
CREATE INDEX child_cert_ski ON child_cert(ski);
CREATE TABLE roa_request (
	roa_request_id INTEGER PRIMARY KEY AUTOINCREMENT,
	self_id INTEGER NOT NULL REFERENCES self(self_id) ON DELETE CASCADE,
	roa_request_handle TEXT NOT NULL,
	asn INTEGER NOT NULL,
	ipv4 TEXT NOT NULL,
	ipv6 TEXT NOT NULL,
	roa_der BLOB,
	roa_uri TEXT NOT NULL,
	ee_serial INTEGER NOT NULL,
	ee_not_after INTEGER NOT NULL,
	UNIQUE (self_id, roa_request_handle)
);
CREATE TABLE ghostbuster_request (
	ghostbuster_request_id INTEGER PRIMARY KEY AUTOINCREMENT,
	self_id INTEGER NOT NULL REFERENCES self(self_id) ON DELETE CASCADE,
	ghostbuster_request_handle TEXT NOT NULL,
	vcard TEXT NOT NULL,
	parent_handle TEXT NOT NULL,
	ghostbuster_der BLOB,
	ghostbuster_uri TEXT NOT NULL,
	ee_serial INTEGER NOT NULL,
	ee_not_after INTEGER NOT NULL,
	UNIQUE (self_id, ghostbuster_request_handle)
);
CREATE TABLE revoked_cert (
	revoked_cert_id INTEGER PRIMARY KEY AUTOINCREMENT,
	self_id INTEGER NOT NULL REFERENCES self(self_id) ON DELETE CASCADE,
	serial INTEGER NOT NULL,
	revoked_at INTEGER NOT NULL,
	expires INTEGER NOT NULL
);
CREATE INDEX revoked_cert_expires ON revoked_cert(expires);
`

// FetchSelves loads every self together with its entity tree.
func FetchSelves(ctx context.Context, q persist.Reader) ([]*Self, error) {
	return persist.Fetch[Self](ctx, q, "", nil)
}

// FetchSelf loads the self with the given handle. It returns an error
// matching persist.ErrNotFound if there is none.
func FetchSelf(ctx context.Context, q persist.Reader, handle string) (*Self, error) {
	return persist.FetchOne[Self](ctx, q, "self_handle = :handle",
		persist.Args{"handle": handle})
}

// FetchSelfByChildID loads the self that owns the child with the given
// identifier.
func FetchSelfByChildID(ctx context.Context, q persist.Reader, childID int64) (*Self, error) {
	return persist.FetchOne[Self](ctx, q,
		"self_id = (SELECT self_id FROM child WHERE child_id = :child)",
		persist.Args{"child": childID})
}

// DeleteExpiredRevocations removes revocation records of certificates that
// expired before now. Expired certificates need not be listed on a CRL.
func DeleteExpiredRevocations(ctx context.Context, q persist.Querier,
	now time.Time) (int, error) {

	res, err := q.ExecContext(ctx, "DELETE FROM revoked_cert WHERE expires < ?", now.Unix())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
