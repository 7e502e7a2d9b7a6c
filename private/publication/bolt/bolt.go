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

// Package bolt publishes objects into a bbolt database. Each rsync host is
// a bucket, keyed by the object path below the host. A repository server
// reads the database to serve the objects.
package bolt

import (
	"bytes"
	"context"
	"errors"

	"go.etcd.io/bbolt"

	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/private/publication"
)

// ErrNotFound indicates an object that is not published.
var ErrNotFound = errors.New("object not published")

var _ publication.Publisher = (*Store)(nil)

// Store is a bbolt backed publisher.
type Store struct {
	db *bbolt.DB
}

// New returns a store backed by db.
func New(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// Open opens the database at path and returns a store backed by it.
func Open(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, options)
	if err != nil {
		return nil, serrors.Wrap("opening bbolt db", err, "path", path)
	}
	return New(db), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Publish(_ context.Context, uri string, der []byte) error {
	host, key, err := publication.SplitURI(uri)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(host))
		if err != nil {
			return serrors.Wrap("creating bucket", err, "host", host)
		}
		return b.Put([]byte(key), der)
	})
}

func (s *Store) Withdraw(_ context.Context, uri string) error {
	host, key, err := publication.SplitURI(uri)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(host))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// Get returns the object published at uri.
func (s *Store) Get(uri string) ([]byte, error) {
	host, key, err := publication.SplitURI(uri)
	if err != nil {
		return nil, err
	}
	var der []byte
	err = s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(host))
		if b == nil {
			return serrors.JoinNoStack(ErrNotFound, nil, "uri", uri)
		}
		v := b.Get([]byte(key))
		if v == nil {
			return serrors.JoinNoStack(ErrNotFound, nil, "uri", uri)
		}
		// v is only valid during the transaction.
		der = bytes.Clone(v)
		return nil
	})
	return der, err
}

// List returns the paths of the objects published on host whose path
// starts with prefix, in lexical order.
func (s *Store) List(host, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(host))
		if b == nil {
			return nil
		}
		p := []byte(prefix)
		c := b.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}
