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

// Package fs publishes objects into a directory tree that an rsync daemon
// serves. rsync://host/a/b.cer is stored as <root>/host/a/b.cer.
package fs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/private/publication"
)

var _ publication.Publisher = (*Publisher)(nil)

// Publisher writes objects below Root.
type Publisher struct {
	Root string
}

func (p *Publisher) path(uri string) (string, error) {
	host, rel, err := publication.SplitURI(uri)
	if err != nil {
		return "", err
	}
	return filepath.Join(p.Root, host, filepath.FromSlash(rel)), nil
}

// Publish writes der to a temporary file and renames it into place, so
// that readers never observe a partial object.
func (p *Publisher) Publish(_ context.Context, uri string, der []byte) error {
	dst, err := p.path(uri)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return serrors.Wrap("creating directory", err, "uri", uri)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".publish-*")
	if err != nil {
		return serrors.Wrap("creating temporary file", err, "uri", uri)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(der); err != nil {
		tmp.Close()
		return serrors.Wrap("writing object", err, "uri", uri)
	}
	if err := tmp.Close(); err != nil {
		return serrors.Wrap("writing object", err, "uri", uri)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return serrors.Wrap("setting permissions", err, "uri", uri)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return serrors.Wrap("renaming object", err, "uri", uri)
	}
	return nil
}

// Withdraw removes the object.
func (p *Publisher) Withdraw(_ context.Context, uri string) error {
	dst, err := p.path(uri)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return serrors.Wrap("removing object", err, "uri", uri)
	}
	return nil
}
