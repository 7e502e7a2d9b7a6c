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

package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/private/publication"
	"github.com/openrpki/rpkid/private/publication/fs"
)

func TestPublisher(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	p := &fs.Publisher{Root: root}

	require.NoError(t, p.Publish(ctx, "rsync://repo.example/ca/a.cer", []byte("one")))
	require.NoError(t, p.Publish(ctx, "rsync://repo.example/ca/a.cer", []byte("two")))
	got, err := os.ReadFile(filepath.Join(root, "repo.example", "ca", "a.cer"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	entries, err := os.ReadDir(filepath.Join(root, "repo.example", "ca"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files remain")

	require.NoError(t, p.Withdraw(ctx, "rsync://repo.example/ca/a.cer"))
	_, err = os.Stat(filepath.Join(root, "repo.example", "ca", "a.cer"))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, p.Withdraw(ctx, "rsync://repo.example/ca/a.cer"))
}

func TestPublisherRejectsURIs(t *testing.T) {
	p := &fs.Publisher{Root: t.TempDir()}
	testCases := map[string]string{
		"http":      "http://repo.example/a.cer",
		"directory": "rsync://repo.example/ca/",
		"traversal": "rsync://repo.example/ca/../../etc/passwd",
		"no host":   "rsync:///a.cer",
	}
	for name, uri := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			err := p.Publish(context.Background(), uri, []byte("x"))
			assert.ErrorIs(t, err, publication.ErrInvalidURI)
		})
	}
}
