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

package bolt_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/private/publication"
	"github.com/openrpki/rpkid/private/publication/bolt"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s, err := bolt.Open(filepath.Join(t.TempDir(), "pub.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Publish(ctx, "rsync://repo.example/ca/a.cer", []byte("a")))
	require.NoError(t, s.Publish(ctx, "rsync://repo.example/ca/b.roa", []byte("b")))
	require.NoError(t, s.Publish(ctx, "rsync://repo.example/other/c.cer", []byte("c")))
	require.NoError(t, s.Publish(ctx, "rsync://repo.example/ca/a.cer", []byte("a2")))

	der, err := s.Get("rsync://repo.example/ca/a.cer")
	require.NoError(t, err)
	assert.Equal(t, "a2", string(der))

	keys, err := s.List("repo.example", "ca/")
	require.NoError(t, err)
	assert.Equal(t, []string{"ca/a.cer", "ca/b.roa"}, keys)

	require.NoError(t, s.Withdraw(ctx, "rsync://repo.example/ca/a.cer"))
	require.NoError(t, s.Withdraw(ctx, "rsync://unknown.example/x.cer"))
	_, err = s.Get("rsync://repo.example/ca/a.cer")
	assert.ErrorIs(t, err, bolt.ErrNotFound)

	err = s.Publish(ctx, "https://repo.example/a.cer", []byte("x"))
	assert.ErrorIs(t, err, publication.ErrInvalidURI)
}
