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

package storage_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/pkg/private/xtest"
	"github.com/openrpki/rpkid/private/storage"
	"github.com/openrpki/rpkid/rpkid/model"
)

func TestNewEntityStorage(t *testing.T) {
	cfg := storage.DBConfig{}
	cfg.InitDefaults()
	assert.Equal(t, storage.DefaultPath, cfg.Connection)

	cfg.Connection = filepath.Join(t.TempDir(), "rpkid.db")
	d, err := storage.NewEntityStorage(cfg)
	require.NoError(t, err)
	selves, err := model.FetchSelves(context.Background(), d.ReadOnly)
	require.NoError(t, err)
	assert.Empty(t, selves)
	require.NoError(t, d.Close())

	// Reopening keeps the schema version.
	d, err = storage.NewEntityStorage(cfg)
	require.NoError(t, err)
	require.NoError(t, d.Close())
}

func TestStartCleaner(t *testing.T) {
	done := make(chan struct{})
	var once sync.Once
	r := storage.StartCleaner("test", func(context.Context) (int, error) {
		once.Do(func() { close(done) })
		return 1, nil
	}, time.Hour)
	defer r.Kill()
	xtest.AssertReadReturnsBefore(t, done, time.Second)
}
