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

// Package modeltest provides databases and entity fixtures for tests.
package modeltest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/pkg/private/xtest"
	"github.com/openrpki/rpkid/private/storage/db"
	"github.com/openrpki/rpkid/rpkid/model"
)

// DB returns an in-memory database with the entity schema set up. It is
// closed when the test ends.
func DB(t testing.TB) *db.Sqlite {
	t.Helper()
	d, err := db.NewSqlite("file:"+xtest.SanitizedName(t), &db.SqliteConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.Setup(model.Schema, model.SchemaVersion))
	return d
}
