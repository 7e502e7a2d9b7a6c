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

package mgmtapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/pkg/rpki/objects/objtest"
	"github.com/openrpki/rpkid/pkg/rpki/resources"
	"github.com/openrpki/rpkid/private/storage/persist"
	"github.com/openrpki/rpkid/rpkid/mgmtapi"
	"github.com/openrpki/rpkid/rpkid/model"
	"github.com/openrpki/rpkid/rpkid/model/modeltest"
)

func setup(t *testing.T) (*mgmtapi.Server, *model.Self) {
	ctx := context.Background()
	d := modeltest.DB(t)

	alice := model.NewSelf("alice")
	alice.SIABase = "rsync://repo.example/alice/"
	alice.TAResources = resources.MustParse("64496-64511", "192.0.2.0/23", "")
	cert := objtest.TA(t, objtest.Key(t, 1), alice.TAResources)
	require.NoError(t, alice.SetCertificate(cert, "rsync://repo.example/ta.cer"))
	alice.CRLNumber, alice.ManifestNumber = 3, 4
	alice.NextUpdate = time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
	child := &model.Child{Handle: "bob"}
	child.SetDelegation(resources.MustParse("64500", "192.0.2.0/24", ""))
	alice.Children.Add(child)
	require.NoError(t, persist.Store(ctx, d.Full, alice))

	carol := model.NewSelf("carol")
	carol.Parents.Add(&model.Parent{Handle: "alice", PeerContactURI: "http://rpkid/up-down/1",
		SenderName: "carol", RecipientName: "alice"})
	require.NoError(t, persist.Store(ctx, d.Full, carol))

	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	return &mgmtapi.Server{Config: ok, Info: ok, LogLevel: ok, DB: d.ReadOnly}, alice
}

func TestGetCAs(t *testing.T) {
	s, alice := setup(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cas", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got []mgmtapi.CA
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)

	cert, err := alice.Certificate()
	require.NoError(t, err)
	ski, err := cert.GSKI()
	require.NoError(t, err)
	// The child ID is assigned by the database.
	require.Len(t, got[0].Children, 1)
	got[0].Children[0].ID = 0
	// Validity depends on the fixture clock.
	assert.NotEmpty(t, got[0].NotAfter)
	got[0].NotAfter = ""

	want := []mgmtapi.CA{
		{
			Handle:         "alice",
			TrustAnchor:    true,
			SKI:            ski,
			CertURI:        "rsync://repo.example/ta.cer",
			Resources:      alice.TAResources.String(),
			CRLNumber:      3,
			ManifestNumber: 4,
			NextUpdate:     "2025-01-01T06:00:00Z",
			Stale:          true,
			Parents:        []string{},
			Children:       []mgmtapi.CAChild{{Handle: "bob"}},
		},
		{
			Handle:   "carol",
			Parents:  []string{"alice"},
			Children: []mgmtapi.CAChild{},
		},
	}
	assert.Empty(t, cmp.Diff(want, got))
}

func TestGetCA(t *testing.T) {
	s, _ := setup(t)
	testCases := map[string]struct {
		path   string
		status int
		handle string
	}{
		"known": {
			path:   "/cas/carol",
			status: http.StatusOK,
			handle: "carol",
		},
		"unknown": {
			path:   "/cas/mallory",
			status: http.StatusNotFound,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			assert.Equal(t, tc.status, rec.Code)
			if tc.handle == "" {
				assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
				return
			}
			var got mgmtapi.CA
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tc.handle, got.Handle)
		})
	}
}

func TestIndirections(t *testing.T) {
	var called []string
	rec := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			called = append(called, name+" "+r.Method)
		}
	}
	s := &mgmtapi.Server{Config: rec("config"), Info: rec("info"), LogLevel: rec("level")}
	h := s.Handler()
	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/config", nil),
		httptest.NewRequest(http.MethodGet, "/info", nil),
		httptest.NewRequest(http.MethodGet, "/log/level", nil),
		httptest.NewRequest(http.MethodPut, "/log/level", nil),
	} {
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, []string{"config GET", "info GET", "level GET", "level PUT"}, called)
}
