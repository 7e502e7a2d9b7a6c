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

package updown_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/pkg/rpki/resources"
	"github.com/openrpki/rpkid/private/publication"
	"github.com/openrpki/rpkid/rpkid/model"
	"github.com/openrpki/rpkid/rpkid/updown"
	"github.com/openrpki/rpkid/rpkid/updown/mock_updown"
)

const aliceURL = "http://alice.example.net/up-down/1"

// childFixture is a self bob whose parent is served by a parentFixture.
type childFixture struct {
	*parentFixture
	self      *model.Self
	parent    *model.Parent
	transport *mock_updown.MockTransport
	poller    *updown.Poller
	types     []updown.Type
}

func newChildFixture(t *testing.T) *childFixture {
	t.Helper()
	p := newParentFixture(t)
	self := model.NewSelf("bob")
	self.SIABase = "rsync://example.net/rpki/bob/"
	parent := &model.Parent{
		Handle:         "alice",
		PeerContactURI: aliceURL,
		SenderName:     "bob",
		RecipientName:  "alice",
		BPKICert:       p.aliceBPKI.TADER,
	}
	self.Parents.Add(parent)

	ctrl := gomock.NewController(t)
	transport := mock_updown.NewMockTransport(ctrl)
	f := &childFixture{
		parentFixture: p,
		self:          self,
		parent:        parent,
		transport:     transport,
		poller: &updown.Poller{
			Client: &updown.Client{
				Transport: transport,
				Verifier:  p.verifier,
				Identity:  p.bobBPKI.Identity(),
			},
			Engine: p.engine,
		},
	}
	transport.EXPECT().Post(gomock.Any(), aliceURL, gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string, body []byte) ([]byte, error) {
			reply, err := p.server.Serve(ctx, p.alice, p.bob, body)
			if err != nil {
				return nil, err
			}
			f.types = append(f.types, reply.Type)
			return reply.DER, nil
		},
	).AnyTimes()
	return f
}

func TestPollInstallsCertificate(t *testing.T) {
	f := newChildFixture(t)
	ctx := context.Background()
	require.NoError(t, f.poller.Poll(ctx, f.self))
	assert.Equal(t, []updown.Type{updown.TypeListResponse, updown.TypeIssueResponse}, f.types)

	require.True(t, f.self.HasCertificate())
	held, err := f.self.Holdings()
	require.NoError(t, err)
	assert.True(t, held.Equal(holdings), "held %s", held)
	assert.Equal(t, "alice", f.parent.ClassName)
	assert.False(t, f.parent.LastPoll.IsZero())
	assert.True(t, f.self.CRLStale)
	require.Equal(t, 1, f.bob.Certificates.Len())
	assert.Equal(t, f.bob.Certificates.Items()[0].URI, f.self.CertURI)

	// Nothing changed, nothing is requested.
	f.types = nil
	require.NoError(t, f.poller.Poll(ctx, f.self))
	assert.Equal(t, []updown.Type{updown.TypeListResponse}, f.types)

	// A shrunk delegation is picked up.
	f.types = nil
	shrunk := resources.MustParse("64500", "192.0.2.0/24", "")
	f.bob.SetDelegation(shrunk)
	require.NoError(t, f.poller.Poll(ctx, f.self))
	assert.Equal(t, []updown.Type{updown.TypeListResponse, updown.TypeIssueResponse}, f.types)
	held, err = f.self.Holdings()
	require.NoError(t, err)
	assert.True(t, held.Equal(shrunk), "held %s", held)

	// A requested reissue is honored once.
	f.types = nil
	f.self.ReissuePending = true
	require.NoError(t, f.poller.Poll(ctx, f.self))
	assert.Equal(t, []updown.Type{updown.TypeListResponse, updown.TypeIssueResponse}, f.types)
	assert.False(t, f.self.ReissuePending)
}

func TestPollAdoptsReissuedCertificate(t *testing.T) {
	f := newChildFixture(t)
	ctx := context.Background()
	require.NoError(t, f.poller.Poll(ctx, f.self))
	old := f.self.CertDER

	f.bob.ReissuePending = true
	require.NoError(t, f.engine.UpdateChildren(f.alice, &publication.Batch{}))
	f.types = nil
	require.NoError(t, f.poller.Poll(ctx, f.self))
	assert.Equal(t, []updown.Type{updown.TypeListResponse}, f.types)
	assert.NotEqual(t, old, f.self.CertDER)
	assert.Equal(t, f.bob.Certificates.Items()[0].CertDER, f.self.CertDER)
}

func TestPollRevokesPreviousKey(t *testing.T) {
	f := newChildFixture(t)
	ctx := context.Background()
	require.NoError(t, f.poller.Poll(ctx, f.self))
	oldSKI := f.bob.Certificates.Items()[0].GSKI

	require.NoError(t, f.engine.Rekey(f.self, &publication.Batch{}))
	assert.Equal(t, []string{oldSKI}, f.self.PendingRevokeSKIs)
	f.types = nil
	require.NoError(t, f.poller.Poll(ctx, f.self))
	assert.Equal(t, []updown.Type{updown.TypeListResponse, updown.TypeIssueResponse,
		updown.TypeRevokeResponse}, f.types)
	assert.Empty(t, f.self.PendingRevokeSKIs)
	require.Equal(t, 1, f.bob.Certificates.Len())
	assert.NotEqual(t, oldSKI, f.bob.Certificates.Items()[0].GSKI)

	key, err := f.self.Key()
	require.NoError(t, err)
	ski, err := key.SKI()
	require.NoError(t, err)
	assert.Equal(t, objects.GSKI(ski), f.bob.Certificates.Items()[0].GSKI)
}

func TestPollErrors(t *testing.T) {
	f := newChildFixture(t)
	f.bob.SetDelegation(resources.MustParse("65000", "", ""))
	require.NoError(t, f.poller.Poll(context.Background(), f.self))
	assert.Equal(t, []updown.Type{updown.TypeListResponse}, f.types)
	assert.False(t, f.self.HasCertificate())

	// A reply signed by someone else than the parent is rejected.
	f.parent.BPKICert = f.bobBPKI.TADER
	assert.Error(t, f.poller.Poll(context.Background(), f.self))
}

func TestPollRevokesKeysOfRepeatedRekeys(t *testing.T) {
	f := newChildFixture(t)
	ctx := context.Background()
	require.NoError(t, f.poller.Poll(ctx, f.self))
	certified := f.bob.Certificates.Items()[0].GSKI

	// Two rollovers without a poll in between.
	require.NoError(t, f.engine.Rekey(f.self, &publication.Batch{}))
	key, err := f.self.Key()
	require.NoError(t, err)
	ski, err := key.SKI()
	require.NoError(t, err)
	uncertified := objects.GSKI(ski)
	require.NoError(t, f.engine.Rekey(f.self, &publication.Batch{}))
	assert.Equal(t, []string{certified, uncertified}, f.self.PendingRevokeSKIs)

	f.types = nil
	require.NoError(t, f.poller.Poll(ctx, f.self))
	// The parent never certified the second key and says so.
	assert.Equal(t, []updown.Type{updown.TypeListResponse, updown.TypeIssueResponse,
		updown.TypeRevokeResponse, updown.TypeError}, f.types)
	assert.Empty(t, f.self.PendingRevokeSKIs)
	require.Equal(t, 1, f.bob.Certificates.Len())
	assert.NotEqual(t, certified, f.bob.Certificates.Items()[0].GSKI)
}

func TestPollTrustAnchor(t *testing.T) {
	ctrl := gomock.NewController(t)
	poller := &updown.Poller{
		Client: &updown.Client{Transport: mock_updown.NewMockTransport(ctrl)},
	}
	assert.NoError(t, poller.Poll(context.Background(), model.NewSelf("root")))
}

func TestClientCallError(t *testing.T) {
	f := newChildFixture(t)
	_, err := f.poller.Client.Call(context.Background(), f.parent,
		&updown.Message{Type: updown.TypeRevoke,
			Key: &updown.Key{ClassName: "alice", SKI: "unknown"}},
		updown.TypeRevokeResponse)
	var protoErr *updown.Error
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, updown.CodeRevokeNoKey, protoErr.Code)
}

func TestHTTPTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, updown.ContentType, r.Header.Get("Content-Type"))
		if r.URL.Path == "/fail" {
			http.Error(w, "Could not process PDU", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("reply"))
	}))
	defer srv.Close()

	tr := updown.NewHTTPTransport(time.Second)
	ctx := context.Background()
	reply, err := tr.Post(ctx, srv.URL+"/ok", []byte("query"))
	require.NoError(t, err)
	assert.Equal(t, []byte("reply"), reply)

	_, err = tr.Post(ctx, srv.URL+"/fail", []byte("query"))
	assert.ErrorContains(t, err, "unexpected status")
}
