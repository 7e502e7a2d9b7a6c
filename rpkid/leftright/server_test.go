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

package leftright_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/pkg/rpki/cms"
	"github.com/openrpki/rpkid/pkg/rpki/cms/cmstest"
	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/pkg/rpki/objects/objtest"
	"github.com/openrpki/rpkid/pkg/rpki/resources"
	"github.com/openrpki/rpkid/private/publication"
	"github.com/openrpki/rpkid/private/storage/db"
	"github.com/openrpki/rpkid/private/storage/persist"
	"github.com/openrpki/rpkid/rpkid/ca"
	"github.com/openrpki/rpkid/rpkid/leftright"
	"github.com/openrpki/rpkid/rpkid/leftright/mock_leftright"
	"github.com/openrpki/rpkid/rpkid/model"
	"github.com/openrpki/rpkid/rpkid/model/modeltest"
)

type fixture struct {
	db         *db.Sqlite
	engine     *ca.Engine
	irbe       cmstest.BPKI
	rpkid      cmstest.BPKI
	child      cmstest.BPKI
	verifier   *cms.Verifier
	maintainer *mock_leftright.MockMaintainer
	server     *leftright.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	verifier, err := cms.NewVerifier(8)
	require.NoError(t, err)
	f := &fixture{
		db:         modeltest.DB(t),
		engine:     ca.New(ca.Config{KeyBits: objtest.KeyBits}, ca.Metrics{}),
		irbe:       cmstest.New(t, "irbe"),
		rpkid:      cmstest.New(t, "rpkid"),
		child:      cmstest.New(t, "bob"),
		verifier:   verifier,
		maintainer: mock_leftright.NewMockMaintainer(gomock.NewController(t)),
	}
	f.server = &leftright.Server{
		Engine:      f.engine,
		Verifier:    verifier,
		Identity:    f.rpkid.Identity(),
		TrustAnchor: f.irbe.TADER,
		Maintainer:  f.maintainer,
	}
	return f
}

// run sends the elements as one query, sweeps the staged changes and
// returns the reply elements and the objects to publish.
func (f *fixture) run(t *testing.T, pdus ...leftright.PDU) ([]leftright.PDU, *publication.Batch) {
	t.Helper()
	raw, err := leftright.Marshal(&leftright.Msg{
		Version: leftright.Version,
		Type:    leftright.TypeQuery,
		PDUs:    pdus,
	})
	require.NoError(t, err)
	ctx := context.Background()
	reply, err := f.server.Serve(ctx, f.db.Full, f.irbe.Sign(t, raw))
	require.NoError(t, err)
	var sweeper persist.Sweeper
	for _, u := range reply.Units {
		sweeper.Commit(u)
	}
	require.NoError(t, sweeper.Sweep(ctx, f.db.Full))

	msg, err := f.verifier.Verify(reply.DER, f.rpkid.TADER)
	require.NoError(t, err)
	r, err := leftright.ParseReply(msg.Content)
	require.NoError(t, err)
	return r.PDUs, reply.Publish
}

func (f *fixture) fetch(t *testing.T, handle string) *model.Self {
	t.Helper()
	self, err := model.FetchSelf(context.Background(), f.db.Full, handle)
	require.NoError(t, err)
	return self
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.Full.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func hdr(action leftright.Action, self, tag string) leftright.Header {
	return leftright.Header{Action: action, SelfHandle: self, Tag: tag}
}

func str(s string) *string { return &s }

func createSelf(handle string) *leftright.SelfPDU {
	return &leftright.SelfPDU{
		Header:  hdr(leftright.ActionCreate, handle, "create-"+handle),
		SIABase: str("rsync://example.net/rpki/" + handle + "/"),
		AS:      str("64496-64511"),
		IPv4:    str("192.0.2.0/23"),
	}
}

func assertReportError(t *testing.T, p leftright.PDU, tag string, code leftright.ErrorCode) {
	t.Helper()
	re, ok := p.(*leftright.ReportError)
	require.True(t, ok, "expected report_error, got %s", p.Element())
	assert.Equal(t, tag, re.Tag)
	assert.Equal(t, code, re.ErrorCode)
	assert.NotEmpty(t, re.Text)
}

func TestSelfLifecycle(t *testing.T) {
	f := newFixture(t)
	crl := int64(3600)
	r, _ := f.run(t,
		createSelf("alice"),
		&leftright.SelfPDU{Header: hdr(leftright.ActionSet, "alice", "set"), CRLInterval: &crl,
			RegenMargin: func() *int64 { v := int64(600); return &v }()},
		&leftright.SelfPDU{Header: hdr(leftright.ActionGet, "alice", "get")},
	)
	require.Len(t, r, 3)
	assert.Equal(t, "create-alice", r[0].Head().Tag)
	assert.Equal(t, leftright.ActionCreate, r[0].Head().Action)
	got := r[2].(*leftright.SelfPDU)
	assert.Equal(t, "get", got.Tag)
	assert.Equal(t, int64(3600), *got.CRLInterval)
	assert.Equal(t, int64(600), *got.RegenMargin)
	assert.Equal(t, "rsync://example.net/rpki/alice/", *got.SIABase)
	assert.Equal(t, "64496-64511", *got.AS)
	assert.Nil(t, got.IPv6)

	self := f.fetch(t, "alice")
	assert.Equal(t, "192.0.2.0/23", self.TAResources.V4.String())
	assert.True(t, self.IsTrustAnchor())

	r, _ = f.run(t, createSelf("bob"), createSelf("alice"),
		&leftright.SelfPDU{Header: hdr(leftright.ActionList, "", "list")})
	require.Len(t, r, 4)
	assertReportError(t, r[1], "create-alice", leftright.CodeObjectAlreadyExists)
	assert.Equal(t, "alice", r[2].Handle())
	assert.Equal(t, "bob", r[3].Handle())

	r, _ = f.run(t,
		&leftright.SelfPDU{Header: hdr(leftright.ActionDestroy, "bob", "destroy")},
		&leftright.SelfPDU{Header: hdr(leftright.ActionGet, "bob", "get")},
	)
	require.Len(t, r, 2)
	assertReportError(t, r[1], "get", leftright.CodeObjectNotFound)
	_, err := model.FetchSelf(context.Background(), f.db.Full, "bob")
	assert.ErrorIs(t, err, persist.ErrNotFound)
}

func TestSelfSetErrors(t *testing.T) {
	f := newFixture(t)
	f.run(t, createSelf("alice"))
	long := int64(7 * 3600)
	testCases := map[string]struct {
		pdu  *leftright.SelfPDU
		code leftright.ErrorCode
	}{
		"margin exceeds interval": {
			pdu: &leftright.SelfPDU{Header: hdr(leftright.ActionSet, "alice", "t"),
				RegenMargin: &long},
			code: leftright.CodeBadRequest,
		},
		"bad resources": {
			pdu: &leftright.SelfPDU{Header: hdr(leftright.ActionSet, "alice", "t"),
				IPv4: str("192.0.2.0/33")},
			code: leftright.CodeBadResources,
		},
		"unknown self": {
			pdu:  &leftright.SelfPDU{Header: hdr(leftright.ActionSet, "mallory", "t")},
			code: leftright.CodeObjectNotFound,
		},
		"create without sia": {
			pdu:  &leftright.SelfPDU{Header: hdr(leftright.ActionCreate, "carol", "t")},
			code: leftright.CodeBadRequest,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			r, _ := f.run(t, tc.pdu)
			require.Len(t, r, 1)
			assertReportError(t, r[0], "t", tc.code)
		})
	}
	self := f.fetch(t, "alice")
	assert.Equal(t, model.DefaultRegenMargin, self.RegenMargin)
	assert.Equal(t, "192.0.2.0/23", self.TAResources.V4.String())
}

func TestPartialSuccess(t *testing.T) {
	f := newFixture(t)
	r, _ := f.run(t,
		&leftright.ChildPDU{Header: hdr(leftright.ActionCreate, "alice", "early"),
			ChildHandle: "bob", BPKICert: f.child.TADER},
		createSelf("alice"),
		&leftright.ChildPDU{Header: hdr(leftright.ActionCreate, "alice", "bad"),
			ChildHandle: "carol", BPKICert: f.child.TADER, AS: str("banana")},
		&leftright.ChildPDU{Header: hdr(leftright.ActionCreate, "alice", "ok"),
			ChildHandle: "bob", BPKICert: f.child.TADER, AS: str("64500"),
			IPv4: str("192.0.2.0/24")},
		&leftright.ChildPDU{Header: hdr(leftright.ActionCreate, "alice", "dup"),
			ChildHandle: "bob", BPKICert: f.child.TADER},
		&leftright.ChildPDU{Header: hdr(leftright.ActionCreate, "alice", "nocert"),
			ChildHandle: "dave", BPKICert: []byte("garbage")},
		&leftright.ChildPDU{Header: hdr(leftright.ActionSet, "alice", "set"),
			ChildHandle: "bob", IPv6: str("2001:db8::/32"), Reissue: true},
	)
	require.Len(t, r, 7)
	assertReportError(t, r[0], "early", leftright.CodeObjectNotFound)
	assertReportError(t, r[2], "bad", leftright.CodeBadResources)
	assert.Equal(t, "bob", r[3].Handle())
	assertReportError(t, r[4], "dup", leftright.CodeObjectAlreadyExists)
	assertReportError(t, r[5], "nocert", leftright.CodeBadRequest)
	assert.Equal(t, "set", r[6].Head().Tag)

	self := f.fetch(t, "alice")
	require.Equal(t, 1, self.Children.Len())
	child, ok := self.Child("bob")
	require.True(t, ok)
	assert.True(t, child.ReissuePending)
	assert.Equal(t, f.child.TADER, child.BPKICert)
	delegation, err := child.Delegation()
	require.NoError(t, err)
	assert.True(t, delegation.Equal(
		resources.MustParse("64500", "192.0.2.0/24", "2001:db8::/32")), "got %s", delegation)

	r, _ = f.run(t, &leftright.ChildPDU{Header: hdr(leftright.ActionList, "alice", "list")})
	require.Len(t, r, 1)
	got := r[0].(*leftright.ChildPDU)
	assert.Equal(t, "64500", *got.AS)
	assert.Equal(t, "2001:db8::/32", *got.IPv6)
	assert.Equal(t, []byte(f.child.TADER), []byte(got.BPKICert))
}

// TestDestroyChild destroys a child that owns two delegation rows and one
// issued certificate.
func TestDestroyChild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	self := model.NewSelf("alice")
	self.SIABase = "rsync://example.net/rpki/alice/"
	self.TAResources = resources.MustParse("64496-64511", "192.0.2.0/23", "")
	require.NoError(t, f.engine.EnsureTrustAnchor(self, &publication.Batch{}))
	child := &model.Child{Handle: "bob", BPKICert: f.child.TADER}
	child.SetDelegation(resources.MustParse("64500", "192.0.2.0/24", ""))
	self.Children.Add(child)
	csr, err := objects.CreateRequest(objtest.Key(t, 1),
		objtest.SIA("rsync://example.net/rpki/bob/"))
	require.NoError(t, err)
	cc, err := f.engine.IssueChild(self, child, csr, resources.Set{}, &publication.Batch{})
	require.NoError(t, err)
	require.NoError(t, persist.Store(ctx, f.db.Full, self))
	require.Equal(t, 2, f.count(t, "child_resource"))
	require.Equal(t, 1, f.count(t, "child_cert"))

	r, publish := f.run(t, &leftright.ChildPDU{
		Header:      hdr(leftright.ActionDestroy, "alice", "destroy"),
		ChildHandle: "bob",
	})
	require.Len(t, r, 1)
	assert.Equal(t, leftright.ActionDestroy, r[0].Head().Action)
	assert.Equal(t, []publication.Op{{URI: cc.URI}}, publish.Ops())

	stored := f.fetch(t, "alice")
	_, ok := stored.Child("bob")
	assert.False(t, ok)
	assert.Zero(t, f.count(t, "child"))
	assert.Zero(t, f.count(t, "child_resource"))
	assert.Zero(t, f.count(t, "child_cert"))
	require.Equal(t, 1, stored.RevokedCertificates.Len())
	assert.Equal(t, cc.Serial, stored.RevokedCertificates.Items()[0].Serial)
	assert.True(t, stored.CRLStale)

	r, _ = f.run(t, &leftright.ChildPDU{
		Header:      hdr(leftright.ActionGet, "alice", "get"),
		ChildHandle: "bob",
	})
	assertReportError(t, r[0], "get", leftright.CodeObjectNotFound)
}

func TestSelfActions(t *testing.T) {
	f := newFixture(t)
	f.run(t, createSelf("alice"))
	self := f.fetch(t, "alice")
	require.NoError(t, f.engine.EnsureTrustAnchor(self, &publication.Batch{}))
	require.NoError(t, persist.Store(context.Background(), f.db.Full, self))
	oldKey := self.KeyDER

	f.maintainer.EXPECT().Maintain(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, s *model.Self, b *publication.Batch) error {
			assert.Equal(t, "alice", s.Handle)
			return f.engine.EnsureTrustAnchor(s, b)
		},
	)
	r, publish := f.run(t, &leftright.SelfPDU{
		Header:          hdr(leftright.ActionSet, "alice", "go"),
		Rekey:           true,
		RunNow:          true,
		RegenNow:        true,
		PublishWorldNow: true,
	})
	require.Len(t, r, 1)
	assert.Equal(t, "go", r[0].Head().Tag)

	self = f.fetch(t, "alice")
	assert.NotEqual(t, oldKey, self.KeyDER)
	require.True(t, self.HasCertificate())
	assert.NotEmpty(t, self.CRLDER)
	assert.NotEmpty(t, self.ManifestDER)
	assert.False(t, self.CRLStale)
	uris := make(map[string]bool)
	for _, op := range publish.Ops() {
		uris[op.URI] = op.DER != nil
	}
	assert.True(t, uris[self.CertURI])
	assert.Contains(t, uris, self.URI(gskiOf(t, oldKey)+".cer"))
	assert.False(t, uris[self.URI(gskiOf(t, oldKey)+".cer")])
}

func gskiOf(t *testing.T, keyDER []byte) string {
	t.Helper()
	key, err := objects.NewKey(objects.DER, keyDER)
	require.NoError(t, err)
	ski, err := key.SKI()
	require.NoError(t, err)
	return objects.GSKI(ski)
}

func TestMaintainFailure(t *testing.T) {
	f := newFixture(t)
	f.run(t, createSelf("alice"))
	f.maintainer.EXPECT().Maintain(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(assert.AnError)
	r, _ := f.run(t,
		&leftright.SelfPDU{Header: hdr(leftright.ActionSet, "alice", "run"), RunNow: true},
		&leftright.SelfPDU{Header: hdr(leftright.ActionGet, "alice", "get")},
	)
	require.Len(t, r, 2)
	assertReportError(t, r[0], "run", leftright.CodeInternal)
	assert.Equal(t, "alice", r[1].Handle())
}

// TestFailedElementLeavesSharedSelf runs a failing element on a self that an
// earlier element of the same query already changed.
func TestFailedElementLeavesSharedSelf(t *testing.T) {
	f := newFixture(t)
	f.run(t, createSelf("alice"),
		&leftright.ChildPDU{Header: hdr(leftright.ActionCreate, "alice", "child"),
			ChildHandle: "bob", BPKICert: f.child.TADER, AS: str("64500")})
	f.maintainer.EXPECT().Maintain(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, self *model.Self, _ *publication.Batch) error {
			self.CRLStale = true
			self.MarkDirty()
			return assert.AnError
		})
	crl, margin := int64(4*3600), int64(1800)
	r, _ := f.run(t,
		&leftright.SelfPDU{Header: hdr(leftright.ActionSet, "alice", "ok"), CRLInterval: &crl},
		&leftright.SelfPDU{Header: hdr(leftright.ActionSet, "alice", "fail"),
			RegenMargin: &margin, Reissue: true, RunNow: true},
		&leftright.SelfPDU{Header: hdr(leftright.ActionGet, "alice", "get")},
	)
	require.Len(t, r, 3)
	assert.Equal(t, "ok", r[0].Head().Tag)
	assertReportError(t, r[1], "fail", leftright.CodeInternal)
	got := r[2].(*leftright.SelfPDU)
	assert.Equal(t, crl, *got.CRLInterval)
	assert.Equal(t, int64(model.DefaultRegenMargin.Seconds()), *got.RegenMargin)

	self := f.fetch(t, "alice")
	assert.Equal(t, 4*time.Hour, self.CRLInterval)
	assert.Equal(t, model.DefaultRegenMargin, self.RegenMargin)
	assert.False(t, self.ReissuePending)
	child, ok := self.Child("bob")
	require.True(t, ok)
	assert.False(t, child.ReissuePending)
}

func TestParentAndRepository(t *testing.T) {
	f := newFixture(t)
	parentBPKI := cmstest.New(t, "parent")
	r, _ := f.run(t,
		createSelf("bob"),
		&leftright.ParentPDU{Header: hdr(leftright.ActionCreate, "bob", "p"),
			ParentHandle: "alice", PeerContactURI: str("http://alice.example.net/up-down/1"),
			BPKICert: parentBPKI.TADER},
		&leftright.ParentPDU{Header: hdr(leftright.ActionCreate, "bob", "p2"),
			ParentHandle: "carol"},
		&leftright.RepositoryPDU{Header: hdr(leftright.ActionCreate, "bob", "r"),
			RepositoryHandle: "repo", PeerContactURI: str("http://pubd.example.net/client/bob"),
			BPKICert: parentBPKI.TADER},
		&leftright.ParentPDU{Header: hdr(leftright.ActionSet, "bob", "reissue"),
			ParentHandle: "alice", RecipientName: str("alice-ca"), Reissue: true},
	)
	require.Len(t, r, 5)
	assertReportError(t, r[2], "p2", leftright.CodeBadRequest)

	self := f.fetch(t, "bob")
	assert.False(t, self.IsTrustAnchor())
	assert.True(t, self.ReissuePending)
	parent, ok := self.Parent("alice")
	require.True(t, ok)
	assert.Equal(t, "bob", parent.SenderName)
	assert.Equal(t, "alice-ca", parent.RecipientName)
	assert.Equal(t, "http://alice.example.net/up-down/1", parent.PeerContactURI)
	_, ok = self.Repository("repo")
	assert.True(t, ok)

	r, _ = f.run(t,
		&leftright.ParentPDU{Header: hdr(leftright.ActionGet, "bob", "get"),
			ParentHandle: "alice"},
		&leftright.RepositoryPDU{Header: hdr(leftright.ActionDestroy, "bob", "rm"),
			RepositoryHandle: "repo"},
		&leftright.RepositoryPDU{Header: hdr(leftright.ActionList, "bob", "ls")},
	)
	require.Len(t, r, 2)
	got := r[0].(*leftright.ParentPDU)
	assert.Equal(t, "alice-ca", *got.RecipientName)
	assert.Equal(t, "rm", r[1].Head().Tag)
	assert.Zero(t, f.count(t, "repository"))
}

func TestROARequest(t *testing.T) {
	f := newFixture(t)
	asn := uint32(64500)
	r, _ := f.run(t,
		createSelf("alice"),
		&leftright.ROARequestPDU{Header: hdr(leftright.ActionCreate, "alice", "c"),
			ROARequestHandle: "web", ASN: &asn, IPv4: str("192.0.2.0/24-25")},
		&leftright.ROARequestPDU{Header: hdr(leftright.ActionCreate, "alice", "noprefix"),
			ROARequestHandle: "empty", ASN: &asn},
		&leftright.ROARequestPDU{Header: hdr(leftright.ActionCreate, "alice", "badprefix"),
			ROARequestHandle: "bad", ASN: &asn, IPv4: str("192.0.2.0/24-23")},
	)
	require.Len(t, r, 4)
	assertReportError(t, r[2], "noprefix", leftright.CodeBadRequest)
	assertReportError(t, r[3], "badprefix", leftright.CodeBadResources)

	// Publish a ROA so that changing the request withdraws it.
	self := f.fetch(t, "alice")
	require.NoError(t, f.engine.EnsureTrustAnchor(self, &publication.Batch{}))
	require.NoError(t, f.engine.UpdateROAs(context.Background(), self, &publication.Batch{}))
	roa, ok := self.ROARequest("web")
	require.True(t, ok)
	require.NotEmpty(t, roa.ROADER)
	uri := roa.ROAURI
	require.NoError(t, persist.Store(context.Background(), f.db.Full, self))

	other := uint32(64501)
	r, publish := f.run(t,
		&leftright.ROARequestPDU{Header: hdr(leftright.ActionSet, "alice", "s"),
			ROARequestHandle: "web", ASN: &other},
		&leftright.ROARequestPDU{Header: hdr(leftright.ActionGet, "alice", "g"),
			ROARequestHandle: "web"},
	)
	require.Len(t, r, 2)
	got := r[1].(*leftright.ROARequestPDU)
	assert.Equal(t, other, *got.ASN)
	assert.Equal(t, "192.0.2.0/24-25", *got.IPv4)
	assert.Equal(t, []publication.Op{{URI: uri}}, publish.Ops())

	self = f.fetch(t, "alice")
	roa, _ = self.ROARequest("web")
	assert.Empty(t, roa.ROADER)
	assert.Equal(t, 1, self.RevokedCertificates.Len())

	r, _ = f.run(t, &leftright.ROARequestPDU{Header: hdr(leftright.ActionDestroy, "alice", "d"),
		ROARequestHandle: "web"})
	require.Len(t, r, 1)
	assert.Zero(t, f.count(t, "roa_request"))
}

func TestGhostbusterRequest(t *testing.T) {
	f := newFixture(t)
	r, _ := f.run(t,
		createSelf("alice"),
		&leftright.GhostbusterRequestPDU{Header: hdr(leftright.ActionCreate, "alice", "c"),
			GhostbusterRequestHandle: "noc", FamilyName: "Doe", GivenName: "Jane",
			Email: "noc@example.net"},
		&leftright.GhostbusterRequestPDU{Header: hdr(leftright.ActionCreate, "alice", "anon"),
			GhostbusterRequestHandle: "anon", Email: "anon@example.net"},
		&leftright.GhostbusterRequestPDU{Header: hdr(leftright.ActionCreate, "alice", "orphan"),
			GhostbusterRequestHandle: "orphan", ParentHandle: str("nobody"),
			VCard: "BEGIN:VCARD\r\nVERSION:4.0\r\nFN:X\r\nEND:VCARD\r\n"},
		&leftright.GhostbusterRequestPDU{Header: hdr(leftright.ActionGet, "alice", "g"),
			GhostbusterRequestHandle: "noc"},
	)
	require.Len(t, r, 5)
	assertReportError(t, r[2], "anon", leftright.CodeBadRequest)
	assertReportError(t, r[3], "orphan", leftright.CodeBadRequest)
	got := r[4].(*leftright.GhostbusterRequestPDU)
	assert.Contains(t, got.VCard, "FN:Jane Doe")
	assert.Contains(t, got.VCard, "EMAIL:noc@example.net")

	vcard := "BEGIN:VCARD\r\nVERSION:4.0\r\nFN:NOC\r\nTEL:+1-555-0100\r\nEND:VCARD\r\n"
	r, _ = f.run(t, &leftright.GhostbusterRequestPDU{
		Header:                   hdr(leftright.ActionSet, "alice", "s"),
		GhostbusterRequestHandle: "noc",
		VCard:                    vcard,
	})
	require.Len(t, r, 1)
	self := f.fetch(t, "alice")
	g, ok := self.GhostbusterRequest("noc")
	require.True(t, ok)
	assert.Equal(t, vcard, g.VCard)
}

func TestServeRejects(t *testing.T) {
	f := newFixture(t)
	raw, err := leftright.Marshal(&leftright.Msg{
		Version: leftright.Version,
		Type:    leftright.TypeQuery,
		PDUs:    []leftright.PDU{createSelf("alice")},
	})
	require.NoError(t, err)
	ctx := context.Background()

	mallory := cmstest.New(t, "mallory")
	_, err = f.server.Serve(ctx, f.db.Full, mallory.Sign(t, raw))
	assert.ErrorIs(t, err, leftright.ErrProtocol)

	_, err = f.server.Serve(ctx, f.db.Full, f.irbe.Sign(t, []byte("<msg/>")))
	assert.ErrorIs(t, err, leftright.ErrSchema)
	assert.Zero(t, f.count(t, "self"))
}
