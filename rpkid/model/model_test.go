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

package model_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/pkg/rpki/objects/objtest"
	"github.com/openrpki/rpkid/pkg/rpki/resources"
	"github.com/openrpki/rpkid/private/storage/persist"
	"github.com/openrpki/rpkid/rpkid/model"
	"github.com/openrpki/rpkid/rpkid/model/modeltest"
)

func newSelf(t *testing.T) *model.Self {
	t.Helper()
	s := model.NewSelf("alice")
	s.SIABase = "rsync://repo.example/alice/"
	s.TAResources = resources.MustParse("64496-64511", "192.0.2.0/23", "2001:db8::/32")
	keyDER, err := objtest.Key(t, 0).DER()
	require.NoError(t, err)
	s.KeyDER = keyDER
	s.NextUpdate = time.Unix(1700000000, 0).UTC()

	s.Repositories.Add(&model.Repository{Handle: "repo", PeerContactURI: "http://pub/"})
	s.Parents.Add(&model.Parent{Handle: "rir", PeerContactURI: "http://rir/up-down/1",
		SenderName: "alice", RecipientName: "rir"})

	child := &model.Child{Handle: "bob"}
	child.SetDelegation(resources.MustParse("64500", "192.0.2.0/24", ""))
	cert := objtest.TA(t, objtest.Key(t, 1), resources.MustParse("64500", "192.0.2.0/24", ""))
	cc, err := model.NewChildCert(cert, s.URI("bob.cer"))
	require.NoError(t, err)
	child.Certificates.Add(cc)
	s.Children.Add(child)

	v4, err := resources.ParseROAPrefixSet(resources.IPv4, "192.0.2.0/24-26")
	require.NoError(t, err)
	s.ROARequests.Add(&model.ROARequest{Handle: "roa", ASN: 64500, V4: v4})
	s.GhostbusterRequests.Add(&model.GhostbusterRequest{Handle: "gb",
		VCard: "BEGIN:VCARD\r\nEND:VCARD\r\n"})
	s.Revoke(7, time.Unix(1700000000, 0), time.Unix(1700003600, 0))
	return s
}

func TestSelfRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := modeltest.DB(t)
	s := newSelf(t)
	require.NoError(t, persist.Store(ctx, d.Full, s))

	got, err := model.FetchSelf(ctx, d.Full, "alice")
	require.NoError(t, err)
	assert.Equal(t, s.ID(), got.ID())
	assert.Equal(t, s.SIABase, got.SIABase)
	assert.Equal(t, model.DefaultCRLInterval, got.CRLInterval)
	assert.Equal(t, model.DefaultRegenMargin, got.RegenMargin)
	assert.True(t, s.TAResources.Equal(got.TAResources), got.TAResources.String())
	assert.Equal(t, s.KeyDER, got.KeyDER)
	assert.True(t, got.NextUpdate.Equal(s.NextUpdate))
	assert.True(t, got.CRLStale)
	assert.False(t, got.IsTrustAnchor())

	_, ok := got.Repository("repo")
	assert.True(t, ok)
	p, ok := got.Parent("rir")
	require.True(t, ok)
	assert.Equal(t, "rir", p.RecipientName)

	child, ok := got.Child("bob")
	require.True(t, ok)
	delegation, err := child.Delegation()
	require.NoError(t, err)
	assert.Equal(t, "as=64500 ipv4=192.0.2.0/24 ipv6=", delegation.String())
	require.Equal(t, 1, child.Certificates.Len())
	cc := child.Certificates.Items()[0]
	cert, err := cc.Certificate()
	require.NoError(t, err)
	gski, err := cert.GSKI()
	require.NoError(t, err)
	assert.Equal(t, gski, cc.GSKI)
	assert.Len(t, child.CertificatesBySKI(gski), 1)

	roa, ok := got.ROARequest("roa")
	require.True(t, ok)
	assert.Equal(t, uint32(64500), roa.ASN)
	assert.Equal(t, "192.0.2.0/24-26", roa.V4.String())
	gb, ok := got.GhostbusterRequest("gb")
	require.True(t, ok)
	assert.Equal(t, "BEGIN:VCARD\r\nEND:VCARD\r\n", gb.VCard)
	require.Equal(t, 1, got.RevokedCertificates.Len())
	assert.Equal(t, int64(7), got.RevokedCertificates.Items()[0].Serial)

	bySelf, err := model.FetchSelfByChildID(ctx, d.Full, child.ID())
	require.NoError(t, err)
	assert.Equal(t, s.ID(), bySelf.ID())
	_, err = model.FetchSelfByChildID(ctx, d.Full, child.ID()+100)
	assert.ErrorIs(t, err, persist.ErrNotFound)
}

func TestDestroyChild(t *testing.T) {
	ctx := context.Background()
	d := modeltest.DB(t)
	s := newSelf(t)
	child, _ := s.Child("bob")
	child.SetDelegation(resources.MustParse("64500", "192.0.2.0/24", "2001:db8::/48"))
	require.NoError(t, persist.Store(ctx, d.Full, s))
	require.Equal(t, 3, child.Resources.Len())

	got, err := model.FetchSelf(ctx, d.Full, "alice")
	require.NoError(t, err)
	c, ok := got.Child("bob")
	require.True(t, ok)
	require.True(t, got.Children.Remove(c))
	require.NoError(t, persist.Store(ctx, d.Full, got))

	again, err := model.FetchSelf(ctx, d.Full, "alice")
	require.NoError(t, err)
	_, ok = again.Child("bob")
	assert.False(t, ok)
	for _, table := range []string{"child", "child_resource", "child_cert"} {
		var n int
		require.NoError(t, d.Full.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
		assert.Zero(t, n, table)
	}
}

func TestSetDelegationReplacesRows(t *testing.T) {
	ctx := context.Background()
	d := modeltest.DB(t)
	s := newSelf(t)
	require.NoError(t, persist.Store(ctx, d.Full, s))
	child, _ := s.Child("bob")
	child.SetDelegation(resources.MustParse("64501-64502", "", "2001:db8::/48"))
	require.NoError(t, persist.Store(ctx, d.Full, s))

	got, err := model.FetchSelf(ctx, d.Full, "alice")
	require.NoError(t, err)
	c, _ := got.Child("bob")
	delegation, err := c.Delegation()
	require.NoError(t, err)
	assert.Equal(t, "as=64501-64502 ipv4= ipv6=2001:db8::/48", delegation.String())
	var n int
	require.NoError(t, d.Full.QueryRow("SELECT COUNT(*) FROM child_resource").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestSelfHelpers(t *testing.T) {
	s := model.NewSelf("carol")
	assert.True(t, s.IsTrustAnchor())
	assert.Equal(t, int64(1), s.AllocateSerial().Int64())
	assert.Equal(t, int64(2), s.AllocateSerial().Int64())
	assert.True(t, s.Dirty())

	_, err := s.Certificate()
	assert.ErrorIs(t, err, model.ErrNoCertificate)
	_, err = s.Key()
	assert.Error(t, err)

	key := objtest.Key(t, 2)
	require.NoError(t, s.SetKey(key))
	k, err := s.Key()
	require.NoError(t, err)
	ski, err := k.SKI()
	require.NoError(t, err)
	want, err := key.SKI()
	require.NoError(t, err)
	assert.Equal(t, want, ski)

	cert := objtest.TA(t, key, resources.MustParse("65000", "", ""))
	require.NoError(t, s.SetCertificate(cert, "rsync://x/ta.cer"))
	held, err := s.Holdings()
	require.NoError(t, err)
	assert.Equal(t, "65000", held.AS.String())
	assert.True(t, s.CRLStale)
	c, err := s.Certificate()
	require.NoError(t, err)
	assert.True(t, c.Equal(cert))
}

func TestROARequestWithdraw(t *testing.T) {
	r := &model.ROARequest{Handle: "r"}
	_, _, _, ok := r.Withdraw()
	assert.False(t, ok)

	r.ROADER, r.ROAURI, r.EESerial = []byte{1}, "rsync://x/r.roa", 9
	r.EENotAfter = time.Unix(1700000000, 0)
	serial, notAfter, uri, ok := r.Withdraw()
	require.True(t, ok)
	assert.Equal(t, int64(9), serial)
	assert.Equal(t, "rsync://x/r.roa", uri)
	assert.True(t, notAfter.Equal(time.Unix(1700000000, 0)))
	assert.Nil(t, r.ROADER)
	assert.True(t, r.Dirty())

	content := (&model.ROARequest{ASN: 1}).Content()
	assert.Equal(t, uint32(1), content.ASID)
	assert.Empty(t, content.V4)
}

func TestDeleteExpiredRevocations(t *testing.T) {
	ctx := context.Background()
	d := modeltest.DB(t)
	s := newSelf(t)
	s.Revoke(8, time.Unix(1700000000, 0), time.Unix(1800000000, 0))
	require.NoError(t, persist.Store(ctx, d.Full, s))

	n, err := model.DeleteExpiredRevocations(ctx, d.Full, time.Unix(1750000000, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := model.FetchSelf(ctx, d.Full, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, got.RevokedCertificates.Len())
	assert.Equal(t, int64(8), got.RevokedCertificates.Items()[0].Serial)
}
