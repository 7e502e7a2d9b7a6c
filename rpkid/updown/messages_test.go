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
	"encoding/xml"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/rpkid/updown"
)

const header = `<message xmlns="http://www.apnic.net/specs/rescerts/up-down/" ` +
	`sender="bob" recipient="alice" `

func TestParse(t *testing.T) {
	testCases := map[string]struct {
		Raw  string
		Code updown.Code
		Type updown.Type
	}{
		"list": {
			Raw:  header + `version="1" type="list"/>`,
			Type: updown.TypeList,
		},
		"revoke": {
			Raw:  header + `version="1" type="revoke"><key class_name="alice" ski="abc"/></message>`,
			Type: updown.TypeRevoke,
		},
		"issue": {
			Raw: header + `version="1" type="issue"><request class_name="alice">` +
				"\n  MIIB\n  AA==\n</request></message>",
			Type: updown.TypeIssue,
		},
		"malformed": {
			Raw:  `<message`,
			Code: updown.CodeInternal,
		},
		"version": {
			Raw:  header + `version="2" type="list"/>`,
			Code: updown.CodeVersion,
		},
		"unknown type": {
			Raw:  header + `version="1" type="frobnicate"/>`,
			Code: updown.CodeUnrecognizedType,
		},
		"issue without request": {
			Raw:  header + `version="1" type="issue"/>`,
			Code: updown.CodeInternal,
		},
		"revoke without ski": {
			Raw:  header + `version="1" type="revoke"><key class_name="alice"/></message>`,
			Code: updown.CodeInternal,
		},
		"list with body": {
			Raw:  header + `version="1" type="list"><key class_name="a" ski="b"/></message>`,
			Code: updown.CodeInternal,
		},
		"missing sender": {
			Raw: `<message xmlns="http://www.apnic.net/specs/rescerts/up-down/" ` +
				`recipient="alice" version="1" type="list"/>`,
			Code: updown.CodeInternal,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			m, err := updown.Parse([]byte(tc.Raw))
			if tc.Code != 0 {
				var protoErr *updown.Error
				require.True(t, errors.As(err, &protoErr), "err: %v", err)
				assert.Equal(t, tc.Code, protoErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.Type, m.Type)
		})
	}
}

func TestBase64IgnoresWhitespace(t *testing.T) {
	m, err := updown.Parse([]byte(header + `version="1" type="issue">` +
		`<request class_name="alice">` + "AQID\r\n  BA==" + `</request></message>`))
	require.NoError(t, err)
	assert.Equal(t, updown.Base64{1, 2, 3, 4}, m.Request.PKCS10)
}

func TestMarshalRoundTrip(t *testing.T) {
	in := &updown.Message{
		Version:   updown.Version,
		Sender:    "alice",
		Recipient: "bob",
		Type:      updown.TypeIssueResponse,
		Classes: []updown.Class{{
			Name:                "alice",
			CertURL:             "rsync://example.net/rpki/alice.cer",
			ResourceSetAS:       "64500",
			ResourceSetIPv4:     "192.0.2.0/24",
			ResourceSetNotAfter: "2026-01-01T00:00:00Z",
			Certificates: []updown.Certificate{{
				URL: "rsync://example.net/rpki/alice/bob.cer",
				DER: updown.Base64("certificate"),
			}},
			Issuer: updown.Base64("issuer"),
		}},
	}
	raw, err := updown.Marshal(in)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), xml.Header))

	out, err := updown.Parse(raw)
	require.NoError(t, err)
	out.XMLName = xml.Name{}
	assert.Empty(t, cmp.Diff(in, out))

	notAfter, err := out.Classes[0].NotAfter()
	require.NoError(t, err)
	assert.Equal(t, 2026, notAfter.Year())
}

func TestMarshalRejectsInvalid(t *testing.T) {
	_, err := updown.Marshal(&updown.Message{
		Version: updown.Version, Sender: "a", Recipient: "b", Type: updown.TypeRevoke,
	})
	assert.Error(t, err)
}

func TestErrorResponse(t *testing.T) {
	m := updown.NewErrorResponse("alice", "bob", &updown.Error{
		Code:        updown.CodeNoResources,
		Description: "request exceeds available resources",
	})
	raw, err := updown.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `<status>1202</status>`)
	assert.Contains(t, string(raw), `xml:lang="en-US"`)

	out, err := updown.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, updown.CodeNoResources, out.Status)
	assert.Equal(t, "en-US", out.Description.Lang)
}
