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

package convert_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/pkg/rpki/objects/objtest"
	"github.com/openrpki/rpkid/private/app/command"
	"github.com/openrpki/rpkid/rpki-tool/convert"
)

func TestConvert(t *testing.T) {
	cert := objtest.Chain(t, 1)[0]
	certDER, err := cert.DER()
	require.NoError(t, err)
	certPEM, err := cert.PEM()
	require.NoError(t, err)
	key := objtest.Key(t, 0)
	keyDER, err := key.DER()
	require.NoError(t, err)
	keyPEM, err := key.PEM()
	require.NoError(t, err)

	testCases := map[string]struct {
		Kind      string
		Input     []byte
		To        string
		Expected  []byte
		ErrAssert assert.ErrorAssertionFunc
	}{
		"certificate pem to der": {
			Kind:      "certificate",
			Input:     certPEM,
			To:        "der",
			Expected:  certDER,
			ErrAssert: assert.NoError,
		},
		"certificate der to pem": {
			Kind:      "certificate",
			Input:     certDER,
			To:        "pem",
			Expected:  certPEM,
			ErrAssert: assert.NoError,
		},
		"certificate same encoding": {
			Kind:      "certificate",
			Input:     certDER,
			To:        "DER",
			Expected:  certDER,
			ErrAssert: assert.NoError,
		},
		"key der to pem": {
			Kind:      "key",
			Input:     keyDER,
			To:        "pem",
			Expected:  keyPEM,
			ErrAssert: assert.NoError,
		},
		"wrong kind": {
			Kind:      "crl",
			Input:     certDER,
			To:        "pem",
			ErrAssert: assert.Error,
		},
		"unknown kind": {
			Kind:      "aspa",
			Input:     certDER,
			To:        "pem",
			ErrAssert: assert.Error,
		},
		"unknown encoding": {
			Kind:      "certificate",
			Input:     certDER,
			To:        "base32",
			ErrAssert: assert.Error,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := convert.Convert(tc.Kind, tc.Input, tc.To)
			tc.ErrAssert(t, err)
			if err == nil {
				assert.Equal(t, tc.Expected, got)
			}
		})
	}
}

func TestCmd(t *testing.T) {
	dir := t.TempDir()
	cert := objtest.Chain(t, 1)[0]
	certPEM, err := cert.PEM()
	require.NoError(t, err)
	certDER, err := cert.DER()
	require.NoError(t, err)
	in := filepath.Join(dir, "ta.pem")
	require.NoError(t, os.WriteFile(in, certPEM, 0o600))

	t.Run("out file", func(t *testing.T) {
		out := filepath.Join(dir, "ta.cer")
		cmd := convert.Cmd(command.StringPather("rpki-tool"))
		cmd.SetArgs([]string{"certificate", in, "--to", "der", "--out", out})
		require.NoError(t, cmd.Execute())
		raw, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, certDER, raw)
		_, err = objects.NewCertificate(objects.DER, raw)
		assert.NoError(t, err)
	})
	t.Run("stdout", func(t *testing.T) {
		cmd := convert.Cmd(command.StringPather("rpki-tool"))
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{"certificate", in})
		require.NoError(t, cmd.Execute())
		assert.Equal(t, certPEM, buf.Bytes())
	})
}

func TestKinds(t *testing.T) {
	assert.Equal(t, []string{"certificate", "crl", "ghostbuster", "key", "manifest",
		"request", "roa"}, convert.Kinds())
}
