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

package key_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/pkg/rpki/objects/objtest"
	"github.com/openrpki/rpkid/private/app/command"
	"github.com/openrpki/rpkid/rpki-tool/key"
)

func TestGenerate(t *testing.T) {
	file := filepath.Join(t.TempDir(), "new.key")
	require.NoError(t, key.Generate(file, 1024, false))
	k, err := objects.ReadKey(file)
	require.NoError(t, err)
	priv, err := k.Parsed()
	require.NoError(t, err)
	assert.Equal(t, 1024, priv.N.BitLen())

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.ErrorIs(t, key.Generate(file, 1024, false), os.ErrExist)
	assert.NoError(t, key.Generate(file, 1024, true))
}

func TestGenerateCmdShortKey(t *testing.T) {
	cmd := key.Cmd(command.StringPather("rpki-tool"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"generate", "--bits", "512", filepath.Join(t.TempDir(), "k")})
	assert.Error(t, cmd.Execute())
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	k := objtest.Key(t, 0)
	want, err := k.SKI()
	require.NoError(t, err)

	keyRaw, err := k.PEM()
	require.NoError(t, err)
	keyFile := filepath.Join(dir, "ta.key")
	require.NoError(t, os.WriteFile(keyFile, keyRaw, 0o600))

	chain := objtest.Chain(t, 1)
	certRaw, err := chain[0].DER()
	require.NoError(t, err)
	certFile := filepath.Join(dir, "ta.cer")
	require.NoError(t, os.WriteFile(certFile, certRaw, 0o600))

	garbage := filepath.Join(dir, "garbage")
	require.NoError(t, os.WriteFile(garbage, []byte("garbage"), 0o600))

	testCases := map[string]struct {
		File      string
		Format    string
		Expected  string
		ErrAssert assert.ErrorAssertionFunc
	}{
		"key gski": {
			File:      keyFile,
			Format:    "gski",
			Expected:  objects.GSKI(want),
			ErrAssert: assert.NoError,
		},
		"certificate hex": {
			File:      certFile,
			Format:    "hex",
			Expected:  objects.HexSKI(want),
			ErrAssert: assert.NoError,
		},
		"garbage": {
			File:      garbage,
			Format:    "gski",
			ErrAssert: assert.Error,
		},
		"bad format": {
			File:      keyFile,
			Format:    "emoji",
			ErrAssert: assert.Error,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cmd := key.Cmd(command.StringPather("rpki-tool"))
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs([]string{"fingerprint", "--format", tc.Format, tc.File})
			err := cmd.Execute()
			tc.ErrAssert(t, err)
			if err == nil {
				assert.Equal(t, tc.Expected, strings.TrimSpace(out.String()))
			}
		})
	}
}
