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

package certs_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/pkg/rpki/objects/objtest"
	"github.com/openrpki/rpkid/private/app/command"
	"github.com/openrpki/rpkid/rpki-tool/certs"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := certs.Cmd(command.StringPather("rpki-tool"))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writePEM(t *testing.T, dir, name string, certs ...*objects.Certificate) string {
	t.Helper()
	var buf bytes.Buffer
	for _, c := range certs {
		raw, err := c.PEM()
		require.NoError(t, err)
		buf.Write(raw)
	}
	file := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(file, buf.Bytes(), 0o600))
	return file
}

func TestDescribe(t *testing.T) {
	chain := objtest.Chain(t, 2)
	info, err := certs.Describe(chain[0])
	require.NoError(t, err)
	gski, err := chain[0].GSKI()
	require.NoError(t, err)

	assert.Equal(t, gski, info.GSKI)
	assert.True(t, info.CA)
	assert.NotEmpty(t, info.AKI)
	assert.Equal(t, "64496-64511", info.Resources.AS)
	assert.Equal(t, "192.0.2.0/24", info.Resources.IPv4)
	assert.NotEmpty(t, info.SIA.CARepository)

	ta, err := certs.Describe(chain[1])
	require.NoError(t, err)
	assert.Equal(t, ta.Subject, ta.Issuer)
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	chain := objtest.Chain(t, 2)
	single := writePEM(t, dir, "leaf.pem", chain[0])
	bundle := writePEM(t, dir, "bundle.pem", chain...)
	der, err := chain[1].DER()
	require.NoError(t, err)
	derFile := filepath.Join(dir, "ta.cer")
	require.NoError(t, os.WriteFile(derFile, der, 0o600))

	t.Run("table", func(t *testing.T) {
		out, err := execute(t, "inspect", single)
		require.NoError(t, err)
		assert.Contains(t, out, "gski")
		assert.Contains(t, out, "64496-64511")
	})
	t.Run("yaml single", func(t *testing.T) {
		out, err := execute(t, "inspect", "--format", "yaml", derFile)
		require.NoError(t, err)
		var info certs.Info
		require.NoError(t, yaml.Unmarshal([]byte(out), &info))
		want, err := certs.Describe(chain[1])
		require.NoError(t, err)
		assert.Equal(t, want.GSKI, info.GSKI)
	})
	t.Run("yaml bundle", func(t *testing.T) {
		out, err := execute(t, "inspect", "--format", "yaml", bundle)
		require.NoError(t, err)
		var infos []certs.Info
		require.NoError(t, yaml.Unmarshal([]byte(out), &infos))
		assert.Len(t, infos, 2)
	})
	t.Run("bad format", func(t *testing.T) {
		_, err := execute(t, "inspect", "--format", "xml", single)
		assert.Error(t, err)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "inspect", filepath.Join(dir, "nope"))
		assert.Error(t, err)
	})
}

func TestChainsort(t *testing.T) {
	dir := t.TempDir()
	chain := objtest.Chain(t, 3)
	files := []string{
		writePEM(t, dir, "ta.pem", chain[2]),
		writePEM(t, dir, "leaf.pem", chain[0]),
		writePEM(t, dir, "mid.pem", chain[1]),
	}
	out, err := execute(t, append([]string{"chainsort"}, files...)...)
	require.NoError(t, err)

	sorted := filepath.Join(dir, "sorted.pem")
	require.NoError(t, os.WriteFile(sorted, []byte(out), 0o600))
	got, err := objects.ReadCertificates(sorted)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range chain {
		assert.True(t, chain[i].Equal(got[i]), "position %d", i)
	}

	_, err = execute(t, "chainsort", files[0], files[1])
	assert.ErrorIs(t, err, objects.ErrNotACertificateChain)
}
