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

package objects_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/pkg/rpki/objects/objtest"
)

func write(t *testing.T, name string, data []byte) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(file, data, 0o600))
	return file
}

func TestReadCertificates(t *testing.T) {
	chain := objtest.Chain(t, 2)
	pem0, err := chain[0].PEM()
	require.NoError(t, err)
	pem1, err := chain[1].PEM()
	require.NoError(t, err)
	der0, err := chain[0].DER()
	require.NoError(t, err)
	keyPEM, err := objtest.Key(t, 1).PEM()
	require.NoError(t, err)

	testCases := map[string]struct {
		data      []byte
		want      []*objects.Certificate
		assertErr assert.ErrorAssertionFunc
	}{
		"single DER": {
			data:      der0,
			want:      chain[:1],
			assertErr: assert.NoError,
		},
		"PEM bundle": {
			data:      append(append([]byte{}, pem0...), pem1...),
			want:      chain,
			assertErr: assert.NoError,
		},
		"other blocks skipped": {
			data:      append(append([]byte{}, keyPEM...), pem1...),
			want:      chain[1:],
			assertErr: assert.NoError,
		},
		"garbage": {
			data:      []byte("not a certificate"),
			assertErr: assert.Error,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := objects.ReadCertificates(write(t, "certs", tc.data))
			tc.assertErr(t, err)
			require.Len(t, got, len(tc.want))
			for i := range got {
				assert.True(t, tc.want[i].Equal(got[i]), "certificate %d", i)
			}
		})
	}

	_, err = objects.ReadCertificates(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadKey(t *testing.T) {
	key := objtest.Key(t, 2)
	pemKey, err := key.PEM()
	require.NoError(t, err)
	derKey, err := key.DER()
	require.NoError(t, err)
	wantSKI, err := key.SKI()
	require.NoError(t, err)

	for name, data := range map[string][]byte{"PEM": pemKey, "DER": derKey} {
		t.Run(name, func(t *testing.T) {
			got, err := objects.ReadKey(write(t, "key", data))
			require.NoError(t, err)
			ski, err := got.SKI()
			require.NoError(t, err)
			assert.Equal(t, wantSKI, ski)
		})
	}

	_, err = objects.ReadKey(write(t, "key", []byte("junk")))
	assert.Error(t, err)
}
