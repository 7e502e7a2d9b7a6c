// Copyright 2019 Anapaya Systems
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

package env_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/private/config"
	"github.com/openrpki/rpkid/private/env"
)

func TestGeneralSample(t *testing.T) {
	var sample bytes.Buffer
	var cfg env.General
	cfg.Sample(&sample, nil, map[string]string{config.ID: "rpkid-1"})
	require.NoError(t, config.Decode(sample.Bytes(), &cfg))
	assert.Equal(t, "rpkid-1", cfg.ID)
	assert.Equal(t, "/var/lib/rpkid", cfg.DataDir)
}

func TestGeneralValidate(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	testCases := map[string]struct {
		cfg       env.General
		assertErr assert.ErrorAssertionFunc
	}{
		"valid": {
			cfg:       env.General{ID: "a", DataDir: dir},
			assertErr: assert.NoError,
		},
		"missing dir is created later": {
			cfg:       env.General{ID: "a", DataDir: filepath.Join(dir, "nope")},
			assertErr: assert.NoError,
		},
		"no id": {
			cfg:       env.General{DataDir: dir},
			assertErr: assert.Error,
		},
		"not a dir": {
			cfg:       env.General{ID: "a", DataDir: file},
			assertErr: assert.Error,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			tc.assertErr(t, tc.cfg.Validate())
		})
	}
}

func TestMetricsSample(t *testing.T) {
	var sample bytes.Buffer
	var cfg env.Metrics
	cfg.Sample(&sample, nil, nil)
	require.NoError(t, config.Decode(sample.Bytes(), &cfg))
	assert.Empty(t, cfg.Prometheus)
	// Nothing configured, nothing served.
	assert.NoError(t, cfg.ServePrometheus(context.Background()))
}

func TestTracingSample(t *testing.T) {
	var sample bytes.Buffer
	var cfg env.Tracing
	cfg.Sample(&sample, nil, nil)
	require.NoError(t, config.Decode(sample.Bytes(), &cfg))
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:6831", cfg.Agent)

	tracer, closer, err := cfg.NewTracer("test")
	require.NoError(t, err)
	assert.NotNil(t, tracer)
	assert.NoError(t, closer.Close())
}

func TestVersionInfo(t *testing.T) {
	// Test binaries carry build info.
	assert.NotEqual(t, "unknown", env.VersionInfo())
	assert.Contains(t, env.StartupMessage("rpkid", "rpkid-1"), "rpkid started rpkid-1")
}
