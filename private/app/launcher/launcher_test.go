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

//go:build !windows

package launcher

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/pkg/log"
	"github.com/openrpki/rpkid/pkg/private/serrors"
	libconfig "github.com/openrpki/rpkid/private/config"
	"github.com/openrpki/rpkid/private/env"
)

type testConfig struct {
	General env.General `toml:"general,omitempty"`
	Logging log.Config  `toml:"log,omitempty"`
	Value   string      `toml:"value,omitempty"`
}

func (cfg *testConfig) InitDefaults() {
	libconfig.InitAll(&cfg.General, &cfg.Logging)
	if cfg.Value == "" {
		cfg.Value = "default"
	}
}

func (cfg *testConfig) Validate() error {
	if cfg.Value == "invalid" {
		return serrors.New("invalid value")
	}
	return libconfig.ValidateAll(&cfg.General)
}

func (cfg *testConfig) Sample(dst io.Writer, path libconfig.Path, _ libconfig.CtxMap) {
	libconfig.WriteSample(dst, path, libconfig.CtxMap{libconfig.ID: "test-1"}, &cfg.General)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	return file
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	testCases := map[string]struct {
		content   string
		args      []string
		mainErr   error
		called    bool
		value     string
		level     string
		assertErr assert.ErrorAssertionFunc
	}{
		"runs main": {
			content: "value = \"x\"\n[general]\nid = \"t1\"\ndata_dir = \"" + dir + "\"\n" +
				"[log.console]\nlevel = \"debug\"\n",
			called:    true,
			value:     "x",
			level:     "debug",
			assertErr: assert.NoError,
		},
		"defaults applied": {
			content:   "[general]\nid = \"t1\"\ndata_dir = \"" + dir + "\"\n",
			called:    true,
			value:     "default",
			level:     log.DefaultConsoleLevel,
			assertErr: assert.NoError,
		},
		"level flag overrides file": {
			content: "[general]\nid = \"t1\"\ndata_dir = \"" + dir + "\"\n" +
				"[log.console]\nlevel = \"debug\"\n",
			args:      []string{"--log.console.level", "error"},
			called:    true,
			value:     "default",
			level:     "error",
			assertErr: assert.NoError,
		},
		"main error": {
			content:   "[general]\nid = \"t1\"\ndata_dir = \"" + dir + "\"\n",
			mainErr:   serrors.New("main failed"),
			called:    true,
			value:     "default",
			assertErr: assert.Error,
		},
		"invalid config": {
			content:   "value = \"invalid\"\n[general]\nid = \"t1\"\n",
			assertErr: assert.Error,
		},
		"unknown key": {
			content:   "bogus = 1\n",
			assertErr: assert.Error,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			var cfg testConfig
			called := false
			a := &Application{
				TOMLConfig: &cfg,
				ShortName:  "test app",
				Main: func(ctx context.Context) error {
					called = true
					assert.NoError(t, ctx.Err())
					return tc.mainErr
				},
			}
			args := append([]string{"--config", writeConfig(t, tc.content)}, tc.args...)
			err := a.run(args)
			tc.assertErr(t, err)
			assert.Equal(t, tc.called, called)
			if tc.called {
				assert.Equal(t, tc.value, cfg.Value)
				assert.Equal(t, tc.level, a.getLogging().Console.Level)
			}
		})
	}
}

func TestRunMissingConfigFlag(t *testing.T) {
	a := &Application{TOMLConfig: &testConfig{}, out: io.Discard}
	assert.Error(t, a.run(nil))
}

func TestRunSample(t *testing.T) {
	var out bytes.Buffer
	a := &Application{TOMLConfig: &testConfig{}, out: &out}
	require.NoError(t, a.run([]string{"sample", "config"}))
	assert.Contains(t, out.String(), `id = "test-1"`)
}

func TestSetupBindsPlatformFlags(t *testing.T) {
	a := &Application{TOMLConfig: &testConfig{}, out: io.Discard}
	_, err := a.setup(nil, func(fs *pflag.FlagSet) []string {
		fs.String("logfile", "", "Log file")
		return []string{"logfile"}
	})
	require.NoError(t, err)
	require.NoError(t, a.cmd.ParseFlags([]string{"--config", "c.toml", "--logfile", "out.log"}))
	assert.Equal(t, "out.log", a.config.GetString("logfile"))
	assert.Equal(t, "c.toml", a.config.GetString(cfgConfigFile))
	assert.Equal(t, log.DefaultConsoleLevel, a.getLogging().Console.Level)
}
