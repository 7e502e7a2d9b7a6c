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

package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/pkg/rpki/objects/objtest"
	"github.com/openrpki/rpkid/rpkid/config"
)

func TestConfigSample(t *testing.T) {
	var sample bytes.Buffer
	var cfg config.Config
	cfg.Sample(&sample, nil, nil)

	var loaded config.Config
	err := toml.NewDecoder(bytes.NewReader(sample.Bytes())).DisallowUnknownFields().
		Decode(&loaded)
	require.NoError(t, err)
	loaded.InitDefaults()

	assert.Equal(t, "rpkid-1", loaded.General.ID)
	assert.Equal(t, "info", loaded.Logging.Console.Level)
	assert.Equal(t, "/var/lib/rpkid/rpkid.db", loaded.DB.Connection)
	assert.Equal(t, 4433, loaded.Server.Port)
	assert.Equal(t, ":4433", loaded.Server.Addr())
	assert.Equal(t, 64, loaded.Server.MaxConnections)
	assert.Equal(t, "/etc/rpkid/bpki/rpkid.key", loaded.BPKI.CMSKey)
	assert.Equal(t, config.BackendFS, loaded.Publication.Backend)
	assert.Equal(t, 2048, loaded.CA.KeyBits)
	assert.Equal(t, 6*time.Hour, loaded.CA.CRLInterval.Duration)
	assert.Equal(t, 2*time.Hour, loaded.CA.RegenMargin.Duration)
	assert.Equal(t, 30*24*time.Hour, loaded.CA.ChildValidity.Duration)
	assert.Equal(t, 365*24*time.Hour, loaded.CA.TAValidity.Duration)
	assert.Equal(t, 10*time.Minute, loaded.UpDown.ReplayWindow.Duration)
	assert.Equal(t, 30*time.Second, loaded.UpDown.ClientTimeout.Duration)
	assert.Zero(t, loaded.Maintenance.Interval.Duration)
	assert.Equal(t, time.Hour, loaded.Maintenance.CleanerInterval.Duration)
}

func TestInitDefaults(t *testing.T) {
	var cfg config.Config
	cfg.InitDefaults()
	assert.Equal(t, config.DefaultPort, cfg.Server.Port)
	assert.Equal(t, config.BackendFS, cfg.Publication.Backend)
	assert.Equal(t, config.DefaultPublicationPath, cfg.Publication.Path)
	assert.Equal(t, 2048, cfg.CA.EngineConfig().KeyBits)
	assert.Equal(t, 30*24*time.Hour, cfg.CA.EngineConfig().EEValidity)
	assert.Equal(t, config.DefaultCleanerInterval, cfg.Maintenance.CleanerInterval.Duration)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		cfg := &config.Config{}
		cfg.General.ID = "rpkid-test"
		cfg.General.DataDir = t.TempDir()
		cfg.BPKI = config.BPKI{CMSKey: "k", CMSCerts: "c", IRBETrustAnchor: "ta"}
		cfg.InitDefaults()
		return cfg
	}
	testCases := map[string]struct {
		modify    func(*config.Config)
		assertErr assert.ErrorAssertionFunc
	}{
		"valid": {
			modify:    func(*config.Config) {},
			assertErr: assert.NoError,
		},
		"backend case insensitive": {
			modify:    func(c *config.Config) { c.Publication.Backend = "BOLT" },
			assertErr: assert.NoError,
		},
		"missing id": {
			modify:    func(c *config.Config) { c.General.ID = "" },
			assertErr: assert.Error,
		},
		"bad port": {
			modify:    func(c *config.Config) { c.Server.Port = 70000 },
			assertErr: assert.Error,
		},
		"missing bpki": {
			modify:    func(c *config.Config) { c.BPKI.IRBETrustAnchor = "" },
			assertErr: assert.Error,
		},
		"unknown backend": {
			modify:    func(c *config.Config) { c.Publication.Backend = "s3" },
			assertErr: assert.Error,
		},
		"small keys": {
			modify:    func(c *config.Config) { c.CA.KeyBits = 512 },
			assertErr: assert.Error,
		},
		"margin exceeds interval": {
			modify: func(c *config.Config) {
				c.CA.RegenMargin.Duration = 7 * time.Hour
			},
			assertErr: assert.Error,
		},
		"negative maintenance": {
			modify: func(c *config.Config) {
				c.Maintenance.Interval.Duration = -time.Second
			},
			assertErr: assert.Error,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			tc.modify(cfg)
			tc.assertErr(t, cfg.Validate())
		})
	}
}

func TestBPKILoad(t *testing.T) {
	dir := t.TempDir()
	chain := objtest.Chain(t, 2)
	write := func(name string, data ...[]byte) string {
		file := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(file, bytes.Join(data, nil), 0o600))
		return file
	}
	leaf, err := chain[0].PEM()
	require.NoError(t, err)
	root, err := chain[1].PEM()
	require.NoError(t, err)
	key, err := objtest.Key(t, 0).PEM()
	require.NoError(t, err)

	cfg := config.BPKI{
		CMSKey: write("cms.key", key),
		// Issuers first, Load orders the chain.
		CMSCerts:        write("cms.cer", root, leaf),
		IRBETrustAnchor: write("irbe.cer", root),
	}
	id, ta, err := cfg.Load()
	require.NoError(t, err)
	require.Len(t, id.Chain, 2)
	assert.Equal(t, objtest.X509(t, chain[0]).Raw, id.Chain[0].Raw)
	assert.Equal(t, objtest.X509(t, chain[1]).Raw, ta)
	assert.NotNil(t, id.Signer)

	cfg.IRBETrustAnchor = write("bundle.cer", root, leaf)
	_, _, err = cfg.Load()
	assert.Error(t, err)

	cfg.CMSKey = filepath.Join(dir, "missing.key")
	_, _, err = cfg.Load()
	assert.Error(t, err)
}
