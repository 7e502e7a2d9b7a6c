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

// Package storage provides the factory for the entity database and its
// cleaner.
package storage

import (
	"io"
	"time"

	"github.com/openrpki/rpkid/pkg/log"
	"github.com/openrpki/rpkid/private/config"
	"github.com/openrpki/rpkid/private/periodic"
	"github.com/openrpki/rpkid/private/storage/cleaner"
	"github.com/openrpki/rpkid/private/storage/db"
	"github.com/openrpki/rpkid/rpkid/model"
)

// Backend indicates the database backend type.
type Backend string

const (
	// BackendSqlite indicates an sqlite backend.
	BackendSqlite Backend = "sqlite"
	// DefaultPath is the default connection string of the entity database.
	DefaultPath = "/var/lib/rpkid/rpkid.db"
)

var _ (config.Config) = (*DBConfig)(nil)

// DBConfig is the configuration for the connection to a database.
type DBConfig struct {
	Connection   string `toml:"connection,omitempty"`
	MaxOpenConns int    `toml:"max_open_conns,omitempty"`
	MaxIdleConns int    `toml:"max_idle_conns,omitempty"`
}

func (cfg *DBConfig) InitDefaults() {
	if cfg.Connection == "" {
		cfg.Connection = DefaultPath
	}
}

func (cfg *DBConfig) Validate() error {
	return nil
}

// Sample writes a config sample to the writer.
func (cfg *DBConfig) Sample(dst io.Writer, path config.Path, ctx config.CtxMap) {
	config.WriteString(dst, sample)
}

// ConfigName is the key in the toml file.
func (cfg *DBConfig) ConfigName() string {
	return "db"
}

const sample = `# The connection string of the sqlite database. (default /var/lib/rpkid/rpkid.db)
connection = "/var/lib/rpkid/rpkid.db"

# The maximum number of open read connections. 0 selects a default based on
# the number of CPUs. (default 0)
max_open_conns = 0

# The maximum number of idle read connections. 0 keeps the Go default.
# (default 0)
max_idle_conns = 0
`

// NewEntityStorage opens the entity database and sets up the schema.
func NewEntityStorage(c DBConfig) (*db.Sqlite, error) {
	log.Info("Connecting EntityDB", "backend", BackendSqlite, "connection", c.Connection)
	d, err := db.NewSqlite(c.Connection, &db.SqliteConfig{
		MaxOpenReadConns: c.MaxOpenConns,
		MaxIdleReadConns: c.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}
	if err := d.Setup(model.Schema, model.SchemaVersion); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// StartCleaner periodically removes expired rows with deleter. The returned
// runner must be stopped by the caller.
func StartCleaner(name string, deleter cleaner.ExpiredDeleter,
	interval time.Duration) *periodic.Runner {

	return periodic.Start(cleaner.New(deleter, name, cleaner.NewMetrics(name)),
		interval, interval)
}
