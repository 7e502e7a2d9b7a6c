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

// Package config describes the configuration of rpkid.
package config

import (
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/openrpki/rpkid/pkg/log"
	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/private/util"
	"github.com/openrpki/rpkid/pkg/rpki/cms"
	"github.com/openrpki/rpkid/pkg/rpki/objects"
	"github.com/openrpki/rpkid/private/config"
	"github.com/openrpki/rpkid/private/env"
	api "github.com/openrpki/rpkid/private/mgmtapi"
	"github.com/openrpki/rpkid/private/storage"
	"github.com/openrpki/rpkid/rpkid/ca"
	"github.com/openrpki/rpkid/rpkid/model"
	"github.com/openrpki/rpkid/rpkid/updown"
)

const (
	// DefaultPort is the default port of the protocol listener.
	DefaultPort = 4433
	// DefaultMaxConnections is the default limit of concurrently served
	// connections.
	DefaultMaxConnections = 64
	// DefaultCleanerInterval is the default interval between removals of
	// expired revocation entries.
	DefaultCleanerInterval = time.Hour
	// DefaultPublicationPath is the default location of the published
	// repository.
	DefaultPublicationPath = "/var/lib/rpkid/publication"
)

var _ config.Config = (*Config)(nil)

// Config is the rpkid configuration.
type Config struct {
	General     env.General      `toml:"general,omitempty"`
	Logging     log.Config       `toml:"log,omitempty"`
	Metrics     env.Metrics      `toml:"metrics,omitempty"`
	API         api.Config       `toml:"api,omitempty"`
	Tracing     env.Tracing      `toml:"tracing,omitempty"`
	DB          storage.DBConfig `toml:"db,omitempty"`
	Server      Server           `toml:"server,omitempty"`
	BPKI        BPKI             `toml:"bpki,omitempty"`
	Publication Publication      `toml:"publication,omitempty"`
	CA          CA               `toml:"ca,omitempty"`
	UpDown      UpDown           `toml:"updown,omitempty"`
	Maintenance Maintenance      `toml:"maintenance,omitempty"`
}

// InitDefaults initializes the default values for all parts of the config.
func (cfg *Config) InitDefaults() {
	config.InitAll(
		&cfg.General,
		&cfg.Logging,
		&cfg.Metrics,
		&cfg.API,
		&cfg.Tracing,
		&cfg.DB,
		&cfg.Server,
		&cfg.BPKI,
		&cfg.Publication,
		&cfg.CA,
		&cfg.UpDown,
		&cfg.Maintenance,
	)
}

// Validate validates all parts of the config.
func (cfg *Config) Validate() error {
	return config.ValidateAll(
		&cfg.General,
		&cfg.Logging,
		&cfg.Metrics,
		&cfg.API,
		&cfg.DB,
		&cfg.Server,
		&cfg.BPKI,
		&cfg.Publication,
		&cfg.CA,
		&cfg.UpDown,
		&cfg.Maintenance,
	)
}

// Sample generates a sample config file for rpkid.
func (cfg *Config) Sample(dst io.Writer, path config.Path, _ config.CtxMap) {
	config.WriteSample(dst, path, config.CtxMap{config.ID: idSample},
		&cfg.General,
		&cfg.Logging,
		&cfg.Metrics,
		&cfg.API,
		&cfg.Tracing,
		&cfg.DB,
		&cfg.Server,
		&cfg.BPKI,
		&cfg.Publication,
		&cfg.CA,
		&cfg.UpDown,
		&cfg.Maintenance,
	)
}

var _ config.Config = (*Server)(nil)

// Server is the protocol listener configuration.
type Server struct {
	// Host is the address to listen on. Empty listens on all addresses.
	Host string `toml:"host,omitempty"`
	// Port is the port to listen on.
	Port int `toml:"port,omitempty"`
	// MaxConnections limits the number of concurrently served connections.
	MaxConnections int `toml:"max_connections,omitempty"`
}

func (cfg *Server) InitDefaults() {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
}

func (cfg *Server) Validate() error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return serrors.New("invalid port", "port", cfg.Port)
	}
	if cfg.MaxConnections < 1 {
		return serrors.New("max_connections must be positive",
			"max_connections", cfg.MaxConnections)
	}
	return nil
}

// Addr is the listen address.
func (cfg *Server) Addr() string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

func (cfg *Server) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, serverSample)
}

func (cfg *Server) ConfigName() string {
	return "server"
}

var _ config.Config = (*BPKI)(nil)

// BPKI locates the business PKI material of rpkid.
type BPKI struct {
	config.NoDefaulter
	// CMSKey is the file holding the key that signs protocol messages.
	CMSKey string `toml:"cms_key,omitempty"`
	// CMSCerts is the file holding the certificate of CMSKey, optionally
	// followed by its issuers.
	CMSCerts string `toml:"cms_certs,omitempty"`
	// IRBETrustAnchor is the file holding the BPKI trust anchor of the
	// management interface.
	IRBETrustAnchor string `toml:"irbe_ta,omitempty"`
}

func (cfg *BPKI) Validate() error {
	var errs serrors.List
	for key, file := range map[string]string{
		"cms_key":   cfg.CMSKey,
		"cms_certs": cfg.CMSCerts,
		"irbe_ta":   cfg.IRBETrustAnchor,
	} {
		if file == "" {
			errs = append(errs, serrors.New("missing bpki file", "key", key))
		}
	}
	return errs.ToError()
}

// Load reads the signing identity and the management trust anchor.
func (cfg *BPKI) Load() (cms.Identity, []byte, error) {
	key, err := objects.ReadKey(cfg.CMSKey)
	if err != nil {
		return cms.Identity{}, nil, err
	}
	signer, err := key.Signer()
	if err != nil {
		return cms.Identity{}, nil, err
	}
	certs, err := objects.ReadCertificates(cfg.CMSCerts)
	if err != nil {
		return cms.Identity{}, nil, err
	}
	certs, err = objects.Chainsort(certs)
	if err != nil {
		return cms.Identity{}, nil, serrors.Wrap("ordering cms certificates", err,
			"file", cfg.CMSCerts)
	}
	id := cms.Identity{Signer: signer}
	for _, c := range certs {
		x, err := c.Parsed()
		if err != nil {
			return cms.Identity{}, nil, err
		}
		id.Chain = append(id.Chain, x)
	}
	tas, err := objects.ReadCertificates(cfg.IRBETrustAnchor)
	if err != nil {
		return cms.Identity{}, nil, err
	}
	if len(tas) != 1 {
		return cms.Identity{}, nil, serrors.New("expected exactly one trust anchor",
			"file", cfg.IRBETrustAnchor, "count", len(tas))
	}
	ta, err := tas[0].DER()
	if err != nil {
		return cms.Identity{}, nil, err
	}
	return id, ta, nil
}

func (cfg *BPKI) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, bpkiSample)
}

func (cfg *BPKI) ConfigName() string {
	return "bpki"
}

// PublicationBackend selects where published objects are stored.
type PublicationBackend string

const (
	// BackendFS writes objects into a directory tree.
	BackendFS PublicationBackend = "fs"
	// BackendBolt stores objects in a bbolt database.
	BackendBolt PublicationBackend = "bolt"
)

var _ config.Config = (*Publication)(nil)

// Publication is the configuration of the publication backend.
type Publication struct {
	Backend PublicationBackend `toml:"backend,omitempty"`
	// Path is the root directory of the fs backend or the database file of
	// the bolt backend.
	Path string `toml:"path,omitempty"`
}

func (cfg *Publication) InitDefaults() {
	if cfg.Backend == "" {
		cfg.Backend = BackendFS
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPublicationPath
	}
}

func (cfg *Publication) Validate() error {
	switch PublicationBackend(strings.ToLower(string(cfg.Backend))) {
	case BackendFS:
		cfg.Backend = BackendFS
	case BackendBolt:
		cfg.Backend = BackendBolt
	default:
		return serrors.New("unknown publication backend", "backend", cfg.Backend)
	}
	return nil
}

func (cfg *Publication) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, publicationSample)
}

func (cfg *Publication) ConfigName() string {
	return "publication"
}

var _ config.Config = (*CA)(nil)

// CA holds the parameters of the certification engine.
type CA struct {
	// KeyBits is the size of generated RSA keys.
	KeyBits int `toml:"key_bits,omitempty"`
	// CRLInterval and RegenMargin are the defaults of created selves.
	CRLInterval   util.DurWrap `toml:"crl_interval,omitempty"`
	RegenMargin   util.DurWrap `toml:"regen_margin,omitempty"`
	ChildValidity util.DurWrap `toml:"child_validity,omitempty"`
	TAValidity    util.DurWrap `toml:"ta_validity,omitempty"`
	EEValidity    util.DurWrap `toml:"ee_validity,omitempty"`
}

func (cfg *CA) InitDefaults() {
	if cfg.KeyBits == 0 {
		cfg.KeyBits = objects.DefaultKeyBits
	}
	initDurWrap(&cfg.CRLInterval, model.DefaultCRLInterval)
	initDurWrap(&cfg.RegenMargin, model.DefaultRegenMargin)
	initDurWrap(&cfg.ChildValidity, ca.DefaultChildValidity)
	initDurWrap(&cfg.TAValidity, ca.DefaultTAValidity)
	initDurWrap(&cfg.EEValidity, ca.DefaultEEValidity)
}

func (cfg *CA) Validate() error {
	if cfg.KeyBits < 1024 {
		return serrors.New("key_bits too small", "key_bits", cfg.KeyBits)
	}
	if cfg.RegenMargin.Duration >= cfg.CRLInterval.Duration {
		return serrors.New("regen_margin must be shorter than crl_interval",
			"regen_margin", cfg.RegenMargin, "crl_interval", cfg.CRLInterval)
	}
	return nil
}

// EngineConfig returns the configuration of the certification engine.
func (cfg *CA) EngineConfig() ca.Config {
	return ca.Config{
		KeyBits:       cfg.KeyBits,
		ChildValidity: cfg.ChildValidity.Duration,
		TAValidity:    cfg.TAValidity.Duration,
		EEValidity:    cfg.EEValidity.Duration,
	}
}

func (cfg *CA) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, caSample)
}

func (cfg *CA) ConfigName() string {
	return "ca"
}

var _ config.Config = (*UpDown)(nil)

// UpDown holds the parameters of the provisioning protocol.
type UpDown struct {
	// ReplayWindow is how long received requests are remembered.
	ReplayWindow util.DurWrap `toml:"replay_window,omitempty"`
	// ClientTimeout bounds a request to a parent.
	ClientTimeout util.DurWrap `toml:"client_timeout,omitempty"`
}

func (cfg *UpDown) InitDefaults() {
	initDurWrap(&cfg.ReplayWindow, updown.DefaultReplayWindow)
	initDurWrap(&cfg.ClientTimeout, updown.DefaultClientTimeout)
}

func (cfg *UpDown) Validate() error {
	return nil
}

func (cfg *UpDown) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, upDownSample)
}

func (cfg *UpDown) ConfigName() string {
	return "updown"
}

var _ config.Config = (*Maintenance)(nil)

// Maintenance schedules the background work.
type Maintenance struct {
	// Interval between maintenance passes. Zero leaves triggering to the
	// cronjob endpoint.
	Interval util.DurWrap `toml:"interval,omitempty"`
	// CleanerInterval between removals of expired revocation entries.
	CleanerInterval util.DurWrap `toml:"cleaner_interval,omitempty"`
}

func (cfg *Maintenance) InitDefaults() {
	initDurWrap(&cfg.CleanerInterval, DefaultCleanerInterval)
}

func (cfg *Maintenance) Validate() error {
	if cfg.Interval.Duration < 0 {
		return serrors.New("interval must not be negative", "interval", cfg.Interval)
	}
	return nil
}

func (cfg *Maintenance) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, maintenanceSample)
}

func (cfg *Maintenance) ConfigName() string {
	return "maintenance"
}

func initDurWrap(w *util.DurWrap, def time.Duration) {
	if w.Duration == 0 {
		w.Duration = def
	}
}
