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

// Package mgmtapi contains the building blocks shared by the management APIs
// of the rpkid binaries: the API configuration, problem responses and the
// generic status pages.
package mgmtapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/openrpki/rpkid/pkg/log"
	"github.com/openrpki/rpkid/private/config"
)

// Problem types.
const (
	InternalError = "/problems/internal-error"
	BadRequest    = "/problems/bad-request"
	NotFound      = "/problems/not-found"
)

// Problem is an RFC 7807 problem detail.
type Problem struct {
	Detail *string `json:"detail,omitempty"`
	Status int     `json:"status"`
	Title  string  `json:"title"`
	Type   *string `json:"type,omitempty"`
}

// StringRef returns a pointer to s.
func StringRef(s string) *string {
	return &s
}

// ErrorResponse writes p as response.
func ErrorResponse(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	// no point in catching error here, there is nothing we can do about it anymore.
	_ = enc.Encode(p)
}

// JSONResponse writes v as indented JSON.
func JSONResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		ErrorResponse(w, Problem{
			Detail: StringRef(err.Error()),
			Status: http.StatusInternalServerError,
			Title:  "unable to marshal response",
			Type:   StringRef(InternalError),
		})
	}
}

var _ config.Config = (*Config)(nil)

// Config is the configuration of the management API.
type Config struct {
	config.NoDefaulter
	config.NoValidator
	// Addr is the address the API is served on. If empty, the API is
	// disabled.
	Addr string `toml:"addr,omitempty"`
}

// Sample writes a config sample to the writer.
func (cfg *Config) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, sample)
}

// ConfigName is the key in the toml file.
func (cfg *Config) ConfigName() string {
	return "api"
}

const sample = `
# The address to expose the management API on (host:port or ip:port or :port).
# If not set, the API is not exposed. (default "")
addr = ""
`

// NewInfoHandler returns a handler that reports the build and process
// information of the running binary.
func NewInfoHandler() http.HandlerFunc {
	start := time.Now()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "pid: %d\n", os.Getpid())
		fmt.Fprintf(w, "started: %s\n", start.UTC().Format(time.RFC3339))
		fmt.Fprintf(w, "euid/egid: %d %d\n", os.Geteuid(), os.Getegid())
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Fprintf(w, "go: %s\n", info.GoVersion)
			fmt.Fprintf(w, "module: %s %s\n", info.Main.Path, info.Main.Version)
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" || s.Key == "vcs.time" {
					fmt.Fprintf(w, "%s: %s\n", s.Key, s.Value)
				}
			}
		}
	}
}

// NewConfigHandler returns a handler that renders cfg as TOML.
func NewConfigHandler(cfg any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := toml.Marshal(cfg)
		if err != nil {
			ErrorResponse(w, Problem{
				Detail: StringRef(err.Error()),
				Status: http.StatusInternalServerError,
				Title:  "unable to marshal config",
				Type:   StringRef(InternalError),
			})
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write(raw)
	}
}

// NewLogLevelHandler returns a handler that reports the console log level
// on GET and changes it on PUT, with a body like {"level":"debug"}.
func NewLogLevelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		level := log.ConsoleLevel()
		level.ServeHTTP(w, r)
	}
}
