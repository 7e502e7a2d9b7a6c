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

// Package mgmtapi implements the http status API of rpkid.
package mgmtapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	api "github.com/openrpki/rpkid/private/mgmtapi"
	"github.com/openrpki/rpkid/private/storage/persist"
	"github.com/openrpki/rpkid/rpkid/model"
)

// Server implements the http status API of rpkid.
type Server struct {
	Config   http.HandlerFunc
	Info     http.HandlerFunc
	LogLevel http.HandlerFunc
	// DB is used to read the state of the hosted selves.
	DB persist.Reader
}

// Handler returns the router serving the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
	}))
	r.Get("/config", s.GetConfig)
	r.Get("/info", s.GetInfo)
	r.Get("/log/level", s.GetLogLevel)
	r.Put("/log/level", s.SetLogLevel)
	r.Get("/cas", s.GetCAs)
	r.Get("/cas/{handle}", s.GetCA)
	r.Get("/openapi.yml", s.GetSpec)
	return r
}

// GetConfig is an indirection to the http handler.
func (s *Server) GetConfig(w http.ResponseWriter, r *http.Request) {
	s.Config(w, r)
}

// GetInfo is an indirection to the http handler.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.Info(w, r)
}

// GetLogLevel is an indirection to the http handler.
func (s *Server) GetLogLevel(w http.ResponseWriter, r *http.Request) {
	s.LogLevel(w, r)
}

// SetLogLevel is an indirection to the http handler.
func (s *Server) SetLogLevel(w http.ResponseWriter, r *http.Request) {
	s.LogLevel(w, r)
}

// GetCAs lists the status of all hosted selves.
func (s *Server) GetCAs(w http.ResponseWriter, r *http.Request) {
	selves, err := model.FetchSelves(r.Context(), s.DB)
	if err != nil {
		api.ErrorResponse(w, api.Problem{
			Detail: api.StringRef(err.Error()),
			Status: http.StatusInternalServerError,
			Title:  "error reading hosted CAs",
			Type:   api.StringRef(api.InternalError),
		})
		return
	}
	rep := make([]CA, 0, len(selves))
	for _, self := range selves {
		rep = append(rep, summarize(self))
	}
	api.JSONResponse(w, rep)
}

// GetCA reports the status of a single hosted self.
func (s *Server) GetCA(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	self, err := model.FetchSelf(r.Context(), s.DB, handle)
	switch {
	case errors.Is(err, persist.ErrNotFound):
		api.ErrorResponse(w, api.Problem{
			Status: http.StatusNotFound,
			Title:  "unknown CA " + handle,
			Type:   api.StringRef(api.NotFound),
		})
		return
	case err != nil:
		api.ErrorResponse(w, api.Problem{
			Detail: api.StringRef(err.Error()),
			Status: http.StatusInternalServerError,
			Title:  "error reading CA",
			Type:   api.StringRef(api.InternalError),
		})
		return
	}
	api.JSONResponse(w, summarize(self))
}

func summarize(self *model.Self) CA {
	ca := CA{
		Handle:         self.Handle,
		TrustAnchor:    self.IsTrustAnchor(),
		CertURI:        self.CertURI,
		CRLNumber:      self.CRLNumber,
		ManifestNumber: self.ManifestNumber,
		Stale:          self.CRLStale,
		Parents:        []string{},
		Children:       []CAChild{},
		ROAs:           self.ROARequests.Len(),
		Ghostbusters:   self.GhostbusterRequests.Len(),
		Revoked:        self.RevokedCertificates.Len(),
	}
	if !self.NextUpdate.IsZero() {
		ca.NextUpdate = self.NextUpdate.UTC().Format(time.RFC3339)
	}
	// A broken certificate only hides the certificate details.
	if cert, err := self.Certificate(); err == nil {
		if ski, err := cert.GSKI(); err == nil {
			ca.SKI = ski
		}
		if res, err := cert.Get3779Resources(nil); err == nil {
			ca.NotAfter = res.NotAfter.UTC().Format(time.RFC3339)
			ca.Resources = res.String()
		}
	}
	for _, p := range self.Parents.Items() {
		ca.Parents = append(ca.Parents, p.Handle)
	}
	for _, c := range self.Children.Items() {
		ca.Children = append(ca.Children, CAChild{
			Handle:       c.Handle,
			ID:           c.ID(),
			Certificates: c.Certificates.Len(),
		})
	}
	return ca
}
