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

package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/openrpki/rpkid/pkg/log"
	"github.com/openrpki/rpkid/pkg/private/prom"
	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/private/storage/db"
	"github.com/openrpki/rpkid/private/storage/persist"
	"github.com/openrpki/rpkid/rpkid/leftright"
	"github.com/openrpki/rpkid/rpkid/updown"
)

// MaxMessageSize is the largest request body accepted.
const MaxMessageSize = 4 << 20

var (
	errBadChildID = errors.New("invalid child id")
	errTooLarge   = errors.New("request too large")
)

// Handler returns the HTTP handler for the protocol endpoints:
//
//	POST /left-right
//	POST /up-down/{child_id}
//	POST /cronjob
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/left-right", s.endpoint(ProtocolLeftRight, leftright.ContentType,
		s.handleLeftRight, leftRightStatus))
	upDown := s.endpoint(ProtocolUpDown, updown.ContentType, s.handleUpDown, upDownStatus)
	// A missing or malformed child id is a protocol error, not an unknown
	// route.
	r.Post("/up-down", upDown)
	r.Post("/up-down/", upDown)
	r.Post("/up-down/*", upDown)
	r.Post("/cronjob", s.endpoint(ProtocolCron, "text/plain", s.handleCron,
		func(error) (int, string) { return http.StatusInternalServerError, "Maintenance failed" }))
	return r
}

type handleFunc func(ctx context.Context, r *http.Request) ([]byte, error)

// endpoint wraps a handler with the request boundary: a request id and a
// tracing span are attached to the context, panics are recovered, failures
// are logged and mapped to a status code by status.
func (s *Service) endpoint(protocol, contentType string, handle handleFunc,
	status func(error) (int, string)) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()
		span, ctx := opentracing.StartSpanFromContext(r.Context(), "rpkid."+protocol)
		defer span.Finish()
		span.SetTag("request_id", id)
		ctx, logger := log.WithLabels(ctx, "request_id", id, "protocol", protocol)

		body, err := recovered(func() ([]byte, error) { return handle(ctx, r) })
		s.metrics.request(protocol, classify(err), time.Since(start))
		if err != nil {
			code, text := status(err)
			ext.Error.Set(span, true)
			span.SetTag("status", code)
			logger.Error("Request failed", "path", r.URL.Path, "status", code, "err", err)
			http.Error(w, text, code)
			return
		}
		w.Header().Set("Content-Type", contentType)
		if _, err := w.Write(body); err != nil {
			logger.Info("Failed to write reply", "err", err)
		}
	}
}

func recovered(f func() ([]byte, error)) (body []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = serrors.New("request handler panicked", "panic", p)
		}
	}()
	return f()
}

func readBody(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, MaxMessageSize+1))
	if err != nil {
		return nil, serrors.Wrap("reading request", err)
	}
	if len(raw) > MaxMessageSize {
		return nil, serrors.JoinNoStack(errTooLarge, nil, "limit", MaxMessageSize)
	}
	return raw, nil
}

func (s *Service) handleLeftRight(ctx context.Context, r *http.Request) ([]byte, error) {
	raw, err := readBody(r)
	if err != nil {
		return nil, err
	}
	return s.ServeLeftRight(ctx, raw)
}

func (s *Service) handleUpDown(ctx context.Context, r *http.Request) ([]byte, error) {
	param := chi.URLParam(r, "*")
	childID, err := parseChildID(param)
	if err != nil {
		return nil, serrors.JoinNoStack(errBadChildID, err, "child_id", param)
	}
	raw, err := readBody(r)
	if err != nil {
		return nil, err
	}
	return s.ServeUpDown(ctx, childID, raw)
}

// parseChildID accepts a non-empty string of decimal digits only.
func parseChildID(param string) (int64, error) {
	if param == "" {
		return 0, serrors.New("missing")
	}
	for _, c := range param {
		if c < '0' || c > '9' {
			return 0, serrors.New("not a decimal number")
		}
	}
	return strconv.ParseInt(param, 10, 64)
}

func (s *Service) handleCron(ctx context.Context, _ *http.Request) ([]byte, error) {
	if err := s.RunMaintenance(ctx); err != nil {
		return nil, err
	}
	return []byte("OK"), nil
}

func leftRightStatus(err error) (int, string) {
	if errors.Is(err, leftright.ErrSchema) {
		return http.StatusInternalServerError, "Schema violation"
	}
	return http.StatusInternalServerError, "Unhandled exception"
}

func upDownStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errBadChildID):
		return http.StatusBadRequest, "Bad child id"
	case errors.Is(err, persist.ErrNotFound):
		return http.StatusBadRequest, "Unknown child"
	case errors.Is(err, updown.ErrProtocol):
		return http.StatusBadRequest, "Bad CMS message"
	}
	return http.StatusBadRequest, "Could not process request"
}

// classify maps an error to a metrics result label.
func classify(err error) string {
	switch {
	case err == nil:
		return prom.Success
	case errors.Is(err, errBadChildID), errors.Is(err, errTooLarge):
		return prom.ErrInvalidReq
	case errors.Is(err, leftright.ErrSchema):
		return prom.ErrParse
	case errors.Is(err, updown.ErrProtocol), errors.Is(err, leftright.ErrProtocol):
		return prom.ErrVerify
	case errors.Is(err, persist.ErrNotFound):
		return prom.ErrNotFound
	case errors.Is(err, db.ErrReadFailed), errors.Is(err, db.ErrWriteFailed),
		errors.Is(err, db.ErrTx):
		return prom.ErrDB
	}
	return prom.ErrInternal
}
