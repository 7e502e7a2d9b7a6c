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

package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	opentracing "github.com/opentracing/opentracing-go"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/openrpki/rpkid/pkg/log"
	"github.com/openrpki/rpkid/pkg/private/processmetrics"
	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/pkg/rpki/cms"
	"github.com/openrpki/rpkid/private/app"
	"github.com/openrpki/rpkid/private/app/launcher"
	api "github.com/openrpki/rpkid/private/mgmtapi"
	"github.com/openrpki/rpkid/private/periodic"
	"github.com/openrpki/rpkid/private/publication"
	"github.com/openrpki/rpkid/private/publication/bolt"
	"github.com/openrpki/rpkid/private/publication/fs"
	"github.com/openrpki/rpkid/private/storage"
	"github.com/openrpki/rpkid/private/storage/persist"
	"github.com/openrpki/rpkid/rpkid/ca"
	"github.com/openrpki/rpkid/rpkid/config"
	"github.com/openrpki/rpkid/rpkid/mgmtapi"
	"github.com/openrpki/rpkid/rpkid/service"
	"github.com/openrpki/rpkid/rpkid/updown"
)

// trustAnchorCacheSize bounds the number of parsed BPKI trust anchors kept
// by the CMS verifier.
const trustAnchorCacheSize = 1024

var globalCfg config.Config

func main() {
	application := launcher.Application{
		TOMLConfig: &globalCfg,
		ShortName:  "RPKI CA Engine",
		Main:       realMain,
	}
	application.Run()
}

func realMain(ctx context.Context) error {
	var cleanup app.Cleanup
	g, errCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer log.HandlePanic()
		<-errCtx.Done()
		return cleanup.Do()
	})

	tracer, trCloser, err := globalCfg.Tracing.NewTracer(globalCfg.General.ID)
	if err != nil {
		return serrors.Wrap("initializing tracer", err)
	}
	opentracing.SetGlobalTracer(tracer)
	cleanup.Add(trCloser.Close)

	db, err := storage.NewEntityStorage(globalCfg.DB)
	if err != nil {
		return serrors.Wrap("initializing entity database", err)
	}
	cleanup.Add(db.Close)

	identity, irbeTA, err := globalCfg.BPKI.Load()
	if err != nil {
		return serrors.Wrap("loading BPKI", err)
	}
	verifier, err := cms.NewVerifier(trustAnchorCacheSize)
	if err != nil {
		return err
	}
	publisher, closer, err := newPublisher(globalCfg.Publication)
	if err != nil {
		return serrors.Wrap("initializing publication backend", err)
	}
	cleanup.Add(closer.Close)

	svc := service.New(service.Config{
		DB:                 db,
		Engine:             ca.New(globalCfg.CA.EngineConfig(), ca.NewMetrics()),
		Verifier:           verifier,
		Identity:           identity,
		IRBETrustAnchor:    irbeTA,
		Transport:          updown.NewHTTPTransport(globalCfg.UpDown.ClientTimeout.Duration),
		Replay:             updown.NewReplayGuard(globalCfg.UpDown.ReplayWindow.Duration),
		Publisher:          publisher,
		CRLInterval:        globalCfg.CA.CRLInterval.Duration,
		RegenMargin:        globalCfg.CA.RegenMargin.Duration,
		Metrics:            service.NewMetrics(),
		PublicationMetrics: publication.NewMetrics(),
		SweepMetrics:       persist.NewSweepMetrics(),
	})

	revocationCleaner := storage.StartCleaner("revocations", svc.DeleteExpiredRevocations,
		globalCfg.Maintenance.CleanerInterval.Duration)
	cleanup.Add(func() error { revocationCleaner.Kill(); return nil })

	if interval := globalCfg.Maintenance.Interval.Duration; interval > 0 {
		task := svc.MaintenanceTask()
		runner := periodic.StartWithMetrics(task, periodic.NewMetrics(task.Name()),
			interval, interval)
		cleanup.Add(func() error { runner.Kill(); return nil })
	}

	listener, err := net.Listen("tcp", globalCfg.Server.Addr())
	if err != nil {
		return serrors.Wrap("listening", err, "addr", globalCfg.Server.Addr())
	}
	server := &http.Server{
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	cleanup.Add(server.Close)
	log.Info("Serving rpkid protocols", "addr", listener.Addr(),
		"max_connections", globalCfg.Server.MaxConnections)
	g.Go(func() error {
		defer log.HandlePanic()
		err := server.Serve(netutil.LimitListener(listener, globalCfg.Server.MaxConnections))
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return serrors.Wrap("serving rpkid protocols", err)
		}
		return nil
	})

	// Initialize and start service management API.
	if globalCfg.API.Addr != "" {
		r := chi.NewRouter()
		mgmt := mgmtapi.Server{
			Config:   api.NewConfigHandler(globalCfg),
			Info:     api.NewInfoHandler(),
			LogLevel: api.NewLogLevelHandler(),
			DB:       db.ReadOnly,
		}
		r.Mount("/api/v1", mgmt.Handler())
		log.Info("Exposing API", "addr", globalCfg.API.Addr)
		mgmtServer := &http.Server{
			Addr:              globalCfg.API.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}
		cleanup.Add(mgmtServer.Close)
		g.Go(func() error {
			defer log.HandlePanic()
			err := mgmtServer.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return serrors.Wrap("serving service management API", err)
			}
			return nil
		})
	}
	if err := processmetrics.Init(); err != nil {
		log.Info("Process metrics unavailable", "err", err)
	}
	g.Go(func() error {
		defer log.HandlePanic()
		return globalCfg.Metrics.ServePrometheus(errCtx)
	})

	return g.Wait()
}

func newPublisher(cfg config.Publication) (publication.Publisher, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendBolt:
		store, err := bolt.Open(cfg.Path, nil)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return &fs.Publisher{Root: cfg.Path}, io.NopCloser(nil), nil
	}
}
