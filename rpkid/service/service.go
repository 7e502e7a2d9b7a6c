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

// Package service ties the protocol engines to the store. It dispatches
// inbound requests by path, flushes the changes they stage, publishes the
// resulting objects and runs the maintenance pass over all selves.
//
// Request handling and maintenance are serialized by a single writer lock:
// every request reads its entities, mutates them in memory and sweeps the
// staged changes before the next one starts.
package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/openrpki/rpkid/pkg/log"
	"github.com/openrpki/rpkid/pkg/metrics"
	"github.com/openrpki/rpkid/pkg/private/prom"
	"github.com/openrpki/rpkid/pkg/rpki/cms"
	"github.com/openrpki/rpkid/private/publication"
	"github.com/openrpki/rpkid/private/storage/db"
	"github.com/openrpki/rpkid/private/storage/persist"
	"github.com/openrpki/rpkid/rpkid/ca"
	"github.com/openrpki/rpkid/rpkid/leftright"
	"github.com/openrpki/rpkid/rpkid/model"
	"github.com/openrpki/rpkid/rpkid/updown"
)

// Protocol names used in logs and metrics.
const (
	ProtocolLeftRight = "left-right"
	ProtocolUpDown    = "up-down"
	ProtocolCron      = "cronjob"
)

// Metrics are the metrics of a Service. All fields are optional.
type Metrics struct {
	// Requests counts handled requests by protocol and result.
	Requests func(protocol, result string) metrics.Counter
	// RequestDuration observes the handling time of requests by protocol.
	RequestDuration func(protocol string) metrics.Histogram
	// MaintenanceRuns counts maintenance passes by result.
	MaintenanceRuns func(result string) metrics.Counter
	// MaintenanceDuration observes the duration of maintenance passes.
	MaintenanceDuration metrics.Histogram
}

// NewMetrics returns prometheus backed metrics.
func NewMetrics() Metrics {
	requests := prom.NewCounterVec("", "requests_total",
		"Total number of handled requests.",
		[]string{prom.LabelProtocol, prom.LabelResult})
	duration := prom.NewHistogramVec("", "request_duration_seconds",
		"Time to handle a request.", []string{prom.LabelProtocol},
		prom.DefaultLatencyBuckets)
	runs := prom.NewCounterVec("", "maintenance_runs_total",
		"Total number of maintenance passes.", []string{prom.LabelResult})
	return Metrics{
		Requests: func(protocol, result string) metrics.Counter {
			return requests.WithLabelValues(protocol, result)
		},
		RequestDuration: func(protocol string) metrics.Histogram {
			return duration.WithLabelValues(protocol)
		},
		MaintenanceRuns: func(result string) metrics.Counter {
			return runs.WithLabelValues(result)
		},
		MaintenanceDuration: prom.NewHistogram("", "maintenance_duration_seconds",
			"Time spent on a maintenance pass.", prom.DefaultLatencyBuckets),
	}
}

func (m Metrics) request(protocol, result string, d time.Duration) {
	if m.Requests != nil {
		metrics.CounterInc(m.Requests(protocol, result))
	}
	if m.RequestDuration != nil {
		metrics.HistogramObserve(m.RequestDuration(protocol), d.Seconds())
	}
}

func (m Metrics) maintenance(result string, d time.Duration) {
	if m.MaintenanceRuns != nil {
		metrics.CounterInc(m.MaintenanceRuns(result))
	}
	metrics.HistogramObserve(m.MaintenanceDuration, d.Seconds())
}

// Config configures a Service.
type Config struct {
	// DB is the entity store.
	DB *db.Sqlite
	// Engine performs the CA operations.
	Engine *ca.Engine
	// Verifier verifies the CMS signatures of peers.
	Verifier *cms.Verifier
	// Identity signs replies and requests to parents.
	Identity cms.Identity
	// IRBETrustAnchor is the DER encoded BPKI trust anchor of the management
	// interface.
	IRBETrustAnchor []byte
	// Transport carries requests to parents.
	Transport updown.Transport
	// Replay rejects replayed up-down requests. Optional.
	Replay *updown.ReplayGuard
	// Publisher receives the published objects.
	Publisher publication.Publisher
	// CRLInterval and RegenMargin are the defaults of created selves. Zero
	// keeps the model defaults.
	CRLInterval time.Duration
	RegenMargin time.Duration

	Metrics            Metrics
	PublicationMetrics publication.Metrics
	SweepMetrics       persist.SweepMetrics
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Service dispatches requests and runs maintenance.
type Service struct {
	db           *db.Sqlite
	engine       *ca.Engine
	publisher    publication.Publisher
	replay       *updown.ReplayGuard
	leftRight    *leftright.Server
	upDown       *updown.Server
	poller       *updown.Poller
	metrics      Metrics
	pubMetrics   publication.Metrics
	sweepMetrics persist.SweepMetrics
	now          func() time.Time

	// mu is the writer lock.
	mu   sync.Mutex
	cron singleflight.Group
}

// New creates a service.
func New(cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	s := &Service{
		db:           cfg.DB,
		engine:       cfg.Engine,
		publisher:    cfg.Publisher,
		replay:       cfg.Replay,
		metrics:      cfg.Metrics,
		pubMetrics:   cfg.PublicationMetrics,
		sweepMetrics: cfg.SweepMetrics,
		now:          now,
	}
	s.upDown = &updown.Server{
		Engine:   cfg.Engine,
		Verifier: cfg.Verifier,
		Identity: cfg.Identity,
		Replay:   cfg.Replay,
	}
	s.poller = &updown.Poller{
		Client: &updown.Client{
			Transport: cfg.Transport,
			Verifier:  cfg.Verifier,
			Identity:  cfg.Identity,
		},
		Engine: cfg.Engine,
		Now:    now,
	}
	s.leftRight = &leftright.Server{
		Engine:      cfg.Engine,
		Verifier:    cfg.Verifier,
		Identity:    cfg.Identity,
		TrustAnchor: cfg.IRBETrustAnchor,
		Maintainer:  s,
		CRLInterval: cfg.CRLInterval,
		RegenMargin: cfg.RegenMargin,
	}
	return s
}

// flush sweeps the units in one transaction and, once committed, publishes
// the batch. Publication failures are logged only: the state is committed
// and a later publish_world_now or regeneration republishes the objects.
func (s *Service) flush(ctx context.Context, units []*persist.Unit,
	batch *publication.Batch) error {

	sweeper := &persist.Sweeper{Metrics: s.sweepMetrics}
	for _, u := range units {
		sweeper.Commit(u)
	}
	if err := sweeper.Sweep(ctx, s.db.Full); err != nil {
		return err
	}
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	if err := publication.Apply(ctx, s.publisher, batch, s.pubMetrics); err != nil {
		log.FromCtx(ctx).Error("Failed to publish objects", "objects", batch.Len(), "err", err)
	}
	return nil
}

// ServeUpDown handles a CMS signed up-down request of the child with the
// given identifier and returns the signed reply.
func (s *Service) ServeUpDown(ctx context.Context, childID int64, der []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	self, err := model.FetchSelfByChildID(ctx, s.db.ReadOnly, childID)
	if err != nil {
		return nil, err
	}
	child, ok := self.ChildByID(childID)
	if !ok {
		return nil, persist.ErrNotFound
	}
	reply, err := s.upDown.Serve(ctx, self, child, der)
	if err != nil {
		return nil, err
	}
	if reply.Publish != nil {
		unit := &persist.Unit{}
		unit.Store(self)
		if err := s.flush(ctx, []*persist.Unit{unit}, reply.Publish); err != nil {
			return nil, err
		}
	}
	return reply.DER, nil
}

// ServeLeftRight handles a CMS signed left-right query and returns the
// signed reply.
func (s *Service) ServeLeftRight(ctx context.Context, der []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply, err := s.leftRight.Serve(ctx, s.db.ReadOnly, der)
	if err != nil {
		return nil, err
	}
	if err := s.flush(ctx, reply.Units, reply.Publish); err != nil {
		return nil, err
	}
	return reply.DER, nil
}
