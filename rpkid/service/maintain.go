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
	"time"

	"github.com/openrpki/rpkid/pkg/log"
	"github.com/openrpki/rpkid/pkg/private/prom"
	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/private/periodic"
	"github.com/openrpki/rpkid/private/publication"
	"github.com/openrpki/rpkid/private/storage/persist"
	"github.com/openrpki/rpkid/rpkid/model"
)

// Maintain runs the maintenance steps for one self, in order:
//  1. poll the parent,
//  2. certify a trust anchor,
//  3. reissue or revoke child certificates,
//  4. regenerate ROAs and Ghostbuster records,
//  5. regenerate the CRL and manifest if they are due.
//
// The first failing step aborts the pass over the self. Changes are made to
// self in memory only; the caller stores them.
func (s *Service) Maintain(ctx context.Context, self *model.Self,
	batch *publication.Batch) error {

	steps := []struct {
		name string
		run  func() error
	}{
		{"poll", func() error { return s.poller.Poll(ctx, self) }},
		{"trust_anchor", func() error { return s.engine.EnsureTrustAnchor(self, batch) }},
		{"children", func() error { return s.engine.UpdateChildren(self, batch) }},
		{"roas", func() error { return s.engine.UpdateROAs(ctx, self, batch) }},
		{"ghostbusters", func() error { return s.engine.UpdateGhostbusters(ctx, self, batch) }},
		{"crl_manifest", func() error {
			_, err := s.engine.RegenerateCRLAndManifest(self, false, batch)
			return err
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return serrors.Wrap("maintenance step failed", err, "self", self.Handle,
				"step", step.name)
		}
	}
	return nil
}

// RunMaintenance runs one maintenance pass over all selves. Each self is
// handled in its own unit, so a failing self leaves the others untouched;
// its failure is logged and its changes are discarded. All changes are
// swept once at the end of the pass. Concurrent calls share a single pass.
func (s *Service) RunMaintenance(ctx context.Context) error {
	_, err, _ := s.cron.Do("maintenance", func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return nil, s.maintain(ctx)
	})
	return err
}

func (s *Service) maintain(ctx context.Context) error {
	start := time.Now()
	logger := log.FromCtx(ctx)
	result := prom.Success
	defer func() { s.metrics.maintenance(result, time.Since(start)) }()

	selves, err := model.FetchSelves(ctx, s.db.ReadOnly)
	if err != nil {
		result = prom.ErrDB
		return err
	}
	var units []*persist.Unit
	batch := &publication.Batch{}
	failed := 0
	for _, self := range selves {
		selfBatch := &publication.Batch{}
		if err := s.Maintain(ctx, self, selfBatch); err != nil {
			logger.Error("Maintenance failed", "self", self.Handle, "err", err)
			failed++
			continue
		}
		unit := &persist.Unit{}
		unit.Store(self)
		units = append(units, unit)
		batch.Merge(selfBatch)
	}
	if s.replay != nil {
		s.replay.Prune()
	}
	if err := s.flush(ctx, units, batch); err != nil {
		result = prom.ErrDB
		return err
	}
	if failed > 0 {
		result = prom.ErrNotClassified
	}
	logger.Debug("Maintenance pass done", "selves", len(selves), "failed", failed,
		"published", batch.Len(), "duration", time.Since(start))
	return nil
}

// DeleteExpiredRevocations removes the revocation records of certificates
// that have expired. It is serialized with request handling.
func (s *Service) DeleteExpiredRevocations(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.DeleteExpiredRevocations(ctx, s.db.Full, s.now())
}

// MaintenanceTask returns a periodic task that runs the maintenance pass.
func (s *Service) MaintenanceTask() periodic.Task {
	return maintenanceTask{s: s}
}

type maintenanceTask struct {
	s *Service
}

func (maintenanceTask) Name() string {
	return "rpkid_maintenance"
}

func (t maintenanceTask) Run(ctx context.Context) {
	if err := t.s.RunMaintenance(ctx); err != nil {
		log.FromCtx(ctx).Error("Maintenance pass failed", "err", err)
	}
}
