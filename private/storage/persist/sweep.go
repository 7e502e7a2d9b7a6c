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

package persist

import (
	"context"
	"database/sql"

	"github.com/openrpki/rpkid/pkg/log"
	"github.com/openrpki/rpkid/pkg/metrics"
	"github.com/openrpki/rpkid/pkg/private/prom"
	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/private/storage/db"
)

type opKind int

const (
	opStore opKind = iota
	opDelete
)

type op struct {
	kind opKind
	e    Storable
}

// Unit stages the writes of one independent piece of work, for example the
// handling of a single request element. Nothing is written until the unit is
// committed to a Sweeper and the sweeper is swept. A unit that is never
// committed leaves no trace in the store.
type Unit struct {
	ops   []op
	after []func()
}

// Store stages a store of e.
func (u *Unit) Store(e Storable) {
	u.ops = append(u.ops, op{kind: opStore, e: e})
}

// Delete stages a delete of e.
func (u *Unit) Delete(e Storable) {
	u.ops = append(u.ops, op{kind: opDelete, e: e})
}

// AfterCommit registers f to run after the sweep that contains the unit has
// committed successfully.
func (u *Unit) AfterCommit(f func()) {
	u.after = append(u.after, f)
}

// Empty reports whether the unit stages nothing.
func (u *Unit) Empty() bool {
	return len(u.ops) == 0 && len(u.after) == 0
}

// TxBeginner starts transactions. *sql.DB implements it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// SweepMetrics are the metrics of a Sweeper.
type SweepMetrics struct {
	// Sweeps counts sweeps by result.
	Sweeps func(result string) metrics.Counter
	// Writes counts staged operations written by committed sweeps.
	Writes metrics.Counter
}

// NewSweepMetrics creates prometheus backed sweep metrics.
func NewSweepMetrics() SweepMetrics {
	sweeps := prom.NewCounterVec("persist", "sweeps_total",
		"Total number of consistency sweeps.", []string{prom.LabelResult})
	return SweepMetrics{
		Sweeps: func(result string) metrics.Counter {
			return sweeps.WithLabelValues(result)
		},
		Writes: prom.NewCounter("persist", "writes_total",
			"Total number of entity writes flushed by sweeps."),
	}
}

// Sweeper collects committed units and flushes them in a single transaction.
type Sweeper struct {
	Metrics SweepMetrics

	units []*Unit
}

// NewUnit returns an empty unit.
func (s *Sweeper) NewUnit() *Unit {
	return &Unit{}
}

// Commit adds u to the next sweep.
func (s *Sweeper) Commit(u *Unit) {
	if u == nil || u.Empty() {
		return
	}
	s.units = append(s.units, u)
}

// Pending returns the number of committed units not yet swept.
func (s *Sweeper) Pending() int {
	return len(s.units)
}

// Sweep writes all committed units, in commit order, in one transaction. If
// any write fails, the transaction is rolled back and the persistence state
// of every staged entity is restored to what it was before the sweep, so the
// same units can be swept again. After-commit actions run once the
// transaction has committed. In any case the sweeper is empty afterwards.
func (s *Sweeper) Sweep(ctx context.Context, d TxBeginner) error {
	units := s.units
	s.units = nil
	if len(units) == 0 {
		return nil
	}
	logger := log.FromCtx(ctx)

	var restore []func()
	for _, u := range units {
		for _, o := range u.ops {
			restore = append(restore, capture(o.e))
		}
	}
	rollback := func() {
		for i := len(restore) - 1; i >= 0; i-- {
			restore[i]()
		}
	}

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		s.count(prom.ErrDB)
		return db.NewTxError("starting sweep", err)
	}
	writes := 0
	for _, u := range units {
		for _, o := range u.ops {
			switch o.kind {
			case opStore:
				err = Store(ctx, tx, o.e)
			case opDelete:
				err = Delete(ctx, tx, o.e)
			}
			if err != nil {
				break
			}
			writes++
		}
		if err != nil {
			break
		}
	}
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("Rolling back sweep failed", "err", rbErr)
		}
		rollback()
		s.count(prom.ErrDB)
		return serrors.Wrap("sweeping", err, "units", len(units))
	}
	if err := tx.Commit(); err != nil {
		rollback()
		s.count(prom.ErrDB)
		return db.NewTxError("committing sweep", err, "units", len(units))
	}
	s.count(prom.Success)
	metrics.CounterAdd(s.Metrics.Writes, float64(writes))
	logger.Debug("Swept", "units", len(units), "writes", writes)

	for _, u := range units {
		for _, f := range u.after {
			f()
		}
	}
	return nil
}

func (s *Sweeper) count(result string) {
	if s.Metrics.Sweeps != nil {
		metrics.CounterInc(s.Metrics.Sweeps(result))
	}
}
