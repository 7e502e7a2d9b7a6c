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

// Package publication hands published RPKI objects to a repository
// backend.
//
// Objects are addressed by their rsync URI. Publishing an object replaces
// any object at the same URI. Withdrawing an object that is not published
// is not an error.
package publication

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/openrpki/rpkid/pkg/log"
	"github.com/openrpki/rpkid/pkg/metrics"
	"github.com/openrpki/rpkid/pkg/private/prom"
	"github.com/openrpki/rpkid/pkg/private/serrors"
)

// ErrInvalidURI indicates a URI that is not an rsync URI of an object.
var ErrInvalidURI = errors.New("invalid publication URI")

// Publisher stores and removes published objects.
type Publisher interface {
	Publish(ctx context.Context, uri string, der []byte) error
	Withdraw(ctx context.Context, uri string) error
}

// Op is a pending publication. A nil DER withdraws the object.
type Op struct {
	URI string
	DER []byte
}

// Batch collects publication operations. Later operations on the same URI
// replace earlier ones.
type Batch struct {
	ops   []Op
	index map[string]int
}

// Publish adds the publication of der at uri.
func (b *Batch) Publish(uri string, der []byte) {
	b.add(Op{URI: uri, DER: der})
}

// Withdraw adds the withdrawal of the object at uri.
func (b *Batch) Withdraw(uri string) {
	b.add(Op{URI: uri})
}

func (b *Batch) add(op Op) {
	if b.index == nil {
		b.index = make(map[string]int)
	}
	if i, ok := b.index[op.URI]; ok {
		b.ops[i] = op
		return
	}
	b.index[op.URI] = len(b.ops)
	b.ops = append(b.ops, op)
}

// Ops returns the operations in the order they were first added.
func (b *Batch) Ops() []Op {
	return b.ops
}

// Merge adds the operations of other, in order.
func (b *Batch) Merge(other *Batch) {
	if other == nil {
		return
	}
	for _, op := range other.ops {
		b.add(op)
	}
}

// Len returns the number of operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Metrics are the publication metrics.
type Metrics struct {
	// Objects counts operations by kind, "publish" or "withdraw", and
	// result.
	Objects func(op, result string) metrics.Counter
}

// NewMetrics returns prometheus backed publication metrics.
func NewMetrics() Metrics {
	c := prom.NewCounterVec("", "published_objects_total",
		"Total number of publication operations.",
		[]string{prom.LabelOperation, prom.LabelResult})
	return Metrics{
		Objects: func(op, result string) metrics.Counter {
			return c.WithLabelValues(op, result)
		},
	}
}

// Apply runs all operations of b against p. All operations are attempted.
// The failures are returned as a list.
func Apply(ctx context.Context, p Publisher, b *Batch, m Metrics) error {
	logger := log.FromCtx(ctx)
	var errs serrors.List
	for _, op := range b.Ops() {
		kind := "publish"
		var err error
		if op.DER == nil {
			kind = "withdraw"
			err = p.Withdraw(ctx, op.URI)
		} else {
			err = p.Publish(ctx, op.URI, op.DER)
		}
		result := prom.Success
		if err != nil {
			result = prom.ErrNotClassified
			errs = append(errs, serrors.Wrap("publication failed", err,
				"op", kind, "uri", op.URI))
		} else {
			logger.Debug("Published", "op", kind, "uri", op.URI)
		}
		if m.Objects != nil {
			metrics.CounterInc(m.Objects(kind, result))
		}
	}
	return errs.ToError()
}

// SplitURI validates an rsync object URI and returns its host and the
// cleaned path below the host.
func SplitURI(uri string) (string, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", serrors.JoinNoStack(ErrInvalidURI, err, "uri", uri)
	}
	if u.Scheme != "rsync" || u.Host == "" {
		return "", "", serrors.JoinNoStack(ErrInvalidURI, nil, "uri", uri,
			"reason", "not an rsync URI")
	}
	p := path.Clean("/" + u.Path)
	if p == "/" || strings.HasSuffix(u.Path, "/") || strings.Contains(u.Path, "..") {
		return "", "", serrors.JoinNoStack(ErrInvalidURI, nil, "uri", uri,
			"reason", "not an object path")
	}
	return u.Host, strings.TrimPrefix(p, "/"), nil
}
