// Copyright 2021 Anapaya Systems
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

package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/openrpki/rpkid/pkg/metrics"
)

func TestNilSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.CounterInc(nil)
		metrics.CounterAdd(nil, 2)
		metrics.GaugeSet(nil, 1)
		metrics.GaugeAdd(nil, 1)
		metrics.HistogramObserve(nil, 1)
	})
}

func TestFakes(t *testing.T) {
	c := metrics.NewTestCounter()
	metrics.CounterInc(c)
	metrics.CounterAdd(c, 2)
	assert.Equal(t, float64(3), metrics.CounterValue(c))
	assert.Panics(t, func() { c.Add(-1) })

	g := metrics.NewTestGauge()
	metrics.GaugeSet(g, 4)
	metrics.GaugeAdd(g, -1)
	assert.Equal(t, float64(3), metrics.GaugeValue(g))

	h := metrics.NewTestHistogram()
	metrics.HistogramObserve(h, 0.5)
	assert.Equal(t, []float64{0.5}, h.Observations())
}

func TestPrometheusSatisfiesInterfaces(t *testing.T) {
	var _ metrics.Counter = prometheus.NewCounter(prometheus.CounterOpts{Name: "c"})
	var _ metrics.Gauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "g"})
	var _ metrics.Histogram = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "h"})
}
