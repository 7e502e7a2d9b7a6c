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

// Package metrics defines the minimal metric interfaces used throughout the
// code base. Prometheus metrics satisfy them directly, and the package
// provides fakes for tests. All helper functions are nil-safe, so optional
// metrics can be left unset.
package metrics

// Counter describes a metric that accumulates values monotonically.
type Counter interface {
	Add(delta float64)
}

// Gauge describes a metric that takes specific values over time.
type Gauge interface {
	Set(value float64)
	Add(delta float64)
}

// Histogram describes a metric that takes repeated observations of the same
// kind of thing, and produces a statistical summary of those observations.
type Histogram interface {
	Observe(value float64)
}

// CounterInc increases the counter by one. Nil counters are ignored.
func CounterInc(c Counter) {
	if c == nil {
		return
	}
	c.Add(1)
}

// CounterAdd increases the counter by delta. Nil counters are ignored.
func CounterAdd(c Counter, delta float64) {
	if c == nil {
		return
	}
	c.Add(delta)
}

// GaugeSet sets the gauge. Nil gauges are ignored.
func GaugeSet(g Gauge, value float64) {
	if g == nil {
		return
	}
	g.Set(value)
}

// GaugeAdd adds delta to the gauge. Nil gauges are ignored.
func GaugeAdd(g Gauge, delta float64) {
	if g == nil {
		return
	}
	g.Add(delta)
}

// HistogramObserve records an observation. Nil histograms are ignored.
func HistogramObserve(h Histogram, value float64) {
	if h == nil {
		return
	}
	h.Observe(value)
}
