// Copyright 2020 Anapaya Systems
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

package prom_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openrpki/rpkid/pkg/private/prom"
)

func TestSafeRegisterReturnsExisting(t *testing.T) {
	a := prom.NewCounterVec("test", "dup_total", "help", []string{"l"})
	b := prom.NewCounterVec("test", "dup_total", "help", []string{"l"})
	assert.Same(t, a, b)

	h1 := prom.NewHistogram("test", "dup_seconds", "help", prom.DefaultLatencyBuckets)
	h2 := prom.NewHistogram("test", "dup_seconds", "help", prom.DefaultLatencyBuckets)
	assert.Equal(t, h1, h2)
}
