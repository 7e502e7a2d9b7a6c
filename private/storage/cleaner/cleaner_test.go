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

package cleaner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openrpki/rpkid/pkg/metrics"
	"github.com/openrpki/rpkid/private/storage/cleaner"
)

func TestCleanerRun(t *testing.T) {
	testCases := map[string]struct {
		count   int
		err     error
		runs    float64
		errors  float64
		deleted float64
	}{
		"nothing expired": {runs: 1},
		"some expired":    {count: 3, runs: 1, deleted: 3},
		"deleter fails":   {err: errors.New("locked"), errors: 1},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			m := cleaner.Metrics{
				ErrorsTotal:  metrics.NewTestCounter(),
				RunsTotal:    metrics.NewTestCounter(),
				DeletedTotal: metrics.NewTestCounter(),
			}
			c := cleaner.New(func(context.Context) (int, error) {
				return tc.count, tc.err
			}, "revoked_cert", m)
			assert.Equal(t, "revoked_cert_cleaner", c.Name())
			c.Run(context.Background())
			assert.Equal(t, tc.runs, metrics.CounterValue(m.RunsTotal))
			assert.Equal(t, tc.errors, metrics.CounterValue(m.ErrorsTotal))
			assert.Equal(t, tc.deleted, metrics.CounterValue(m.DeletedTotal))
		})
	}
}
