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

package publication_test

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/pkg/metrics"
	"github.com/openrpki/rpkid/pkg/private/prom"
	"github.com/openrpki/rpkid/private/publication"
	"github.com/openrpki/rpkid/private/publication/mock_publication"
)

func TestBatch(t *testing.T) {
	var b publication.Batch
	b.Publish("rsync://r/a.cer", []byte("1"))
	b.Publish("rsync://r/b.cer", []byte("2"))
	b.Withdraw("rsync://r/a.cer")
	assert.Equal(t, []publication.Op{
		{URI: "rsync://r/a.cer"},
		{URI: "rsync://r/b.cer", DER: []byte("2")},
	}, b.Ops())
	assert.Equal(t, 2, b.Len())

	var other publication.Batch
	other.Publish("rsync://r/a.cer", []byte("3"))
	other.Withdraw("rsync://r/c.cer")
	b.Merge(&other)
	b.Merge(nil)
	assert.Equal(t, []publication.Op{
		{URI: "rsync://r/a.cer", DER: []byte("3")},
		{URI: "rsync://r/b.cer", DER: []byte("2")},
		{URI: "rsync://r/c.cer"},
	}, b.Ops())
}

func TestApply(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p := mock_publication.NewMockPublisher(ctrl)
	gomock.InOrder(
		p.EXPECT().Publish(gomock.Any(), "rsync://r/a.cer", []byte("1")).
			Return(errors.New("disk full")),
		p.EXPECT().Withdraw(gomock.Any(), "rsync://r/b.cer").Return(nil),
	)
	counters := map[string]*metrics.TestCounter{}
	m := publication.Metrics{
		Objects: func(op, result string) metrics.Counter {
			key := op + "/" + result
			if counters[key] == nil {
				counters[key] = metrics.NewTestCounter()
			}
			return counters[key]
		},
	}

	var b publication.Batch
	b.Publish("rsync://r/a.cer", []byte("1"))
	b.Withdraw("rsync://r/b.cer")
	err := publication.Apply(context.Background(), p, &b, m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, float64(1), metrics.CounterValue(counters["publish/"+prom.ErrNotClassified]))
	assert.Equal(t, float64(1), metrics.CounterValue(counters["withdraw/"+prom.Success]))
}

func TestSplitURI(t *testing.T) {
	testCases := map[string]struct {
		uri       string
		host      string
		path      string
		assertErr assert.ErrorAssertionFunc
	}{
		"object": {
			uri:       "rsync://repo.example/ca/a.cer",
			host:      "repo.example",
			path:      "ca/a.cer",
			assertErr: assert.NoError,
		},
		"redundant slashes": {
			uri:       "rsync://repo.example//ca//a.cer",
			host:      "repo.example",
			path:      "ca/a.cer",
			assertErr: assert.NoError,
		},
		"directory": {
			uri:       "rsync://repo.example/ca/",
			assertErr: assert.Error,
		},
		"wrong scheme": {
			uri:       "https://repo.example/ca/a.cer",
			assertErr: assert.Error,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			host, path, err := publication.SplitURI(tc.uri)
			tc.assertErr(t, err)
			assert.Equal(t, tc.host, host)
			assert.Equal(t, tc.path, path)
		})
	}
}
