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

package persist_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrpki/rpkid/pkg/metrics"
	"github.com/openrpki/rpkid/pkg/private/prom"
	"github.com/openrpki/rpkid/pkg/private/xtest"
	"github.com/openrpki/rpkid/private/storage/db"
	"github.com/openrpki/rpkid/private/storage/persist"
)

const schema = `
CREATE TABLE owner (
	owner_id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	created INTEGER NOT NULL
);
CREATE TABLE item (
	item_id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id INTEGER NOT NULL,
	label TEXT NOT NULL,
	data BLOB,
	enabled INTEGER NOT NULL
);
CREATE TABLE tag (
	tag_id INTEGER PRIMARY KEY AUTOINCREMENT,
	item_id INTEGER NOT NULL,
	value TEXT NOT NULL
);
CREATE TABLE bare (
	bare_id INTEGER PRIMARY KEY AUTOINCREMENT,
	x TEXT
);
`

type owner struct {
	persist.Base
	Name    string
	Created time.Time
	Items   persist.Collection[item, *item]

	updates int
}

func (*owner) Table() persist.Table {
	return persist.Table{Name: "owner", IDColumn: "owner_id",
		Columns: []string{"name", "created"}}
}

func (o *owner) Encode() (map[string]any, error) {
	return map[string]any{"name": o.Name, "created": o.Created}, nil
}

func (o *owner) Decode(r *persist.Row) error {
	o.Name = r.String("name")
	o.Created = r.Time("created")
	return nil
}

func (o *owner) Relations() []persist.Relation {
	return []persist.Relation{o.Items.On("owner_id")}
}

func (o *owner) AfterUpdate(context.Context, persist.Querier) error {
	o.updates++
	return nil
}

type item struct {
	persist.Base
	Label   string
	Data    []byte
	Enabled bool
	Tags    persist.Collection[tag, *tag]
}

func (*item) Table() persist.Table {
	return persist.Table{Name: "item", IDColumn: "item_id",
		Columns: []string{"owner_id", "label", "data", "enabled"}}
}

func (i *item) Encode() (map[string]any, error) {
	return map[string]any{"label": i.Label, "data": i.Data, "enabled": i.Enabled}, nil
}

func (i *item) Decode(r *persist.Row) error {
	i.Label = r.String("label")
	i.Data = r.Bytes("data")
	i.Enabled = r.Bool("enabled")
	return nil
}

func (i *item) Relations() []persist.Relation {
	return []persist.Relation{i.Tags.On("item_id")}
}

type tag struct {
	persist.Base
	Value string
}

func (*tag) Table() persist.Table {
	return persist.Table{Name: "tag", IDColumn: "tag_id",
		Columns: []string{"item_id", "value"}}
}

func (t *tag) Encode() (map[string]any, error) {
	return map[string]any{"value": t.Value}, nil
}

func (t *tag) Decode(r *persist.Row) error {
	t.Value = r.String("value")
	return nil
}

type bare struct {
	persist.Base
}

func (*bare) Table() persist.Table {
	return persist.Table{Name: "bare", IDColumn: "bare_id", Columns: []string{"x"}}
}

func newDB(t *testing.T) *db.Sqlite {
	t.Helper()
	d, err := db.NewSqlite("file:"+xtest.SanitizedName(t), &db.SqliteConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.Setup(schema, 1))
	return d
}

func newOwner(name string) *owner {
	o := &owner{Name: name, Created: time.Unix(1700000000, 0).UTC()}
	for _, label := range []string{"a", "b"} {
		it := &item{Label: label, Data: []byte(label + "-data"), Enabled: label == "a"}
		it.Tags.Add(&tag{Value: label + "1"})
		it.Tags.Add(&tag{Value: label + "2"})
		o.Items.Add(it)
	}
	return o
}

// summary flattens an owner tree for comparison.
func summary(o *owner) []string {
	out := []string{o.Name, o.Created.String()}
	for _, it := range o.Items.Items() {
		out = append(out, it.Label, string(it.Data))
		if it.Enabled {
			out = append(out, "enabled")
		}
		for _, tg := range it.Tags.Items() {
			out = append(out, tg.Value)
		}
	}
	return out
}

func count(t *testing.T, d *db.Sqlite, table string) int {
	t.Helper()
	var n int
	require.NoError(t, d.Full.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestStoreFetchByID(t *testing.T) {
	ctx := context.Background()
	d := newDB(t)
	o := newOwner("alice")
	require.NoError(t, persist.Store(ctx, d.Full, o))
	assert.NotZero(t, o.ID())
	assert.True(t, o.InStore())
	assert.False(t, o.Dirty())
	for _, it := range o.Items.Items() {
		assert.True(t, it.InStore())
		assert.Equal(t, o.ID(), it.ParentID())
	}

	got, err := persist.FetchByID[owner](ctx, d.Full, o.ID())
	require.NoError(t, err)
	assert.Equal(t, summary(o), summary(got))
	assert.True(t, got.InStore())
	assert.False(t, got.Dirty())
	require.Equal(t, 2, got.Items.Len())
	assert.Equal(t, o.Items.Items()[1].ID(), got.Items.Items()[1].ID())
}

func TestStoreTwiceIssuesNoUpdate(t *testing.T) {
	ctx := context.Background()
	d := newDB(t)
	o := newOwner("bob")
	require.NoError(t, persist.Store(ctx, d.Full, o))
	require.NoError(t, persist.Store(ctx, d.Full, o))
	assert.Equal(t, 0, o.updates)

	o.Name = "bobby"
	o.MarkDirty()
	require.NoError(t, persist.Store(ctx, d.Full, o))
	assert.Equal(t, 1, o.updates)
	assert.False(t, o.Dirty())

	got, err := persist.FetchOne[owner](ctx, d.Full, "name = :name",
		persist.Args{"name": "bobby"})
	require.NoError(t, err)
	assert.Equal(t, o.ID(), got.ID())
}

func TestDeleteCascades(t *testing.T) {
	ctx := context.Background()
	d := newDB(t)
	o := newOwner("carol")
	other := newOwner("dave")
	require.NoError(t, persist.Store(ctx, d.Full, o))
	require.NoError(t, persist.Store(ctx, d.Full, other))

	require.NoError(t, persist.Delete(ctx, d.Full, o))
	assert.False(t, o.InStore())
	for _, it := range o.Items.Items() {
		assert.False(t, it.InStore())
	}
	assert.Equal(t, 1, count(t, d, "owner"))
	assert.Equal(t, 2, count(t, d, "item"))
	assert.Equal(t, 4, count(t, d, "tag"))

	_, err := persist.FetchByID[owner](ctx, d.Full, o.ID())
	assert.ErrorIs(t, err, persist.ErrNotFound)
}

func TestCollectionRemove(t *testing.T) {
	ctx := context.Background()
	d := newDB(t)
	o := newOwner("erin")
	require.NoError(t, persist.Store(ctx, d.Full, o))

	first := o.Items.Items()[0]
	assert.True(t, o.Items.Remove(first))
	assert.False(t, o.Items.Remove(first))
	// Nothing is written until the parent is stored.
	assert.Equal(t, 2, count(t, d, "item"))

	require.NoError(t, persist.Store(ctx, d.Full, o))
	assert.Equal(t, 1, count(t, d, "item"))
	assert.Equal(t, 2, count(t, d, "tag"))

	found, ok := o.Items.Find(func(it *item) bool { return it.Label == "b" })
	require.True(t, ok)
	assert.Equal(t, "b-data", string(found.Data))
	_, ok = o.Items.Find(func(it *item) bool { return it.Label == "a" })
	assert.False(t, ok)
}

func TestCollectionAddRemoveUnstored(t *testing.T) {
	ctx := context.Background()
	d := newDB(t)
	o := newOwner("fred")
	require.NoError(t, persist.Store(ctx, d.Full, o))

	it := &item{Label: "c"}
	o.Items.Add(it)
	assert.True(t, it.Dirty())
	assert.False(t, it.InStore())
	// An entity that never reached the store is dropped without a delete.
	assert.True(t, o.Items.Remove(it))
	require.NoError(t, persist.Store(ctx, d.Full, o))
	assert.Equal(t, 2, count(t, d, "item"))
	assert.Equal(t, 2, o.Items.Len())
}

func TestCheckpoint(t *testing.T) {
	ctx := context.Background()
	d := newDB(t)
	o := newOwner("gina")
	require.NoError(t, persist.Store(ctx, d.Full, o))
	want := summary(o)

	restore := persist.Checkpoint(o)
	o.Name = "changed"
	o.MarkDirty()
	first := o.Items.Items()[0]
	first.Label = "z"
	first.Tags.Add(&tag{Value: "z1"})
	require.True(t, o.Items.Remove(o.Items.Items()[1]))
	o.Items.Add(&item{Label: "new"})

	restore()
	assert.Equal(t, want, summary(o))
	assert.False(t, o.Dirty())
	assert.False(t, first.Dirty())

	// Storing after the restore writes nothing.
	require.NoError(t, persist.Store(ctx, d.Full, o))
	assert.Equal(t, 0, o.updates)
	assert.Equal(t, 2, count(t, d, "item"))
	assert.Equal(t, 4, count(t, d, "tag"))
	got, err := persist.FetchByID[owner](ctx, d.Full, o.ID())
	require.NoError(t, err)
	assert.Equal(t, want, summary(got))
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	d := newDB(t)
	for _, name := range []string{"x", "y", "z"} {
		require.NoError(t, persist.Store(ctx, d.Full, newOwner(name)))
	}

	testCases := map[string]struct {
		where     string
		args      persist.Args
		names     []string
		assertErr assert.ErrorAssertionFunc
	}{
		"all": {
			names:     []string{"x", "y", "z"},
			assertErr: assert.NoError,
		},
		"filtered": {
			where:     "name != :name",
			args:      persist.Args{"name": "y"},
			names:     []string{"x", "z"},
			assertErr: assert.NoError,
		},
		"none": {
			where:     "name = :name",
			args:      persist.Args{"name": "nobody"},
			names:     []string{},
			assertErr: assert.NoError,
		},
		"missing parameter": {
			where:     "name = :name",
			assertErr: assert.Error,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got, err := persist.Fetch[owner](ctx, d.Full, tc.where, tc.args)
			tc.assertErr(t, err)
			if err != nil {
				return
			}
			names := []string{}
			for _, o := range got {
				names = append(names, o.Name)
			}
			assert.Equal(t, tc.names, names)
		})
	}

	indexed, err := persist.FetchIndexed[owner](ctx, d.Full, "", nil)
	require.NoError(t, err)
	assert.Len(t, indexed, 3)
	for id, o := range indexed {
		assert.Equal(t, id, o.ID())
	}

	_, err = persist.FetchOne[owner](ctx, d.Full, "", nil)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, persist.ErrNotFound)
}

func TestBaseNotImplemented(t *testing.T) {
	d := newDB(t)
	err := persist.Store(context.Background(), d.Full, &bare{})
	assert.ErrorIs(t, err, persist.ErrNotImplemented)

	_, err = d.Full.Exec("INSERT INTO bare (x) VALUES ('v')")
	require.NoError(t, err)
	_, err = persist.Fetch[bare](context.Background(), d.Full, "", nil)
	assert.ErrorIs(t, err, persist.ErrNotImplemented)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	d := newDB(t)
	existing := newOwner("frank")
	require.NoError(t, persist.Store(ctx, d.Full, existing))

	sweeps := metrics.NewTestCounter()
	failed := metrics.NewTestCounter()
	writes := metrics.NewTestCounter()
	s := persist.Sweeper{Metrics: persist.SweepMetrics{
		Sweeps: func(result string) metrics.Counter {
			if result == prom.Success {
				return sweeps
			}
			return failed
		},
		Writes: writes,
	}}

	fresh := newOwner("grace")
	clash := newOwner("grace")
	existing.Name = "frank2"
	existing.MarkDirty()

	var published []string
	u1 := s.NewUnit()
	u1.Store(fresh)
	u1.Store(existing)
	u1.AfterCommit(func() { published = append(published, "u1") })
	s.Commit(u1)
	u2 := s.NewUnit()
	u2.Store(clash)
	u2.AfterCommit(func() { published = append(published, "u2") })
	s.Commit(u2)
	discarded := s.NewUnit()
	discarded.Store(newOwner("heidi"))
	assert.Equal(t, 2, s.Pending())

	err := s.Sweep(ctx, d.Full)
	require.Error(t, err)
	assert.ErrorIs(t, err, db.ErrConstraint)
	assert.Equal(t, 0, s.Pending())
	assert.Empty(t, published)
	assert.Equal(t, float64(1), metrics.CounterValue(failed))

	// The transaction was rolled back and the in-memory state restored.
	assert.False(t, fresh.InStore())
	assert.Zero(t, fresh.ID())
	for _, it := range fresh.Items.Items() {
		assert.False(t, it.InStore())
		assert.True(t, it.Dirty())
	}
	assert.True(t, existing.Dirty())
	assert.Equal(t, 1, count(t, d, "owner"))
	assert.Equal(t, 2, count(t, d, "item"))

	clash.Name = "ivan"
	s.Commit(u1)
	s.Commit(u2)
	require.NoError(t, s.Sweep(ctx, d.Full))
	assert.Equal(t, []string{"u1", "u2"}, published)
	assert.Equal(t, float64(1), metrics.CounterValue(sweeps))
	assert.Equal(t, float64(3), metrics.CounterValue(writes))
	assert.Equal(t, 3, count(t, d, "owner"))
	assert.True(t, fresh.InStore())
	assert.False(t, existing.Dirty())

	_, err = persist.FetchOne[owner](ctx, d.Full, "name = :name", persist.Args{"name": "heidi"})
	assert.True(t, errors.Is(err, persist.ErrNotFound))
}

func TestRowAccessors(t *testing.T) {
	r := persist.NewRow("t", map[string]any{
		"i":   int64(7),
		"s":   []byte("text"),
		"b":   int64(1),
		"ts":  int64(1700000000),
		"nil": nil,
		"bad": 3.5i,
	})
	assert.Equal(t, int64(7), r.Int64("i"))
	assert.Equal(t, "text", r.String("s"))
	assert.True(t, r.Bool("b"))
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), r.Time("ts"))
	assert.True(t, r.Time("nil").IsZero())
	assert.Nil(t, r.Bytes("nil"))
	assert.NoError(t, r.Err())

	assert.Zero(t, r.Int64("bad"))
	assert.Error(t, r.Err())

	r = persist.NewRow("t", nil)
	assert.Empty(t, r.String("missing"))
	assert.Error(t, r.Err())
}
