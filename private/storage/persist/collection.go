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
	"slices"
)

// Relation is a child collection of an entity.
type Relation interface {
	fetch(ctx context.Context, q Reader, parentID int64) error
	store(ctx context.Context, q Querier, parentID int64) error
	delete(ctx context.Context, q Querier) error
	snapshot() func()
	checkpoint() func()
}

// Collection is an ordered set of child entities owned by one parent. The
// zero value is empty and ready to use.
type Collection[T any, P PT[T]] struct {
	items   []P
	removed []P
}

// Items returns the members in order. The slice must not be modified.
func (c *Collection[T, P]) Items() []P {
	return c.items
}

// Len returns the number of members.
func (c *Collection[T, P]) Len() int {
	return len(c.items)
}

// Add appends e and marks it dirty.
func (c *Collection[T, P]) Add(e P) {
	e.PersistState().MarkDirty()
	c.items = append(c.items, e)
}

// Remove drops e from the collection. If e is in store, its deletion is
// staged for the next store of the parent. Remove reports whether e was a
// member.
func (c *Collection[T, P]) Remove(e P) bool {
	i := slices.Index(c.items, e)
	if i < 0 {
		return false
	}
	c.items = slices.Delete(c.items, i, i+1)
	if e.PersistState().InStore() {
		c.removed = append(c.removed, e)
	}
	return true
}

// Find returns the first member for which match returns true.
func (c *Collection[T, P]) Find(match func(P) bool) (P, bool) {
	for _, e := range c.items {
		if match(e) {
			return e, true
		}
	}
	return nil, false
}

// On returns the relation that scopes the collection by the foreign key
// column fk.
func (c *Collection[T, P]) On(fk string) Relation {
	return relation[T, P]{c: c, fk: fk}
}

type relation[T any, P PT[T]] struct {
	c  *Collection[T, P]
	fk string
}

func (r relation[T, P]) fetch(ctx context.Context, q Reader, parentID int64) error {
	list, err := Fetch[T, P](ctx, q, r.fk+" = :parent", Args{"parent": parentID})
	if err != nil {
		return err
	}
	for _, e := range list {
		e.PersistState().setParent(r.fk, parentID)
	}
	r.c.items, r.c.removed = list, nil
	return nil
}

func (r relation[T, P]) store(ctx context.Context, q Querier, parentID int64) error {
	for len(r.c.removed) > 0 {
		if err := Delete(ctx, q, r.c.removed[0]); err != nil {
			return err
		}
		r.c.removed = r.c.removed[1:]
	}
	for _, e := range r.c.items {
		st := e.PersistState()
		if st.parentCol != r.fk || st.parentID != parentID {
			st.setParent(r.fk, parentID)
			st.dirty = true
		}
		if err := Store(ctx, q, e); err != nil {
			return err
		}
	}
	return nil
}

func (r relation[T, P]) delete(ctx context.Context, q Querier) error {
	for _, e := range slices.Concat(r.c.removed, r.c.items) {
		if err := Delete(ctx, q, e); err != nil {
			return err
		}
	}
	r.c.removed = nil
	return nil
}

func (r relation[T, P]) snapshot() func() {
	items := slices.Clone(r.c.items)
	removed := slices.Clone(r.c.removed)
	var restore []func()
	for _, e := range slices.Concat(items, removed) {
		restore = append(restore, capture(e))
	}
	return func() {
		r.c.items, r.c.removed = items, removed
		for _, f := range restore {
			f()
		}
	}
}

func (r relation[T, P]) checkpoint() func() {
	items := slices.Clone(r.c.items)
	removed := slices.Clone(r.c.removed)
	var restore []func()
	for _, e := range slices.Concat(items, removed) {
		restore = append(restore, Checkpoint[T, P](e))
	}
	return func() {
		r.c.items, r.c.removed = items, removed
		for _, f := range restore {
			f()
		}
	}
}

// Checkpoint records the field values of e and of every entity reachable
// through its relations, including the persistence state, and returns a
// function that reinstates them. Membership of collections is restored as
// well. Byte slices and other referenced values are not copied, so they must
// be replaced rather than modified in place.
func Checkpoint[T any, P PT[T]](e P) func() {
	saved := *e
	var restore []func()
	for _, rel := range e.Relations() {
		restore = append(restore, rel.checkpoint())
	}
	return func() {
		*e = saved
		for _, f := range restore {
			f()
		}
	}
}

// capture records the persistence state of e and its descendants and
// returns a function that reinstates it.
func capture(e Storable) func() {
	st := e.PersistState()
	saved := *st
	var restore []func()
	for _, rel := range e.Relations() {
		restore = append(restore, rel.snapshot())
	}
	return func() {
		*st = saved
		for _, f := range restore {
			f()
		}
	}
}
