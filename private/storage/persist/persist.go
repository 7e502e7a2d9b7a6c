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

// Package persist maps a tree of entities onto relational tables.
//
// Entities implement Storable and declare their child collections as
// Relations. Fetch materializes entities together with all their children,
// Store writes an entity and then its children, and Delete removes an entity
// and then its children. Writes of independent pieces of work are staged in
// Units and flushed together by a Sweeper in a single transaction.
//
// The package does no locking. Callers serialize access to the entities and
// to the database.
package persist

import (
	"context"
	"database/sql"
	"errors"
)

var (
	// ErrNotFound indicates that no entity matched a lookup.
	ErrNotFound = errors.New("object not found")
	// ErrNotImplemented indicates an entity that cannot be encoded or
	// decoded.
	ErrNotImplemented = errors.New("not implemented")
)

// Reader runs queries. Both *sql.DB and *sql.Tx implement it.
type Reader interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Querier runs queries and statements. Both *sql.DB and *sql.Tx implement it.
type Querier interface {
	Reader
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Table describes the table an entity is stored in.
type Table struct {
	// Name is the table name.
	Name string
	// IDColumn is the auto-increment identifier column. If empty, the table
	// has no identifier and its entities can only be inserted and fetched.
	IDColumn string
	// Columns are the remaining columns, including the foreign key column
	// of child tables.
	Columns []string
}

// State is the persistence state of an entity. It is embedded in every
// entity through Base.
type State struct {
	id        int64
	inStore   bool
	dirty     bool
	parentCol string
	parentID  int64
}

// PersistState returns the state itself.
func (s *State) PersistState() *State { return s }

// ID returns the identifier assigned by the store, or 0.
func (s *State) ID() int64 { return s.id }

// SetID sets the identifier.
func (s *State) SetID(id int64) { s.id = id }

// InStore reports whether the entity has been written to the store.
func (s *State) InStore() bool { return s.inStore }

// Dirty reports whether the entity was modified since it was last written.
func (s *State) Dirty() bool { return s.dirty }

// MarkDirty flags the entity for writing on the next store.
func (s *State) MarkDirty() { s.dirty = true }

// ParentID returns the identifier of the owning entity, if the entity
// belongs to a collection that was fetched or stored.
func (s *State) ParentID() int64 { return s.parentID }

func (s *State) setParent(col string, id int64) {
	s.parentCol, s.parentID = col, id
}

// Storable is an entity that can be persisted.
type Storable interface {
	PersistState() *State
	ID() int64
	SetID(int64)
	Table() Table
	// Encode returns the column values of the entity. The identifier and
	// the foreign key of a collection member are added by the layer.
	Encode() (map[string]any, error)
	// Decode initializes the entity from a result row.
	Decode(*Row) error
	// Relations returns the child collections in the order in which they
	// are fetched and stored.
	Relations() []Relation
}

// PT constrains a pointer to an entity type.
type PT[T any] interface {
	*T
	Storable
}

// Base provides the State and default implementations of Storable. Encode
// and Decode must be overridden.
type Base struct {
	State
}

// Encode fails with ErrNotImplemented.
func (Base) Encode() (map[string]any, error) { return nil, ErrNotImplemented }

// Decode fails with ErrNotImplemented.
func (Base) Decode(*Row) error { return ErrNotImplemented }

// Relations returns no relations.
func (Base) Relations() []Relation { return nil }

// FetchHook is called after an entity has been decoded and before its
// children are fetched.
type FetchHook interface {
	AfterFetch(ctx context.Context, q Reader) error
}

// InsertHook is called after an entity has been inserted.
type InsertHook interface {
	AfterInsert(ctx context.Context, q Querier) error
}

// UpdateHook is called after an entity has been updated.
type UpdateHook interface {
	AfterUpdate(ctx context.Context, q Querier) error
}

// DeleteHook is called after an entity has been deleted.
type DeleteHook interface {
	AfterDelete(ctx context.Context, q Querier) error
}
