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
	"strings"

	"github.com/openrpki/rpkid/pkg/private/serrors"
	"github.com/openrpki/rpkid/private/storage/db"
)

func tableOf[T any, P PT[T]]() Table {
	var zero T
	return P(&zero).Table()
}

// Fetch loads all entities of type T matching the where clause, which may be
// empty and refers to args as :name. Every entity is marked in store and
// clean, and its relations are fetched recursively in declaration order.
// Entities are ordered by identifier if the table has one.
func Fetch[T any, P PT[T]](ctx context.Context, q Reader, where string,
	args Args) ([]P, error) {

	tbl := tableOf[T, P]()
	cols := tbl.Columns
	if tbl.IDColumn != "" {
		cols = append([]string{tbl.IDColumn}, cols...)
	}
	query := "SELECT " + strings.Join(cols, ", ") + " FROM " + tbl.Name
	if where != "" {
		query += " WHERE " + where
	}
	if tbl.IDColumn != "" {
		query += " ORDER BY " + tbl.IDColumn
	}
	params, err := bind(query, args)
	if err != nil {
		return nil, err
	}
	rows, err := readRows(ctx, q, tbl, query, cols, params)
	if err != nil {
		return nil, err
	}
	result := make([]P, 0, len(rows))
	for _, row := range rows {
		e := P(new(T))
		if tbl.IDColumn != "" {
			e.SetID(row.Int64(tbl.IDColumn))
		}
		if err := e.Decode(row); err != nil {
			return nil, serrors.Wrap("decoding entity", err, "table", tbl.Name)
		}
		if err := row.Err(); err != nil {
			return nil, db.NewDataError("decoding entity", err, "table", tbl.Name)
		}
		st := e.PersistState()
		st.inStore, st.dirty = true, false
		if h, ok := any(e).(FetchHook); ok {
			if err := h.AfterFetch(ctx, q); err != nil {
				return nil, serrors.Wrap("fetch hook", err, "table", tbl.Name)
			}
		}
		for _, rel := range e.Relations() {
			if err := rel.fetch(ctx, q, e.ID()); err != nil {
				return nil, err
			}
		}
		result = append(result, e)
	}
	return result, nil
}

// readRows runs the query and reads all rows before returning, so that
// nested queries on the same connection do not interleave with an open
// result set.
func readRows(ctx context.Context, q Reader, tbl Table, query string, cols []string,
	params []any) ([]*Row, error) {

	rs, err := q.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, db.NewReadError("selecting rows", err, "table", tbl.Name)
	}
	defer rs.Close()
	var rows []*Row
	for rs.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, db.NewReadError("scanning row", err, "table", tbl.Name)
		}
		values := make(map[string]any, len(cols))
		for i, c := range cols {
			values[c] = vals[i]
		}
		rows = append(rows, &Row{table: tbl.Name, values: values})
	}
	if err := rs.Err(); err != nil {
		return nil, db.NewReadError("iterating rows", err, "table", tbl.Name)
	}
	return rows, nil
}

// FetchIndexed is like Fetch but returns the entities keyed by identifier.
// The table must have an identifier column.
func FetchIndexed[T any, P PT[T]](ctx context.Context, q Reader, where string,
	args Args) (map[int64]P, error) {

	tbl := tableOf[T, P]()
	if tbl.IDColumn == "" {
		return nil, serrors.New("indexed fetch requires an id column", "table", tbl.Name)
	}
	list, err := Fetch[T, P](ctx, q, where, args)
	if err != nil {
		return nil, err
	}
	result := make(map[int64]P, len(list))
	for _, e := range list {
		result[e.ID()] = e
	}
	return result, nil
}

// FetchOne returns the single entity matching the where clause. It returns
// ErrNotFound if there is none, and an error if there are several.
func FetchOne[T any, P PT[T]](ctx context.Context, q Reader, where string,
	args Args) (P, error) {

	list, err := Fetch[T, P](ctx, q, where, args)
	if err != nil {
		return nil, err
	}
	switch len(list) {
	case 0:
		tbl := tableOf[T, P]()
		return nil, serrors.JoinNoStack(ErrNotFound, nil, "table", tbl.Name)
	case 1:
		return list[0], nil
	default:
		tbl := tableOf[T, P]()
		return nil, serrors.New("lookup is ambiguous", "table", tbl.Name, "matches", len(list))
	}
}

// FetchByID returns the entity with the given identifier.
func FetchByID[T any, P PT[T]](ctx context.Context, q Reader, id int64) (P, error) {
	tbl := tableOf[T, P]()
	if tbl.IDColumn == "" {
		return nil, serrors.New("fetch by id requires an id column", "table", tbl.Name)
	}
	return FetchOne[T, P](ctx, q, tbl.IDColumn+" = :id", Args{"id": id})
}

// Store writes e and then, recursively, its relations. A new entity is
// inserted and receives its identifier. An entity already in store is
// updated only if it is dirty. Afterwards e is in store and clean.
func Store(ctx context.Context, q Querier, e Storable) error {
	st := e.PersistState()
	tbl := e.Table()
	if !st.inStore || st.dirty {
		values, err := encode(e, tbl)
		if err != nil {
			return err
		}
		if !st.inStore {
			if err := insert(ctx, q, e, tbl, values); err != nil {
				return err
			}
		} else {
			if err := update(ctx, q, e, tbl, values); err != nil {
				return err
			}
		}
	}
	st.dirty, st.inStore = false, true
	for _, rel := range e.Relations() {
		if err := rel.store(ctx, q, e.ID()); err != nil {
			return err
		}
	}
	return nil
}

func encode(e Storable, tbl Table) (Args, error) {
	values, err := e.Encode()
	if err != nil {
		return nil, serrors.Wrap("encoding entity", err, "table", tbl.Name)
	}
	args := Args(values)
	if args == nil {
		args = Args{}
	}
	if st := e.PersistState(); st.parentCol != "" {
		args[st.parentCol] = st.parentID
	}
	for _, c := range tbl.Columns {
		if _, ok := args[c]; !ok {
			return nil, serrors.JoinNoStack(ErrNotImplemented, nil,
				"reason", "column not encoded", "table", tbl.Name, "column", c)
		}
	}
	return args, nil
}

func insert(ctx context.Context, q Querier, e Storable, tbl Table, args Args) error {
	placeholders := make([]string, 0, len(tbl.Columns))
	for _, c := range tbl.Columns {
		placeholders = append(placeholders, ":"+c)
	}
	stmt := "INSERT INTO " + tbl.Name + " (" + strings.Join(tbl.Columns, ", ") +
		") VALUES (" + strings.Join(placeholders, ", ") + ")"
	if err := exec(ctx, q, tbl, "inserting", stmt, args, func(id int64) {
		if tbl.IDColumn != "" {
			e.SetID(id)
		}
	}); err != nil {
		return err
	}
	if h, ok := e.(InsertHook); ok {
		if err := h.AfterInsert(ctx, q); err != nil {
			return serrors.Wrap("insert hook", err, "table", tbl.Name)
		}
	}
	return nil
}

func update(ctx context.Context, q Querier, e Storable, tbl Table, args Args) error {
	if tbl.IDColumn == "" {
		return serrors.JoinNoStack(ErrNotImplemented, nil,
			"reason", "update requires an id column", "table", tbl.Name)
	}
	sets := make([]string, 0, len(tbl.Columns))
	for _, c := range tbl.Columns {
		sets = append(sets, c+" = :"+c)
	}
	args[tbl.IDColumn] = e.ID()
	stmt := "UPDATE " + tbl.Name + " SET " + strings.Join(sets, ", ") +
		" WHERE " + tbl.IDColumn + " = :" + tbl.IDColumn
	if err := exec(ctx, q, tbl, "updating", stmt, args, nil); err != nil {
		return err
	}
	if h, ok := e.(UpdateHook); ok {
		if err := h.AfterUpdate(ctx, q); err != nil {
			return serrors.Wrap("update hook", err, "table", tbl.Name)
		}
	}
	return nil
}

func exec(ctx context.Context, q Querier, tbl Table, what, stmt string, args Args,
	onID func(int64)) error {

	params, err := bind(stmt, args)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, stmt, params...)
	if err != nil {
		if db.IsConstraint(err) {
			return db.NewConstraintError(what, err, "table", tbl.Name)
		}
		return db.NewWriteError(what, err, "table", tbl.Name)
	}
	if onID != nil {
		id, err := res.LastInsertId()
		if err != nil {
			return db.NewWriteError("reading inserted id", err, "table", tbl.Name)
		}
		onID(id)
	}
	return nil
}

// Delete removes e if it is in store and then, regardless, recursively
// deletes its relations.
func Delete(ctx context.Context, q Querier, e Storable) error {
	st := e.PersistState()
	tbl := e.Table()
	if st.inStore {
		if tbl.IDColumn == "" {
			return serrors.JoinNoStack(ErrNotImplemented, nil,
				"reason", "delete requires an id column", "table", tbl.Name)
		}
		stmt := "DELETE FROM " + tbl.Name + " WHERE " + tbl.IDColumn + " = :id"
		if err := exec(ctx, q, tbl, "deleting", stmt, Args{"id": e.ID()}, nil); err != nil {
			return err
		}
		if h, ok := e.(DeleteHook); ok {
			if err := h.AfterDelete(ctx, q); err != nil {
				return serrors.Wrap("delete hook", err, "table", tbl.Name)
			}
		}
		st.inStore = false
	}
	for _, rel := range e.Relations() {
		if err := rel.delete(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
