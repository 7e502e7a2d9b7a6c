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
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/openrpki/rpkid/pkg/private/serrors"
)

// Args are named statement parameters. A statement refers to them as :name.
type Args map[string]any

var paramRegexp = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// bind converts the named parameters referenced by query into sql.Named
// arguments. Arguments not referenced by the query are ignored.
func bind(query string, args Args) ([]any, error) {
	seen := make(map[string]bool)
	var out []any
	for _, m := range paramRegexp.FindAllStringSubmatch(query, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		v, ok := args[name]
		if !ok {
			return nil, serrors.New("missing statement parameter", "name", name)
		}
		out = append(out, sql.Named(name, normalize(v)))
	}
	return out, nil
}

// normalize converts values to the representations stored in the database.
// Times are stored as unix seconds, zero times as 0.
func normalize(v any) any {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return int64(0)
		}
		return x.Unix()
	case time.Duration:
		return int64(x)
	default:
		return v
	}
}

// Row is a result row. Accessors return the zero value if a column is
// missing or has an unexpected type, and record the first such error, which
// Err returns.
type Row struct {
	table  string
	values map[string]any
	err    error
}

// NewRow creates a row from column values. It is used in tests.
func NewRow(table string, values map[string]any) *Row {
	return &Row{table: table, values: values}
}

// Err returns the first error encountered by an accessor.
func (r *Row) Err() error {
	return r.err
}

func (r *Row) fail(col string, v any) {
	if r.err == nil {
		r.err = serrors.New("unexpected column value", "table", r.table, "column", col,
			"type", fmt.Sprintf("%T", v))
	}
}

func (r *Row) value(col string) any {
	v, ok := r.values[col]
	if !ok && r.err == nil {
		r.err = serrors.New("missing column", "table", r.table, "column", col)
	}
	return v
}

// Int64 returns an integer column. NULL is 0.
func (r *Row) Int64(col string) int64 {
	switch v := r.value(col).(type) {
	case nil:
		return 0
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			r.fail(col, v)
		}
		return n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			r.fail(col, v)
		}
		return n
	default:
		r.fail(col, v)
		return 0
	}
}

// String returns a text column. NULL is "".
func (r *Row) String(col string) string {
	switch v := r.value(col).(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		r.fail(col, v)
		return ""
	}
}

// Bytes returns a blob column. NULL is nil.
func (r *Row) Bytes(col string) []byte {
	switch v := r.value(col).(type) {
	case nil:
		return nil
	case []byte:
		return append([]byte(nil), v...)
	case string:
		return []byte(v)
	default:
		r.fail(col, v)
		return nil
	}
}

// Bool returns an integer column as boolean.
func (r *Row) Bool(col string) bool {
	return r.Int64(col) != 0
}

// Time returns a column holding unix seconds. 0 is the zero time.
func (r *Row) Time(col string) time.Time {
	secs := r.Int64(col)
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// Duration returns a column holding nanoseconds.
func (r *Row) Duration(col string) time.Duration {
	return time.Duration(r.Int64(col))
}
