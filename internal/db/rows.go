package db

import (
	"bytes"
	"encoding/json"
	"iter"

	"github.com/jackc/pgx/v5/pgconn"

	"pgist/internal/casing"
)

// fieldMapping pairs a column name as reported by the server with the
// application-facing name.
type fieldMapping struct {
	original  string
	converted string
}

// rowShape is computed once per result set. Rows of the same result share
// its names slice, so per-row conversion does no string work.
type rowShape struct {
	fields []fieldMapping
	names  []string
}

func newRowShape(fds []pgconn.FieldDescription) *rowShape {
	s := &rowShape{
		fields: make([]fieldMapping, len(fds)),
		names:  make([]string, len(fds)),
	}
	for i, fd := range fds {
		converted := casing.CamelCase(fd.Name)
		s.fields[i] = fieldMapping{original: fd.Name, converted: converted}
		s.names[i] = converted
	}
	return s
}

func (s *rowShape) convert(values []any) Row {
	return Row{names: s.names, values: values}
}

// Row is one result row: ordered (field, value) pairs with camelCase field
// names. Values are passed through from the driver unchanged.
type Row struct {
	names  []string
	values []any
}

// Len returns the number of fields.
func (r Row) Len() int {
	return len(r.names)
}

// Fields returns the field names in column order.
func (r Row) Fields() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Values returns the values in column order.
func (r Row) Values() []any {
	out := make([]any, len(r.values))
	copy(out, r.values)
	return out
}

// Get returns the value of the named field. When a name repeats (for
// example "SELECT a.id, b.id"), the first occurrence wins.
func (r Row) Get(name string) (any, bool) {
	for i, n := range r.names {
		if n == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// Map returns the row as a map. Repeated names keep the last value.
func (r Row) Map() map[string]any {
	out := make(map[string]any, len(r.names))
	for i, n := range r.names {
		out[n] = r.values[i]
	}
	return out
}

// MarshalJSON encodes the row as an object with fields in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range r.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Value returns the named field of r as a T. ok is false when the field is
// absent, NULL, or holds a different type.
func Value[T any](r Row, name string) (T, bool) {
	var zero T
	v, ok := r.Get(name)
	if !ok || v == nil {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Result is a fully read result set. Rows are converted lazily as they are
// iterated; iteration is not restartable.
type Result struct {
	shape *rowShape
	raw   [][]any
	next  int
}

func newResult(shape *rowShape, raw [][]any) *Result {
	return &Result{shape: shape, raw: raw}
}

// Len returns the number of rows in the result, consumed or not.
func (r *Result) Len() int {
	return len(r.raw)
}

// Rows yields the rows not yet consumed. Breaking out of the loop leaves the
// remaining rows for a later call.
func (r *Result) Rows() iter.Seq[Row] {
	return func(yield func(Row) bool) {
		for r.next < len(r.raw) {
			raw := r.raw[r.next]
			r.next++
			if !yield(r.shape.convert(raw)) {
				return
			}
		}
	}
}

// All collects the rows not yet consumed.
func (r *Result) All() []Row {
	out := make([]Row, 0, len(r.raw)-r.next)
	for row := range r.Rows() {
		out = append(out, row)
	}
	return out
}

func (r *Result) first() (Row, bool) {
	if len(r.raw) == 0 {
		return Row{}, false
	}
	return r.shape.convert(r.raw[0]), true
}
