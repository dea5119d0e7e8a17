package sqlfrag

import (
	"strings"

	"github.com/jackc/pgx/v5"

	"pgist/internal/casing"
	"pgist/internal/types"
)

// InsertValues builds the column list and VALUES clause of an INSERT:
//
//	InsertValues([]string{"id", "givenName"}, map[string]any{"id": 1, "givenName": "Smith"})
//	// ("id", "given_name") VALUES ($1, $2)
//
// Field names are converted to snake_case and quoted as identifiers. Each row
// is read by the field names as given; a row missing a field binds NULL for
// it.
func InsertValues(fields []string, rows ...map[string]any) (Fragment, error) {
	if len(fields) == 0 {
		return Fragment{}, types.NewAppError(types.ErrCodeInvalidFragment, "insert requires at least one field", nil)
	}
	if len(rows) == 0 {
		return Fragment{}, types.NewAppError(types.ErrCodeInvalidFragment, "insert requires at least one row", nil)
	}

	header := Unsafe("(" + columnList(fields) + ") VALUES ")

	tuples := make([]Fragment, 0, len(rows))
	for _, row := range rows {
		tuples = append(tuples, tuple(fields, row))
	}

	return Join(Unsafe(""), header, Join(Unsafe(", "), tuples...)), nil
}

// UpdateValues builds the assignment list of an UPDATE ... SET clause:
//
//	UpdateValues([]string{"name", "email"}, map[string]any{"name": "John"})
//	// "name" = $1, "email" = $2   with values [John <nil>]
func UpdateValues(fields []string, row map[string]any) (Fragment, error) {
	if len(fields) == 0 {
		return Fragment{}, types.NewAppError(types.ErrCodeInvalidFragment, "update requires at least one field", nil)
	}

	assignments := make([]Fragment, 0, len(fields))
	for _, field := range fields {
		assignments = append(assignments, SQL(quoteColumn(field)+" = ", row[field]))
	}
	return Join(Unsafe(", "), assignments...), nil
}

func tuple(fields []string, row map[string]any) Fragment {
	segments := make([]string, len(fields)+1)
	args := make([]Arg, len(fields))

	segments[0] = "("
	for i, field := range fields {
		// A missing key yields nil, which binds as NULL.
		args[i] = Scalar{Value: row[field]}
		segments[i+1] = ", "
	}
	segments[len(fields)] = ")"

	f, _ := Compose(segments, args)
	return f
}

func columnList(fields []string) string {
	cols := make([]string, len(fields))
	for i, field := range fields {
		cols[i] = quoteColumn(field)
	}
	return strings.Join(cols, ", ")
}

func quoteColumn(field string) string {
	return pgx.Identifier{casing.SnakeCase(field)}.Sanitize()
}
