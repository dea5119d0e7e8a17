package sqlfrag

import (
	"fmt"

	"pgist/internal/types"
)

// Param names a slot in a Template that is filled at Bind time.
type Param string

// Template is a Fragment with named slots. Define it once and bind it per
// call:
//
//	byID := sqlfrag.NewTemplate("SELECT * FROM users WHERE id = ", sqlfrag.Param("id"))
//	q, err := byID.Bind(map[string]any{"id": 42})
type Template struct {
	frag Fragment
}

// NewTemplate builds a Template with the same argument rules as SQL.
func NewTemplate(parts ...any) Template {
	return Template{frag: SQL(parts...)}
}

// Params lists the named slots in placeholder order. A name used twice
// appears twice.
func (t Template) Params() []string {
	var names []string
	for _, v := range t.frag.values {
		if p, ok := v.(Param); ok {
			names = append(names, string(p))
		}
	}
	return names
}

// Bind resolves every Param against params and returns a concrete Fragment.
// Values that are not Params are kept as they are.
func (t Template) Bind(params map[string]any) (Fragment, error) {
	values := make([]any, len(t.frag.values))
	for i, v := range t.frag.values {
		p, ok := v.(Param)
		if !ok {
			values[i] = v
			continue
		}
		bound, ok := params[string(p)]
		if !ok {
			return Fragment{}, types.NewAppErrorWithDetails(types.ErrCodeInvalidFragment,
				fmt.Sprintf("missing value for parameter %q", string(p)), nil,
				map[string]any{"param": string(p)})
		}
		values[i] = bound
	}

	return Fragment{segments: t.frag.Segments(), values: values}, nil
}
