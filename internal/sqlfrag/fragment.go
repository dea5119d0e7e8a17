package sqlfrag

import (
	"fmt"
	"strconv"
	"strings"

	"pgist/internal/types"
)

// Fragment is an immutable piece of parameterized SQL.
// len(segments) == len(values)+1 always holds; the zero value is the empty
// statement.
type Fragment struct {
	segments []string
	values   []any
}

// Arg is a slot value handed to Compose. It is either a Scalar or a Nested
// fragment; no other implementations exist.
type Arg interface {
	isArg()
}

// Scalar is a slot value bound as a query parameter.
type Scalar struct {
	Value any
}

// Nested is a slot value whose fragment is spliced into the parent.
type Nested struct {
	Fragment Fragment
}

func (Scalar) isArg() {}
func (Nested) isArg() {}

// Compose flattens segments interleaved with args into a single Fragment.
// Nested fragments are merged into the surrounding text and their values
// take the position of the slot they occupied. Inputs are not modified.
func Compose(segments []string, args []Arg) (Fragment, error) {
	if len(segments) != len(args)+1 {
		return Fragment{}, types.NewAppError(types.ErrCodeInvalidFragment,
			fmt.Sprintf("expected %d segments for %d values, got %d", len(args)+1, len(args), len(segments)), nil)
	}

	if len(args) == 0 {
		return Fragment{segments: []string{segments[0]}}, nil
	}

	out := make([]string, 1, len(segments))
	values := make([]any, 0, len(args))

	// outOffset is the index of the output segment currently being written.
	// Every slot already emitted lies before it, so splicing at outOffset is
	// an append.
	outOffset := 0
	for i, arg := range args {
		out[outOffset] += segments[i]

		switch a := arg.(type) {
		case Nested:
			inner := a.Fragment.segs()
			out[outOffset] += inner[0]
			out = append(out, inner[1:]...)
			values = append(values, a.Fragment.values...)
			outOffset += len(inner) - 1
		case Scalar:
			out = append(out, "")
			values = append(values, a.Value)
			outOffset++
		default:
			return Fragment{}, types.NewAppError(types.ErrCodeInvalidFragment,
				fmt.Sprintf("unsupported slot value %T at position %d", arg, i), nil)
		}
	}

	out[outOffset] += segments[len(args)]

	return Fragment{segments: out, values: values}, nil
}

// SQL builds a Fragment from alternating literal text and values:
//
//	SQL("SELECT * FROM users WHERE id = ", id, " AND org_id = ", orgID)
//
// Even positions must be strings and are copied verbatim into the statement.
// Odd positions are slot values: a Fragment is nested, anything else is bound
// as a parameter. A trailing literal may be omitted.
//
// SQL panics if a literal position holds a non-string, since that is always a
// mistake at the call site.
func SQL(parts ...any) Fragment {
	segments := make([]string, 0, len(parts)/2+1)
	args := make([]Arg, 0, len(parts)/2)

	for i, part := range parts {
		if i%2 == 0 {
			s, ok := part.(string)
			if !ok {
				panic(fmt.Sprintf("sqlfrag: literal at position %d must be a string, got %T", i, part))
			}
			segments = append(segments, s)
			continue
		}
		args = append(args, argOf(part))
	}
	if len(segments) == len(args) {
		segments = append(segments, "")
	}

	f, err := Compose(segments, args)
	if err != nil {
		panic(err)
	}
	return f
}

// Unsafe wraps raw text as a Fragment without parameters. The text reaches
// the database verbatim: never pass user-controlled input.
func Unsafe(text string) Fragment {
	return Fragment{segments: []string{text}}
}

// Join concatenates frags with sep between each pair.
func Join(sep Fragment, frags ...Fragment) Fragment {
	if len(frags) == 0 {
		return Fragment{}
	}

	segments := make([]string, 0, 2*len(frags))
	args := make([]Arg, 0, 2*len(frags)-1)
	segments = append(segments, "")
	for i, f := range frags {
		if i > 0 {
			args = append(args, Nested{Fragment: sep})
			segments = append(segments, "")
		}
		args = append(args, Nested{Fragment: f})
		segments = append(segments, "")
	}

	// Segment and arg counts are built to match.
	out, _ := Compose(segments, args)
	return out
}

// Text renders the statement with $1..$n placeholders.
func (f Fragment) Text() string {
	segs := f.segs()
	if len(segs) == 1 {
		return segs[0]
	}

	var b strings.Builder
	for i, s := range segs[:len(segs)-1] {
		b.WriteString(s)
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(i + 1))
	}
	b.WriteString(segs[len(segs)-1])
	return b.String()
}

// Values returns a copy of the bound parameters in placeholder order.
func (f Fragment) Values() []any {
	out := make([]any, len(f.values))
	copy(out, f.values)
	return out
}

// Segments returns a copy of the literal text segments.
func (f Fragment) Segments() []string {
	segs := f.segs()
	out := make([]string, len(segs))
	copy(out, segs)
	return out
}

// String renders the text for logs. Values are not included.
func (f Fragment) String() string {
	return f.Text()
}

func (f Fragment) segs() []string {
	if len(f.segments) == 0 {
		return []string{""}
	}
	return f.segments
}

func argOf(v any) Arg {
	switch a := v.(type) {
	case Fragment:
		return Nested{Fragment: a}
	case *Fragment:
		if a != nil {
			return Nested{Fragment: *a}
		}
		return Scalar{Value: nil}
	case Arg:
		return a
	default:
		return Scalar{Value: v}
	}
}
