// Package sqlfrag builds parameterized PostgreSQL statements from composable
// fragments.
//
// A Fragment is literal SQL text interleaved with value slots. A slot holds
// either a scalar, which becomes a bound parameter, or another Fragment,
// which is spliced in place. Composition flattens the tree so the rendered
// text carries contiguous placeholders $1..$n in left-to-right order:
//
//	where := sqlfrag.SQL("SELECT * FROM t WHERE id = ", 5)
//	q := sqlfrag.SQL("", where, " LIMIT ", 10)
//	q.Text()   // SELECT * FROM t WHERE id = $1 LIMIT $2
//	q.Values() // [5 10]
//
// Fragments never carry caller data in their text except through Unsafe,
// which is reserved for trusted input such as identifier lists typed by an
// operator.
package sqlfrag
