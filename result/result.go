// Package result provides a two-variant outcome container.
//
// A Result holds exactly one of a success value or a failure value. It is
// used on the send path in place of a (value, error) pair so that expected
// failure modes travel as data and every layer can pass them through
// unchanged.
//
//	r := result.Ok[int, string](42)
//	if r.IsSuccess() {
//	    fmt.Println(r.Value())
//	}
//
// Reading Value on a failure, or Err on a success, returns the zero value of
// the respective type. Callers branch on IsSuccess or IsFailure first.
package result

// Result is an immutable container holding either a success value of type V
// or a failure value of type E.
//
// The zero Result is a failure carrying the zero E. Use Ok and Fail to
// construct meaningful values.
type Result[V, E any] struct {
	value V
	err   E
	ok    bool
}

// Ok returns a successful Result holding v.
func Ok[V, E any](v V) Result[V, E] {
	return Result[V, E]{value: v, ok: true}
}

// Fail returns a failed Result holding e.
func Fail[V, E any](e E) Result[V, E] {
	return Result[V, E]{err: e}
}

// IsSuccess reports whether r holds a success value.
func (r Result[V, E]) IsSuccess() bool {
	return r.ok
}

// IsFailure reports whether r holds a failure value.
func (r Result[V, E]) IsFailure() bool {
	return !r.ok
}

// Value returns the success value.
func (r Result[V, E]) Value() V {
	return r.value
}

// Err returns the failure value.
func (r Result[V, E]) Err() E {
	return r.err
}

// Get returns both halves, for callers that prefer tuple-style handling.
// Exactly one of them is meaningful, selected by IsSuccess.
func (r Result[V, E]) Get() (V, E) {
	return r.value, r.err
}

// Map transforms the success value of r with fn, passing failures through.
func Map[V, W, E any](r Result[V, E], fn func(V) W) Result[W, E] {
	if !r.ok {
		return Fail[W, E](r.err)
	}
	return Ok[W, E](fn(r.value))
}
