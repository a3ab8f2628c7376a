package devicelink

// Reading is the result of a probe: either a known value or unknown, with
// the reason it could not be read.
type Reading[T any] struct {
	value T
	known bool
	err   error
}

// Known wraps a successfully read value.
func Known[T any](v T) Reading[T] {
	return Reading[T]{value: v, known: true}
}

// Unknown records that the value could not be determined.
func Unknown[T any](err error) Reading[T] {
	return Reading[T]{err: err}
}

// Get returns the value and whether it is known.
func (r Reading[T]) Get() (T, bool) { return r.value, r.known }

// Value returns the value, or the zero value when unknown.
func (r Reading[T]) Value() T { return r.value }

// IsKnown reports whether the probe succeeded.
func (r Reading[T]) IsKnown() bool { return r.known }

// Err returns why the reading is unknown. It is nil for known readings.
func (r Reading[T]) Err() error { return r.err }

// Or returns the value, or def when unknown.
func (r Reading[T]) Or(def T) T {
	if r.known {
		return r.value
	}
	return def
}
