package domain

// Lookup is the result of an external lookup: either a found value or an
// explicit not-found. Callers must branch on Get.
type Lookup[T any] struct {
	value T
	found bool
}

// Found wraps a value that exists upstream
func Found[T any](v T) Lookup[T] {
	return Lookup[T]{value: v, found: true}
}

// NotFound reports that the resource does not exist upstream
func NotFound[T any]() Lookup[T] {
	return Lookup[T]{}
}

// Get returns the value and whether it was found
func (l Lookup[T]) Get() (T, bool) {
	return l.value, l.found
}

// IsFound reports whether the lookup found a value
func (l Lookup[T]) IsFound() bool {
	return l.found
}
