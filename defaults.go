package memocache

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// coalesceFn is coalesce for function values, which are not comparable.
func coalesceFn[T any](v, def func() T) func() T {
	if v == nil {
		return def
	}
	return v
}
