package memocache

import (
	"errors"
	"fmt"
)

// Programmer-misuse errors. These mean a deterministic cache key cannot be
// built at all; they are never swallowed by the degrade-to-direct-call path.
var (
	// ErrClassRequired is returned when a signature declares `cls` as its
	// first parameter but the call did not pass a ClassRef first.
	ErrClassRequired = errors.New(
		"memocache: a classmethod cache requires the class (ClassOf) as the first argument")

	// ErrMissingReceiver is returned when a signature declares `self` or
	// `cls` but the call carries no positional arguments.
	ErrMissingReceiver = errors.New(
		"memocache: method signature requires the receiver as the first positional argument")

	// ErrUncacheableValue is returned when a computed value is a chan or
	// func: a lazy producer can only be consumed once, so it must be
	// drained into an eager slice before being returned for caching.
	ErrUncacheableValue = errors.New(
		"memocache: chan/func values cannot be cached; drain lazy sequences first")
)

// ConfigError marks a setup-time problem. A misconfigured cache is worse
// than no cache, so New fails instead of degrading.
type ConfigError struct {
	Option string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("memocache: config %q: %v", e.Option, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
