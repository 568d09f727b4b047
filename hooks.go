package memocache

// Hooks are lightweight callbacks for high-signal cache events.
// Implementations MUST be cheap and non-blocking; the cache calls them on
// hot paths. Wrap with hooks/async to offload slow sinks.
type Hooks interface {
	// BackendError fires when a store operation failed and the call degraded
	// to direct execution. op is one of "get", "set", "delete", "key_build".
	BackendError(op, key string, err error)

	// SelfHeal fires when a stored entry was dropped on read.
	// reason is "corrupt" or "decode".
	SelfHeal(key, reason string)

	// VersionRotated fires when a namespace's version token was replaced,
	// orphaning every entry cached under the old token.
	VersionRotated(namespace string)

	// Bypassed fires when a decorated call skipped caching entirely.
	// reason is "unless" or "backend_error".
	Bypassed(namespace, reason string)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) BackendError(string, string, error) {}
func (NopHooks) SelfHeal(string, string)            {}
func (NopHooks) VersionRotated(string)              {}
func (NopHooks) Bypassed(string, string)            {}
