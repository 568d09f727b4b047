// Package codec defines the serialization surface used by memocache.
// A Codec turns cached values into bytes and back; decode failures are the
// declared error class the cache layer treats as a miss, never as a fatal
// condition.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
