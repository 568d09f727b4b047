package codec

// Bytes is an identity codec for []byte values. Useful when the caller
// already holds serialized bytes and only needs the cache's framing and
// validation.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return b, nil }

// String converts to and from UTF-8 bytes without validation. Used by the
// template-fragment helpers, which cache rendered markup.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }
