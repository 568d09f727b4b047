package codec

import (
	"strings"
	"testing"
)

type sample struct {
	ID   int
	Name string
	Tags []string
}

func TestMsgpackRoundTrip(t *testing.T) {
	cd := Msgpack[sample]{}
	in := sample{ID: 7, Name: "ada", Tags: []string{"a", "b"}}
	b, err := cd.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := cd.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.ID != in.ID || out.Name != in.Name || len(out.Tags) != 2 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestMsgpackDecodeGarbage(t *testing.T) {
	cd := Msgpack[sample]{}
	if _, err := cd.Decode([]byte("\xc1not msgpack")); err == nil {
		t.Fatal("garbage must not decode")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	cd := JSON[map[string]int]{}
	b, err := cd.Encode(map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := cd.Decode(b)
	if err != nil || out["a"] != 1 {
		t.Fatalf("Decode: out=%v err=%v", out, err)
	}
}

func TestIdentityCodecs(t *testing.T) {
	if b, _ := (Bytes{}).Encode([]byte("x")); string(b) != "x" {
		t.Fatalf("Bytes.Encode = %q", b)
	}
	if s, _ := (String{}).Decode([]byte("markup")); s != "markup" {
		t.Fatalf("String.Decode = %q", s)
	}
}

func TestLimitCapsDecodeOnly(t *testing.T) {
	cd := Limit[string]{Inner: String{}, MaxDecode: 4}

	big := strings.Repeat("x", 10)
	if _, err := cd.Encode(big); err != nil {
		t.Fatalf("Encode must pass through: %v", err)
	}
	if _, err := cd.Decode([]byte(big)); err == nil {
		t.Fatal("oversized payload must be rejected")
	}
	if s, err := cd.Decode([]byte("ok")); err != nil || s != "ok" {
		t.Fatalf("small payload: s=%q err=%v", s, err)
	}

	// MaxDecode 0 disables the cap.
	uncapped := Limit[string]{Inner: String{}}
	if _, err := uncapped.Decode([]byte(big)); err != nil {
		t.Fatalf("uncapped decode: %v", err)
	}
}
