package keyutil

import (
	"crypto/sha256"
	"testing"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"already_clean.Name9", "already_clean.Name9"},
		{"pkg/sub.Func", "pkgsub.Func"},
		{"spaces and-dashes", "spacesanddashes"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Sanitize(c.in); got != c.want {
			t.Fatalf("Sanitize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestShortDigestLengthAndDeterminism(t *testing.T) {
	h := sha256.New()
	h.Write([]byte("material"))
	d1 := ShortDigest(h, 16)
	if len(d1) != 16 {
		t.Fatalf("len = %d", len(d1))
	}

	h2 := sha256.New()
	h2.Write([]byte("material"))
	if d2 := ShortDigest(h2, 16); d2 != d1 {
		t.Fatalf("digest not deterministic: %q vs %q", d1, d2)
	}

	h3 := sha256.New()
	h3.Write([]byte("other"))
	if ShortDigest(h3, 16) == d1 {
		t.Fatal("different material must digest differently")
	}
}

func TestHexDigest(t *testing.T) {
	h := sha256.New()
	h.Write([]byte("x"))
	d := HexDigest(h)
	if len(d) != 64 {
		t.Fatalf("hex sha256 length = %d", len(d))
	}
	for _, r := range d {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			t.Fatalf("non-hex rune %q in %q", r, d)
		}
	}
}
