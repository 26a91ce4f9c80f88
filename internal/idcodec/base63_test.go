package idcodec

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 62, 63, 1000, 1 << 40, ^uint64(0)}
	for _, v := range values {
		enc := Encode(v)
		got, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode(%q) errored: %v", enc, err)
		}
		if got != v {
			t.Errorf("round trip mismatch: Encode(%d) = %q, Decode -> %d", v, enc, got)
		}
	}
}

func TestEncodeNoZero(t *testing.T) {
	if got := EncodeNoZero(0); got != "" {
		t.Errorf("EncodeNoZero(0) = %q, want empty string", got)
	}
	if got := EncodeNoZero(5); got == "" {
		t.Errorf("EncodeNoZero(5) should not be empty")
	}
}

func TestDecodeInvalid(t *testing.T) {
	if _, err := Decode(""); err != ErrEmptyString {
		t.Errorf("Decode(\"\") error = %v, want ErrEmptyString", err)
	}
	if _, err := Decode("!!!"); err == nil {
		t.Errorf("Decode of invalid chars should error")
	}
	if IsValid("") {
		t.Errorf("empty string must not be valid")
	}
}

func TestNewNodeIDDeterministicAndFQNSensitive(t *testing.T) {
	a := NewNodeID("repo", "pkg.Foo", 10, 1)
	b := NewNodeID("repo", "pkg.Foo", 10, 1)
	if a != b {
		t.Errorf("NewNodeID must be deterministic for identical inputs")
	}

	c := NewNodeID("repo", "pkg.Bar", 10, 1)
	if a == c {
		t.Errorf("NewNodeID must differ when the FQN differs")
	}
}

func TestContentHashDeterministic(t *testing.T) {
	h1 := ContentHash([]byte("package main"))
	h2 := ContentHash([]byte("package main"))
	h3 := ContentHash([]byte("package other"))
	if h1 != h2 {
		t.Errorf("ContentHash must be deterministic")
	}
	if h1 == h3 {
		t.Errorf("ContentHash must differ for different content")
	}
}
