// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package endpoint

import (
	"bytes"
	"testing"
)

func TestBinaryCodecPassthrough(t *testing.T) {
	raw := []byte{0x01, 0x02, 0xff}

	out, err := Binary.Encode(raw)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(out, raw) {
		t.Fatalf("Encode = %v, want passthrough", out)
	}

	var got []byte
	if err := Binary.Decode(raw, &got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("Decode = %v, want passthrough", got)
	}

	// Non-byte values fall back to JSON.
	out, err = Binary.Encode(struct{ N int }{N: 7})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var v struct{ N int }
	if err := Binary.Decode(out, &v); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v.N != 7 {
		t.Fatalf("N = %d, want 7", v.N)
	}
}

func TestCodecFallback(t *testing.T) {
	// A nil codec falls back to JSON.
	out, err := encodeWith(nil, map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("encodeWith: %v", err)
	}
	var v map[string]int
	if err := decodeWith(nil, out, &v); err != nil {
		t.Fatalf("decodeWith: %v", err)
	}
	if v["a"] != 1 {
		t.Fatalf("a = %d, want 1", v["a"])
	}
}
