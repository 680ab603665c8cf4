package encoding

import "testing"

func TestUvarints_RoundTrip(t *testing.T) {
	in := []int{0, 1, 127, 128, 300, 16383, 16384, 7, 7, 7}

	raw := AppendUvarints(nil, in)
	// 127 fits one byte, 128 and 300 and 16383 need two, 16384 needs three.
	if want := 1 + 1 + 1 + 2 + 2 + 2 + 3 + 3; len(raw) != want {
		t.Fatalf("len(raw)=%d want %d", len(raw), want)
	}
	out, err := DecodeUvarints(raw)
	if err != nil {
		t.Fatalf("DecodeUvarints: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestDecodeUvarints_SmallIDsAreBytes(t *testing.T) {
	out, err := DecodeUvarints([]byte{0, 1, 2, 127})
	if err != nil {
		t.Fatalf("DecodeUvarints: %v", err)
	}
	for i, want := range []int{0, 1, 2, 127} {
		if out[i] != want {
			t.Fatalf("out[%d]=%d want %d", i, out[i], want)
		}
	}
}

func TestDecodeUvarints_Truncated(t *testing.T) {
	if _, err := DecodeUvarints([]byte{0x01, 0x80}); err == nil {
		t.Fatalf("expected error for truncated varint")
	}
}
