package value

import "testing"

func decodeLeb128(buf []byte) (uint64, error) {
	c := &cursor{buf: buf}
	return c.nextLeb128()
}

func TestLeb128RoundTripsMaxUint64(t *testing.T) {
	buf := pushLeb128(nil, ^uint64(0))
	got, err := decodeLeb128(buf)
	if err != nil {
		t.Fatalf("nextLeb128: %v", err)
	}
	if got != ^uint64(0) {
		t.Errorf("got %d, want %d", got, ^uint64(0))
	}
}

func TestLeb128RejectsTruncatedInput(t *testing.T) {
	buf := pushLeb128(nil, 300)
	if _, err := decodeLeb128(buf[:len(buf)-1]); err != errTruncated {
		t.Errorf("err = %v, want errTruncated", err)
	}
}

func TestLeb128RejectsOverflowPastBitSixtyThree(t *testing.T) {
	// Nine 0x80-continuation bytes followed by a tenth, final byte
	// carrying bits above bit 0 (0x02) encodes a value with a genuine bit
	// set past the 64-bit boundary and must be rejected rather than
	// silently truncated to bit 0.
	buf := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x02}
	if _, err := decodeLeb128(buf); err != errLeb128Overflow {
		t.Errorf("err = %v, want errLeb128Overflow", err)
	}
}

func TestLeb128AcceptsTenthByteCarryingOnlyBitZero(t *testing.T) {
	// The same ten-byte shape, but the final byte carries only bit 0 —
	// this is exactly how pushLeb128 encodes ^uint64(0), and must decode
	// cleanly rather than tripping the new overflow guard.
	buf := pushLeb128(nil, ^uint64(0))
	if len(buf) != 10 {
		t.Fatalf("expected a 10-byte encoding of ^uint64(0), got %d bytes", len(buf))
	}
	if buf[9] != 0x01 {
		t.Fatalf("expected the final byte to carry only bit 0, got %#x", buf[9])
	}
	if _, err := decodeLeb128(buf); err != nil {
		t.Errorf("nextLeb128: %v", err)
	}
}
