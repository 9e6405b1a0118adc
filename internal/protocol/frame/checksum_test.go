package frame

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestChecksumKnownVectorEvenLength(t *testing.T) {
	// Words: CC40, 0002, CCCC (placeholder), 0000, ABCD.
	wire := []byte{0xCC, 0x40, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0xAB, 0xCD}
	if got := Checksum(wire); got != 0xBB22 {
		t.Fatalf("checksum=0x%04X want 0xBB22", got)
	}
}

func TestChecksumKnownVectorOddLength(t *testing.T) {
	// Trailing byte AB pads to AB00 as the high byte of the last word.
	wire := []byte{0xCC, 0x40, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0xAB}
	if got := Checksum(wire); got != 0xBBF0 {
		t.Fatalf("checksum=0x%04X want 0xBBF0", got)
	}
}

func TestChecksumIgnoresTransmittedField(t *testing.T) {
	a, err := EncodeFrame(OptSensitive, []byte("same body"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b := append([]byte(nil), a...)
	binary.BigEndian.PutUint16(b[4:6], 0xFFFF)
	if Checksum(a) != Checksum(b) {
		t.Fatalf("checksum depends on transmitted checksum bytes")
	}
}

func TestChecksumStampedOnEncode(t *testing.T) {
	wire, err := EncodeFrame(OptSensitive, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	transmitted := binary.BigEndian.Uint16(wire[4:6])
	if transmitted != Checksum(wire) {
		t.Fatalf("stamped=0x%04X recomputed=0x%04X", transmitted, Checksum(wire))
	}
}

func TestChecksumCarryFolding(t *testing.T) {
	// All-FF body forces end-around carries on every addition.
	wire, err := EncodeFrame(OptSensitive, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	fr, err := ReadFrame(bytes.NewReader(wire))
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if fr.Header.Checksum != Checksum(wire) {
		t.Fatalf("carry folding diverged: %04X vs %04X", fr.Header.Checksum, Checksum(wire))
	}
}
