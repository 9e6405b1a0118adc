package frame

import (
	"encoding/binary"
	"errors"
	"io"
)

const (
	// Magic is the CTMP sentinel byte. It doubles as the checksum
	// placeholder byte on both the encode and verify paths.
	Magic byte = 0xCC

	HeaderLen = 8
	MaxBody   = 65535

	// OptSensitive marks a frame as checksum-protected.
	OptSensitive byte = 0x40
)

var (
	ErrTruncated        = errors.New("frame: truncated frame")
	ErrBadMagic         = errors.New("frame: bad magic byte")
	ErrOversized        = errors.New("frame: body length out of range")
	ErrBadReserved      = errors.New("frame: nonzero reserved bytes")
	ErrChecksumMismatch = errors.New("frame: checksum mismatch")
)

// Header is the fixed 8-byte CTMP wire header.
type Header struct {
	Magic    byte
	Options  byte
	Length   uint16
	Checksum uint16
}

// Sensitive reports whether the frame is checksum-protected.
func (h Header) Sensitive() bool {
	return h.Options&OptSensitive != 0
}

// Frame is one complete wire message. Raw holds the original header+body
// bytes exactly as received; broadcast reuses Raw verbatim and never
// re-serializes.
type Frame struct {
	Header Header
	Body   []byte
	Raw    []byte
}

// DecodeHeader validates one fixed header. Validation order: magic,
// length bound, reserved bytes.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderLen {
		return Header{}, ErrTruncated
	}
	if b[0] != Magic {
		return Header{}, ErrBadMagic
	}
	h := Header{
		Magic:    b[0],
		Options:  b[1],
		Length:   binary.BigEndian.Uint16(b[2:4]),
		Checksum: binary.BigEndian.Uint16(b[4:6]),
	}
	// Length is itself a 16-bit field, so the bound check documents the
	// limit rather than rejecting anything representable on the wire.
	if int(h.Length) > MaxBody {
		return Header{}, ErrOversized
	}
	if b[6] != 0 || b[7] != 0 {
		return Header{}, ErrBadReserved
	}
	return h, nil
}

// ReadFrame reads and validates exactly one frame from r. A short read
// anywhere, including a clean disconnect mid-frame, yields ErrTruncated.
func ReadFrame(r io.Reader) (Frame, error) {
	raw := make([]byte, HeaderLen)
	if _, err := io.ReadFull(r, raw); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrTruncated
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(raw)
	if err != nil {
		return Frame{}, err
	}

	if h.Length > 0 {
		raw = append(raw, make([]byte, h.Length)...)
		if _, err := io.ReadFull(r, raw[HeaderLen:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Frame{}, ErrTruncated
			}
			return Frame{}, err
		}
	}

	if h.Sensitive() && Checksum(raw) != h.Checksum {
		return Frame{}, ErrChecksumMismatch
	}

	return Frame{Header: h, Body: raw[HeaderLen:], Raw: raw}, nil
}

// EncodeFrame builds one wire frame around body. When the sensitive bit is
// set in options the checksum field is computed and stamped; otherwise it
// is left zero.
func EncodeFrame(options byte, body []byte) ([]byte, error) {
	if len(body) > MaxBody {
		return nil, ErrOversized
	}
	wire := make([]byte, HeaderLen+len(body))
	wire[0] = Magic
	wire[1] = options
	binary.BigEndian.PutUint16(wire[2:4], uint16(len(body)))
	copy(wire[HeaderLen:], body)
	if options&OptSensitive != 0 {
		binary.BigEndian.PutUint16(wire[4:6], Checksum(wire))
	}
	return wire, nil
}
