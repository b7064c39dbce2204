// Package wire implements the daemon's length-prefixed frame format:
// [u16 length BE][u32 ref BE][u16 code BE][payload], all integers
// big-endian. This package has no knowledge of RPC semantics; it only
// reads and writes frames.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize is the byte length of ref+code, counted in a frame's length
// prefix.
const HeaderSize = 4 + 2

// MaxPayload is the largest frame length (ref+code+payload) the u16 length
// prefix can carry. WriteFrame rejects a payload that would not fit instead
// of writing a truncated length.
const MaxPayload = 0xFFFF

// Frame is one message on the wire.
type Frame struct {
	Code    MsgType
	Flag    Flag
	Ref     uint32
	Payload []byte
}

// wireCode packs the message type and flag into the 16-bit on-wire code
// field: the low two bits are the flag, the remaining bits the type id.
func wireCode(t MsgType, f Flag) uint16 {
	return uint16(t)<<2 | uint16(f&0x3)
}

func unpackCode(c uint16) (MsgType, Flag) {
	return MsgType(c >> 2), Flag(c & 0x3)
}

// WriteFrame serializes f to w.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxPayload-HeaderSize {
		return fmt.Errorf("wire: payload too large (%d bytes)", len(f.Payload))
	}
	length := HeaderSize + len(f.Payload)
	header := make([]byte, 2+HeaderSize)
	binary.BigEndian.PutUint16(header[0:2], uint16(length))
	binary.BigEndian.PutUint32(header[2:6], f.Ref)
	binary.BigEndian.PutUint16(header[6:8], wireCode(f.Code, f.Flag))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("wire: write header: %w", err)
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return fmt.Errorf("wire: write payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads exactly one frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Frame{}, err
	}
	length := int(binary.BigEndian.Uint16(lenBuf[:]))
	if length < HeaderSize {
		return Frame{}, fmt.Errorf("wire: frame length %d shorter than header", length)
	}
	if length > MaxPayload {
		return Frame{}, fmt.Errorf("wire: frame length %d exceeds maximum", length)
	}
	rest := make([]byte, length)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Frame{}, fmt.Errorf("wire: read frame body: %w", err)
	}
	ref := binary.BigEndian.Uint32(rest[0:4])
	code, flag := unpackCode(binary.BigEndian.Uint16(rest[4:6]))
	payload := rest[HeaderSize:]
	return Frame{Code: code, Flag: flag, Ref: ref, Payload: payload}, nil
}
