package wire

import (
	"encoding/binary"
	"io"
)

// Encode serializes a record into a complete frame: fixed header followed by
// the record's fields joined by FieldDelimiter. Encoding never fails; fields
// containing the delimiter are a caller bug and are rejected upstream by
// request validation, not by the codec.
func Encode(rec Record, id uint32) []byte {
	var body []byte
	for i, f := range rec.fields() {
		if i > 0 {
			body = append(body, FieldDelimiter)
		}
		body = append(body, f...)
	}

	frame := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(frame[0:4], uint32(rec.Op()))
	binary.BigEndian.PutUint32(frame[4:8], id)
	binary.BigEndian.PutUint32(frame[8:12], uint32(len(body)))
	binary.BigEndian.PutUint32(frame[12:16], headerTerminator)
	copy(frame[HeaderSize:], body)
	return frame
}

// ReadFrame reads exactly one frame from r. Any failure (short read, bad
// terminator, unknown operation, oversized body) returns ErrConnectionClosed;
// the stream cannot be trusted past a framing error.
func ReadFrame(r io.Reader) (Header, []byte, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Header{}, nil, ErrConnectionClosed
	}

	h := Header{
		Op:      OpCode(binary.BigEndian.Uint32(raw[0:4])),
		ID:      binary.BigEndian.Uint32(raw[4:8]),
		BodyLen: binary.BigEndian.Uint32(raw[8:12]),
	}
	if binary.BigEndian.Uint32(raw[12:16]) != headerTerminator {
		return Header{}, nil, ErrConnectionClosed
	}
	if !h.Op.Valid() || h.BodyLen > MaxBodySize {
		return Header{}, nil, ErrConnectionClosed
	}

	body := make([]byte, h.BodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Header{}, nil, ErrConnectionClosed
	}
	return h, body, nil
}

// ReadRecord reads one frame and decodes its body into the typed record for
// the frame's operation.
func ReadRecord(r io.Reader) (Header, Record, error) {
	h, body, err := ReadFrame(r)
	if err != nil {
		return Header{}, nil, err
	}
	rec, err := Decode(h, body)
	if err != nil {
		return Header{}, nil, err
	}
	return h, rec, nil
}
