// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

import (
	"bytes"
	"encoding/binary"
	"io"
	"unicode/utf8"
)

// validUTF8 checks if the byte array contains valid UTF-8 characters and no null character.
func validUTF8(b []byte) bool {
	return utf8.Valid(b) && bytes.IndexByte(b, 0x00) == -1 // [MQTT-1.5.3-1] [MQTT-1.5.3-2]
}

// EncodeLength returns the variable byte integer encoding of a remaining length.
func EncodeLength(length int) ([]byte, error) {
	if length < 0 || length > MaxRemainingLength {
		return nil, ErrValueOutOfRange
	}

	b := make([]byte, 0, 4)
	for {
		eb := byte(length % 128)
		length /= 128
		if length > 0 {
			eb |= 0x80
		}
		b = append(b, eb)
		if length == 0 {
			return b, nil
		}
	}
}

// DecodeLength reads a variable byte integer from b, returning the value and
// the number of bytes it occupied.
func DecodeLength(b io.ByteReader) (n, bu int, err error) {
	var ld lengthDecoder
	for {
		eb, err := b.ReadByte()
		if err != nil {
			return 0, ld.used, err
		}

		done, err := ld.feed(eb)
		if err != nil {
			return 0, ld.used, err
		}

		if done {
			return ld.value, ld.used, nil
		}
	}
}

// lengthDecoder accumulates a variable byte integer one byte at a time, so that
// the length can be resumed across reads.
type lengthDecoder struct {
	value      int
	multiplier int
	used       int
}

// feed adds a byte to the accumulated length, returning true once the final
// byte has been seen.
func (ld *lengthDecoder) feed(eb byte) (bool, error) {
	ld.used++
	if ld.multiplier == 0 {
		ld.multiplier = 1
	}

	ld.value += int(eb&127) * ld.multiplier
	if eb&128 == 0 {
		return true, nil
	}

	if ld.used == 4 { // [MQTT-2.2.3] at most four bytes
		return false, ErrMalformedVariableByteInteger
	}

	ld.multiplier *= 128
	return false, nil
}

// reset clears the accumulator for the next packet.
func (ld *lengthDecoder) reset() {
	*ld = lengthDecoder{}
}

// Reader reads the primitive field types of a packet body from a buffer.
type Reader struct {
	buf    []byte
	offset int
}

// NewReader returns a Reader over buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.offset
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.Remaining() < 1 {
		return 0, ErrMalformedOffsetByteOutOfRange
	}

	b := r.buf[r.offset]
	r.offset++
	return b, nil
}

// ReadUint16 reads a big-endian two byte integer.
func (r *Reader) ReadUint16() (uint16, error) {
	if r.Remaining() < 2 {
		return 0, ErrMalformedOffsetUintOutOfRange
	}

	v := binary.BigEndian.Uint16(r.buf[r.offset : r.offset+2])
	r.offset += 2
	return v, nil
}

// ReadBytes reads a two byte length prefixed byte array. A zero length
// field returns a nil slice.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}

	if r.Remaining() < int(n) {
		return nil, ErrMalformedOffsetBytesOutOfRange
	}

	if n == 0 {
		return nil, nil
	}

	b := r.buf[r.offset : r.offset+int(n)]
	r.offset += int(n)
	return b, nil
}

// ReadString reads a two byte length prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}

	if !validUTF8(b) {
		return "", ErrMalformedString
	}

	return string(b), nil
}

// ReadRemaining consumes and returns all unread bytes, or nil if there are none.
func (r *Reader) ReadRemaining() []byte {
	if r.Remaining() == 0 {
		return nil
	}

	b := r.buf[r.offset:]
	r.offset = len(r.buf)
	return b
}

// Writer writes the primitive field types of a packet body.
type Writer struct {
	buf bytes.Buffer
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// WriteByte writes a single byte.
func (w *Writer) WriteByte(b byte) error {
	return w.buf.WriteByte(b)
}

// WriteUint16 writes a big-endian two byte integer.
func (w *Writer) WriteUint16(v uint16) {
	w.buf.Write([]byte{byte(v >> 8), byte(v)})
}

// WriteBytes writes a two byte length prefixed byte array.
func (w *Writer) WriteBytes(b []byte) error {
	if len(b) > MaxFieldLength {
		return ErrValueOutOfRange
	}

	w.WriteUint16(uint16(len(b)))
	w.buf.Write(b)
	return nil
}

// WriteString writes a two byte length prefixed UTF-8 string.
func (w *Writer) WriteString(s string) error {
	if len(s) > MaxFieldLength {
		return ErrValueOutOfRange
	}

	if !validUTF8([]byte(s)) {
		return ErrMalformedString
	}

	return w.WriteBytes([]byte(s))
}

// WriteRaw writes b without a length prefix.
func (w *Writer) WriteRaw(b []byte) {
	w.buf.Write(b)
}

// encodeBool returns a byte instead of a bool.
func encodeBool(b bool) byte {
	if b {
		return 1
	}
	return 0
}
