// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

import (
	"bytes"
)

// Encode returns the wire encoding of pk in a newly allocated slice.
func Encode(pk Packet) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeTo(&buf, pk); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// EncodeTo appends the wire encoding of pk to buf. Nothing is written to buf if
// the packet cannot be encoded.
func EncodeTo(buf *bytes.Buffer, pk Packet) error {
	var w Writer
	if err := pk.encode(&w); err != nil {
		return err
	}

	length, err := EncodeLength(w.Len())
	if err != nil {
		return err
	}

	buf.Grow(1 + len(length) + w.Len())
	buf.WriteByte(pk.Header().Encode())
	buf.Write(length)
	buf.Write(w.Bytes())
	return nil
}
