// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeLength(t *testing.T) {
	tt := []struct {
		have int
		want []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{16383, []byte{0xff, 0x7f}},
		{16384, []byte{0x80, 0x80, 0x01}},
		{2097151, []byte{0xff, 0xff, 0x7f}},
		{2097152, []byte{0x80, 0x80, 0x80, 0x01}},
		{MaxRemainingLength, []byte{0xff, 0xff, 0xff, 0x7f}},
	}

	for _, wanted := range tt {
		b, err := EncodeLength(wanted.have)
		require.NoError(t, err)
		require.Equal(t, wanted.want, b)

		n, bu, err := DecodeLength(bytes.NewBuffer(b))
		require.NoError(t, err)
		require.Equal(t, wanted.have, n)
		require.Equal(t, len(wanted.want), bu)
	}
}

func TestEncodeLengthOutOfRange(t *testing.T) {
	_, err := EncodeLength(MaxRemainingLength + 1)
	require.ErrorIs(t, err, ErrValueOutOfRange)

	_, err = EncodeLength(-1)
	require.ErrorIs(t, err, ErrValueOutOfRange)
}

func TestDecodeLengthOverflow(t *testing.T) {
	_, _, err := DecodeLength(bytes.NewBuffer([]byte{0xff, 0xff, 0xff, 0xff, 0x01}))
	require.ErrorIs(t, err, ErrMalformedVariableByteInteger)
}

func TestDecodeLengthShort(t *testing.T) {
	_, _, err := DecodeLength(bytes.NewBuffer([]byte{0xff}))
	require.Error(t, err)
}

func TestReaderPrimitives(t *testing.T) {
	r := NewReader([]byte{
		7,
		0x01, 0x02,
		0, 3, 'a', 'b', 'c',
		0, 0,
		0, 2, 'h', 'i',
		9, 9,
	})

	b, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(7), b)

	u, err := r.ReadUint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0102), u)

	bs, err := r.ReadBytes()
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), bs)

	bs, err = r.ReadBytes()
	require.NoError(t, err)
	require.Nil(t, bs)

	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "hi", s)

	require.Equal(t, 2, r.Remaining())
	require.Equal(t, []byte{9, 9}, r.ReadRemaining())
	require.Nil(t, r.ReadRemaining())
}

func TestReaderOutOfRange(t *testing.T) {
	_, err := NewReader(nil).ReadByte()
	require.ErrorIs(t, err, ErrMalformedOffsetByteOutOfRange)

	_, err = NewReader([]byte{1}).ReadUint16()
	require.ErrorIs(t, err, ErrMalformedOffsetUintOutOfRange)

	_, err = NewReader([]byte{0, 5, 'a'}).ReadBytes()
	require.ErrorIs(t, err, ErrMalformedOffsetBytesOutOfRange)

	_, err = NewReader([]byte{0}).ReadString()
	require.ErrorIs(t, err, ErrMalformedOffsetUintOutOfRange)
}

func TestReaderInvalidStrings(t *testing.T) {
	tt := [][]byte{
		{0, 1, 0x00},             // nul
		{0, 3, 0xed, 0xa0, 0x80}, // U+D800
		{0, 3, 0xed, 0xbf, 0xbf}, // U+DFFF
		{0, 2, 0xc3, 0x28},       // invalid sequence
	}

	for _, b := range tt {
		_, err := NewReader(b).ReadString()
		require.ErrorIs(t, err, ErrMalformedString)
	}
}

func TestWriterPrimitives(t *testing.T) {
	var w Writer
	require.NoError(t, w.WriteByte(7))
	w.WriteUint16(0x0102)
	require.NoError(t, w.WriteBytes([]byte("abc")))
	require.NoError(t, w.WriteString(""))
	w.WriteRaw([]byte{9})

	require.Equal(t, []byte{7, 1, 2, 0, 3, 'a', 'b', 'c', 0, 0, 9}, w.Bytes())
	require.Equal(t, 11, w.Len())
}

func TestWriterLimits(t *testing.T) {
	var w Writer
	require.NoError(t, w.WriteString(strings.Repeat("a", MaxFieldLength)))
	require.Equal(t, MaxFieldLength+2, w.Len())

	require.ErrorIs(t, w.WriteString(strings.Repeat("a", MaxFieldLength+1)), ErrValueOutOfRange)
	require.ErrorIs(t, w.WriteBytes(make([]byte, MaxFieldLength+1)), ErrValueOutOfRange)
	require.ErrorIs(t, w.WriteString("a\x00b"), ErrMalformedString)
	require.Equal(t, MaxFieldLength+2, w.Len())
}

func TestFixedHeaderDecode(t *testing.T) {
	var fh FixedHeader
	require.NoError(t, fh.Decode(Publish<<4|1<<3|2<<1|1))
	require.Equal(t, FixedHeader{Type: Publish, Dup: true, Qos: ExactlyOnce, Retain: true}, fh)
	require.Equal(t, byte(Publish<<4|1<<3|2<<1|1), fh.Encode())

	require.ErrorIs(t, fh.Decode(0x00), ErrInvalidPacketType)
	require.ErrorIs(t, fh.Decode(0xf0), ErrInvalidPacketType)
	require.ErrorIs(t, fh.Decode(Publish<<4|3<<1), ErrInvalidQos)
}

func TestCodeError(t *testing.T) {
	require.Equal(t, "malformed packet", ErrMalformedPacket.Error())
	require.Equal(t, "malformed packet", ErrMalformedPacket.String())
	require.True(t, validSubackCode(0x80))
	require.False(t, validSubackCode(0x03))
}
