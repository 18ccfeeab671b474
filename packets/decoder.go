// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

type decodePhase byte

const (
	phaseHeader  decodePhase = iota // awaiting the fixed header byte
	phaseLength                     // accumulating the remaining length
	phasePayload                    // collecting the packet body
)

// bodyPrealloc caps the body buffer allocated up front, so a declared remaining
// length only costs memory once its bytes actually arrive.
const bodyPrealloc = 4096

// Decoder is a resumable MQTT stream decoder. Bytes may be fed in arbitrarily
// split chunks, and every complete packet is returned as soon as its final byte
// arrives. A Decoder is not safe for concurrent use.
type Decoder struct {
	// Strict requires every non-empty call to Decode to complete at least one
	// packet. It is used when reading single packets off a blocking reader, and
	// must be left disabled when decoding a stream.
	Strict bool

	// MaxPacketSize is the largest whole packet, fixed header included, which the
	// decoder accepts. Larger packets fail with ErrPacketTooLarge as soon as their
	// length is known. 0 is unlimited.
	MaxPacketSize int

	phase  decodePhase
	header FixedHeader
	length lengthDecoder
	need   int
	buf    []byte
	err    error
}

// NewDecoder returns a streaming decoder.
func NewDecoder() *Decoder {
	return new(Decoder)
}

// Decode consumes a chunk of the stream and returns the packets completed by it.
// Any error is final: packets completed before the failure are returned alongside
// it, and every subsequent call fails with ErrDecoderFailed.
func (d *Decoder) Decode(chunk []byte) ([]Packet, error) {
	if d.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecoderFailed, d.err)
	}

	var pks []Packet
	for i := 0; i < len(chunk); {
		switch d.phase {
		case phaseHeader:
			if err := d.header.Decode(chunk[i]); err != nil {
				return pks, d.fail(err)
			}
			i++
			d.length.reset()
			d.phase = phaseLength

		case phaseLength:
			done, err := d.length.feed(chunk[i])
			i++
			if err != nil {
				return pks, d.fail(err)
			}

			if !done {
				continue
			}

			if d.MaxPacketSize > 0 && 1+d.length.used+d.length.value > d.MaxPacketSize {
				return pks, d.fail(ErrPacketTooLarge)
			}

			d.need = d.length.value
			d.buf = make([]byte, 0, min(d.need, bodyPrealloc))
			d.phase = phasePayload

		case phasePayload:
			n := min(d.need-len(d.buf), len(chunk)-i)
			d.buf = append(d.buf, chunk[i:i+n]...)
			i += n
		}

		if d.phase == phasePayload && len(d.buf) == d.need {
			pk, err := decodePacket(d.header, d.buf)
			if err != nil {
				return pks, d.fail(err)
			}
			pks = append(pks, pk)
			d.phase = phaseHeader
			d.buf = nil
		}
	}

	if d.Strict && len(chunk) > 0 && len(pks) == 0 {
		return nil, d.fail(ErrIncompletePacket)
	}

	return pks, nil
}

// Pending returns true if the decoder holds a partially received packet.
func (d *Decoder) Pending() bool {
	return d.phase != phaseHeader
}

// fail poisons the decoder with err.
func (d *Decoder) fail(err error) error {
	d.err = err
	d.buf = nil
	return err
}

// decodePacket decodes a complete packet body for the given fixed header.
func decodePacket(fh FixedHeader, body []byte) (Packet, error) {
	pk, err := newPacket(fh.Type)
	if err != nil {
		return nil, err
	}

	r := NewReader(body)
	if err := pk.decode(fh, r); err != nil {
		return nil, err
	}

	if r.Remaining() > 0 {
		return nil, ErrMalformedSurplusBytes
	}

	return pk, nil
}

// ReadPacket reads exactly one packet from r, blocking until it has arrived.
func ReadPacket(r io.Reader) (Packet, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = byteReader{r}
	}

	hb, err := br.ReadByte()
	if err != nil {
		return nil, err
	}

	var fh FixedHeader
	if err := fh.Decode(hb); err != nil {
		return nil, err
	}

	length, _, err := DecodeLength(br)
	if err != nil {
		return nil, err
	}

	frame := bytes.NewBuffer(make([]byte, 0, min(length, bodyPrealloc)+5))
	frame.WriteByte(hb)
	frame.Write(mustEncodeLength(length))
	if _, err := io.CopyN(frame, r, int64(length)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	d := &Decoder{Strict: true}
	pks, err := d.Decode(frame.Bytes())
	if err != nil {
		return nil, err
	}

	return pks[0], nil
}

// byteReader reads single bytes from a reader without buffering ahead, so no
// bytes belonging to the next packet are consumed.
type byteReader struct {
	io.Reader
}

func (b byteReader) ReadByte() (byte, error) {
	var p [1]byte
	_, err := io.ReadFull(b.Reader, p[:])
	return p[0], err
}

// mustEncodeLength encodes a length that is already known to be in range.
func mustEncodeLength(n int) []byte {
	b, _ := EncodeLength(n)
	return b
}
