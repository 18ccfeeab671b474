// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

// ConnackPacket contains the values of an MQTT CONNACK packet.
type ConnackPacket struct {
	SessionPresent bool `json:"sessionPresent"`
	ReturnCode     byte `json:"returnCode"`
}

// Type returns the packet type.
func (pk *ConnackPacket) Type() byte { return Connack }

// Header returns the fixed header of the packet.
func (pk *ConnackPacket) Header() FixedHeader { return FixedHeader{Type: Connack} }

func (pk *ConnackPacket) encode(w *Writer) error {
	if _, ok := ConnackCodes[pk.ReturnCode]; !ok {
		return ErrMalformedReturnCode
	}

	_ = w.WriteByte(encodeBool(pk.SessionPresent))
	_ = w.WriteByte(pk.ReturnCode)
	return nil
}

func (pk *ConnackPacket) decode(_ FixedHeader, r *Reader) error {
	flags, err := r.ReadByte()
	if err != nil {
		return malformed(ErrMalformedSessionPresent, err)
	}

	if flags&0xFE > 0 {
		return ErrMalformedSessionPresent // [MQTT-3.2.2.1]
	}
	pk.SessionPresent = flags&0x01 > 0

	if pk.ReturnCode, err = r.ReadByte(); err != nil {
		return malformed(ErrMalformedReturnCode, err)
	}

	if _, ok := ConnackCodes[pk.ReturnCode]; !ok {
		return ErrMalformedReturnCode
	}

	return nil
}
