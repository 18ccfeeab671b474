// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

// FixedHeader contains the values of the fixed header portion of the MQTT packet.
type FixedHeader struct {
	Type   byte `json:"type"`   // the type of the packet (PUBLISH, SUBSCRIBE, etc) from bits 7 - 4 (byte 1).
	Dup    bool `json:"dup"`    // indicates if the packet was already sent at an earlier time.
	Qos    Qos  `json:"qos"`    // indicates the quality of service expected.
	Retain bool `json:"retain"` // whether the message should be retained.
}

// Encode returns the first byte of the fixed header.
func (fh FixedHeader) Encode() byte {
	return fh.Type<<4 | encodeBool(fh.Dup)<<3 | byte(fh.Qos)<<1 | encodeBool(fh.Retain)
}

// Decode extracts the specification bits from the header byte.
func (fh *FixedHeader) Decode(hb byte) error {
	fh.Type = hb >> 4
	if fh.Type == Reserved || fh.Type > Disconnect {
		return ErrInvalidPacketType
	}

	fh.Dup = (hb>>3)&0x01 > 0
	fh.Qos = Qos((hb >> 1) & 0x03)
	fh.Retain = hb&0x01 > 0

	if fh.Type == Publish && !fh.Qos.Valid() {
		return ErrInvalidQos // [MQTT-3.3.1-4]
	}

	return nil
}
