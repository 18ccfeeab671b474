// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

// PublishPacket contains the values of an MQTT PUBLISH packet.
type PublishPacket struct {
	Message
	Dup      bool   `json:"dup"`
	PacketID uint16 `json:"packetId"`
}

// Type returns the packet type.
func (pk *PublishPacket) Type() byte { return Publish }

// Header returns the fixed header of the packet.
func (pk *PublishPacket) Header() FixedHeader {
	return FixedHeader{Type: Publish, Dup: pk.Dup, Qos: pk.Qos, Retain: pk.Retain}
}

func (pk *PublishPacket) encode(w *Writer) error {
	if !pk.Qos.Valid() {
		return ErrInvalidQos
	}

	if err := w.WriteString(pk.TopicName); err != nil {
		return err
	}

	if pk.Qos > AtMostOnce {
		if pk.PacketID == 0 {
			return ErrProtocolViolationNoPacketID // [MQTT-2.3.1-1]
		}
		w.WriteUint16(pk.PacketID)
	}

	w.WriteRaw(pk.Payload)
	return nil
}

func (pk *PublishPacket) decode(fh FixedHeader, r *Reader) error {
	pk.Dup = fh.Dup
	pk.Qos = fh.Qos
	pk.Retain = fh.Retain

	var err error
	if pk.TopicName, err = r.ReadString(); err != nil {
		return malformed(ErrMalformedTopic, err)
	}

	if pk.Qos > AtMostOnce {
		if pk.PacketID, err = r.ReadUint16(); err != nil {
			return malformed(ErrMalformedPacketID, err)
		}

		if pk.PacketID == 0 {
			return ErrProtocolViolationNoPacketID // [MQTT-2.3.1-1]
		}
	}

	pk.Payload = r.ReadRemaining()
	return nil
}

// Copy returns a copy of the publish packet which does not share the payload
// backing array with the original.
func (pk *PublishPacket) Copy() *PublishPacket {
	out := *pk
	if pk.Payload != nil {
		out.Payload = append([]byte{}, pk.Payload...)
	}
	return &out
}
