// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

// UnsubscribePacket contains the values of an MQTT UNSUBSCRIBE packet.
type UnsubscribePacket struct {
	PacketID uint16   `json:"packetId"`
	Filters  []string `json:"filters"`
}

// Type returns the packet type.
func (pk *UnsubscribePacket) Type() byte { return Unsubscribe }

// Header returns the fixed header of the packet. Unsubscribe flags are fixed at qos 1. [MQTT-3.10.1-1]
func (pk *UnsubscribePacket) Header() FixedHeader {
	return FixedHeader{Type: Unsubscribe, Qos: AtLeastOnce}
}

func (pk *UnsubscribePacket) encode(w *Writer) error {
	if pk.PacketID == 0 {
		return ErrProtocolViolationNoPacketID
	}

	if len(pk.Filters) == 0 {
		return ErrProtocolViolationNoFilters // [MQTT-3.10.3-2]
	}

	w.WriteUint16(pk.PacketID)
	for _, filter := range pk.Filters {
		if err := w.WriteString(filter); err != nil {
			return err
		}
	}

	return nil
}

func (pk *UnsubscribePacket) decode(_ FixedHeader, r *Reader) error {
	var err error
	if pk.PacketID, err = r.ReadUint16(); err != nil {
		return malformed(ErrMalformedPacketID, err)
	}

	if pk.PacketID == 0 {
		return ErrProtocolViolationNoPacketID
	}

	for r.Remaining() > 0 {
		filter, err := r.ReadString()
		if err != nil {
			return malformed(ErrMalformedTopic, err)
		}
		pk.Filters = append(pk.Filters, filter)
	}

	if len(pk.Filters) == 0 {
		return ErrProtocolViolationNoFilters // [MQTT-3.10.3-2]
	}

	return nil
}
